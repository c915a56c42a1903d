// Package socks5 is the SOCKS5 handshake used by the egressbind proxy
// listener, built on the wire types of github.com/txthinking/socks5.
//
// The server side negotiates no-auth or username/password, reads a single
// request and writes replies whose code reflects why the outbound dial
// failed, so a client can tell a refused interface binding from a refused
// connection. The client side drives the server in tests.
package socks5
