// Package tproxy implements the Linux transparent proxy listener.
//
// The listener sets IP_TRANSPARENT (and IPV6_TRANSPARENT for IPv6
// sockets) so it can accept connections steered to it by TPROXY rules.
// The original destination is read with SO_ORIGINAL_DST for connections
// redirected by NAT REDIRECT rules and is otherwise the local address of
// the accepted socket, which TPROXY preserves. Each connection is then
// dialed to its original destination through the binding dialer.
//
// On other platforms the listener is stubbed out and returns errors.
package tproxy
