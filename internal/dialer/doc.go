// Package dialer provides the outbound dialer used by egressbind.
//
// The binding dialer implements a small interface (DialContext) and is used
// by the proxy listeners. Every dial rewrites DNS destinations, honours the
// exclusion list and binds the new socket to the configured interface and
// source address before the kernel connect is issued.
package dialer
