// Package sockopt applies the interception pipeline to real sockets.
//
// On Linux, FD implements intercept.Endpoint with SO_BINDTODEVICE for the
// interface binding and bind(2) for the source address, and Connector
// wraps connect(2) for callers that own raw file descriptors. Control
// adapts a syscall.RawConn for use from a net.Dialer control hook.
//
// On other platforms every binding request fails, so only excluded or
// unconfigured destinations can be connected.
package sockopt
