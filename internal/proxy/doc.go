// Package proxy implements the egressbind listener-side proxy servers.
//
// Each server accepts connections from local applications and opens the
// outbound leg with the configured dialer, so the interface binding, the
// source binding and the DNS override apply to traffic from programs that
// only know how to talk to a proxy.
package proxy
