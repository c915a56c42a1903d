// Package preflight checks that a configuration can work on this host
// before any traffic depends on it.
//
// It validates the snapshot, looks the bound interface up over netlink
// and, when a DNS override is configured, sends one probe query through
// the binding dialer so the override, exclusion and binding steps all
// run for real.
package preflight
