package intercept

import (
	"net/netip"
)

// Family is the address family of an endpoint and its destination.
type Family int

const (
	IPv4 Family = iota + 1
	IPv6
)

func (f Family) String() string {
	switch f {
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	default:
		return "unknown"
	}
}

// Destination is the address an endpoint is about to connect to. Family is
// the family of the endpoint, which for IPv6 endpoints may carry an
// IPv4-mapped address.
type Destination struct {
	Family   Family
	AddrPort netip.AddrPort
}

// NewDestination returns a Destination whose family follows the address:
// IPv4 for plain IPv4 addresses, IPv6 for everything else.
func NewDestination(ap netip.AddrPort) Destination {
	f := IPv6
	if ap.Addr().Is4() {
		f = IPv4
	}
	return Destination{Family: f, AddrPort: ap}
}

func (d Destination) Addr() netip.Addr { return d.AddrPort.Addr() }

func (d Destination) Port() uint16 { return d.AddrPort.Port() }

// Text returns the textual address used for exclusion matching: no port and
// no IPv6 zone.
func (d Destination) Text() string {
	return d.Addr().WithZone("").String()
}

func (d Destination) String() string {
	return d.AddrPort.String()
}

// withAddr returns d with its address and port replaced together.
func (d Destination) withAddr(addr netip.Addr, port uint16) Destination {
	d.AddrPort = netip.AddrPortFrom(addr, port)
	return d
}
