package intercept

import (
	"fmt"
	"net/netip"

	"github.com/die-net/egressbind/internal/config"
)

const dnsPort = 53

// IsDNS reports whether dst is eligible for the DNS override.
func IsDNS(dst Destination, cfg config.Snapshot) bool {
	return dst.Port() == dnsPort && cfg.DNSOverrideIP != ""
}

// FamilyFor returns the family a not yet created endpoint should use to
// reach dst: the family of the DNS override address when dst is eligible
// for a valid one, otherwise the family of dst's own address.
func FamilyFor(dst Destination, cfg config.Snapshot) Family {
	if IsDNS(dst, cfg) {
		if addr, err := netip.ParseAddr(cfg.DNSOverrideIP); err == nil {
			if addr.Unmap().Is4() {
				return IPv4
			}
			return IPv6
		}
	}
	return NewDestination(dst.AddrPort).Family
}

// Rewrite applies the DNS override to dst. It returns dst unchanged and
// false when the destination is not eligible.
func Rewrite(dst Destination, cfg config.Snapshot) (Destination, bool, error) {
	return RewriteFor(dst, dst.Family, cfg)
}

// RewriteFor is Rewrite for an endpoint of family f that has not been
// created yet. The rewritten destination carries family f.
func RewriteFor(dst Destination, f Family, cfg config.Snapshot) (Destination, bool, error) {
	if !IsDNS(dst, cfg) {
		return dst, false, nil
	}

	addr, err := netip.ParseAddr(cfg.DNSOverrideIP)
	if err != nil {
		return dst, false, fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, config.EnvDNSOverrideIP, cfg.DNSOverrideIP, err)
	}
	addr, err = forFamily(addr, f)
	if err != nil {
		return dst, false, fmt.Errorf("%s=%q: %w", config.EnvDNSOverrideIP, cfg.DNSOverrideIP, err)
	}

	port := dst.Port()
	if cfg.DNSOverridePort != "" {
		port, err = config.ParsePort(cfg.DNSOverridePort)
		if err != nil {
			return dst, false, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, config.EnvDNSOverridePort, err)
		}
	}

	out := dst.withAddr(addr, port)
	out.Family = f
	return out, true, nil
}

// forFamily converts addr into the form an endpoint of family f can use.
func forFamily(addr netip.Addr, f Family) (netip.Addr, error) {
	switch f {
	case IPv4:
		if addr.Is4In6() {
			addr = addr.Unmap()
		}
		if !addr.Is4() {
			return netip.Addr{}, fmt.Errorf("%w: %w: %s is not an IPv4 address", ErrInvalidConfig, ErrFamilyMismatch, addr)
		}
		return addr, nil
	case IPv6:
		if addr.Is4() {
			return netip.AddrFrom16(addr.As16()), nil
		}
		return addr, nil
	default:
		return netip.Addr{}, fmt.Errorf("%w: unsupported family %v", ErrFamilyMismatch, f)
	}
}
