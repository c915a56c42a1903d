package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"syscall"

	"github.com/die-net/egressbind/internal/config"
	"github.com/die-net/egressbind/internal/intercept"
	"github.com/die-net/egressbind/internal/sockopt"
)

// BindingDialer dials TCP and UDP destinations through the interception
// pipeline.
//
// The configuration is read once per DialContext call. The DNS override is
// applied before the socket is created; the exclusion check and the
// interface/source binding run from the dialer's control hook, right
// before the kernel connect.
type BindingDialer struct {
	cfg      Config
	source   config.Source
	pipeline *intercept.Pipeline
	resolver *net.Resolver
}

// NewBindingDialer returns a BindingDialer for cfg.
func NewBindingDialer(cfg Config) *BindingDialer {
	d := &BindingDialer{
		cfg:      cfg,
		source:   cfg.Source,
		pipeline: cfg.Pipeline,
		resolver: cfg.Resolver,
	}
	if d.source == nil {
		d.source = config.FromEnv
	}
	if d.pipeline == nil {
		d.pipeline = &intercept.Pipeline{}
	}
	if d.resolver == nil {
		d.resolver = &net.Resolver{PreferGo: true, Dial: d.DialContext}
	}
	return d
}

// DialContext connects to address on network, which must be one of tcp,
// tcp4, tcp6, udp, udp4 or udp6. Host names are resolved and the resulting
// addresses are tried in order; a pipeline failure ends the dial without
// trying further addresses and matches syscall.ENETUNREACH.
func (d *BindingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	proto, err := protocol(network)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
	}

	addrs, err := d.resolve(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
	}

	snap := d.source()

	var firstErr error
	for _, ap := range addrs {
		conn, err := d.dialOne(ctx, proto, ap, snap)
		if err == nil {
			return conn, nil
		}
		var ie *intercept.Error
		if errors.As(err, &ie) || ctx.Err() != nil {
			return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, fmt.Errorf("dial %s %s: %w", network, address, firstErr)
}

func (d *BindingDialer) dialOne(ctx context.Context, proto string, ap netip.AddrPort, snap config.Snapshot) (net.Conn, error) {
	dst := intercept.NewDestination(ap)

	dec, err := d.pipeline.DecideFor(dst, intercept.FamilyFor(dst, snap), snap)
	if err != nil {
		return nil, err
	}
	final := dec.Destination

	var bindErr error
	nd := net.Dialer{Timeout: d.cfg.DialTimeout}
	if !dec.Excluded {
		nd.Control = func(_, _ string, rc syscall.RawConn) error {
			bindErr = sockopt.Control(rc, func(ep intercept.Endpoint) error {
				return d.pipeline.Bind(ep, final, snap)
			})
			return bindErr
		}
	}

	network := proto + "4"
	if final.Family == intercept.IPv6 {
		network = proto + "6"
	}

	conn, err := nd.DialContext(ctx, network, final.String())
	if err != nil {
		if bindErr != nil {
			return nil, bindErr
		}
		return nil, err
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetKeepAliveConfig(d.cfg.KeepAlive)
	}
	return conn, nil
}

// resolve returns the addresses to try for address. IP literals are used
// as is; host names are looked up with the dialer's resolver.
func (d *BindingDialer) resolve(ctx context.Context, network, address string) ([]netip.AddrPort, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	port, err := d.resolver.LookupPort(ctx, network, portStr)
	if err != nil {
		return nil, err
	}
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port %q", portStr)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if !familyAllowed(network, addr) {
			return nil, fmt.Errorf("address %s does not match network", host)
		}
		return []netip.AddrPort{netip.AddrPortFrom(addr.Unmap(), uint16(port))}, nil
	}

	ipNet := "ip"
	switch network[len(network)-1] {
	case '4':
		ipNet = "ip4"
	case '6':
		ipNet = "ip6"
	}

	ips, err := d.resolver.LookupNetIP(ctx, ipNet, host)
	if err != nil {
		return nil, err
	}
	out := make([]netip.AddrPort, 0, len(ips))
	for _, ip := range ips {
		out = append(out, netip.AddrPortFrom(ip.Unmap(), uint16(port)))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no addresses for %s", host)
	}
	return out, nil
}

func protocol(network string) (string, error) {
	switch network {
	case "tcp", "tcp4", "tcp6":
		return "tcp", nil
	case "udp", "udp4", "udp6":
		return "udp", nil
	default:
		return "", errors.New("unsupported network")
	}
}

func familyAllowed(network string, addr netip.Addr) bool {
	switch {
	case strings.HasSuffix(network, "4"):
		return addr.Unmap().Is4()
	case strings.HasSuffix(network, "6"):
		return addr.Is6() && !addr.Is4In6()
	default:
		return true
	}
}
