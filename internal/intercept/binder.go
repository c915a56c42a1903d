package intercept

import (
	"fmt"
	"net/netip"

	"github.com/die-net/egressbind/internal/config"
)

// Endpoint is the binding surface of a socket owned by the caller. The
// pipeline queries and changes its bindings but never closes it.
type Endpoint interface {
	// BoundInterface returns the name of the interface the endpoint is
	// bound to, or "" if it is not bound.
	BoundInterface() (string, error)

	// BindToInterface restricts the endpoint to the named interface.
	BindToInterface(name string) error

	// BindSource binds the endpoint's local address to addr with a
	// wildcard port.
	BindSource(addr netip.Addr) error
}

// sourceSetting returns the variable name and value of the source address
// configured for family f.
func sourceSetting(cfg config.Snapshot, f Family) (string, string) {
	if f == IPv6 {
		return config.EnvBindSourceIPv6, cfg.BindSourceIPv6
	}
	return config.EnvBindSourceIPv4, cfg.BindSourceIPv4
}

func parseSource(name, raw string, f Family) (netip.Addr, error) {
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, name, raw, err)
	}
	if f == IPv6 && addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%w: %w: %s=%q is not an IPv6 address", ErrInvalidConfig, ErrFamilyMismatch, name, raw)
	}
	addr, err = forFamily(addr, f)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%s=%q: %w", name, raw, err)
	}
	return addr, nil
}

// Bind makes ep conform to the configured interface and source address for
// dst's family. The interface binding is applied first and only when ep is
// not already bound to it; the source binding follows when configured.
// Failures are returned as *Error and the caller must not connect.
func (p *Pipeline) Bind(ep Endpoint, dst Destination, cfg config.Snapshot) error {
	l := p.logger()

	srcName, srcRaw := sourceSetting(cfg, dst.Family)
	var src netip.Addr
	if srcRaw != "" {
		var err error
		if src, err = parseSource(srcName, srcRaw, dst.Family); err != nil {
			return &Error{Step: StepBindSource, Err: err}
		}
	}

	if cfg.BindInterface == "" && srcRaw == "" {
		l.Warnf("neither %s nor %s is set, connecting to %s unbound", config.EnvBindInterface, srcName, dst)
		return nil
	}

	if name := cfg.BindInterface; name != "" {
		cur, err := ep.BoundInterface()
		if err != nil {
			return &Error{Step: StepQueryInterface, Err: err}
		}
		if cur != name {
			l.Debugf("endpoint bound to %q, binding to interface %q", cur, name)
			if err := ep.BindToInterface(name); err != nil {
				return &Error{Step: StepBindInterface, Err: fmt.Errorf("%q: %w", name, err)}
			}
		} else {
			l.Debugf("endpoint already bound to interface %q", name)
		}
	}

	if src.IsValid() {
		l.Debugf("binding source address %s for %s", src, dst)
		if err := ep.BindSource(src); err != nil {
			return &Error{Step: StepBindSource, Err: fmt.Errorf("%s: %w", src, err)}
		}
	}

	return nil
}
