//go:build linux

package sockopt

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/die-net/egressbind/internal/config"
	"github.com/die-net/egressbind/internal/intercept"
)

// IsSupported is true where interface binding is available.
const IsSupported = true

// FD is a socket file descriptor used as an intercept.Endpoint.
type FD int

// BoundInterface returns the SO_BINDTODEVICE value of the socket.
func (fd FD) BoundInterface() (string, error) {
	name, err := unix.GetsockoptString(int(fd), unix.SOL_SOCKET, unix.SO_BINDTODEVICE)
	if err != nil {
		return "", fmt.Errorf("getsockopt SO_BINDTODEVICE: %w", err)
	}
	return name, nil
}

// BindToInterface sets SO_BINDTODEVICE. This needs CAP_NET_RAW.
func (fd FD) BindToInterface(name string) error {
	if err := unix.BindToDevice(int(fd), name); err != nil {
		return fmt.Errorf("setsockopt SO_BINDTODEVICE: %w", err)
	}
	return nil
}

// BindSource binds the socket's local address to addr, port 0.
func (fd FD) BindSource(addr netip.Addr) error {
	sa, err := Sockaddr(netip.AddrPortFrom(addr, 0))
	if err != nil {
		return err
	}
	if err := unix.Bind(int(fd), sa); err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}
	return nil
}

// Control runs fn with the socket behind rc as its endpoint. It is meant
// to be called from a net.Dialer control hook.
func Control(rc syscall.RawConn, fn func(intercept.Endpoint) error) error {
	var ctrlErr error
	err := rc.Control(func(fd uintptr) {
		ctrlErr = fn(FD(fd))
	})
	if err != nil {
		return err
	}
	return ctrlErr
}

// Destination converts an AF_INET or AF_INET6 socket address. It returns
// false for other families.
func Destination(sa unix.Sockaddr) (intercept.Destination, bool) {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		ap := netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port))
		return intercept.Destination{Family: intercept.IPv4, AddrPort: ap}, true
	case *unix.SockaddrInet6:
		addr := netip.AddrFrom16(sa.Addr)
		if sa.ZoneId != 0 {
			addr = addr.WithZone(strconv.FormatUint(uint64(sa.ZoneId), 10))
		}
		ap := netip.AddrPortFrom(addr, uint16(sa.Port))
		return intercept.Destination{Family: intercept.IPv6, AddrPort: ap}, true
	default:
		return intercept.Destination{}, false
	}
}

// Sockaddr converts ap into a socket address of its own family. IPv6
// zones may be interface names or numeric indexes.
func Sockaddr(ap netip.AddrPort) (unix.Sockaddr, error) {
	addr := ap.Addr()
	if addr.Is4() {
		return &unix.SockaddrInet4{Port: int(ap.Port()), Addr: addr.As4()}, nil
	}
	if !addr.IsValid() {
		return nil, fmt.Errorf("invalid address %v", ap)
	}

	sa := &unix.SockaddrInet6{Port: int(ap.Port()), Addr: addr.As16()}
	if zone := addr.Zone(); zone != "" {
		id, err := zoneID(zone)
		if err != nil {
			return nil, err
		}
		sa.ZoneId = id
	}
	return sa, nil
}

func zoneID(zone string) (uint32, error) {
	if n, err := strconv.ParseUint(zone, 10, 32); err == nil {
		return uint32(n), nil
	}
	ifi, err := net.InterfaceByName(zone)
	if err != nil {
		return 0, fmt.Errorf("ipv6 zone %q: %w", zone, err)
	}
	return uint32(ifi.Index), nil
}

// Connector is the raw socket entry point: it takes the same arguments as
// connect(2), runs the interception pipeline and then calls the real
// connect.
type Connector struct {
	Pipeline *intercept.Pipeline

	// Config is read once per Connect call. Nil reads the environment.
	Config config.Source

	// Next is the real connect primitive. Nil means unix.Connect.
	Next func(fd int, sa unix.Sockaddr) error
}

// Connect intercepts connect(fd, sa). Sockets of families other than
// AF_INET and AF_INET6 are passed through untouched. Pipeline failures
// return an *intercept.Error that matches unix.ENETUNREACH, and the real
// connect is not called.
func (c *Connector) Connect(fd int, sa unix.Sockaddr) error {
	next := c.Next
	if next == nil {
		next = unix.Connect
	}

	dst, ok := Destination(sa)
	if !ok {
		return next(fd, sa)
	}

	src := c.Config
	if src == nil {
		src = config.FromEnv
	}

	return c.Pipeline.Connect(FD(fd), dst, src(), func(final intercept.Destination) error {
		if final == dst {
			return next(fd, sa)
		}
		out, err := Sockaddr(final.AddrPort)
		if err != nil {
			return &intercept.Error{Step: intercept.StepRewrite, Err: err}
		}
		if in6, ok := sa.(*unix.SockaddrInet6); ok {
			if out6, ok := out.(*unix.SockaddrInet6); ok && out6.ZoneId == 0 {
				out6.ZoneId = in6.ZoneId
			}
		}
		return next(fd, out)
	})
}

// IsUnreachable reports whether err is the error a caller of connect(2)
// should observe as ENETUNREACH.
func IsUnreachable(err error) bool {
	return errors.Is(err, unix.ENETUNREACH)
}
