//go:build linux

package sockopt

import (
	"errors"
	"io"
	"net"
	"net/netip"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/die-net/egressbind/internal/config"
	"github.com/die-net/egressbind/internal/intercept"
	"github.com/die-net/egressbind/internal/log"
)

func newSocket(t *testing.T, family int) int {
	t.Helper()

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = unix.Close(fd) })
	return fd
}

func quietPipeline() *intercept.Pipeline {
	return &intercept.Pipeline{Log: log.New(io.Discard, io.Discard)}
}

func listenLoopback(t *testing.T) *net.TCPListener {
	t.Helper()

	ln, err := net.ListenTCP("tcp4", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

func TestBoundInterfaceUnbound(t *testing.T) {
	t.Parallel()

	fd := newSocket(t, unix.AF_INET)
	name, err := FD(fd).BoundInterface()
	if err != nil {
		t.Fatal(err)
	}
	if name != "" {
		t.Fatalf("fresh socket reports interface %q", name)
	}
}

func TestBindToInterfaceLoopback(t *testing.T) {
	t.Parallel()

	fd := newSocket(t, unix.AF_INET)
	if err := FD(fd).BindToInterface("lo"); err != nil {
		if errors.Is(err, unix.EPERM) {
			t.Skip("SO_BINDTODEVICE needs CAP_NET_RAW")
		}
		t.Fatal(err)
	}

	name, err := FD(fd).BoundInterface()
	if err != nil {
		t.Fatal(err)
	}
	if name != "lo" {
		t.Fatalf("got %q want lo", name)
	}
}

func TestSockaddrRoundTrip(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"192.0.2.1:53", "[2001:db8::1]:443", "[::ffff:10.0.0.53]:53", "[fe80::1%3]:22"} {
		ap := netip.MustParseAddrPort(s)
		sa, err := Sockaddr(ap)
		if err != nil {
			t.Fatalf("%s: %v", s, err)
		}
		dst, ok := Destination(sa)
		if !ok {
			t.Fatalf("%s: not an inet sockaddr", s)
		}
		if dst.AddrPort != ap {
			t.Fatalf("round trip %s -> %s", s, dst.AddrPort)
		}
	}

	if _, ok := Destination(&unix.SockaddrUnix{Name: "/tmp/sock"}); ok {
		t.Fatal("unix sockaddr should not convert")
	}
}

func TestConnectorSourceBind(t *testing.T) {
	t.Parallel()

	ln := listenLoopback(t)
	port := ln.Addr().(*net.TCPAddr).Port

	fd := newSocket(t, unix.AF_INET)
	c := &Connector{
		Pipeline: quietPipeline(),
		Config:   config.Static(config.Snapshot{BindSourceIPv4: "127.0.0.1"}),
	}

	if err := c.Connect(fd, &unix.SockaddrInet4{Port: port, Addr: [4]byte{127, 0, 0, 1}}); err != nil {
		t.Fatal(err)
	}

	conn, err := ln.Accept()
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	local, err := unix.Getsockname(fd)
	if err != nil {
		t.Fatal(err)
	}
	sa4, ok := local.(*unix.SockaddrInet4)
	if !ok || sa4.Addr != [4]byte{127, 0, 0, 1} {
		t.Fatalf("unexpected local address %#v", local)
	}
}

func TestConnectorDNSOverride(t *testing.T) {
	t.Parallel()

	var got unix.Sockaddr
	fd := newSocket(t, unix.AF_INET)
	c := &Connector{
		Pipeline: quietPipeline(),
		Config: config.Static(config.Snapshot{
			DNSOverrideIP:   "10.0.0.53",
			DNSOverridePort: "5353",
			BindExclude:     "10.0.0.",
		}),
		Next: func(_ int, sa unix.Sockaddr) error {
			got = sa
			return nil
		},
	}

	if err := c.Connect(fd, &unix.SockaddrInet4{Port: 53, Addr: [4]byte{8, 8, 8, 8}}); err != nil {
		t.Fatal(err)
	}
	sa4, ok := got.(*unix.SockaddrInet4)
	if !ok || sa4.Addr != [4]byte{10, 0, 0, 53} || sa4.Port != 5353 {
		t.Fatalf("connect called with %#v", got)
	}
}

func TestConnectorPassesThroughUnchanged(t *testing.T) {
	t.Parallel()

	in := &unix.SockaddrInet6{Port: 443, Addr: netip.MustParseAddr("2001:db8::1").As16(), ZoneId: 0}
	var got unix.Sockaddr
	c := &Connector{
		Pipeline: quietPipeline(),
		Config:   config.Static(config.Snapshot{}),
		Next: func(_ int, sa unix.Sockaddr) error {
			got = sa
			return nil
		},
	}

	if err := c.Connect(newSocket(t, unix.AF_INET6), in); err != nil {
		t.Fatal(err)
	}
	if got != unix.Sockaddr(in) {
		t.Fatalf("unchanged destination should be passed as is, got %#v", got)
	}

	un := &unix.SockaddrUnix{Name: "/nonexistent"}
	if err := c.Connect(-1, un); err != nil {
		t.Fatal(err)
	}
	if got != unix.Sockaddr(un) {
		t.Fatalf("non-inet sockaddr not passed through: %#v", got)
	}
}

func TestConnectorBindFailureSkipsConnect(t *testing.T) {
	t.Parallel()

	called := false
	fd := newSocket(t, unix.AF_INET)
	c := &Connector{
		Pipeline: quietPipeline(),
		Config:   config.Static(config.Snapshot{BindInterface: "nosuchif0"}),
		Next: func(int, unix.Sockaddr) error {
			called = true
			return nil
		},
	}

	err := c.Connect(fd, &unix.SockaddrInet4{Port: 443, Addr: [4]byte{192, 0, 2, 1}})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsUnreachable(err) {
		t.Fatalf("error %v should be ENETUNREACH", err)
	}
	if called {
		t.Fatal("connect called after bind failure")
	}
}
