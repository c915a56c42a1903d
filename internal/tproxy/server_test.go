package tproxy

import (
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/die-net/egressbind/internal/config"
	"github.com/die-net/egressbind/internal/dialer"
	"github.com/die-net/egressbind/internal/intercept"
	"github.com/die-net/egressbind/internal/log"
	"github.com/die-net/egressbind/internal/proxy"
	"github.com/die-net/egressbind/internal/testutil"
)

func testConfig(snap config.Snapshot) proxy.Config {
	return proxy.Config{
		Dialer: dialer.NewBindingDialer(dialer.Config{
			DialTimeout: 2 * time.Second,
			Source:      config.Static(snap),
			Pipeline:    &intercept.Pipeline{Log: log.New(io.Discard, io.Discard)},
		}),
	}
}

func TestServerDialsOriginalDestination(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	echo := testutil.StartEchoTCPServer(t, ctx)
	target := echo.Addr().(*net.TCPAddr).AddrPort()

	ln, err := proxy.ListenTCP(ctx, "tcp4", "127.0.0.1:0", net.KeepAliveConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	srv := NewServer(ctx, testConfig(config.Snapshot{BindInterface: "nosuchif0", BindExclude: "127."}))
	srv.OriginalDst = func(net.Conn) (netip.AddrPort, bool) { return target, true }
	go func() { _ = srv.Serve(ln) }()

	c, err := net.Dial("tcp4", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	testutil.AssertEcho(t, c, c, []byte("redirected"))
}

func TestServerClosesOnDialFailure(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	ln, err := proxy.ListenTCP(ctx, "tcp4", "127.0.0.1:0", net.KeepAliveConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	srv := NewServer(ctx, testConfig(config.Snapshot{BindInterface: "nosuchif0"}))
	srv.OriginalDst = func(net.Conn) (netip.AddrPort, bool) {
		return netip.MustParseAddrPort("192.0.2.1:443"), true
	}
	go func() { _ = srv.Serve(ln) }()

	c, err := net.Dial("tcp4", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after refused binding, got %v", err)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())

	ln, err := proxy.ListenTCP(ctx, "tcp4", "127.0.0.1:0", net.KeepAliveConfig{})
	if err != nil {
		t.Fatal(err)
	}

	srv := NewServer(ctx, testConfig(config.Snapshot{}))
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	cancel()
	_ = ln.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v after cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestIsSelf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		dst, self string
		want      bool
	}{
		{dst: "127.0.0.1:1234", self: "127.0.0.1:1234", want: true},
		{dst: "127.0.0.1:1234", self: "0.0.0.0:1234", want: true},
		{dst: "[::1]:1234", self: "[::]:1234", want: true},
		{dst: "192.0.2.1:1234", self: "0.0.0.0:1234", want: false},
		{dst: "192.0.2.1:443", self: "127.0.0.1:1234", want: false},
		{dst: "127.0.0.1:443", self: "127.0.0.1:1234", want: false},
	}

	for _, tt := range tests {
		got := isSelf(netip.MustParseAddrPort(tt.dst), netip.MustParseAddrPort(tt.self))
		if got != tt.want {
			t.Fatalf("isSelf(%s, %s) = %v want %v", tt.dst, tt.self, got, tt.want)
		}
	}
}
