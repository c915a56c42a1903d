//go:build linux

package preflight

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/vishvananda/netlink"

	"github.com/die-net/egressbind/internal/config"
	"github.com/die-net/egressbind/internal/log"
)

type fakeLinks struct {
	links map[string]netlink.Link
	addrs map[string][]netlink.Addr
}

func (f *fakeLinks) LinkByName(name string) (netlink.Link, error) {
	if l, ok := f.links[name]; ok {
		return l, nil
	}
	return nil, errors.New("no such device")
}

func (f *fakeLinks) AddrList(link netlink.Link, _ int) ([]netlink.Addr, error) {
	return f.addrs[link.Attrs().Name], nil
}

func mustAddr(t *testing.T, cidr string) netlink.Addr {
	t.Helper()

	a, err := netlink.ParseAddr(cidr)
	if err != nil {
		t.Fatal(err)
	}
	return *a
}

func TestCheckInterface(t *testing.T) {
	t.Parallel()

	links := &fakeLinks{
		links: map[string]netlink.Link{
			"wg0":  &netlink.Dummy{LinkAttrs: netlink.LinkAttrs{Name: "wg0", Index: 7, Flags: net.FlagUp}},
			"eth9": &netlink.Dummy{LinkAttrs: netlink.LinkAttrs{Name: "eth9", Index: 9}},
		},
		addrs: map[string][]netlink.Addr{
			"wg0": {mustAddr(t, "10.8.0.2/24"), mustAddr(t, "fd00::2/64")},
		},
	}

	tests := []struct {
		name     string
		snap     config.Snapshot
		wantErr  bool
		wantWarn string
	}{
		{name: "up with matching sources", snap: config.Snapshot{BindInterface: "wg0", BindSourceIPv4: "10.8.0.2", BindSourceIPv6: "fd00::2"}},
		{name: "down", snap: config.Snapshot{BindInterface: "eth9"}, wantWarn: `interface "eth9" is down`},
		{name: "foreign source", snap: config.Snapshot{BindInterface: "wg0", BindSourceIPv4: "192.0.2.7"}, wantWarn: "BIND_SOURCE_IPV4=192.0.2.7 is not configured"},
		{name: "missing", snap: config.Snapshot{BindInterface: "nope0"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			c := &Checker{Links: links, Log: log.New(&out, io.Discard)}

			err := c.Run(t.Context(), tt.snap)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if tt.wantWarn == "" {
				if strings.Contains(out.String(), "[WRN]") {
					t.Fatalf("unexpected warning in %q", out.String())
				}
				return
			}
			if !strings.Contains(out.String(), tt.wantWarn) {
				t.Fatalf("output %q does not contain %q", out.String(), tt.wantWarn)
			}
		})
	}
}

func TestCheckInterfaceNetlink(t *testing.T) {
	t.Parallel()

	c := &Checker{Log: log.New(io.Discard, io.Discard)}

	if err := c.Run(t.Context(), config.Snapshot{BindInterface: "lo"}); err != nil {
		t.Fatalf("loopback: %v", err)
	}

	err := c.Run(t.Context(), config.Snapshot{BindInterface: "nosuchif0"})
	if !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound, got %v", err)
	}
}
