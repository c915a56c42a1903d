//go:build linux

package preflight

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"

	"github.com/die-net/egressbind/internal/config"
)

type netlinkLinks struct{}

func (netlinkLinks) LinkByName(name string) (netlink.Link, error) { return netlink.LinkByName(name) }

func (netlinkLinks) AddrList(link netlink.Link, family int) ([]netlink.Addr, error) {
	return netlink.AddrList(link, family)
}

func (c *Checker) links() Links {
	if c.Links == nil {
		return netlinkLinks{}
	}
	return c.Links
}

func (c *Checker) checkInterface(snap config.Snapshot) error {
	l := c.logger()
	name := snap.BindInterface

	link, err := c.links().LinkByName(name)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			return fmt.Errorf("%s=%q: %w", config.EnvBindInterface, name, ErrLinkNotFound)
		}
		return fmt.Errorf("%s=%q: %w", config.EnvBindInterface, name, err)
	}

	attrs := link.Attrs()
	if attrs.Flags&net.FlagUp == 0 {
		l.Warnf("interface %q is down", name)
	} else {
		l.Infof("interface %q (index %d) is up", name, attrs.Index)
	}

	addrs, err := c.links().AddrList(link, netlink.FAMILY_ALL)
	if err != nil {
		l.Warnf("cannot list addresses of %q: %v", name, err)
		return nil
	}

	for _, src := range []struct{ env, raw string }{
		{config.EnvBindSourceIPv4, snap.BindSourceIPv4},
		{config.EnvBindSourceIPv6, snap.BindSourceIPv6},
	} {
		if src.raw == "" {
			continue
		}
		addr, err := netip.ParseAddr(src.raw)
		if err != nil {
			continue
		}
		if !hasAddr(addrs, addr) {
			l.Warnf("%s=%s is not configured on interface %q, binding it will fail", src.env, addr, name)
		}
	}
	return nil
}

func hasAddr(addrs []netlink.Addr, want netip.Addr) bool {
	want = want.Unmap()
	for _, a := range addrs {
		if a.IPNet == nil {
			continue
		}
		got, ok := netip.AddrFromSlice(a.IP)
		if ok && got.Unmap() == want {
			return true
		}
	}
	return false
}

