//go:build linux

package tproxy

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/die-net/egressbind/internal/proxy"
)

// IsSupported is true on TPROXY-supporting OSes.
const IsSupported = true

// ip6tSOOriginalDst is IP6T_SO_ORIGINAL_DST from linux/netfilter_ipv6,
// which x/sys does not export. It shares the value of SO_ORIGINAL_DST.
const ip6tSOOriginalDst = 80

// ListenTransparentTCP listens on addr and enables IP_TRANSPARENT so the socket can accept redirected
// connections (typical TPROXY setup). Note: you still need appropriate iptables/nft rules.
func ListenTransparentTCP(ctx context.Context, addr string, ka net.KeepAliveConfig) (net.Listener, error) {
	lc := net.ListenConfig{Control: func(network, _ string, c syscall.RawConn) error {
		var ctrlErr error
		err := c.Control(func(fd uintptr) {
			if network == "tcp6" {
				ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_IPV6, unix.IPV6_TRANSPARENT, 1)
				return
			}
			ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_IP, unix.IP_TRANSPARENT, 1)
		})
		if err != nil {
			return err
		}
		return ctrlErr
	}}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tproxy %s: %w", addr, err)
	}
	return &proxy.KeepAliveListener{Listener: ln, KeepAliveConfig: ka}, nil
}

// OriginalDst returns the original destination for a TCP connection redirected to this listener.
func OriginalDst(c net.Conn) (netip.AddrPort, bool) {
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return netip.AddrPort{}, false
	}

	local := tc.LocalAddr().(*net.TCPAddr).AddrPort()

	rc, err := tc.SyscallConn()
	if err != nil {
		return netip.AddrPort{}, false
	}

	var (
		dst netip.AddrPort
		nat bool
	)
	_ = rc.Control(func(fd uintptr) {
		dst, nat = natOriginalDst(int(fd), local.Addr().Unmap().Is4())
	})
	if nat {
		return dst, true
	}
	return netip.AddrPortFrom(local.Addr().Unmap(), local.Port()), local.IsValid()
}

// natOriginalDst asks conntrack for the pre-NAT destination. The sockaddr
// comes back in the buffer of an unrelated struct; only the address and
// port fields matter.
func natOriginalDst(fd int, v4 bool) (netip.AddrPort, bool) {
	if v4 {
		mreq, err := unix.GetsockoptIPv6Mreq(fd, unix.IPPROTO_IP, unix.SO_ORIGINAL_DST)
		if err != nil {
			return netip.AddrPort{}, false
		}
		// struct sockaddr_in: family(2) port(2) addr(4)
		raw := mreq.Multiaddr
		port := binary.BigEndian.Uint16(raw[2:4])
		addr := netip.AddrFrom4([4]byte(raw[4:8]))
		return netip.AddrPortFrom(addr, port), true
	}

	info, err := unix.GetsockoptIPv6MTUInfo(fd, unix.IPPROTO_IPV6, ip6tSOOriginalDst)
	if err != nil {
		return netip.AddrPort{}, false
	}
	port := binary.BigEndian.Uint16((*[2]byte)(unsafe.Pointer(&info.Addr.Port))[:])
	return netip.AddrPortFrom(netip.AddrFrom16(info.Addr.Addr), port), true
}
