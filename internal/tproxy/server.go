package tproxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/die-net/egressbind/internal/dialer"
	"github.com/die-net/egressbind/internal/log"
	"github.com/die-net/egressbind/internal/proxy"
)

var ErrLoop = errors.New("original destination is the listener itself")

type Server struct {
	ctx    context.Context
	Dialer dialer.Dialer

	// OriginalDst looks up where an accepted connection was headed.
	// Defaults to the package OriginalDst.
	OriginalDst func(net.Conn) (netip.AddrPort, bool)
}

func NewServer(ctx context.Context, cfg proxy.Config) *Server {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Server{ctx: ctx, Dialer: cfg.Dialer, OriginalDst: OriginalDst}
}

func (s *Server) Serve(ln net.Listener) error {
	var self netip.AddrPort
	if ta, ok := ln.Addr().(*net.TCPAddr); ok {
		self = ta.AddrPort()
	}

	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) && s.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go func() {
			if err := s.handle(c, self); err != nil {
				log.Debugf("tproxy: connection from %s: %v", c.RemoteAddr(), err)
			}
		}()
	}
}

func (s *Server) handle(conn net.Conn, self netip.AddrPort) error {
	defer conn.Close()
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	dst, ok := s.OriginalDst(conn)
	if !ok {
		return fmt.Errorf("original destination unavailable")
	}
	if isSelf(dst, self) {
		return fmt.Errorf("%s: %w", dst, ErrLoop)
	}

	up, err := s.Dialer.DialContext(ctx, "tcp", dst.String())
	if err != nil {
		return err
	}
	defer up.Close()

	if _, _, err := proxy.CopyBidirectional(ctx, conn, up); err != nil {
		return fmt.Errorf("proxy %s: %w", dst, err)
	}
	return nil
}

// isSelf reports whether dst is the listener's own address, as seen when
// a client connects to the listener directly instead of being redirected.
func isSelf(dst, self netip.AddrPort) bool {
	if !self.IsValid() || dst.Port() != self.Port() {
		return false
	}
	addr := self.Addr().Unmap()
	if addr.IsUnspecified() {
		return dst.Addr().IsLoopback()
	}
	return dst.Addr() == addr
}
