package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/die-net/egressbind/internal/log"
	"github.com/die-net/egressbind/internal/socks5"
)

// SOCKS5Server serves SOCKS5 CONNECT requests, dialing each destination
// through the configured dialer.
type SOCKS5Server struct {
	ctx context.Context
	cfg Config
}

func NewSOCKS5Server(ctx context.Context, cfg Config) *SOCKS5Server {
	if ctx == nil {
		ctx = context.Background()
	}
	return &SOCKS5Server{ctx: ctx, cfg: cfg}
}

// Serve accepts connections on ln until it is closed.
func (s *SOCKS5Server) Serve(ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) && s.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go func() {
			if err := s.handleConn(c); err != nil {
				log.Debugf("socks5 %s: %v", c.RemoteAddr(), err)
			}
		}()
	}
}

func (s *SOCKS5Server) handleConn(conn net.Conn) error {
	defer conn.Close()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	if s.cfg.NegotiationTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.cfg.NegotiationTimeout))
	}

	if err := socks5.ServerNegotiate(conn, s.cfg.SOCKS5Auth); err != nil {
		return err
	}

	req, err := socks5.ServerReadRequest(conn)
	if err != nil {
		return err
	}
	if req.Cmd != socks5.CmdConnect {
		socks5.WriteCommandNotSupportedReply(conn, req.Atyp)
		return fmt.Errorf("unsupported command %#04x", req.Cmd)
	}

	target := req.Address()
	up, err := s.cfg.Dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		socks5.WriteDialErrorReply(conn, req.Atyp, err)
		return err
	}
	defer up.Close()

	if err := socks5.WriteSuccessReply(conn, up.LocalAddr()); err != nil {
		return err
	}
	_ = conn.SetDeadline(time.Time{})

	sent, received, err := CopyBidirectional(ctx, conn, up)
	log.Debugf("socks5 %s closed, %d bytes sent, %d received", target, sent, received)
	if err != nil {
		return fmt.Errorf("proxy %s: %w", target, err)
	}
	return nil
}
