package proxy

import (
	"net"
	"time"

	"github.com/die-net/egressbind/internal/dialer"
	"github.com/die-net/egressbind/internal/socks5"
)

type Config struct {
	NegotiationTimeout time.Duration
	HTTPIdleTimeout    time.Duration
	HTTPMaxIdleConns   int

	KeepAlive net.KeepAliveConfig

	// SOCKS5Auth enables username/password authentication on the SOCKS5
	// listener when Username is set.
	SOCKS5Auth socks5.Auth

	// Dialer makes every outbound connection. It is normally a
	// *dialer.BindingDialer.
	Dialer dialer.Dialer
}
