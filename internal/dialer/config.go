package dialer

import (
	"net"
	"time"

	"github.com/die-net/egressbind/internal/config"
	"github.com/die-net/egressbind/internal/intercept"
)

type Config struct {
	DialTimeout time.Duration
	KeepAlive   net.KeepAliveConfig

	// Source yields the configuration for each dial. Nil reads the
	// environment.
	Source config.Source

	// Pipeline applies the interception steps. Nil uses a zero Pipeline.
	Pipeline *intercept.Pipeline

	// Resolver looks up host names. Nil uses a pure Go resolver whose own
	// DNS traffic is dialed through the same pipeline.
	Resolver *net.Resolver
}
