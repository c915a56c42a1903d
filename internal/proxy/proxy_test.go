package proxy

import (
	"io"
	"time"

	"github.com/die-net/egressbind/internal/config"
	"github.com/die-net/egressbind/internal/dialer"
	"github.com/die-net/egressbind/internal/intercept"
	"github.com/die-net/egressbind/internal/log"
)

func testConfig(snap config.Snapshot) Config {
	return Config{
		NegotiationTimeout: 2 * time.Second,
		HTTPIdleTimeout:    time.Second,
		Dialer: dialer.NewBindingDialer(dialer.Config{
			DialTimeout: 2 * time.Second,
			Source:      config.Static(snap),
			Pipeline:    &intercept.Pipeline{Log: log.New(io.Discard, io.Discard)},
		}),
	}
}

// excludedLoopback binds to an interface that does not exist but exempts
// loopback, so tests pass only if the exclusion is honoured.
var excludedLoopback = config.Snapshot{BindInterface: "nosuchif0", BindExclude: "127."}
