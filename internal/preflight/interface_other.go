//go:build !linux

package preflight

import (
	"errors"
	"fmt"

	"github.com/die-net/egressbind/internal/config"
)

var errUnsupported = errors.New("interface binding is only supported on linux")

func (c *Checker) checkInterface(snap config.Snapshot) error {
	return fmt.Errorf("%s=%q: %w", config.EnvBindInterface, snap.BindInterface, errUnsupported)
}
