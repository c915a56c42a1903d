//go:build !linux

package sockopt

import (
	"errors"
	"net/netip"
	"syscall"

	"github.com/die-net/egressbind/internal/intercept"
)

// IsSupported is true where interface binding is available.
const IsSupported = false

var errUnsupported = errors.New("interface binding is only supported on linux")

type unsupportedEndpoint struct{}

func (unsupportedEndpoint) BoundInterface() (string, error) { return "", errUnsupported }

func (unsupportedEndpoint) BindToInterface(string) error { return errUnsupported }

func (unsupportedEndpoint) BindSource(netip.Addr) error { return errUnsupported }

// Control runs fn with an endpoint that fails every binding request.
func Control(_ syscall.RawConn, fn func(intercept.Endpoint) error) error {
	return fn(unsupportedEndpoint{})
}
