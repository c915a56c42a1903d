package intercept

import (
	"errors"
	"fmt"
	"syscall"
)

var (
	// ErrInvalidConfig reports a configured address or port that does not
	// parse.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrFamilyMismatch reports a configured address that cannot be used
	// with the endpoint's address family.
	ErrFamilyMismatch = errors.New("address family mismatch")
)

// Step names the pipeline stage that failed.
type Step string

const (
	StepRewrite        Step = "dns override"
	StepQueryInterface Step = "query bound interface"
	StepBindInterface  Step = "bind interface"
	StepBindSource     Step = "bind source address"
)

// Error is a fatal pipeline failure. The connection attempt was not made.
//
// Error matches syscall.ENETUNREACH with errors.Is, as well as the
// underlying cause.
type Error struct {
	Step Step
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{syscall.ENETUNREACH, e.Err}
}
