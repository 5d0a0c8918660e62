package isolate

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadySetup is returned by Setup or Start when a shared cell
	// has already been registered on this isolate.
	ErrAlreadySetup = errors.New("isolate: shared cell already registered")

	// ErrNotSetup is returned by operations that require a shared cell
	// before Setup or Start has been called.
	ErrNotSetup = errors.New("isolate: no shared cell registered")

	// ErrClosed is returned by operations submitted after Close.
	ErrClosed = errors.New("isolate: closed")
)

// ViolationError reports a heap-ownership precondition violation: touching
// a cell without holding the token, releasing a token the caller does not
// hold, or reacquiring a token the caller already holds. These are
// programmer errors; the original failure mode they replace is a host
// process crash, so they panic at the violation site. Panics that occur
// inside Do are recovered and reported as errors.
type ViolationError struct {
	Op     string
	Reason string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("isolate: %s: %s", e.Op, e.Reason)
}

func violation(op, reason string) *ViolationError {
	return &ViolationError{Op: op, Reason: reason}
}
