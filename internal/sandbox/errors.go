package sandbox

import (
	"errors"
	"fmt"
)

// Sentinel errors for typed error checking.
var (
	ErrToolNotFound     = errors.New("tool not found")
	ErrTimeout          = errors.New("execution timed out")
	ErrInternal         = errors.New("internal invoker error")
	ErrInvalidCommand   = errors.New("invalid command")
	ErrInvalidLimits    = errors.New("invalid resource limits")
	ErrBackendDown      = errors.New("isolation backend unavailable")
	ErrUnknownIsolation = errors.New("unknown isolation mode")
)

// ExecutionError wraps errors with invocation context.
type ExecutionError struct {
	ExecID string
	Op     string // The operation that failed
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.ExecID != "" {
		return fmt.Sprintf("invocation %s: %s: %s", e.ExecID, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsTimeout returns true if the error is a timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsToolNotFound returns true if the executable could not be resolved.
func IsToolNotFound(err error) bool {
	return errors.Is(err, ErrToolNotFound)
}
