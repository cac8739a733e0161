package asserts

import (
	"errors"
	"fmt"
)

// SkipError signals that a step was deliberately not executed because a
// guard condition was not met. It is a distinct outcome class: neither a
// pass nor a failure. Outer guards and the polling primitives propagate it
// unchanged.
type SkipError struct {
	// Condition is the guard condition that did not hold, when known.
	Condition string
}

// Error implements the error interface.
func (e *SkipError) Error() string {
	if e.Condition == "" {
		return "step skipped"
	}
	return fmt.Sprintf("step skipped: condition %q not met", e.Condition)
}

// IsSkip reports whether err is (or wraps) a skip signal.
// Uses errors.As to handle wrapped errors.
func IsSkip(err error) bool {
	var se *SkipError
	return errors.As(err, &se)
}
