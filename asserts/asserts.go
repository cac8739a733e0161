// Package asserts provides the assertion primitives used by step
// definitions and guard clauses: order-insensitive value comparison with
// pattern flags, polling assertions with deadlines, sustained assertions
// over a window, and error-type expectations.
//
// All primitives report failures as *Failure values rather than booleans,
// so callers compose them with plain error handling. A *SkipError is never
// treated as a failure: every primitive in this package returns it
// unchanged, without retrying or wrapping it.
package asserts

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultTimeout is the initial assertion timeout a fresh execution
// environment starts from. Guards that shorten the timeout restore the
// previous value when they finish.
const DefaultTimeout = 10 * time.Second

// Failure is an assertion failure. It is the error surfaced to the test
// runner when a step, a comparison, or a guard expectation does not hold.
type Failure struct {
	// Msg is a human-readable description of what did not hold.
	Msg string

	// Expected and Actual carry the compared values when the failure
	// came from a comparison. Either may be nil.
	Expected any
	Actual   any

	// Err is the underlying failure, if any (e.g. the last error observed
	// before a polling deadline elapsed).
	Err error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	var b strings.Builder
	b.WriteString(f.Msg)
	if f.Expected != nil || f.Actual != nil {
		fmt.Fprintf(&b, "\n  expected: %s\n  actual:   %s", stringify(f.Expected), stringify(f.Actual))
	}
	if f.Err != nil {
		fmt.Fprintf(&b, "\ncaused by: %v", f.Err)
	}
	return b.String()
}

// Unwrap exposes the underlying failure for errors.Is/As chains.
func (f *Failure) Unwrap() error { return f.Err }

// Failf builds a Failure from a format string.
func Failf(format string, args ...any) *Failure {
	return &Failure{Msg: fmt.Sprintf(format, args...)}
}

// IsFailure reports whether err is (or wraps) an assertion failure.
func IsFailure(err error) bool {
	var f *Failure
	return errors.As(err, &f)
}
