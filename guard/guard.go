// Package guard implements the guard mini-language that prefixes
// behavior-test steps. A guard clause such as
//
//	within 100ms if a == b => an Exception is thrown when
//
// parses into a chain of guard nodes applied in encounter order, each
// wrapping the next, with the step action as the innermost operation.
// Guards can skip a step conditionally, invert its pass/fail outcome,
// delay it asynchronously, poll it until a deadline, require sustained
// success over a window, or expect a specific error type.
package guard

import (
	"context"
	"log/slog"
	"reflect"
	"time"
)

// Kind identifies the behavior of one guard node.
type Kind int

const (
	// KindPassthrough delegates with no modification.
	KindPassthrough Kind = iota

	// KindConditionalSkip skips the step when its condition does not hold.
	KindConditionalSkip

	// KindInvert swallows a failing delegation and fails a passing one.
	KindInvert

	// KindAsyncDelay runs the delegation on a background goroutine after a
	// delay, without the caller waiting for it.
	KindAsyncDelay

	// KindWithinTimeout polls the delegation until it succeeds or a
	// deadline elapses.
	KindWithinTimeout

	// KindDuringDuration requires the delegation to keep succeeding for a
	// whole window.
	KindDuringDuration

	// KindExpectError requires the delegation to fail with a specific
	// error type.
	KindExpectError
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindPassthrough:
		return "passthrough"
	case KindConditionalSkip:
		return "conditional-skip"
	case KindInvert:
		return "invert"
	case KindAsyncDelay:
		return "async-delay"
	case KindWithinTimeout:
		return "within-timeout"
	case KindDuringDuration:
		return "during-duration"
	case KindExpectError:
		return "expect-error"
	default:
		return "unknown"
	}
}

// Action is the step operation a guard chain ultimately wraps.
type Action func() error

// Env is the execution environment a chain runs against. It supplies
// variable resolution for conditional skips, the shared mutable assertion
// timeout that inverted steps shorten, and the logger used for
// fire-and-forget failures.
//
// Implementations must be safe for use from the background goroutines
// spawned by async-delay guards.
type Env interface {
	// ResolveOrSelf resolves a variable reference, or returns the token
	// itself when nothing is bound to it.
	ResolveOrSelf(token string) any

	// ResolvePattern resolves an expression destined for pattern-aware
	// comparison (placeholder interpolation, no type coercion).
	ResolvePattern(expr string) string

	// DefaultTimeout and SetDefaultTimeout expose the session's mutable
	// assertion timeout.
	DefaultTimeout() time.Duration
	SetDefaultTimeout(d time.Duration)

	// Logger reports background outcomes that are not surfaced to callers.
	Logger() *slog.Logger
}

// Guard is one node of an execution-modifying chain. Kind and parameters
// are fixed at construction; next is set once while the parser links the
// chain and never reassigned.
type Guard struct {
	kind      Kind
	condition string        // KindConditionalSkip
	delay     time.Duration // KindAsyncDelay, KindWithinTimeout, KindDuringDuration
	errName   string        // KindExpectError
	errType   reflect.Type  // KindExpectError
	next      *Guard
}

// Kind returns the node's behavior kind.
func (g *Guard) Kind() Kind { return g.kind }

// Next returns the node this one wraps, or nil for the last node.
func (g *Guard) Next() *Guard { return g.next }

// Condition returns the skip condition of a conditional-skip node.
func (g *Guard) Condition() string { return g.condition }

// Delay returns the delay, timeout or window of a timing node.
func (g *Guard) Delay() time.Duration { return g.delay }

// ErrorName returns the expected error-type name of an expect-error node.
func (g *Guard) ErrorName() string { return g.errName }

// delegate invokes the next node, or the action itself at the end of the
// chain.
func (g *Guard) delegate(ctx context.Context, env Env, action Action) error {
	if g.next != nil {
		return g.next.Run(ctx, env, action)
	}
	return action()
}
