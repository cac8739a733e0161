package guard

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/stepward/stepward/asserts"
)

// invertTimeout is the assertion timeout forced while an inverted step
// runs, so an expected failure is detected quickly instead of waiting out
// the session default.
const invertTimeout = 200 * time.Millisecond

// conditionPattern splits one sub-condition into a left operand reference
// and a right-hand expression.
var conditionPattern = regexp.MustCompile(`^(\S+) (.+)$`)

// Run executes the chain starting at g: applies this node's behavior and
// delegates inward, finally running action. The returned error is nil on
// success, a *asserts.SkipError when a conditional guard skipped the step,
// or the failure that reached the head of the chain.
func (g *Guard) Run(ctx context.Context, env Env, action Action) error {
	switch g.kind {
	case KindConditionalSkip:
		return g.runConditionalSkip(ctx, env, action)
	case KindInvert:
		return g.runInvert(ctx, env, action)
	case KindAsyncDelay:
		return g.runAsyncDelay(ctx, env, action)
	case KindWithinTimeout:
		return asserts.AwaitUntilAsserted(ctx, func() error {
			return g.delegate(ctx, env, action)
		}, g.delay)
	case KindDuringDuration:
		return asserts.AwaitDuring(ctx, func() error {
			return g.delegate(ctx, env, action)
		}, g.delay)
	case KindExpectError:
		return g.runExpectError(ctx, env, action)
	default:
		return g.delegate(ctx, env, action)
	}
}

// runConditionalSkip evaluates each &&-joined sub-condition and skips the
// step on the first one that does not hold. Sub-conditions that do not
// split into "<token> <expression>" are ignored.
func (g *Guard) runConditionalSkip(ctx context.Context, env Env, action Action) error {
	for _, sub := range strings.Split(g.condition, "&&") {
		sub = strings.TrimSpace(sub)
		m := conditionPattern.FindStringSubmatch(sub)
		if m == nil {
			continue
		}
		actual := env.ResolveOrSelf(m[1])
		want := asserts.Pattern(env.ResolvePattern(m[2]))
		if asserts.EqualInAnyOrder(actual, want) != nil {
			return &asserts.SkipError{Condition: sub}
		}
	}
	return g.delegate(ctx, env, action)
}

// runInvert shortens the session timeout for the duration of the
// delegation, swallows its failure, and fails when it passed. Skip
// signals are not failures and propagate unchanged.
func (g *Guard) runInvert(ctx context.Context, env Env, action Action) error {
	prev := env.DefaultTimeout()
	env.SetDefaultTimeout(invertTimeout)
	defer env.SetDefaultTimeout(prev)

	err := g.delegate(ctx, env, action)
	if asserts.IsSkip(err) {
		return err
	}
	if err == nil {
		return asserts.Failf("This test was expected to fail.")
	}
	return nil
}

// runAsyncDelay hands the delegation to a background goroutine and
// returns immediately. The caller never observes the delegation's
// outcome; failures are only logged. Cancelling the context during the
// delay drops the delegation silently.
func (g *Guard) runAsyncDelay(ctx context.Context, env Env, action Action) error {
	logger := env.Logger()
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(g.delay):
		}
		if err := g.delegate(ctx, env, action); err != nil {
			logger.Error("async step failed", "delay", g.delay, "error", err)
			return
		}
		logger.Debug("ran async step", "delay", g.delay)
	}()
	return nil
}

// runExpectError requires the delegation to fail with the configured
// error type; a matching failure is swallowed.
func (g *Guard) runExpectError(ctx context.Context, env Env, action Action) error {
	err := g.delegate(ctx, env, action)
	if asserts.IsSkip(err) {
		return err
	}
	return asserts.ThrewError(func() error { return err }, g.errType)
}
