package guard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/stepward/stepward/asserts"
	"github.com/stepward/stepward/errtype"
)

type quotaErr struct{}

func (*quotaErr) Error() string { return "quota exceeded" }

// stubEnv is a minimal Env for exercising chains without the full step
// framework.
type stubEnv struct {
	mu      sync.Mutex
	vars    map[string]any
	timeout time.Duration
	logger  *slog.Logger
}

func newStubEnv() *stubEnv {
	return &stubEnv{
		vars:    make(map[string]any),
		timeout: asserts.DefaultTimeout,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (e *stubEnv) ResolveOrSelf(token string) any {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v, ok := e.vars[token]; ok {
		return v
	}
	return token
}

func (e *stubEnv) ResolvePattern(expr string) string { return expr }

func (e *stubEnv) DefaultTimeout() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timeout
}

func (e *stubEnv) SetDefaultTimeout(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timeout = d
}

func (e *stubEnv) Logger() *slog.Logger { return e.logger }

func mustParse(t *testing.T, text string) *Guard {
	t.Helper()
	g, err := Parse(text)
	require.NoError(t, err)
	return g
}

func TestRun_PassthroughExecutesOnce(t *testing.T) {
	g := mustParse(t, "")
	env := newStubEnv()

	runs := 0
	err := g.Run(context.Background(), env, func() error {
		runs++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, runs)
}

func TestRun_ConditionalSkip(t *testing.T) {
	t.Run("runs when the condition holds", func(t *testing.T) {
		env := newStubEnv()
		env.vars["x"] = 1

		ran := false
		err := mustParse(t, "if x == 1 =>").Run(context.Background(), env, func() error {
			ran = true
			return nil
		})

		require.NoError(t, err)
		assert.True(t, ran)
	})

	t.Run("skips when it does not", func(t *testing.T) {
		env := newStubEnv()
		env.vars["x"] = 2

		ran := false
		err := mustParse(t, "if x == 1 =>").Run(context.Background(), env, func() error {
			ran = true
			return nil
		})

		require.Error(t, err)
		assert.True(t, asserts.IsSkip(err))
		assert.False(t, ran, "a skipped step must not execute")
		assert.Contains(t, err.Error(), "x == 1")
	})

	t.Run("unresolved tokens fall back to themselves", func(t *testing.T) {
		env := newStubEnv()

		err := mustParse(t, "if staging == staging =>").Run(context.Background(), env, func() error {
			return nil
		})

		assert.NoError(t, err)
	})

	t.Run("every joined condition must hold", func(t *testing.T) {
		env := newStubEnv()
		env.vars["x"] = 1
		env.vars["y"] = 3

		err := mustParse(t, "if x == 1 && y == 2 =>").Run(context.Background(), env, func() error {
			return nil
		})

		require.Error(t, err)
		assert.True(t, asserts.IsSkip(err))
		assert.Contains(t, err.Error(), "y == 2", "the failing sub-condition is reported")
	})

	t.Run("sub-conditions without an expression are ignored", func(t *testing.T) {
		env := newStubEnv()
		env.vars["x"] = 1

		ran := false
		err := mustParse(t, "if x == 1 && yonly =>").Run(context.Background(), env, func() error {
			ran = true
			return nil
		})

		require.NoError(t, err)
		assert.True(t, ran)
	})
}

func TestRun_Invert(t *testing.T) {
	t.Run("failing delegation becomes success", func(t *testing.T) {
		err := mustParse(t, "it is not true that").Run(context.Background(), newStubEnv(), func() error {
			return asserts.Failf("intentional")
		})
		assert.NoError(t, err)
	})

	t.Run("passing delegation becomes failure", func(t *testing.T) {
		err := mustParse(t, "it is not true that").Run(context.Background(), newStubEnv(), func() error {
			return nil
		})
		require.Error(t, err)
		assert.True(t, asserts.IsFailure(err))
		assert.Equal(t, "This test was expected to fail.", err.Error())
	})

	t.Run("shortens the session timeout and restores it", func(t *testing.T) {
		env := newStubEnv()
		env.SetDefaultTimeout(7 * time.Second)

		var seen time.Duration
		err := mustParse(t, "it is not true that").Run(context.Background(), env, func() error {
			seen = env.DefaultTimeout()
			return asserts.Failf("intentional")
		})

		require.NoError(t, err)
		assert.Equal(t, 200*time.Millisecond, seen)
		assert.Equal(t, 7*time.Second, env.DefaultTimeout())
	})

	t.Run("restores the timeout when the delegation passes", func(t *testing.T) {
		env := newStubEnv()
		env.SetDefaultTimeout(7 * time.Second)

		_ = mustParse(t, "it is not true that").Run(context.Background(), env, func() error {
			return nil
		})

		assert.Equal(t, 7*time.Second, env.DefaultTimeout())
	})

	t.Run("skip signals are not swallowed", func(t *testing.T) {
		env := newStubEnv()
		env.vars["x"] = 2

		err := mustParse(t, "it is not true that if x == 1 =>").Run(context.Background(), env, func() error {
			return nil
		})

		require.Error(t, err)
		assert.True(t, asserts.IsSkip(err), "a nested skip is an outcome, not a failure to invert")
	})
}

func TestRun_AsyncDelay(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("returns before the action runs", func(t *testing.T) {
		env := newStubEnv()
		done := make(chan struct{})

		start := time.Now()
		err := mustParse(t, "after 60ms").Run(context.Background(), env, func() error {
			close(done)
			return nil
		})
		returned := time.Since(start)

		require.NoError(t, err)
		assert.Less(t, returned, 50*time.Millisecond, "the caller must not wait for the delay")

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("delayed action never ran")
		}
	})

	t.Run("the caller never observes a failing delayed action", func(t *testing.T) {
		env := newStubEnv()
		done := make(chan struct{})

		err := mustParse(t, "after 10ms").Run(context.Background(), env, func() error {
			defer close(done)
			return asserts.Failf("background boom")
		})

		assert.NoError(t, err, "background failures are logged, not raised")

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("delayed action never ran")
		}
	})

	t.Run("cancelling the context drops the delegation", func(t *testing.T) {
		env := newStubEnv()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var runs atomic.Int32
		err := mustParse(t, "after 20ms").Run(ctx, env, func() error {
			runs.Add(1)
			return nil
		})

		require.NoError(t, err)
		time.Sleep(150 * time.Millisecond)
		assert.Zero(t, runs.Load(), "a cancelled delay must not execute the action")
	})
}

func TestRun_WithinTimeout(t *testing.T) {
	t.Run("polls until eventual success", func(t *testing.T) {
		env := newStubEnv()
		start := time.Now()
		attempts := 0

		err := mustParse(t, "within 2000ms").Run(context.Background(), env, func() error {
			attempts++
			if time.Since(start) < 60*time.Millisecond {
				return asserts.Failf("not ready")
			}
			return nil
		})

		require.NoError(t, err)
		assert.Greater(t, attempts, 1)
	})

	t.Run("deadline failure wraps the last error", func(t *testing.T) {
		env := newStubEnv()
		boom := errors.New("still broken")

		err := mustParse(t, "within 80ms").Run(context.Background(), env, func() error {
			return boom
		})

		require.Error(t, err)
		assert.True(t, asserts.IsFailure(err))
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "did not succeed within")
	})
}

func TestRun_DuringDuration(t *testing.T) {
	t.Run("sustained success holds the whole window", func(t *testing.T) {
		env := newStubEnv()
		attempts := 0
		start := time.Now()

		err := mustParse(t, "during 100ms").Run(context.Background(), env, func() error {
			attempts++
			return nil
		})

		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
		assert.Greater(t, attempts, 1)
	})

	t.Run("a failure inside the window raises immediately", func(t *testing.T) {
		env := newStubEnv()
		attempts := 0
		start := time.Now()

		err := mustParse(t, "during 60000ms").Run(context.Background(), env, func() error {
			attempts++
			if attempts == 3 {
				return asserts.Failf("flaked")
			}
			return nil
		})

		require.Error(t, err)
		assert.True(t, asserts.IsFailure(err))
		assert.Less(t, time.Since(start), 10*time.Second, "must not wait out the window")
	})
}

func TestRun_ExpectError(t *testing.T) {
	reg := errtype.NewRegistry()
	reg.RegisterErr("QuotaExceeded", &quotaErr{})
	parser := NewParser(reg)

	parse := func(t *testing.T, text string) *Guard {
		t.Helper()
		g, err := parser.Parse(text)
		require.NoError(t, err)
		return g
	}

	t.Run("matching error type is swallowed", func(t *testing.T) {
		err := parse(t, "a QuotaExceeded is thrown when").Run(context.Background(), newStubEnv(), func() error {
			return &quotaErr{}
		})
		assert.NoError(t, err)
	})

	t.Run("wrapped matching error type is swallowed", func(t *testing.T) {
		err := parse(t, "a QuotaExceeded is thrown when").Run(context.Background(), newStubEnv(), func() error {
			return fmt.Errorf("handler: %w", &quotaErr{})
		})
		assert.NoError(t, err)
	})

	t.Run("no error is a failure", func(t *testing.T) {
		err := parse(t, "a QuotaExceeded is thrown when").Run(context.Background(), newStubEnv(), func() error {
			return nil
		})
		require.Error(t, err)
		assert.True(t, asserts.IsFailure(err))
		assert.Contains(t, err.Error(), "nothing was")
	})

	t.Run("a different error type is a failure", func(t *testing.T) {
		err := parse(t, "a QuotaExceeded is thrown when").Run(context.Background(), newStubEnv(), func() error {
			return errors.New("boom")
		})
		require.Error(t, err)
		assert.True(t, asserts.IsFailure(err))
	})

	t.Run("the generic Exception name matches any error", func(t *testing.T) {
		err := mustParse(t, "an Exception is thrown when").Run(context.Background(), newStubEnv(), func() error {
			return errors.New("anything")
		})
		assert.NoError(t, err)
	})

	t.Run("a nested skip propagates instead of matching", func(t *testing.T) {
		env := newStubEnv()
		env.vars["x"] = 2

		err := parse(t, "an Exception is thrown when if x == 1 =>").Run(context.Background(), env, func() error {
			return nil
		})

		require.Error(t, err)
		assert.True(t, asserts.IsSkip(err))
	})
}

func TestRun_SkipShortCircuitsOuterPolling(t *testing.T) {
	env := newStubEnv()
	env.vars["env"] = "dev"

	attempts := 0
	start := time.Now()
	err := mustParse(t, "if env == prod => within 60000ms").Run(context.Background(), env, func() error {
		attempts++
		return nil
	})

	require.Error(t, err)
	assert.True(t, asserts.IsSkip(err))
	assert.Zero(t, attempts)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRun_InvertedFailureInsideDeadline(t *testing.T) {
	env := newStubEnv()

	err := mustParse(t, "within 2000ms it is not true that").Run(context.Background(), env, func() error {
		return asserts.Failf("always failing")
	})

	assert.NoError(t, err, "inversion turns the failing action into a passing delegation")
}
