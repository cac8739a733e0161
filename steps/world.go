package steps

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/stepward/stepward/asserts"
	"github.com/stepward/stepward/errtype"
	"github.com/stepward/stepward/scope"
)

// World is the execution environment of one step session. It implements
// guard.Env: variable resolution goes through its scope, and the mutable
// default assertion timeout lives here rather than in process-global
// state, so concurrent sessions do not race on it.
type World struct {
	scope  *scope.Scope
	types  *errtype.Registry
	logger *slog.Logger

	mu      sync.Mutex
	timeout time.Duration
}

// NewWorld returns a fresh world with an empty scope, the built-in
// error-type registry, and the default assertion timeout. A nil logger
// discards output.
func NewWorld(logger *slog.Logger) *World {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &World{
		scope:   scope.New(),
		types:   errtype.NewRegistry(),
		logger:  logger,
		timeout: asserts.DefaultTimeout,
	}
}

// Scope returns the world's variable scope.
func (w *World) Scope() *scope.Scope { return w.scope }

// Types returns the world's error-type registry.
func (w *World) Types() *errtype.Registry { return w.types }

// ResolveOrSelf resolves a variable reference through the scope, or
// returns the token itself.
func (w *World) ResolveOrSelf(token string) any {
	return w.scope.ResolveOrSelf(token)
}

// ResolvePattern interpolates {{path}} placeholders for pattern-aware
// comparison.
func (w *World) ResolvePattern(expr string) string {
	return w.scope.Resolve(expr)
}

// DefaultTimeout returns the session's assertion timeout.
func (w *World) DefaultTimeout() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.timeout
}

// SetDefaultTimeout replaces the session's assertion timeout.
func (w *World) SetDefaultTimeout(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timeout = d
}

// Logger returns the world's logger.
func (w *World) Logger() *slog.Logger { return w.logger }

// AwaitDefault polls op with the session's current default timeout.
// Steps that assert eventual state use it so inverted steps, which
// shorten the timeout, fail fast.
func (w *World) AwaitDefault(ctx context.Context, op func() error) error {
	return asserts.AwaitUntilAsserted(ctx, op, w.DefaultTimeout())
}
