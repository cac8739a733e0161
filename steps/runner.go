package steps

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/stepward/stepward/asserts"
	"github.com/stepward/stepward/guard"
)

// Status is the three-way outcome of one step execution.
type Status int

const (
	// StatusPassed means the step (and its guards) completed successfully.
	StatusPassed Status = iota

	// StatusFailed means the step raised a failure, could not be matched,
	// or its guard clause did not parse.
	StatusFailed

	// StatusSkipped means a conditional guard decided not to run the step.
	// It counts as neither a pass nor a failure.
	StatusSkipped
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// UndefinedStepError reports step text no definition matches.
type UndefinedStepError struct {
	Text string
}

// Error implements the error interface.
func (e *UndefinedStepError) Error() string {
	return fmt.Sprintf("no step definition matches %q", e.Text)
}

// Result is the outcome of running one step.
type Result struct {
	// Text is the full step text, guards included.
	Text string

	// Status is the three-way outcome.
	Status Status

	// Guards lists the kinds of the guards that wrapped the step, in
	// encounter order. Empty for unguarded steps.
	Guards []string

	// Err is the failure or skip signal, nil when the step passed.
	Err error

	// Elapsed is the wall-clock time the step took, including polling
	// and inversion, but not work detached by an async guard.
	Elapsed time.Duration
}

// Runner executes step text against a registry and a world.
type Runner struct {
	registry *Registry
	world    *World
	logger   *slog.Logger
}

// NewRunner wires a runner. A nil logger discards output.
func NewRunner(registry *Registry, world *World, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{registry: registry, world: world, logger: logger}
}

// World returns the world steps execute against.
func (r *Runner) World() *World { return r.world }

// Run matches text to a step definition, parses its guard clause, and
// executes the chain around the handler. Every chain is built fresh; no
// state persists between steps except the world itself.
func (r *Runner) Run(ctx context.Context, text string) Result {
	start := time.Now()

	def, clause, args, ok := r.registry.Find(text)
	if !ok {
		return Result{
			Text:    text,
			Status:  StatusFailed,
			Err:     &UndefinedStepError{Text: text},
			Elapsed: time.Since(start),
		}
	}

	chain, err := guard.NewParser(r.world.Types()).Parse(clause)
	if err != nil {
		return Result{Text: text, Status: StatusFailed, Err: err, Elapsed: time.Since(start)}
	}

	guards := guardKinds(chain)
	r.logger.Debug("running step", "step", def.Pattern, "guards", guards)

	err = chain.Run(ctx, r.world, func() error {
		return def.handler(ctx, r.world, args)
	})

	status := StatusPassed
	switch {
	case asserts.IsSkip(err):
		status = StatusSkipped
	case err != nil:
		status = StatusFailed
	}

	return Result{
		Text:    text,
		Status:  status,
		Guards:  guards,
		Err:     err,
		Elapsed: time.Since(start),
	}
}

// guardKinds lists the chain's kinds, skipping the terminal passthrough
// that every parsed chain ends in.
func guardKinds(chain *guard.Guard) []string {
	var kinds []string
	for node := chain; node != nil && node.Next() != nil; node = node.Next() {
		kinds = append(kinds, node.Kind().String())
	}
	return kinds
}
