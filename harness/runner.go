package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/stepward/stepward/asserts"
	"github.com/stepward/stepward/steps"
)

// TraceEvent records one executed step for trace assertions and goldens.
type TraceEvent struct {
	// Seq is the 1-based position of the step in the scenario.
	Seq int `json:"seq"`

	// Step is the raw step text, guard clauses included.
	Step string `json:"step"`

	// GuardKinds names the guard chain wrapping the step, outermost first.
	GuardKinds []string `json:"guard_kinds,omitempty"`

	// Status is the observed outcome: passed, failed, or skipped.
	Status string `json:"status"`

	// Error is the step error message, empty on success.
	Error string `json:"error,omitempty"`

	// Elapsed is the wall-clock duration of the step.
	Elapsed time.Duration `json:"elapsed"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Name is the scenario name.
	Name string `json:"name"`

	// Pass indicates overall scenario success: every step matched its
	// expected outcome and every assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per executed step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(name string) *Result {
	return &Result{
		Name:  name,
		Pass:  true,
		Trace: []TraceEvent{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// Sink receives trace events as they are produced, for persistence.
// *tracestore.Store implements it.
type Sink interface {
	BeginRun(ctx context.Context, token string, startedAt time.Time) error
	Record(ctx context.Context, runToken string, ev TraceEvent) error
}

// Runner executes scenarios against a step registry.
// The zero value is not usable; Registry is required.
type Runner struct {
	// Registry supplies the step definitions.
	Registry *steps.Registry

	// World carries the scope and session settings. A fresh one is
	// created per scenario when nil, which is what test isolation wants.
	World *steps.World

	// Logger receives per-step debug lines. Defaults to a discard logger.
	Logger *slog.Logger

	// Sink, when set, receives every trace event under RunToken.
	Sink Sink

	// RunToken identifies this execution in the sink.
	RunToken string
}

// Run executes a scenario with the built-in step vocabulary and a fresh
// world. Most callers want this; construct a Runner directly to customize.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	registry := steps.NewRegistry()
	if err := steps.RegisterBuiltins(registry); err != nil {
		return nil, fmt.Errorf("failed to register built-in steps: %w", err)
	}
	r := &Runner{Registry: registry}
	return r.Execute(ctx, scenario)
}

// Execute runs the scenario's steps in order, validates each observed
// outcome against the step's expect clause, then evaluates the trace and
// scope assertions. Step failures are collected, not fatal; the returned
// error reports infrastructure problems only.
func (r *Runner) Execute(ctx context.Context, scenario *Scenario) (*Result, error) {
	if r.Registry == nil {
		return nil, fmt.Errorf("runner has no step registry")
	}

	world := r.World
	if world == nil {
		world = steps.NewWorld(r.Logger)
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	for name, value := range scenario.Vars {
		world.Scope().Set(name, value)
	}

	if r.Sink != nil {
		if err := r.Sink.BeginRun(ctx, r.RunToken, time.Now()); err != nil {
			return nil, fmt.Errorf("failed to begin trace run: %w", err)
		}
	}

	runner := steps.NewRunner(r.Registry, world, logger)
	result := NewResult(scenario.Name)

	for i, spec := range scenario.Steps {
		res := runner.Run(ctx, spec.Run)

		ev := TraceEvent{
			Seq:        i + 1,
			Step:       spec.Run,
			GuardKinds: res.Guards,
			Status:     res.Status.String(),
			Elapsed:    res.Elapsed,
		}
		if res.Err != nil {
			ev.Error = res.Err.Error()
		}
		result.Trace = append(result.Trace, ev)

		if r.Sink != nil {
			if err := r.Sink.Record(ctx, r.RunToken, ev); err != nil {
				return nil, fmt.Errorf("failed to record trace event: %w", err)
			}
		}

		logger.Debug("scenario step finished",
			"scenario", scenario.Name,
			"seq", ev.Seq,
			"status", ev.Status,
		)

		expected := spec.Expect
		if expected == "" {
			expected = "passed"
		}
		if ev.Status != expected {
			msg := fmt.Sprintf("steps[%d] %q: expected %s, got %s", i, spec.Run, expected, ev.Status)
			if ev.Error != "" {
				msg += ": " + ev.Error
			}
			result.AddError(msg)
		}

		if spec.ErrorContains != "" {
			switch {
			case res.Err == nil:
				result.AddError(fmt.Sprintf("steps[%d] %q: expected error containing %q, got no error", i, spec.Run, spec.ErrorContains))
			case !strings.Contains(res.Err.Error(), spec.ErrorContains):
				result.AddError(fmt.Sprintf("steps[%d] %q: error %q does not contain %q", i, spec.Run, res.Err.Error(), spec.ErrorContains))
			}
		}
	}

	for _, errMsg := range evaluateAssertions(result.Trace, world, scenario.Assertions) {
		result.AddError(errMsg)
	}

	return result, nil
}

// AssertionError is returned when a trace or scope assertion fails.
// It includes the full trace to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s\n", event.Seq, event.Status, event.Step)
	}

	return buf.String()
}

// evaluateAssertions evaluates all assertions against the trace and the
// final scope. Returns a slice of error messages for failed assertions.
func evaluateAssertions(trace []TraceEvent, world *steps.World, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(trace, assertion)
		case AssertFinalScope:
			err = assertFinalScope(world, assertion, trace)
		default:
			err = fmt.Errorf("assertions[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// assertTraceContains checks that the trace contains the step, optionally
// with a specific outcome.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Step != assertion.Step {
			continue
		}
		if assertion.Status == "" || event.Status == assertion.Status {
			return nil
		}
	}

	expected := fmt.Sprintf("step %q in trace", assertion.Step)
	if assertion.Status != "" {
		expected = fmt.Sprintf("step %q with status %s in trace", assertion.Step, assertion.Status)
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found",
		Trace:    trace,
	}
}

// assertTraceOrder checks that steps appear in the given relative order.
// Steps don't need to be consecutive; intervening steps are allowed.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for _, event := range trace {
		for _, want := range assertion.Steps {
			if event.Step == want && positions[want] == 0 {
				positions[want] = event.Seq
			}
		}
	}

	for _, want := range assertion.Steps {
		if positions[want] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all steps present: %v", assertion.Steps),
				Actual:   fmt.Sprintf("missing step: %s", want),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Steps); i++ {
		prev, curr := assertion.Steps[i-1], assertion.Steps[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("steps in order: %v", assertion.Steps),
				Actual: fmt.Sprintf("%q (seq %d) should be before %q (seq %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks that the step appears exactly Count times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Step == assertion.Step {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrence(s) of %q", assertion.Count, assertion.Step),
			Actual:   fmt.Sprintf("%d occurrence(s)", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertFinalScope checks that a scope variable holds the expected value.
// String expectations go through the pattern flag vocabulary, so
// "isNotNull" or "> 3" work the same way they do in step text.
func assertFinalScope(world *steps.World, assertion Assertion, trace []TraceEvent) error {
	actual, ok := world.Scope().Get(assertion.Var)
	if !ok {
		return &AssertionError{
			Type:     AssertFinalScope,
			Expected: fmt.Sprintf("variable %q set in scope", assertion.Var),
			Actual:   "not set",
			Trace:    trace,
		}
	}

	expected := assertion.Expect
	if s, isStr := expected.(string); isStr {
		expected = asserts.Pattern(s)
	}
	if err := asserts.EqualInAnyOrder(actual, expected); err != nil {
		return &AssertionError{
			Type:     AssertFinalScope,
			Expected: fmt.Sprintf("%s = %v", assertion.Var, assertion.Expect),
			Actual:   err.Error(),
			Trace:    trace,
		}
	}

	return nil
}
