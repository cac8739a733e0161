package harness

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepward/stepward/steps"
)

func newBuiltinRunner(t *testing.T) *Runner {
	t.Helper()
	registry := steps.NewRegistry()
	require.NoError(t, steps.RegisterBuiltins(registry))
	return &Runner{Registry: registry}
}

func runScenarioFile(t *testing.T, name string) *Result {
	t.Helper()
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	return result
}

func TestRun_CounterScenario(t *testing.T) {
	result := runScenarioFile(t, "counter.yaml")

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Trace, 4)
	for _, ev := range result.Trace {
		assert.Equal(t, "passed", ev.Status)
	}
}

func TestRun_PollingScenario(t *testing.T) {
	result := runScenarioFile(t, "polling.yaml")

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 2)

	polled := result.Trace[1]
	assert.Equal(t, "failed", polled.Status)
	assert.Equal(t, []string{"within-timeout"}, polled.GuardKinds)
	assert.Contains(t, polled.Error, "did not succeed")
	assert.GreaterOrEqual(t, polled.Elapsed, 200*time.Millisecond)
}

func TestRun_GuardedScenario(t *testing.T) {
	result := runScenarioFile(t, "guarded.yaml")

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 4)
	assert.Equal(t, "skipped", result.Trace[0].Status)
	assert.Equal(t, []string{"conditional-skip"}, result.Trace[0].GuardKinds)
	assert.Equal(t, []string{"invert"}, result.Trace[2].GuardKinds)
	assert.Equal(t, []string{"expect-error"}, result.Trace[3].GuardKinds)
}

func TestRun_FailingScenario(t *testing.T) {
	result := runScenarioFile(t, "failing.yaml")

	assert.True(t, result.Pass, "a declared failure is a passing outcome: %v", result.Errors)
}

func TestRun_UnexpectedOutcome(t *testing.T) {
	scenario := &Scenario{
		Name: "unexpected",
		Steps: []StepSpec{
			{Run: "mode is set to fast"},
			{Run: "mode is equal to slow"},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected passed, got failed")
}

func TestRun_ErrorContainsMismatch(t *testing.T) {
	scenario := &Scenario{
		Name: "wrong_substring",
		Steps: []StepSpec{
			{Run: "mode is set to fast"},
			{Run: "mode is equal to slow", Expect: "failed", ErrorContains: "no such fragment"},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `does not contain "no such fragment"`)
}

func TestRun_ErrorContainsWithoutError(t *testing.T) {
	scenario := &Scenario{
		Name: "no_error",
		Steps: []StepSpec{
			{Run: "mode is set to fast", ErrorContains: "boom"},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "got no error")
}

func TestRun_AssertionFailures(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{
			name:      "trace_contains missing step",
			assertion: Assertion{Type: AssertTraceContains, Step: "never ran"},
			wantErr:   "not found",
		},
		{
			name:      "trace_contains wrong status",
			assertion: Assertion{Type: AssertTraceContains, Step: "counter is set to 0", Status: "failed"},
			wantErr:   "with status failed",
		},
		{
			name:      "trace_order violated",
			assertion: Assertion{Type: AssertTraceOrder, Steps: []string{"counter is incremented", "counter is set to 0"}},
			wantErr:   "should be before",
		},
		{
			name:      "trace_order missing step",
			assertion: Assertion{Type: AssertTraceOrder, Steps: []string{"counter is set to 0", "never ran"}},
			wantErr:   "missing step",
		},
		{
			name:      "trace_count mismatch",
			assertion: Assertion{Type: AssertTraceCount, Step: "counter is incremented", Count: 5},
			wantErr:   "5 occurrence(s)",
		},
		{
			name:      "final_scope unset variable",
			assertion: Assertion{Type: AssertFinalScope, Var: "ghost", Expect: 1},
			wantErr:   "not set",
		},
		{
			name:      "final_scope wrong value",
			assertion: Assertion{Type: AssertFinalScope, Var: "counter", Expect: 9},
			wantErr:   "counter = 9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario := &Scenario{
				Name: "assertion_failures",
				Steps: []StepSpec{
					{Run: "counter is set to 0"},
					{Run: "counter is incremented"},
				},
				Assertions: []Assertion{tt.assertion},
			}

			result, err := Run(context.Background(), scenario)
			require.NoError(t, err)

			assert.False(t, result.Pass)
			require.Len(t, result.Errors, 1)
			assert.Contains(t, result.Errors[0], tt.wantErr)
		})
	}
}

func TestRun_FinalScopePatternExpectation(t *testing.T) {
	scenario := &Scenario{
		Name: "pattern_expect",
		Steps: []StepSpec{
			{Run: "counter is set to 5"},
		},
		Assertions: []Assertion{
			{Type: AssertFinalScope, Var: "counter", Expect: "> 3"},
			{Type: AssertFinalScope, Var: "counter", Expect: "isNotNull"},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

// memorySink captures trace events for sink tests.
type memorySink struct {
	mu     sync.Mutex
	token  string
	events []TraceEvent
}

func (s *memorySink) BeginRun(_ context.Context, token string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *memorySink) Record(_ context.Context, runToken string, ev TraceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if runToken != s.token {
		s.events = nil
		return nil
	}
	s.events = append(s.events, ev)
	return nil
}

func TestExecute_SinkReceivesEvents(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "counter.yaml"))
	require.NoError(t, err)

	sink := &memorySink{}
	runner := newBuiltinRunner(t)
	runner.Sink = sink
	runner.RunToken = "run-0001"

	result, err := runner.Execute(context.Background(), scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	assert.Equal(t, "run-0001", sink.token)
	require.Len(t, sink.events, len(result.Trace))
	assert.Equal(t, result.Trace, sink.events)
}

func TestExecute_NoRegistry(t *testing.T) {
	r := &Runner{}
	_, err := r.Execute(context.Background(), &Scenario{Name: "x", Steps: []StepSpec{{Run: "y"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no step registry")
}
