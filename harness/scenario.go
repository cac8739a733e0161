package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a YAML-driven behavior test.
// Scenarios seed a variable scope, execute a list of steps (each optionally
// wrapped in guard clauses), and assert on the resulting trace and final
// scope.
type Scenario struct {
	// Name uniquely identifies this scenario. It doubles as the golden
	// file name for trace snapshots.
	Name string `yaml:"name"`

	// Description explains what this scenario exercises.
	Description string `yaml:"description,omitempty"`

	// Vars seeds the scope before the first step runs.
	Vars map[string]any `yaml:"vars,omitempty"`

	// Steps is the ordered list of step texts to execute.
	Steps []StepSpec `yaml:"steps"`

	// Assertions validate the final trace and scope.
	// Supported types: trace_contains, trace_order, trace_count, final_scope.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// StepSpec is one step line plus its expected outcome.
type StepSpec struct {
	// Run is the full step text, guard clauses included.
	Run string `yaml:"run"`

	// Expect is the outcome this step must produce: "passed" (the
	// default), "failed", or "skipped". A mismatch fails the scenario.
	Expect string `yaml:"expect,omitempty"`

	// ErrorContains, when set, requires the step error to contain this
	// substring. Usually paired with expect: failed.
	ErrorContains string `yaml:"error_contains,omitempty"`
}

// Assertion validates the trace or the final scope.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": the step appears in the trace (optionally with a status)
	// - "trace_order": steps appear in this relative order
	// - "trace_count": the step appears exactly N times
	// - "final_scope": a scope variable holds the expected value
	Type string `yaml:"type"`

	// Step is the step text (used by trace_contains, trace_count).
	Step string `yaml:"step,omitempty"`

	// Steps is the expected step order (used by trace_order).
	Steps []string `yaml:"steps,omitempty"`

	// Status restricts trace_contains to events with this outcome.
	Status string `yaml:"status,omitempty"`

	// Count is the expected number of occurrences (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Var is the scope variable name (used by final_scope).
	Var string `yaml:"var,omitempty"`

	// Expect is the expected variable value (used by final_scope).
	// A string value is matched with the same flag vocabulary step
	// assertions use, so "> 3" or "isNotNull" work here too.
	Expect any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalScope    = "final_scope"
)

// Step outcome names accepted by StepSpec.Expect.
var knownOutcomes = map[string]bool{
	"":        true, // defaults to passed
	"passed":  true,
	"failed":  true,
	"skipped": true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes scenario YAML with strict field validation
// (catches typos like "assertion:" vs "assertions:").
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Run == "" {
			return fmt.Errorf("steps[%d]: run is required", i)
		}
		if !knownOutcomes[step.Expect] {
			return fmt.Errorf("steps[%d]: unknown expect value %q (want passed, failed, or skipped)", i, step.Expect)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Step == "" {
			return fmt.Errorf("assertions[%d]: step is required for trace_contains", index)
		}
		if a.Status != "" && !knownOutcomes[a.Status] {
			return fmt.Errorf("assertions[%d]: unknown status %q for trace_contains", index, a.Status)
		}
	case AssertTraceOrder:
		if len(a.Steps) < 2 {
			return fmt.Errorf("assertions[%d]: trace_order needs at least two steps", index)
		}
	case AssertTraceCount:
		if a.Step == "" {
			return fmt.Errorf("assertions[%d]: step is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalScope:
		if a.Var == "" {
			return fmt.Errorf("assertions[%d]: var is required for final_scope", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
