// Package harness runs YAML-defined scenarios against the step vocabulary.
//
// A scenario seeds a variable scope, executes step texts in order (guard
// clauses included), and asserts on the resulting trace and final scope.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario exercises"
//	vars:
//	  threshold: 3
//	steps:
//	  - run: "counter is set to 0"
//	  - run: "within 200ms counter is equal to {{threshold}}"
//	    expect: failed            # passed (default) | failed | skipped
//	    error_contains: "did not succeed"
//	assertions:
//	  - type: trace_contains
//	    step: "counter is set to 0"
//	    status: passed
//	  - type: trace_order
//	    steps: ["counter is set to 0", "within 200ms counter is equal to {{threshold}}"]
//	  - type: trace_count
//	    step: "counter is set to 0"
//	    count: 1
//	  - type: final_scope
//	    var: counter
//	    expect: 0
//
// # Assertion Types
//
//   - trace_contains: the step appears in the trace, optionally with a status
//   - trace_order: steps appear in the given relative order
//   - trace_count: the step appears exactly N times
//   - final_scope: a scope variable holds the expected value
//
// # Golden Traces
//
// CanonicalTrace serializes a trace to RFC 8785 canonical JSON with
// elapsed durations zeroed, so repeated runs of a deterministic scenario
// produce identical bytes. AssertGolden compares against files under
// testdata/golden.
package harness
