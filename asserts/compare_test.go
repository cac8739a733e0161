package asserts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqualInAnyOrder_Scalars(t *testing.T) {
	tests := []struct {
		name     string
		actual   any
		expected any
		wantEq   bool
	}{
		{"same ints", 1, 1, true},
		{"int vs string", 1, "1", true},
		{"string vs int", "42", 42, true},
		{"int vs float", 2, 2.0, true},
		{"bool vs string", true, "true", true},
		{"different ints", 1, 2, false},
		{"different strings", "a", "b", false},
		{"nil vs nil", nil, nil, true},
		{"nil vs value", nil, "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := EqualInAnyOrder(tt.actual, tt.expected)
			if tt.wantEq {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, IsFailure(err))
			}
		})
	}
}

func TestEqualInAnyOrder_Lists(t *testing.T) {
	t.Run("same order", func(t *testing.T) {
		assert.NoError(t, EqualInAnyOrder([]any{1, 2, 3}, []any{1, 2, 3}))
	})

	t.Run("any order", func(t *testing.T) {
		assert.NoError(t, EqualInAnyOrder([]any{3, 1, 2}, []any{1, 2, 3}))
	})

	t.Run("duplicates need backtracking", func(t *testing.T) {
		// A greedy matcher could bind the first expected 1 to the wrong
		// actual element and miss the valid assignment.
		assert.NoError(t, EqualInAnyOrder([]any{1, 1, 2}, []any{2, 1, 1}))
	})

	t.Run("multiplicity respected", func(t *testing.T) {
		err := EqualInAnyOrder([]any{1, 1, 2}, []any{1, 2, 2})
		require.Error(t, err)
		assert.True(t, IsFailure(err))
	})

	t.Run("length mismatch", func(t *testing.T) {
		err := EqualInAnyOrder([]any{1}, []any{1, 2})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "differ in length")
	})

	t.Run("typed slice coerces", func(t *testing.T) {
		assert.NoError(t, EqualInAnyOrder([]string{"b", "a"}, []any{"a", "b"}))
	})

	t.Run("lenient elements", func(t *testing.T) {
		assert.NoError(t, EqualInAnyOrder([]any{"1", "2"}, []any{2, 1}))
	})
}

func TestEqualInAnyOrder_Maps(t *testing.T) {
	t.Run("equal", func(t *testing.T) {
		actual := map[string]any{"a": 1, "b": []any{2, 3}}
		expected := map[string]any{"a": "1", "b": []any{3, 2}}
		assert.NoError(t, EqualInAnyOrder(actual, expected))
	})

	t.Run("missing key", func(t *testing.T) {
		err := EqualInAnyOrder(map[string]any{"a": 1}, map[string]any{"a": 1, "b": 2})
		require.Error(t, err)
	})

	t.Run("value mismatch names the key", func(t *testing.T) {
		err := EqualInAnyOrder(map[string]any{"a": 1}, map[string]any{"a": 2})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"a"`)
	})
}

func TestEqualInAnyOrder_Patterns(t *testing.T) {
	tests := []struct {
		name    string
		actual  any
		pattern Pattern
		wantEq  bool
	}{
		{"equality flag", 1, "== 1", true},
		{"equality flag mismatch", 1, "== 2", false},
		{"inequality flag", 1, "!= 2", true},
		{"inequality flag mismatch", 1, "!= 1", false},
		{"greater", 5, "> 3", true},
		{"greater mismatch", 2, "> 3", false},
		{"greater or equal", 3, ">= 3", true},
		{"less", 2, "< 3", true},
		{"less or equal mismatch", 4, "<= 3", false},
		{"lexicographic order", "b", "> a", true},
		{"regex", "order-42", `e order-\d+`, true},
		{"regex is anchored", "xorder-42x", `e order-\d+`, false},
		{"regex with question prefix", "order-42", `?e order-\d+`, true},
		{"contains", "hello world", "contains lo wo", true},
		{"contains mismatch", "hello", "contains xyz", false},
		{"is null", nil, "is null", true},
		{"is null mismatch", 1, "is null", false},
		{"isNull spelling", nil, "isNull", true},
		{"is not null", 1, "is not null", true},
		{"is not null mismatch", nil, "isNotNull", false},
		{"ignore", 123, "ignore", true},
		{"bare value", "OK", "OK", true},
		{"bare value lenient", 7, "7", true},
		{"bare value mismatch", "OK", "KO", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := EqualInAnyOrder(tt.actual, tt.pattern)
			if tt.wantEq {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, IsFailure(err), "want an assertion failure, got %T", err)
			}
		})
	}
}

func TestEqualInAnyOrder_PatternNestedInMap(t *testing.T) {
	actual := map[string]any{"status": "ready", "attempts": 3}
	expected := map[string]any{"status": Pattern("e read.*"), "attempts": Pattern(">= 2")}
	assert.NoError(t, EqualInAnyOrder(actual, expected))
}

func TestEqualInAnyOrder_InvalidRegex(t *testing.T) {
	err := EqualInAnyOrder("x", Pattern("e ["))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid match pattern")
}

func TestFailure_Error(t *testing.T) {
	f := &Failure{Msg: "values are not equal", Expected: 1, Actual: 2}
	assert.Contains(t, f.Error(), "values are not equal")
	assert.Contains(t, f.Error(), "expected: 1")
	assert.Contains(t, f.Error(), "actual:   2")

	wrapped := &Failure{Msg: "outer", Err: Failf("inner detail")}
	assert.Contains(t, wrapped.Error(), "caused by: inner detail")
	assert.True(t, IsFailure(wrapped.Unwrap()))
}
