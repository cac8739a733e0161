package asserts

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/go-cmp/cmp"
)

// Pattern marks an expected value as a comparison pattern rather than a
// literal. A pattern may start with a flag that changes how the actual
// value is matched:
//
//	== v, != v            lenient (coercing) equality / inequality
//	> v, >= v, < v, <= v  ordered comparison, numeric when both sides parse
//	e <regex>             full match against a regular expression
//	contains <fragment>   substring match on the printed value
//	isNull / is null      the value must be absent
//	isNotNull /           the value must be present
//	  is not null
//	ignore                always matches
//
// A single leading "?" is stripped, so "?e [0-9]+" and "e [0-9]+" are the
// same pattern. A pattern with no recognized flag compares leniently
// against the raw text.
type Pattern string

// EqualInAnyOrder compares actual against expected and returns nil when
// they match. Lists compare as multisets: every expected element must be
// matched by a distinct actual element, in any order. Scalars compare
// leniently, so the string "1" equals the integer 1. When expected is a
// Pattern, its flag decides the comparison.
func EqualInAnyOrder(actual, expected any) error {
	if p, ok := expected.(Pattern); ok {
		return matchPattern(actual, string(p))
	}
	return equalValues(actual, expected)
}

func matchPattern(actual any, expr string) error {
	expr = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(expr), "?"))
	flag, operand, _ := strings.Cut(expr, " ")
	operand = strings.TrimSpace(operand)
	switch flag {
	case "==":
		return equalValues(actual, operand)
	case "!=":
		if equalValues(actual, operand) == nil {
			return &Failure{Msg: fmt.Sprintf("expected a value different from %q", operand), Actual: actual}
		}
		return nil
	case ">", ">=", "<", "<=":
		return compareOrdered(actual, flag, operand)
	case "e":
		re, err := regexp.Compile("^(?:" + operand + ")$")
		if err != nil {
			return Failf("invalid match pattern %q: %v", operand, err)
		}
		if !re.MatchString(stringify(actual)) {
			return &Failure{Msg: "value does not match pattern", Expected: operand, Actual: stringify(actual)}
		}
		return nil
	case "contains":
		if !strings.Contains(stringify(actual), operand) {
			return &Failure{Msg: "value does not contain expected fragment", Expected: operand, Actual: stringify(actual)}
		}
		return nil
	case "ignore":
		return nil
	}
	switch expr {
	case "isNull", "is null":
		if actual == nil {
			return nil
		}
		return &Failure{Msg: "expected no value", Expected: "null", Actual: actual}
	case "isNotNull", "is not null":
		if actual != nil {
			return nil
		}
		return &Failure{Msg: "expected a value", Expected: "not null", Actual: "null"}
	}
	return equalValues(actual, expr)
}

func equalValues(actual, expected any) error {
	switch exp := expected.(type) {
	case Pattern:
		return matchPattern(actual, string(exp))
	case []any:
		act, ok := toList(actual)
		if !ok {
			return &Failure{Msg: "expected a list", Expected: expected, Actual: actual}
		}
		return equalAnyOrder(act, exp)
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return &Failure{Msg: "expected a map", Expected: expected, Actual: actual}
		}
		if len(act) != len(exp) {
			return &Failure{
				Msg:      "maps differ:\n" + indent(cmp.Diff(exp, act)),
				Expected: expected,
				Actual:   actual,
			}
		}
		for k, v := range exp {
			av, present := act[k]
			if !present {
				return &Failure{Msg: fmt.Sprintf("missing key %q", k), Expected: expected, Actual: actual}
			}
			if err := equalValues(av, v); err != nil {
				return &Failure{Msg: fmt.Sprintf("value mismatch at key %q", k), Expected: v, Actual: av, Err: err}
			}
		}
		return nil
	}
	if list, ok := toList(actual); ok {
		if expList, ok := toList(expected); ok {
			return equalAnyOrder(list, expList)
		}
	}
	if lenientScalarEqual(actual, expected) {
		return nil
	}
	return &Failure{Msg: "values are not equal", Expected: expected, Actual: actual}
}

// equalAnyOrder matches expected elements to distinct actual elements in
// any order, with backtracking so ambiguous elements do not cause false
// negatives (e.g. [1, 1, 2] vs [1, 2, 1]).
func equalAnyOrder(actual, expected []any) error {
	if len(actual) != len(expected) {
		return &Failure{
			Msg:      fmt.Sprintf("lists differ in length: expected %d element(s), got %d", len(expected), len(actual)),
			Expected: expected,
			Actual:   actual,
		}
	}
	used := make([]bool, len(actual))
	if !matchRemaining(actual, expected, used, 0) {
		return &Failure{
			Msg:      "lists are not equal in any order:\n" + indent(cmp.Diff(expected, actual)),
			Expected: expected,
			Actual:   actual,
		}
	}
	return nil
}

func matchRemaining(actual, expected []any, used []bool, i int) bool {
	if i == len(expected) {
		return true
	}
	for j := range actual {
		if used[j] {
			continue
		}
		if equalValues(actual[j], expected[i]) == nil {
			used[j] = true
			if matchRemaining(actual, expected, used, i+1) {
				return true
			}
			used[j] = false
		}
	}
	return false
}

func compareOrdered(actual any, op, operand string) error {
	var c int
	an, aok := toNumber(actual)
	on, ook := parseNumber(operand)
	if aok && ook {
		switch {
		case an < on:
			c = -1
		case an > on:
			c = 1
		}
	} else {
		c = strings.Compare(stringify(actual), operand)
	}
	ok := false
	switch op {
	case ">":
		ok = c > 0
	case ">=":
		ok = c >= 0
	case "<":
		ok = c < 0
	case "<=":
		ok = c <= 0
	}
	if !ok {
		return &Failure{Msg: fmt.Sprintf("expected a value %s %s", op, operand), Actual: actual}
	}
	return nil
}

// lenientScalarEqual compares scalars with type coercion: numbers compare
// by value regardless of Go type, and a string compares equal to any value
// with the same printed form (so "1" == 1 and "true" == true).
func lenientScalarEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if an, ok := toNumber(a); ok {
		if bn, ok := toNumber(b); ok {
			return an == bn
		}
	}
	ak := reflect.ValueOf(a).Kind()
	bk := reflect.ValueOf(b).Kind()
	if ak == reflect.String || bk == reflect.String {
		return stringify(a) == stringify(b)
	}
	return reflect.DeepEqual(a, b)
}

func toNumber(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return 0, false
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.String:
		return parseNumber(rv.String())
	}
	return 0, false
}

func parseNumber(s string) (float64, bool) {
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return n, err == nil
}

func toList(v any) ([]any, bool) {
	if l, ok := v.([]any); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func stringify(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprint(v)
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n  ")
}
