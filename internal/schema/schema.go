// Package schema validates scenario files before the harness runs them.
//
// Validation is layered: the file must exist and hold well-formed YAML,
// the decoded document must unify with the embedded CUE schema, and the
// result must pass the harness parser's cross-field checks. Every problem
// is reported as an Issue with a stable error code, and all issues for a
// file are collected rather than failing on the first.
package schema

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/stepward/stepward/harness"
)

//go:embed scenario.cue
var scenarioSchema string

// Issue codes. Stable across releases; scripts may key on them.
const (
	CodeFileNotFound     = "E001" // scenario file does not exist
	CodeUnreadable       = "E002" // scenario file exists but cannot be read
	CodeYAMLSyntax       = "E003" // file is not well-formed YAML
	CodeSchemaViolation  = "E004" // document does not match the scenario schema
	CodeUnknownAssertion = "E005" // assertion type is not one of the known kinds
	CodeMissingField     = "E006" // a required field is absent or empty
	CodeOutOfRange       = "E007" // a numeric field is outside its allowed bounds
)

// assertionTypes is the friendly enum list used when rewriting CUE's
// disjunction errors for the assertion type field.
const assertionTypes = `"trace_contains", "trace_order", "trace_count", "final_scope"`

// Issue is a single validation problem found in a scenario file.
type Issue struct {
	Code    string `json:"code"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Path != "" {
		return fmt.Sprintf("[%s] %s: %s", i.Code, i.Path, i.Message)
	}
	return fmt.Sprintf("[%s] %s", i.Code, i.Message)
}

// FileReport is the outcome of validating one scenario file.
type FileReport struct {
	Path   string  `json:"path"`
	Issues []Issue `json:"issues,omitempty"`
}

// OK reports whether the file passed every validation layer.
func (r FileReport) OK() bool { return len(r.Issues) == 0 }

// CheckFile runs the full validation pipeline against one scenario file:
// read, YAML decode, CUE schema unification, then the harness parser's
// cross-field checks. The harness layer only runs when the earlier layers
// pass, so its issues never duplicate a schema violation.
func CheckFile(path string) FileReport {
	report := FileReport{Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			report.Issues = append(report.Issues, Issue{
				Code:    CodeFileNotFound,
				Message: fmt.Sprintf("scenario file not found: %s", path),
			})
		} else {
			report.Issues = append(report.Issues, Issue{
				Code:    CodeUnreadable,
				Message: fmt.Sprintf("reading %s: %v", path, err),
			})
		}
		return report
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		report.Issues = append(report.Issues, Issue{
			Code:    CodeYAMLSyntax,
			Message: fmt.Sprintf("parsing YAML: %v", err),
		})
		return report
	}
	if doc == nil {
		report.Issues = append(report.Issues, Issue{
			Code:    CodeMissingField,
			Message: "scenario document is empty",
		})
		return report
	}

	if issues := Validate(doc); len(issues) > 0 {
		report.Issues = append(report.Issues, issues...)
		return report
	}

	if _, err := harness.ParseScenario(data); err != nil {
		report.Issues = append(report.Issues, mapScenarioError(err))
	}
	return report
}

// Validate unifies a decoded scenario document with the embedded CUE
// schema and maps every unification error to an Issue. A nil result means
// the document matches the schema.
func Validate(doc any) []Issue {
	ctx := cuecontext.New()

	schemaVal := ctx.CompileString(scenarioSchema, cue.Filename("scenario.cue"))
	if err := schemaVal.Err(); err != nil {
		return []Issue{{Code: CodeSchemaViolation, Message: fmt.Sprintf("compiling scenario schema: %v", err)}}
	}
	def := schemaVal.LookupPath(cue.ParsePath("#Scenario"))
	if err := def.Err(); err != nil {
		return []Issue{{Code: CodeSchemaViolation, Message: fmt.Sprintf("resolving #Scenario: %v", err)}}
	}

	docVal := ctx.Encode(doc)
	if err := docVal.Err(); err != nil {
		return []Issue{{Code: CodeSchemaViolation, Message: fmt.Sprintf("encoding document: %v", err)}}
	}

	// Final enforces required-field constraints; the document itself is
	// already concrete, so concreteness stays relaxed.
	err := def.Unify(docVal).Validate(cue.Final(), cue.Concrete(false))
	if err == nil {
		return nil
	}
	return issuesFromCUE(err)
}

// issuesFromCUE flattens a CUE validation error into Issues. CUE can
// report several errors for one field (disjunction branches in
// particular), so issues are deduplicated per path and code, then sorted
// for stable output.
func issuesFromCUE(err error) []Issue {
	seen := make(map[string]bool)
	var issues []Issue

	for _, e := range cueerrors.Errors(err) {
		path := issuePath(e.Path())
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		code := classify(path, msg)

		if code == CodeUnknownAssertion && (strings.Contains(msg, "disjunction") || strings.Contains(msg, "conflicting values")) {
			msg = "must be one of " + assertionTypes
		}

		key := path + "\x00" + code
		if seen[key] {
			continue
		}
		seen[key] = true
		issues = append(issues, Issue{Code: code, Path: path, Message: msg})
	}

	slices.SortFunc(issues, func(a, b Issue) int {
		if c := strings.Compare(a.Path, b.Path); c != 0 {
			return c
		}
		return strings.Compare(a.Code, b.Code)
	})
	return issues
}

// issuePath joins a CUE error path into dotted form, dropping the
// definition label some CUE versions include on schema-side errors.
func issuePath(parts []string) string {
	if len(parts) > 0 && parts[0] == "#Scenario" {
		parts = parts[1:]
	}
	return strings.Join(parts, ".")
}

// classify maps a CUE error to an issue code by path and message shape.
// CUE does not expose structured error kinds, so this keys on the stable
// fragments of its messages: required fields report "field is required",
// numeric bound failures report "out of bound >=" (or <=, >, <), and a
// rejected assertion type surfaces at an assertions[*].type path.
func classify(path, msg string) string {
	switch {
	case strings.Contains(msg, "field is required"):
		return CodeMissingField
	case strings.Contains(msg, `out of bound !=""`):
		// An explicitly empty string fails its !="" constraint; report it
		// the same way as an absent field.
		return CodeMissingField
	case strings.Contains(msg, "out of bound >") || strings.Contains(msg, "out of bound <"):
		return CodeOutOfRange
	case strings.Contains(path, "assertions") && strings.HasSuffix(path, ".type"):
		return CodeUnknownAssertion
	default:
		return CodeSchemaViolation
	}
}

// mapScenarioError assigns a code to a harness parse error. The harness
// runs after CUE unification, so these mostly cover cross-field rules the
// schema cannot express.
func mapScenarioError(err error) Issue {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unknown assertion type"):
		return Issue{Code: CodeUnknownAssertion, Message: msg}
	case strings.Contains(msg, "must be non-negative"):
		return Issue{Code: CodeOutOfRange, Message: msg}
	case strings.Contains(msg, "is required"):
		return Issue{Code: CodeMissingField, Message: msg}
	default:
		return Issue{Code: CodeSchemaViolation, Message: msg}
	}
}
