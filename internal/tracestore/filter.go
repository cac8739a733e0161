package tracestore

import "strings"

// Filter narrows a List query. Zero-value fields are skipped, so the
// empty Filter lists everything.
//
// Only fixed columns are addressable and every value is bound as a
// parameter; caller input never reaches the SQL text.
type Filter struct {
	// Run matches the run token exactly.
	Run string

	// Status matches the step outcome exactly (passed, failed, skipped).
	Status string

	// Step matches step texts containing this substring.
	Step string
}

// where builds the parameterized WHERE clause for the filter.
// Clause order is fixed so query text is deterministic.
func (f Filter) where() (string, []any) {
	var clauses []string
	var args []any

	if f.Run != "" {
		clauses = append(clauses, "run_token = ?")
		args = append(args, f.Run)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.Step != "" {
		// instr avoids LIKE wildcard escaping for plain substrings.
		clauses = append(clauses, "instr(step, ?) > 0")
		args = append(args, f.Step)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
