// Package tracestore persists step traces in SQLite.
//
// Each scenario execution is a run, identified by a UUIDv7 token, with
// one step_runs row per executed step. Writes are idempotent on
// (run_token, seq), so replaying a recorded scenario into the same run
// is safe. The stepward trace command reads this store back as a
// timeline.
package tracestore
