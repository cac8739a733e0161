package tracestore

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stepward/stepward/harness"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added status index on step_runs
const currentSchemaVersion = 1

// ErrNoRuns is returned by LatestRun when the store holds no runs yet.
var ErrNoRuns = fmt.Errorf("no runs recorded")

// Clock supplies the current time. Production code uses the system
// clock; tests inject testutil.SeqClock for reproducible run ordering.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// StepRun is one persisted step execution.
type StepRun struct {
	ID         int64
	RunToken   string
	Seq        int
	Step       string
	GuardKinds []string
	Status     string
	Error      string
	Elapsed    time.Duration
}

// Store persists step traces in SQLite.
// Uses WAL mode and a single connection to avoid SQLITE_BUSY errors.
type Store struct {
	db     *sql.DB
	clock  Clock
	tokens TokenGenerator
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the system clock, for deterministic tests.
func WithClock(c Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithTokenGenerator replaces the UUIDv7 run token generator.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(s *Store) { s.tokens = g }
}

// Open creates or opens a SQLite trace database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{
		db:     db,
		clock:  systemClock{},
		tokens: &UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Begin mints a fresh run token, registers the run, and returns the token.
func (s *Store) Begin(ctx context.Context) (string, error) {
	token := s.tokens.Generate()
	if err := s.BeginRun(ctx, token, s.clock.Now()); err != nil {
		return "", err
	}
	return token, nil
}

// BeginRun registers a run under an externally chosen token.
// Registering the same token twice is a no-op.
func (s *Store) BeginRun(ctx context.Context, token string, startedAt time.Time) error {
	if token == "" {
		return fmt.Errorf("begin run: token is empty")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (token, started_at_ms)
		VALUES (?, ?)
		ON CONFLICT(token) DO NOTHING
	`, token, startedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// Record persists one trace event under a run token.
// Re-recording the same (run, seq) pair is silently ignored, so replaying
// a scenario into the same run is idempotent.
//
// The run must have been registered with BeginRun first (foreign key).
func (s *Store) Record(ctx context.Context, runToken string, ev harness.TraceEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO step_runs
		(run_token, seq, step, guard_kinds, status, error, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_token, seq) DO NOTHING
	`,
		runToken,
		ev.Seq,
		ev.Step,
		strings.Join(ev.GuardKinds, ","),
		ev.Status,
		nullable(ev.Error),
		ev.Elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record step run: %w", err)
	}
	return nil
}

// List returns step runs matching the filter, ordered by run token then
// sequence so output is deterministic.
func (s *Store) List(ctx context.Context, f Filter) ([]StepRun, error) {
	where, args := f.where()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_token, seq, step, guard_kinds, status, error, elapsed_ms
		FROM step_runs
	`+where+`
		ORDER BY run_token, seq
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list step runs: %w", err)
	}
	defer rows.Close()

	var runs []StepRun
	for rows.Next() {
		var (
			r         StepRun
			kinds     string
			errText   sql.NullString
			elapsedMS int64
		)
		if err := rows.Scan(&r.ID, &r.RunToken, &r.Seq, &r.Step, &kinds, &r.Status, &errText, &elapsedMS); err != nil {
			return nil, fmt.Errorf("scan step run: %w", err)
		}
		if kinds != "" {
			r.GuardKinds = strings.Split(kinds, ",")
		}
		r.Error = errText.String
		r.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list step runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the token of the most recently started run.
// Returns ErrNoRuns when the store is empty.
func (s *Store) LatestRun(ctx context.Context) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx, `
		SELECT token FROM runs
		ORDER BY started_at_ms DESC, token DESC
		LIMIT 1
	`).Scan(&token)
	if err == sql.ErrNoRows {
		return "", ErrNoRuns
	}
	if err != nil {
		return "", fmt.Errorf("latest run: %w", err)
	}
	return token, nil
}

// nullable maps the empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
		version = 1
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the status index for databases created before v1.
// New databases get it from schema.sql; IF NOT EXISTS makes this a no-op
// for them.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_step_runs_status
		ON step_runs(status)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
