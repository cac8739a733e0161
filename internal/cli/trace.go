package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stepward/stepward/internal/tracestore"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Run      string // run token; empty means latest
	Status   string // optional - filter to one outcome
	Step     string // optional - filter by step text substring
}

// TraceRow is a single step in the trace timeline.
type TraceRow struct {
	Seq        int      `json:"seq"`
	Step       string   `json:"step"`
	GuardKinds []string `json:"guard_kinds,omitempty"`
	Status     string   `json:"status"`
	Error      string   `json:"error,omitempty"`
	ElapsedMS  int64    `json:"elapsed_ms"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	RunToken string     `json:"run_token"`
	Timeline []TraceRow `json:"timeline"`
	Stats    TraceStats `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show a persisted scenario trace",
		Long: `Show the step timeline of a persisted scenario run.

Each row is one executed step with its guard kinds, outcome and error.
Without --run, the most recent run is shown. Rows can be narrowed to one
outcome with --status, or to steps containing a substring with --step.

Examples:
  stepward trace --db ./stepward.db
  stepward trace --db ./stepward.db --run 01890cf2-6f3b-7001-b2d1-1f02918f3e7e
  stepward trace --db ./stepward.db --status failed
  stepward trace --db ./stepward.db --step "counter" --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Run, "run", "", "run token to show (default: latest run)")
	cmd.Flags().StringVar(&opts.Status, "status", "", "only show steps with this outcome (passed|failed|skipped)")
	cmd.Flags().StringVar(&opts.Step, "step", "", "only show steps whose text contains this substring")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	store, err := tracestore.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open trace database", err)
	}
	defer store.Close()

	token := opts.Run
	if token == "" {
		token, err = store.LatestRun(ctx)
		if errors.Is(err, tracestore.ErrNoRuns) {
			if opts.Format == "json" {
				return outputTraceJSON(cmd, TraceResult{Timeline: []TraceRow{}})
			}
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to find latest run", err)
		}
	}

	rows, err := store.List(ctx, tracestore.Filter{
		Run:    token,
		Status: opts.Status,
		Step:   opts.Step,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list trace events", err)
	}

	result := TraceResult{
		RunToken: token,
		Timeline: make([]TraceRow, 0, len(rows)),
	}
	for _, row := range rows {
		result.Timeline = append(result.Timeline, TraceRow{
			Seq:        row.Seq,
			Step:       row.Step,
			GuardKinds: row.GuardKinds,
			Status:     row.Status,
			Error:      row.Error,
			ElapsedMS:  row.Elapsed.Milliseconds(),
		})
		result.Stats.Total++
		switch row.Status {
		case "passed":
			result.Stats.Passed++
		case "failed":
			result.Stats.Failed++
		case "skipped":
			result.Stats.Skipped++
		}
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd, result, opts.Verbose)
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// outputTraceText outputs the trace result as text.
func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Trace for run: %s\n", result.RunToken)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no steps)")
	} else {
		for _, row := range result.Timeline {
			formatTraceRow(w, row, verbose)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total:   %d\n", result.Stats.Total)
	fmt.Fprintf(w, "  Passed:  %d\n", result.Stats.Passed)
	fmt.Fprintf(w, "  Failed:  %d\n", result.Stats.Failed)
	fmt.Fprintf(w, "  Skipped: %d\n", result.Stats.Skipped)

	return nil
}

// formatTraceRow formats a single timeline row for text output.
func formatTraceRow(w io.Writer, row TraceRow, verbose bool) {
	line := fmt.Sprintf("  [%d] %s %s", row.Seq, statusTag(row.Status), row.Step)
	if len(row.GuardKinds) > 0 {
		line += " (" + strings.Join(row.GuardKinds, ", ") + ")"
	}
	fmt.Fprintln(w, line)

	if row.Error != "" {
		fmt.Fprintf(w, "       Error: %s\n", row.Error)
	}
	if verbose {
		fmt.Fprintf(w, "       Elapsed: %dms\n", row.ElapsedMS)
	}
}

// statusTag renders an outcome as a fixed-width timeline tag.
func statusTag(status string) string {
	switch status {
	case "passed":
		return "PASS"
	case "failed":
		return "FAIL"
	case "skipped":
		return "SKIP"
	default:
		return strings.ToUpper(status)
	}
}
