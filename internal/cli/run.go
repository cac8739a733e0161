package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/stepward/stepward/harness"
	"github.com/stepward/stepward/internal/tracestore"
	"github.com/stepward/stepward/steps"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string // optional; persist traces when set
}

// ScenarioReport holds the result of a single scenario execution.
type ScenarioReport struct {
	Name     string   `json:"name"`
	File     string   `json:"file"`
	Pass     bool     `json:"pass"`
	Steps    int      `json:"steps"`
	RunToken string   `json:"run_token,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// RunSummary holds the overall run outcome.
type RunSummary struct {
	Scenarios []ScenarioReport `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml|dir>...",
		Short: "Run scenario files",
		Long: `Run scenario files against the built-in step vocabulary.

Each scenario runs in a fresh world: steps execute in order, every
observed outcome is compared with the step's expect clause, and the
trace and final-scope assertions are evaluated afterwards. With --db,
each scenario's trace is persisted under a fresh run token for later
inspection with the trace command.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (no scenario files found, database unusable, etc.)

Examples:
  stepward run scenarios/
  stepward run scenarios/counter.yaml --db ./stepward.db
  stepward run scenarios/ --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace database (optional)")

	return cmd
}

func runScenarios(opts *RunOptions, args []string, cmd *cobra.Command) error {
	ctx := context.Background()

	files, err := expandScenarioArgs(args)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to collect scenario files", err)
	}
	if len(files) == 0 {
		return NewExitError(ExitCommandError, "no scenario files found")
	}

	registry := steps.NewRegistry()
	if err := steps.RegisterBuiltins(registry); err != nil {
		return WrapExitError(ExitCommandError, "failed to register built-in steps", err)
	}

	var store *tracestore.Store
	if opts.Database != "" {
		store, err = tracestore.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open trace database", err)
		}
		defer store.Close()
	}

	var logger *slog.Logger
	if opts.Verbose {
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}

	summary := RunSummary{Total: len(files)}
	for _, file := range files {
		report := runOneScenario(ctx, file, registry, store, logger, opts, cmd)
		summary.Scenarios = append(summary.Scenarios, report)
		if report.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}

	if opts.Format == "json" {
		return outputRunJSON(cmd, summary)
	}
	return outputRunText(cmd, summary)
}

// runOneScenario loads and executes a single scenario file. Load and
// execution problems are folded into a failing report rather than
// aborting the whole invocation.
func runOneScenario(ctx context.Context, file string, registry *steps.Registry, store *tracestore.Store, logger *slog.Logger, opts *RunOptions, cmd *cobra.Command) ScenarioReport {
	w := cmd.OutOrStdout()

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		if opts.Format != "json" {
			fmt.Fprintf(w, "✗ %s\n", filepath.Base(file))
			fmt.Fprintf(w, "  Load error: %v\n", err)
		}
		return ScenarioReport{
			Name:   filepath.Base(file),
			File:   file,
			Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
		}
	}

	runner := &harness.Runner{Registry: registry, Logger: logger}
	if store != nil {
		token, err := store.Begin(ctx)
		if err != nil {
			if opts.Format != "json" {
				fmt.Fprintf(w, "✗ %s\n", scenario.Name)
				fmt.Fprintf(w, "  Trace error: %v\n", err)
			}
			return ScenarioReport{
				Name:   scenario.Name,
				File:   file,
				Errors: []string{fmt.Sprintf("failed to begin trace run: %v", err)},
			}
		}
		runner.Sink = store
		runner.RunToken = token
	}

	result, err := runner.Execute(ctx, scenario)
	if err != nil {
		if opts.Format != "json" {
			fmt.Fprintf(w, "✗ %s\n", scenario.Name)
			fmt.Fprintf(w, "  Execution error: %v\n", err)
		}
		return ScenarioReport{
			Name:     scenario.Name,
			File:     file,
			RunToken: runner.RunToken,
			Errors:   []string{fmt.Sprintf("execution failed: %v", err)},
		}
	}

	report := ScenarioReport{
		Name:     scenario.Name,
		File:     file,
		Pass:     result.Pass,
		Steps:    len(result.Trace),
		RunToken: runner.RunToken,
		Errors:   result.Errors,
	}

	if opts.Format != "json" {
		if report.Pass {
			fmt.Fprintf(w, "✓ %s (%d steps)\n", report.Name, report.Steps)
		} else {
			fmt.Fprintf(w, "✗ %s (%d steps)\n", report.Name, report.Steps)
			for _, e := range report.Errors {
				fmt.Fprintf(w, "  %s\n", e)
			}
		}
		if report.RunToken != "" {
			fmt.Fprintf(w, "  Trace run: %s\n", report.RunToken)
		}
	}

	return report
}

// outputRunJSON outputs the run summary as JSON.
func outputRunJSON(cmd *cobra.Command, summary RunSummary) error {
	status := "ok"
	if summary.Failed > 0 {
		status = "error"
	}

	response := CLIResponse{
		Status: status,
		Data:   summary,
	}
	if summary.Failed > 0 {
		response.Error = &CLIError{
			Code:    "E_RUN_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", summary.Failed),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", summary.Failed))
	}
	return nil
}

// outputRunText outputs the run summary as text.
func outputRunText(cmd *cobra.Command, summary RunSummary) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Run Summary: %d passed, %d failed, %d total\n", summary.Passed, summary.Failed, summary.Total)

	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", summary.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
