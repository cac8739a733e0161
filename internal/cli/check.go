package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stepward/stepward/internal/schema"
)

// checkConcurrency bounds how many files are validated at once.
const checkConcurrency = 8

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	FailFast bool
}

// CheckResult holds the overall check outcome.
type CheckResult struct {
	Files   []schema.FileReport `json:"files"`
	Valid   int                 `json:"valid"`
	Invalid int                 `json:"invalid"`
	Total   int                 `json:"total"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <scenario.yaml|dir>...",
		Short: "Validate scenario files without running them",
		Long: `Validate scenario files against the scenario schema.

Each file must be well-formed YAML, match the embedded schema, and pass
the harness parser's cross-field checks. Directories are walked for
.yaml and .yml files. Files are checked concurrently; issues are
reported per file with stable error codes.

Exit codes:
  0 - All files valid
  1 - One or more files invalid
  2 - Command error (no scenario files found, etc.)

Examples:
  stepward check scenarios/
  stepward check scenarios/counter.yaml scenarios/polling.yaml
  stepward check scenarios/ --fail-fast --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.FailFast, "fail-fast", false, "stop after the first invalid file")

	return cmd
}

func runCheck(opts *CheckOptions, args []string, cmd *cobra.Command) error {
	files, err := expandScenarioArgs(args)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to collect scenario files", err)
	}
	if len(files) == 0 {
		return NewExitError(ExitCommandError, "no scenario files found")
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	formatter.VerboseLog("Checking %d scenario file(s)", len(files))

	reports := make([]schema.FileReport, len(files))
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(checkConcurrency)

	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			// After a fail-fast trip, remaining slots return without work.
			if ctx.Err() != nil {
				return nil
			}
			reports[i] = schema.CheckFile(path)
			if opts.FailFast && !reports[i].OK() {
				return fmt.Errorf("%s is invalid", path)
			}
			return nil
		})
	}
	failFast := g.Wait() != nil

	result := CheckResult{}
	for _, report := range reports {
		if report.Path == "" {
			continue // skipped by fail-fast
		}
		result.Files = append(result.Files, report)
		result.Total++
		if report.OK() {
			result.Valid++
		} else {
			result.Invalid++
		}
	}

	if opts.Format == "json" {
		return outputCheckJSON(cmd, result)
	}
	return outputCheckText(cmd, result, failFast)
}

// expandScenarioArgs resolves each argument to scenario file paths,
// walking directories for .yaml and .yml files.
func expandScenarioArgs(args []string) ([]string, error) {
	var files []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			// Leave missing paths in the list; the validator reports them
			// as E001 instead of aborting the whole invocation.
			files = append(files, arg)
			continue
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}

		err = filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			if ext := filepath.Ext(path); ext == ".yaml" || ext == ".yml" {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return files, nil
}

// outputCheckJSON outputs the check result as JSON.
func outputCheckJSON(cmd *cobra.Command, result CheckResult) error {
	status := "ok"
	if result.Invalid > 0 {
		status = "error"
	}

	response := CLIResponse{
		Status: status,
		Data:   result,
	}
	if result.Invalid > 0 {
		response.Error = &CLIError{
			Code:    "E_CHECK_FAILED",
			Message: fmt.Sprintf("%d file(s) invalid", result.Invalid),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if result.Invalid > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d file(s) invalid", result.Invalid))
	}
	return nil
}

// outputCheckText outputs the check result as text.
func outputCheckText(cmd *cobra.Command, result CheckResult, failFast bool) error {
	w := cmd.OutOrStdout()

	for _, report := range result.Files {
		if report.OK() {
			fmt.Fprintf(w, "✓ %s\n", report.Path)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", report.Path)
		for _, issue := range report.Issues {
			fmt.Fprintf(w, "  %s\n", issue)
		}
	}
	if failFast {
		fmt.Fprintln(w, "  (stopped early: --fail-fast)")
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Check Summary: %d valid, %d invalid, %d total\n", result.Valid, result.Invalid, result.Total)

	if result.Invalid > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d file(s) invalid", result.Invalid))
	}

	fmt.Fprintln(w, "✓ All scenario files valid")
	return nil
}
