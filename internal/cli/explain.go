package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stepward/stepward/guard"
)

// GuardNode is one node of a parsed chain, outermost first.
type GuardNode struct {
	Kind      string `json:"kind"`
	Condition string `json:"condition,omitempty"`
	DelayMS   int64  `json:"delay_ms,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
}

// ExplainResult describes how a step text will execute.
type ExplainResult struct {
	Text   string      `json:"text"`
	Clause string      `json:"clause,omitempty"`
	Step   string      `json:"step"`
	Guards []GuardNode `json:"guards"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain <step text>",
		Short: "Show how a step text will execute",
		Long: `Parse a step text and show its guard chain without running anything.

The chain is printed outermost first; each guard wraps everything after
it, and the final passthrough node is the step action itself.

Exit codes:
  0 - Step text parsed
  2 - Guard clause did not parse

Examples:
  stepward explain "within 100ms the queue is empty"
  stepward explain "if env == prod => an Exception is thrown when the cache is dropped"
  stepward explain --format json "after 50ms the worker is started"`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(rootOpts, strings.Join(args, " "), cmd)
		},
	}

	return cmd
}

func runExplain(opts *RootOptions, text string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	// Parse the clause alone, exactly as the step runner does: phrases
	// inside the step text itself are step words, not guards.
	clause, step := guard.Split(text)
	chain, err := guard.Parse(clause)
	if err != nil {
		_ = formatter.Error("E_PARSE", err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to parse step", err)
	}

	result := ExplainResult{
		Text:   text,
		Clause: clause,
		Step:   step,
		Guards: guardNodes(chain),
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}

	return outputExplainText(cmd, result, chain)
}

// guardNodes flattens a chain into serializable nodes, outermost first.
func guardNodes(chain *guard.Guard) []GuardNode {
	var nodes []GuardNode
	for node := chain; node != nil; node = node.Next() {
		n := GuardNode{Kind: node.Kind().String()}
		switch node.Kind() {
		case guard.KindConditionalSkip:
			n.Condition = node.Condition()
		case guard.KindAsyncDelay, guard.KindWithinTimeout, guard.KindDuringDuration:
			n.DelayMS = node.Delay().Milliseconds()
		case guard.KindExpectError:
			n.ErrorType = node.ErrorName()
		}
		nodes = append(nodes, n)
	}
	return nodes
}

// outputExplainText renders the chain one node per line.
func outputExplainText(cmd *cobra.Command, result ExplainResult, chain *guard.Guard) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Step: %s\n", result.Step)
	if result.Clause != "" {
		fmt.Fprintf(w, "Guard clause: %s\n", result.Clause)
	}
	fmt.Fprintln(w, "Chain (outermost first):")
	for i, line := range guard.Describe(chain) {
		fmt.Fprintf(w, "  %d. %s\n", i+1, line)
	}
	return nil
}
