package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/chronos/internal/config"
)

// ValidationIssue is one problem found in a config.
type ValidationIssue struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool              `json:"valid"`
	Frequency  float64           `json:"frequency,omitempty"`
	Tasks      int               `json:"tasks"`
	Generators int               `json:"generators"`
	Errors     []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config>",
		Short: "Validate a run configuration",
		Long: `Validate a CUE run configuration without running it.

The config is unified with the built-in #Config schema and its workload
is checked for unknown "after" references, bad costs and duplicate
generator ids.

Exit codes:
  0 - Config is valid
  1 - Config is invalid
  2 - Command error (config not found)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	formatter.VerboseLog("Loading %s", path)
	cfg, err := config.Load(path)
	if err != nil {
		var cerr *config.Error
		if !errors.As(err, &cerr) {
			return outputValidateError(formatter, ErrCodeGeneric, err.Error())
		}
		if cerr.Code == config.ErrCodeNotFound {
			return outputValidateError(formatter, ErrCodeNotFound, cerr.Message)
		}
		return outputValidationErrors(formatter, issuesFrom(cerr))
	}

	result := ValidationResult{
		Valid:      true,
		Frequency:  cfg.Scheduler.Frequency,
		Tasks:      len(cfg.Workload.Tasks),
		Generators: len(cfg.Workload.Generators),
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Config valid (%d task(s), %d generator(s), %g Hz)\n",
		result.Tasks, result.Generators, result.Frequency)
	return nil
}

// issuesFrom flattens a config error into one issue per problem.
func issuesFrom(cerr *config.Error) []ValidationIssue {
	if len(cerr.Issues) > 0 {
		out := make([]ValidationIssue, len(cerr.Issues))
		for i, is := range cerr.Issues {
			out[i] = ValidationIssue{
				Code:    is.Code,
				Field:   "workload." + is.Field,
				Message: is.Message,
			}
		}
		return out
	}

	issue := ValidationIssue{Code: cerr.Code, Message: cerr.Message}
	if cerr.Pos.IsValid() {
		issue.Line = cerr.Pos.Line()
	}
	return []ValidationIssue{issue}
}

// outputValidateError outputs a single command-level error.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, issues []ValidationIssue) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))

	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: issues},
			Error: &CLIError{
				Code:    issues[0].Code,
				Message: issues[0].Message,
			},
		}
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, is := range issues {
		var where []string
		if is.Line > 0 {
			where = append(where, fmt.Sprintf("line %d", is.Line))
		}
		if is.Field != "" {
			where = append(where, is.Field)
		}
		if len(where) > 0 {
			fmt.Fprintln(formatter.Writer, strings.Join(where, " "))
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", is.Code, is.Message)
	}
	return failure
}
