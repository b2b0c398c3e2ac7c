package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/chronos/internal/chronos"
	"github.com/roach88/chronos/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Run      string // run id, or "latest"
	Event    string // optional - filter to one event type
	Task     string // optional - filter to one task name
}

// RunList is the trace output without --run.
type RunList struct {
	Runs []journal.Run `json:"runs"`
}

// TraceResult holds the complete trace output for one run.
type TraceResult struct {
	Run    journal.Run           `json:"run"`
	Events []journal.EventRecord `json:"events"`
	Counts map[string]int        `json:"counts"`
	Stats  *journal.RunStats     `json:"stats,omitempty"` // nil if the run never finished
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect journaled runs",
		Long: `Inspect runs recorded by "chronos run".

Without --run, lists every run in the journal, oldest first. With --run,
shows the run's lifecycle events in publication order, the number of
events of each type and the counters captured when the run ended.

Examples:
  chronos trace --db ./chronos.db
  chronos trace --db ./chronos.db --run latest
  chronos trace --db ./chronos.db --run latest --event killed
  chronos trace --db ./chronos.db --run 0190... --task draw --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Run, "run", "", `run id to show, or "latest"`)
	cmd.Flags().StringVar(&opts.Event, "event", "", "filter to one event type")
	cmd.Flags().StringVar(&opts.Task, "task", "", "filter to one task name")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.Event != "" {
		if _, ok := chronos.ParseEventType(opts.Event); !ok {
			return NewExitError(ExitCommandError, fmt.Sprintf("unknown event type %q", opts.Event))
		}
	}

	// Opening would create an empty journal.
	if _, err := os.Stat(opts.Database); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "journal not found", err)
	}
	j, err := journal.Open(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to open journal", err)
	}
	defer j.Close()

	if opts.Run == "" {
		runs, err := j.ReadRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read runs", err)
		}
		if opts.Format == "json" {
			return outputTraceJSON(cmd, RunList{Runs: runs})
		}
		outputRunList(cmd.OutOrStdout(), runs)
		return nil
	}

	result, err := readTrace(ctx, j, opts)
	if errors.Is(err, journal.ErrRunNotFound) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "run not found", err)
	}
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to read run", err)
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd.OutOrStdout(), result)
}

// readTrace loads the run named by opts.Run with its filtered events.
func readTrace(ctx context.Context, j *journal.Journal, opts *TraceOptions) (TraceResult, error) {
	var (
		run journal.Run
		err error
	)
	if opts.Run == "latest" {
		run, err = j.LatestRun(ctx)
	} else {
		run, err = j.ReadRun(ctx, opts.Run)
	}
	if err != nil {
		return TraceResult{}, err
	}

	events, err := j.ReadEvents(ctx, run.ID)
	if err != nil {
		return TraceResult{}, err
	}
	counts, err := j.CountEvents(ctx, run.ID)
	if err != nil {
		return TraceResult{}, err
	}

	result := TraceResult{
		Run:    run,
		Events: filterEvents(events, opts.Event, opts.Task),
		Counts: counts,
	}

	stats, err := j.ReadStats(ctx, run.ID)
	switch {
	case err == nil:
		result.Stats = &stats
	case !errors.Is(err, journal.ErrRunNotFound):
		return TraceResult{}, err
	}
	return result, nil
}

// filterEvents keeps the events matching eventType and task. Empty filters
// match everything.
func filterEvents(events []journal.EventRecord, eventType, task string) []journal.EventRecord {
	if eventType == "" && task == "" {
		return events
	}
	out := []journal.EventRecord{}
	for _, ev := range events {
		if eventType != "" && ev.Type != eventType {
			continue
		}
		if task != "" && ev.TaskName != task {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// outputTraceJSON outputs data as an indented JSON response.
func outputTraceJSON(cmd *cobra.Command, data interface{}) error {
	response := CLIResponse{
		Status: "ok",
		Data:   data,
	}
	if result, ok := data.(TraceResult); ok {
		response.RunID = result.Run.ID
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

func outputRunList(w io.Writer, runs []journal.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%4d  %s  %-20s %g Hz  %s\n",
			r.CreatedSeq, r.ID, r.Label, r.Frequency, truncateID(r.WorkloadDigest))
	}
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult) error {
	fmt.Fprintf(w, "Run: %s (%s)\n", result.Run.ID, result.Run.Label)
	fmt.Fprintf(w, "Frequency: %g Hz\n", result.Run.Frequency)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Events ===")
	if len(result.Events) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, ev := range result.Events {
		if ev.TaskName != "" {
			fmt.Fprintf(w, "  [%d] frame %d  %s %s\n", ev.Seq, ev.Frame, ev.Type, ev.TaskName)
			continue
		}
		fmt.Fprintf(w, "  [%d] frame %d  %s\n", ev.Seq, ev.Frame, ev.Type)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Counts ===")
	// Sort keys for deterministic output
	types := make([]string, 0, len(result.Counts))
	for t := range result.Counts {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(w, "  %-16s %d\n", t+":", result.Counts[t])
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	if result.Stats == nil {
		fmt.Fprintln(w, "  (run did not finish)")
		return nil
	}
	fmt.Fprintf(w, "  Frames:     %d\n", result.Stats.Frames)
	fmt.Fprintf(w, "  FPS:        %.1f\n", result.Stats.FPS)
	fmt.Fprintf(w, "  Elapsed:    %s\n", result.Stats.ExecutionTime)
	fmt.Fprintf(w, "  Tasks:      %d\n", result.Stats.Tasks)
	fmt.Fprintf(w, "  Queued:     %d\n", result.Stats.Queued)
	fmt.Fprintf(w, "  Generators: %d\n", result.Stats.Generators)
	return nil
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
