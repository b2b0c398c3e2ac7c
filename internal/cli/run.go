package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/chronos/internal/chronos"
	"github.com/roach88/chronos/internal/config"
	"github.com/roach88/chronos/internal/journal"
	"github.com/roach88/chronos/internal/workload"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Timeout  time.Duration

	// RunIDs allows overriding the journal run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs journal.RunIDGenerator

	// Burner allows overriding how step costs are spent (for testing).
	// If nil, defaults to SpinBurner.
	Burner workload.Burner
}

// RunResult is the outcome of a run.
type RunResult struct {
	Config     string         `json:"config"`
	Stats      chronos.Stats  `json:"stats"`
	Events     int            `json:"events"`
	HostFrames int            `json:"host_frames,omitempty"`
	Counts     map[string]int `json:"counts,omitempty"`
}

// String renders the result for text output.
func (r RunResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ Run finished: %s\n", r.Config)
	fmt.Fprintf(&b, "  frames:     %d\n", r.Stats.Frames)
	fmt.Fprintf(&b, "  fps:        %.1f\n", r.Stats.FPS)
	fmt.Fprintf(&b, "  elapsed:    %s\n", r.Stats.ExecutionTime)
	fmt.Fprintf(&b, "  events:     %d\n", r.Events)
	if r.HostFrames > 0 {
		fmt.Fprintf(&b, "  host frames: %d\n", r.HostFrames)
	}
	return b.String()
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <config>",
		Short: "Run a workload on the scheduler",
		Long: `Run the workload described by a CUE config on a real host loop.

Tasks are stepped inside the frame budget derived from scheduler.frequency
until every task and generator has finished. When a journal is configured
(journal.path or --db) every lifecycle event and the final counters are
recorded under a new run id.

Example:
  chronos run ./run.cue
  chronos run --db ./chronos.db --timeout 30s ./config`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkload(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (overrides journal.path)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "cancel the run after this long (0 means no limit)")

	return cmd
}

func runWorkload(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := config.Load(path)
	if err != nil {
		return runConfigError(formatter, err)
	}

	logger := cfg.Log.NewLogger(cmd.ErrOrStderr(), opts.Verbose)
	slog.SetDefault(logger)

	loop := chronos.NewLoop(chronos.WithLoopLogger(logger))
	defer loop.Stop()
	sched := chronos.New(loop,
		chronos.WithFrequency(cfg.Scheduler.Frequency),
		chronos.WithLogger(logger),
	)

	// Open journal (create if not exists)
	dbPath := cfg.Journal.Path
	if opts.Database != "" {
		dbPath = opts.Database
	}
	var (
		j     *journal.Journal
		rec   *journal.Recorder
		runID string
	)
	if dbPath != "" {
		j, runID, err = beginJournal(cmd.Context(), opts, dbPath, path, cfg)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to open journal", err)
		}
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				logger.Error("error closing journal", "error", closeErr)
			}
		}()
		rec = journal.NewRecorder(sched.Events())
		logger.Info("journal ready", "path", dbPath, "run_id", runID)
	}

	burner := opts.Burner
	if burner == nil {
		burner = workload.SpinBurner{}
	}
	if _, err := workload.Install(sched, cfg.Workload, burner, workload.Hooks{}); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeInvalid, "failed to install workload", err)
	}

	ctx, cancel := runContext(cmd.Context(), opts.Timeout)
	defer cancel()

	host := startHost(ctx, loop, cfg.Host.FrameRate)

	if sched.TasksCount() > 0 {
		sched.RunTasks()
	}
	logger.Info("run starting",
		"config", path,
		"frequency", sched.Frequency(),
		"tasks", sched.TasksCount(),
		"queued", sched.QueuedTasksCount(),
	)
	runErr := loop.RunUntilIdle(ctx)
	hostFrames := host.stop()

	interrupted := runErr != nil && (errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded))
	if runErr != nil && !interrupted {
		return WrapExitError(ExitFailure, "loop error", runErr)
	}
	if interrupted && sched.State() == chronos.StateRunning {
		// Loop has returned, so calling into the scheduler here is safe.
		sched.StopTasks()
	}

	stats := sched.Stats()
	result := RunResult{Config: path, Stats: stats, HostFrames: hostFrames}

	if j != nil {
		// Fresh context: the run context may already be cancelled.
		flushCtx := context.Background()
		result.Events = rec.Total()
		if err := rec.Flush(flushCtx, j, runID); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to write journal", err)
		}
		if err := j.WriteStats(flushCtx, runID, journal.StatsFrom(stats)); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeJournal, "failed to write journal", err)
		}
		if counts, err := j.CountEvents(flushCtx, runID); err == nil {
			result.Counts = counts
		}
		_ = rec.Close()
	}

	if interrupted {
		logger.Info("run interrupted", "frames", stats.Frames, "tasks", stats.Tasks)
		_ = formatter.Error(ErrCodeInterrupted, fmt.Sprintf("run interrupted: %v", runErr), result)
		return WrapExitError(ExitFailure, "run interrupted", runErr)
	}

	logger.Info("run finished", "frames", stats.Frames, "fps", stats.FPS)
	return formatter.SuccessWithRun(runID, result)
}

// runConfigError reports a config.Load failure.
func runConfigError(formatter *OutputFormatter, err error) error {
	var cerr *config.Error
	if errors.As(err, &cerr) && cerr.Code == config.ErrCodeNotFound {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, cerr.Message, nil)
	}
	return formatter.Fail(ExitFailure, ErrCodeInvalid, "invalid config", err)
}

// beginJournal opens the journal at dbPath and registers a new run.
func beginJournal(ctx context.Context, opts *RunOptions, dbPath, cfgPath string, cfg *config.Config) (*journal.Journal, string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var jopts []journal.Option
	if opts.RunIDs != nil {
		jopts = append(jopts, journal.WithRunIDGenerator(opts.RunIDs))
	}
	j, err := journal.Open(dbPath, jopts...)
	if err != nil {
		return nil, "", err
	}

	digest, err := workload.Digest(cfg.Workload)
	if err != nil {
		j.Close()
		return nil, "", err
	}
	run, err := j.BeginRun(ctx, filepath.Base(cfgPath), cfg.Scheduler.Frequency, digest)
	if err != nil {
		j.Close()
		return nil, "", err
	}
	return j, run.ID, nil
}

// runContext derives the run context from the command context, adding
// signal handling and the optional timeout.
func runContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	// Use command's context if available (for testing), otherwise create one
	if parent == nil {
		parent = context.Background()
	}
	ctx, stopSignals := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stopSignals
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stopSignals()
	}
}

// hostTicker posts render callbacks to the loop at a fixed rate, standing in
// for the host's own work competing with scheduler frames.
type hostTicker struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	frames int
}

func startHost(ctx context.Context, loop *chronos.Loop, rate float64) *hostTicker {
	h := &hostTicker{cancel: func() {}}
	if rate <= 0 {
		return h
	}
	ctx, h.cancel = context.WithCancel(ctx)

	ticker := time.NewTicker(time.Duration(float64(time.Second) / rate))
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// frames is only touched on the loop goroutine.
				loop.Post(func() { h.frames++ })
			}
		}
	}()
	return h
}

// stop ends the ticker and returns the number of render callbacks delivered.
// Must be called after the loop has returned.
func (h *hostTicker) stop() int {
	h.cancel()
	h.wg.Wait()
	return h.frames
}
