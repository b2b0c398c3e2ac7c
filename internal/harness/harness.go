package harness

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/chronos/internal/chronos"
	"github.com/roach88/chronos/internal/testutil"
	"github.com/roach88/chronos/internal/workload"
)

// Harness is the scenario execution engine.
// It owns a scheduler driven by a manual deferrer and a fake clock.
type Harness struct {
	scheduler *chronos.Scheduler
	deferrer  *chronos.ManualDeferrer
	clock     *testutil.DeterministicClock
	logger    *slog.Logger
	result    *Result
	burner    workload.Burner
	hooks     workload.Hooks
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Build a scheduler on a ManualDeferrer and a FakeClock
//  2. Install the workload; start the scheduler if it has active tasks
//  3. Deliver callbacks one at a time, applying due actions in between
//  4. Check expect and assertions against the final state and trace
//
// An error is returned when the scenario cannot be executed (invalid
// workload, failing action, callback limit); failed expectations are
// reported in the Result instead.
func Run(scenario *Scenario) (*Result, error) {
	wall := testutil.NewFakeClock()
	d := chronos.NewManualDeferrer()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	// Subscribed before the scheduler's own handlers, so entries published
	// from inside a handler land after the event that triggered them.
	bus := chronos.NewEventBus()

	opts := []chronos.Option{
		chronos.WithClock(wall),
		chronos.WithLogger(logger),
		chronos.WithEventBus(bus),
	}
	if scenario.Frequency != 0 {
		opts = append(opts, chronos.WithFrequency(scenario.Frequency))
	}

	h := &Harness{
		deferrer: d,
		clock:    testutil.NewDeterministicClock(),
		logger:   logger,
		result:   NewResult(),
		burner:   workload.BurnFunc(wall.Advance),
	}
	bus.SubscribeAll(h.onEvent)
	h.scheduler = chronos.New(d, opts...)
	h.hooks = workload.Hooks{OnStep: h.onStep}

	if _, err := workload.Install(h.scheduler, scenario.Workload, h.burner, h.hooks); err != nil {
		return nil, err
	}
	if h.scheduler.TasksCount() > 0 {
		h.scheduler.RunTasks()
	}

	if err := h.drive(scenario); err != nil {
		return nil, err
	}

	result := h.result
	result.Final = h.scheduler.Stats()
	for _, msg := range checkExpect(scenario.Expect, result) {
		result.AddError(msg)
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// drive delivers callbacks until the deferrer is empty.
func (h *Harness) drive(scenario *Scenario) error {
	limit := scenario.MaxCallbacks
	if limit == 0 {
		limit = DefaultMaxCallbacks
	}

	next := 0
	for {
		for next < len(scenario.Actions) && scenario.Actions[next].AtFrame <= h.result.Frames {
			if err := h.apply(scenario.Actions[next]); err != nil {
				return fmt.Errorf("actions[%d]: %w", next, err)
			}
			next++
		}

		if h.deferrer.Len() == 0 {
			break
		}
		if h.result.Callbacks >= limit {
			return fmt.Errorf("scenario %q exceeded %d callbacks", scenario.Name, limit)
		}
		h.deferrer.RunNext()
		h.result.Callbacks++
	}

	for ; next < len(scenario.Actions); next++ {
		h.result.AddError(fmt.Sprintf("actions[%d]: frame %d never reached, the run ended after %d frames",
			next, scenario.Actions[next].AtFrame, h.result.Frames))
	}

	h.logger.Info("scenario drained",
		"scenario", scenario.Name,
		"callbacks", h.result.Callbacks,
		"frames", h.result.Frames,
	)
	return nil
}

// apply performs one action on the scheduler.
func (h *Harness) apply(a Action) error {
	s := h.scheduler
	switch {
	case a.RemoveTask != nil:
		policy, ok := chronos.ParseQueuePolicy(a.RemoveTask.Policy)
		if !ok {
			return fmt.Errorf("unknown policy %q", a.RemoveTask.Policy)
		}
		sel := chronos.ByName(a.RemoveTask.Name)
		if a.RemoveTask.All {
			sel = chronos.AllTasks()
		}
		s.RemoveTask(sel, policy)
	case a.RemoveGenerator != "":
		s.RemoveGenerator(a.RemoveGenerator)
	case a.Stop:
		s.StopTasks()
	case a.Run:
		s.RunTasks()
	case a.SetFrequency != 0:
		return s.SetFrequency(a.SetFrequency)
	case a.AddTask != nil:
		_, err := workload.InstallTask(s, *a.AddTask, h.burner, h.hooks)
		return err
	case a.AddGenerator != nil:
		return workload.InstallGenerator(s, *a.AddGenerator, h.burner, h.hooks)
	default:
		return fmt.Errorf("no operation set")
	}
	return nil
}

func (h *Harness) onEvent(ev chronos.Event) {
	task := ""
	if ev.Task != nil {
		task = ev.Task.Name
	}
	if ev.Type == chronos.EventFrameInserted {
		h.result.Frames++
	}
	h.result.addEvent(ev.Type.String(), task, h.clock.Next())
}

func (h *Harness) onStep(name string, call int, _ chronos.StepResult) {
	h.result.addStep(name, call, h.clock.Next())
}
