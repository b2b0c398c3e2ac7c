// Package workload builds synthetic scheduler workloads from declarative
// specs: countdown tasks, dependent tasks chained with "after", and
// round-limited generators.
//
// The same specs are read from CUE configuration (chronos run) and from
// YAML scenarios (chronos test).
package workload

import (
	"fmt"
	"time"

	"github.com/roach88/chronos/internal/chronos"
)

// TaskSpec describes a task whose step returns Done on its Steps-th call.
type TaskSpec struct {
	Name string `yaml:"name" json:"name"`

	// Steps is the total number of step invocations, the final Done included.
	Steps int `yaml:"steps" json:"steps"`

	// Cost is the simulated duration of every step ("2ms"). Empty means free.
	Cost string `yaml:"cost,omitempty" json:"cost,omitempty"`

	// After queues the task behind the named task instead of adding it.
	After string `yaml:"after,omitempty" json:"after,omitempty"`
}

// GeneratorSpec describes a generator whose run takes Steps invocations and
// which is admitted for Rounds waves in total.
type GeneratorSpec struct {
	ID     string `yaml:"id" json:"id"`
	Steps  int    `yaml:"steps" json:"steps"`
	Rounds int    `yaml:"rounds,omitempty" json:"rounds,omitempty"` // 0 means 1
	Cost   string `yaml:"cost,omitempty" json:"cost,omitempty"`
}

// Workload is a set of tasks and generators installed together.
type Workload struct {
	Tasks      []TaskSpec      `yaml:"tasks,omitempty" json:"tasks,omitempty"`
	Generators []GeneratorSpec `yaml:"generators,omitempty" json:"generators,omitempty"`
}

// Hooks observes step invocations. Nil hooks are skipped.
type Hooks struct {
	// OnStep is called after every step with the task or generator name,
	// the 1-based call number within the current run and the result.
	OnStep func(name string, call int, result chronos.StepResult)
}

// Installed reports what Install registered.
type Installed struct {
	Tasks      map[string]chronos.TaskRef
	Generators []string
}

// Install validates w and registers its tasks (in order) and generators on
// s. Tasks are added without autostart; generators start their own wave.
// The caller decides when to call RunTasks.
func Install(s *chronos.Scheduler, w Workload, b Burner, h Hooks) (*Installed, error) {
	if errs := Validate(w); len(errs) > 0 {
		return nil, fmt.Errorf("invalid workload: %w", errs[0])
	}
	if b == nil {
		b = NopBurner{}
	}

	out := &Installed{Tasks: make(map[string]chronos.TaskRef, len(w.Tasks))}
	for _, ts := range w.Tasks {
		ref, err := InstallTask(s, ts, b, h)
		if err != nil {
			return nil, err
		}
		out.Tasks[ts.Name] = ref
	}

	for _, gs := range w.Generators {
		if err := InstallGenerator(s, gs, b, h); err != nil {
			return nil, err
		}
		out.Generators = append(out.Generators, gs.ID)
	}
	return out, nil
}

// InstallTask registers a single task, queueing it when After is set. Unlike
// Install it does not require After to name a task from the same workload,
// only one the scheduler currently knows.
func InstallTask(s *chronos.Scheduler, ts TaskSpec, b Burner, h Hooks) (chronos.TaskRef, error) {
	cost, err := parseCost(ts.Cost)
	if err != nil || cost < 0 {
		return 0, fmt.Errorf("install task %q: invalid cost %q", ts.Name, ts.Cost)
	}
	if b == nil {
		b = NopBurner{}
	}
	step := Countdown(ts.Name, ts.Steps, cost, b, h)

	var ref chronos.TaskRef
	if ts.After != "" {
		ref, err = s.QueueTask(step, ts.Name, ts.After)
	} else {
		ref, err = s.AddTask(step, ts.Name, false)
	}
	if err != nil {
		return 0, fmt.Errorf("install task %q: %w", ts.Name, err)
	}
	return ref, nil
}

// InstallGenerator registers a single generator. Rounds <= 0 means one run.
func InstallGenerator(s *chronos.Scheduler, gs GeneratorSpec, b Burner, h Hooks) error {
	cost, err := parseCost(gs.Cost)
	if err != nil || cost < 0 {
		return fmt.Errorf("install generator %q: invalid cost %q", gs.ID, gs.Cost)
	}
	if b == nil {
		b = NopBurner{}
	}
	rounds := gs.Rounds
	if rounds <= 0 {
		rounds = 1
	}
	step := Cycle(gs.ID, gs.Steps, cost, b, h)
	if err := s.AddGenerator(gs.ID, step, Rounds(rounds)); err != nil {
		return fmt.Errorf("install generator %q: %w", gs.ID, err)
	}
	return nil
}

// Countdown returns a step that burns cost per call and returns Done on its
// n-th call. Calls after that keep returning Done.
func Countdown(name string, n int, cost time.Duration, b Burner, h Hooks) chronos.StepFunc {
	calls := 0
	return func() chronos.StepResult {
		calls++
		b.Burn(cost)
		res := chronos.Continue
		if calls >= n {
			res = chronos.Done
		}
		if h.OnStep != nil {
			h.OnStep(name, calls, res)
		}
		return res
	}
}

// Cycle is Countdown restarting after every Done, so a generator can run
// it once per wave.
func Cycle(name string, n int, cost time.Duration, b Burner, h Hooks) chronos.StepFunc {
	calls := 0
	return func() chronos.StepResult {
		calls++
		b.Burn(cost)
		res := chronos.Continue
		call := calls
		if calls >= n {
			res = chronos.Done
			calls = 0
		}
		if h.OnStep != nil {
			h.OnStep(name, call, res)
		}
		return res
	}
}

// Rounds returns a continuation allowing n runs in total.
func Rounds(n int) func() bool {
	runs := 0
	return func() bool {
		runs++
		return runs < n
	}
}

func parseCost(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
