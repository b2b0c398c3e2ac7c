package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/chronos/internal/chronos"
	"github.com/roach88/chronos/internal/workload"
)

// DefaultMaxCallbacks bounds a scenario that never goes idle.
const DefaultMaxCallbacks = 1000

// Scenario defines a deterministic scheduler run.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Frequency is the scheduler frequency. Zero keeps the default.
	Frequency float64 `yaml:"frequency,omitempty"`

	// MaxCallbacks fails the run when more callbacks would be delivered.
	// Zero means DefaultMaxCallbacks.
	MaxCallbacks int `yaml:"max_callbacks,omitempty"`

	// Workload is installed before the first callback. The scheduler is
	// started when it contains at least one active task.
	Workload workload.Workload `yaml:"workload"`

	// Actions are applied between callbacks, ordered by AtFrame.
	Actions []Action `yaml:"actions,omitempty"`

	// Expect checks the scheduler once the deferrer drained.
	Expect *Expect `yaml:"expect,omitempty"`

	// Assertions check the trace.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Action is one host-side call on the scheduler. Exactly one operation
// field must be set.
type Action struct {
	// AtFrame is the number of frames inserted, since the scenario began,
	// after which the action runs. 0 runs it before the first callback.
	AtFrame int `yaml:"at_frame"`

	RemoveTask      *RemoveTaskAction       `yaml:"remove_task,omitempty"`
	RemoveGenerator string                  `yaml:"remove_generator,omitempty"`
	Stop            bool                    `yaml:"stop,omitempty"`
	Run             bool                    `yaml:"run,omitempty"`
	SetFrequency    float64                 `yaml:"set_frequency,omitempty"`
	AddTask         *workload.TaskSpec      `yaml:"add_task,omitempty"`
	AddGenerator    *workload.GeneratorSpec `yaml:"add_generator,omitempty"`
}

// RemoveTaskAction removes active tasks by name, or all of them.
type RemoveTaskAction struct {
	Name   string `yaml:"name,omitempty"`
	All    bool   `yaml:"all,omitempty"`
	Policy string `yaml:"policy,omitempty"` // ignore (default), promote, discard
}

// Expect describes the final scheduler state. Nil counts are not checked.
type Expect struct {
	State      string `yaml:"state,omitempty"`
	Tasks      *int   `yaml:"tasks,omitempty"`
	Queued     *int   `yaml:"queued,omitempty"`
	Generators *int   `yaml:"generators,omitempty"`
}

// Assertion validates the trace.
type Assertion struct {
	// Type is trace_contains, trace_order or trace_count.
	Type string `yaml:"type"`

	// Event is a lifecycle event name or "step" (trace_contains, trace_count).
	Event string `yaml:"event,omitempty"`

	// Task narrows Event to entries for that task. Empty matches any.
	Task string `yaml:"task,omitempty"`

	// Count is the expected number of matching entries (trace_count).
	Count int `yaml:"count,omitempty"`

	// Order lists "event" or "event:task" keys (trace_order).
	Order []string `yaml:"order,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches "assertion:" vs "assertions:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.MaxCallbacks < 0 {
		return fmt.Errorf("max_callbacks must be non-negative")
	}
	if s.Expect == nil && len(s.Assertions) == 0 {
		return fmt.Errorf("expect or assertions is required")
	}
	if errs := workload.Validate(s.Workload); len(errs) > 0 {
		return fmt.Errorf("workload: %w", errs[0])
	}

	last := 0
	for i, a := range s.Actions {
		if err := validateAction(i, &a); err != nil {
			return err
		}
		if a.AtFrame < last {
			return fmt.Errorf("actions[%d]: at_frame %d is before the previous action's %d", i, a.AtFrame, last)
		}
		last = a.AtFrame
	}

	if s.Expect != nil {
		switch s.Expect.State {
		case "", chronos.StateIdle.String(), chronos.StateRunning.String():
		default:
			return fmt.Errorf("expect.state must be idle or running, got %q", s.Expect.State)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAction checks that exactly one operation is set.
func validateAction(index int, a *Action) error {
	if a.AtFrame < 0 {
		return fmt.Errorf("actions[%d]: at_frame must be non-negative", index)
	}

	ops := 0
	if a.RemoveTask != nil {
		ops++
		rt := a.RemoveTask
		if (rt.Name == "") == !rt.All {
			return fmt.Errorf("actions[%d].remove_task: exactly one of name or all is required", index)
		}
		if _, ok := chronos.ParseQueuePolicy(rt.Policy); !ok {
			return fmt.Errorf("actions[%d].remove_task: unknown policy %q", index, rt.Policy)
		}
	}
	if a.RemoveGenerator != "" {
		ops++
	}
	if a.Stop {
		ops++
	}
	if a.Run {
		ops++
	}
	if a.SetFrequency != 0 {
		ops++
	}
	if a.AddTask != nil {
		ops++
		if a.AddTask.Name == "" || a.AddTask.Steps < 1 {
			return fmt.Errorf("actions[%d].add_task: name and steps >= 1 are required", index)
		}
	}
	if a.AddGenerator != nil {
		ops++
		if a.AddGenerator.ID == "" || a.AddGenerator.Steps < 1 {
			return fmt.Errorf("actions[%d].add_generator: id and steps >= 1 are required", index)
		}
	}

	switch ops {
	case 1:
		return nil
	case 0:
		return fmt.Errorf("actions[%d]: no operation set", index)
	default:
		return fmt.Errorf("actions[%d]: %d operations set, expected one", index, ops)
	}
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains, AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for %s", index, a.Type)
		}
		if !knownEntry(a.Event) {
			return fmt.Errorf("assertions[%d]: unknown event %q", index, a.Event)
		}
		if a.Type == AssertTraceCount && a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Order) == 0 {
			return fmt.Errorf("assertions[%d]: order list is required for trace_order", index)
		}
		for _, key := range a.Order {
			event, _ := splitKey(key)
			if !knownEntry(event) {
				return fmt.Errorf("assertions[%d]: unknown event %q in order", index, event)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func knownEntry(name string) bool {
	if name == StepEntry {
		return true
	}
	_, ok := chronos.ParseEventType(name)
	return ok
}
