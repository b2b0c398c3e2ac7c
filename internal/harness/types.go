package harness

import "github.com/roach88/chronos/internal/chronos"

// StepEntry is the trace type of a step invocation.
const StepEntry = "step"

// TraceEvent is one entry of a scenario trace.
type TraceEvent struct {
	Type string `json:"type"` // lifecycle event name or "step"
	Task string `json:"task,omitempty"`
	Call int    `json:"call,omitempty"` // 1-based call within the run, steps only
	Seq  int64  `json:"seq"`
}

// Key renders the entry as "type" or "type:task", the form used by
// trace assertions.
func (e TraceEvent) Key() string {
	if e.Task == "" {
		return e.Type
	}
	return e.Type + ":" + e.Task
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds lifecycle events and step invocations in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds failed expectations and assertions.
	Errors []string `json:"errors,omitempty"`

	// Final is the scheduler snapshot once the deferrer drained.
	Final chronos.Stats `json:"final"`

	// Callbacks is the number of deferred callbacks delivered.
	Callbacks int `json:"callbacks"`

	// Frames is the number of frames inserted across every run.
	Frames int `json:"frames"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addEvent(typ, task string, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{Type: typ, Task: task, Seq: seq})
}

func (r *Result) addStep(task string, call int, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{Type: StepEntry, Task: task, Call: call, Seq: seq})
}
