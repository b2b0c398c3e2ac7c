package chronos

// StepResult is what a step reports after one invocation.
type StepResult int

const (
	// Continue asks for the step to be invoked again on a later turn.
	Continue StepResult = iota
	// Done signals the final useful invocation; the task is removed.
	Done
)

// String returns the lowercase name of the result.
func (r StepResult) String() string {
	switch r {
	case Continue:
		return "continue"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// StepFunc is one unit of repeatable work.
// It must not block: every other task and the host wait while it runs.
type StepFunc func() StepResult

// FromBool adapts a step using the boolean contract (true = call again).
func FromBool(fn func() bool) StepFunc {
	if fn == nil {
		return nil
	}
	return func() StepResult {
		if fn() {
			return Continue
		}
		return Done
	}
}

// TaskRef identifies one registered task. Refs are never reused within a
// Scheduler, and a queued task keeps its ref when it is promoted.
type TaskRef uint64

// TaskInfo describes a task without exposing its step.
// It is the payload of the killed event.
type TaskInfo struct {
	Ref  TaskRef
	Name string
}

// task is an active unit of work.
type task struct {
	ref  TaskRef
	name string
	step StepFunc
}

func (t *task) info() TaskInfo {
	return TaskInfo{Ref: t.ref, Name: t.name}
}

// queuedTask waits for a task named parent to be removed.
type queuedTask struct {
	ref    TaskRef
	name   string
	parent string
	step   StepFunc
}

func (q *queuedTask) promote() *task {
	return &task{ref: q.ref, name: q.name, step: q.step}
}

// QueuePolicy decides what happens to the queued children of a removed task.
type QueuePolicy int

const (
	// QueueIgnore leaves children queued (orphaned until removed).
	QueueIgnore QueuePolicy = iota
	// QueuePromote moves children into the active list.
	QueuePromote
	// QueueDiscard drops children without running them.
	QueueDiscard
)

// String returns the lowercase name of the policy.
func (p QueuePolicy) String() string {
	switch p {
	case QueueIgnore:
		return "ignore"
	case QueuePromote:
		return "promote"
	case QueueDiscard:
		return "discard"
	default:
		return "unknown"
	}
}

// ParseQueuePolicy converts "ignore", "promote" or "discard" (or "")
// to a QueuePolicy. The empty string maps to QueueIgnore.
func ParseQueuePolicy(s string) (QueuePolicy, bool) {
	switch s {
	case "", "ignore":
		return QueueIgnore, true
	case "promote":
		return QueuePromote, true
	case "discard":
		return QueueDiscard, true
	default:
		return QueueIgnore, false
	}
}

type selectorKind int

const (
	selectName selectorKind = iota + 1
	selectRef
	selectAll
)

// Selector chooses which active tasks RemoveTask removes.
type Selector struct {
	kind selectorKind
	name string
	ref  TaskRef
}

// ByName selects every active task with the given name.
func ByName(name string) Selector {
	return Selector{kind: selectName, name: name}
}

// ByRef selects the single task registered under ref.
func ByRef(ref TaskRef) Selector {
	return Selector{kind: selectRef, ref: ref}
}

// AllTasks selects every active task.
func AllTasks() Selector {
	return Selector{kind: selectAll}
}

func (s Selector) matches(t *task) bool {
	switch s.kind {
	case selectName:
		return t.name == s.name
	case selectRef:
		return t.ref == s.ref
	case selectAll:
		return true
	default:
		return false
	}
}
