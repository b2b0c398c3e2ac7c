package chronos

import (
	"log/slog"
	"time"
)

// State is the scheduler's run state.
type State int

const (
	// StateIdle means no tick driver will be armed.
	StateIdle State = iota
	// StateRunning means a tick driver is armed or executing.
	StateRunning
)

// String returns "idle" or "running".
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Scheduler runs registered tasks round-robin inside a per-tick time budget
// and yields to the host between ticks through a Deferrer.
//
// CRITICAL: a Scheduler is not safe for concurrent use. Every method must be
// called on the goroutine that delivers the Deferrer's callbacks; steps and
// event handlers run on that goroutine too and may call back into the
// Scheduler.
//
// INVARIANTS:
//   - at most one tick driver is pending at any time
//   - a queued task never runs before its parent has been removed
//   - the tick driver runs at least one step per invocation
type Scheduler struct {
	deferrer Deferrer
	clock    Clock
	logger   *slog.Logger
	bus      *EventBus
	seq      *Sequence

	reg   *taskRegistry
	fc    *frameClock
	gens  *generatorRotation
	state State

	// pending is true between arming the tick driver and its invocation.
	pending bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the wall clock used to measure ticks.
// Default: SystemClock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithFrequency sets the initial target frequency in ticks per second.
// Invalid values (zero, NaN, Inf) leave DefaultFrequency in place.
func WithFrequency(hz float64) Option {
	return func(s *Scheduler) {
		if validFrequency(hz) {
			s.fc.setFrequency(hz)
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithEventBus publishes events on an existing bus instead of a new one.
func WithEventBus(b *EventBus) Option {
	return func(s *Scheduler) {
		s.bus = b
	}
}

// New creates an idle Scheduler that inserts frames through d.
func New(d Deferrer, opts ...Option) *Scheduler {
	s := &Scheduler{
		deferrer: d,
		clock:    SystemClock{},
		logger:   slog.Default(),
		bus:      NewEventBus(),
		seq:      NewSequence(),
		reg:      newTaskRegistry(),
		fc:       newFrameClock(DefaultFrequency),
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	// Subscribed last so it sees the final bus.
	s.gens = newGeneratorRotation(s)
	return s
}

// Events returns the bus lifecycle events are published on.
func (s *Scheduler) Events() *EventBus {
	return s.bus
}

// State returns the current run state.
func (s *Scheduler) State() State {
	return s.state
}

// AddTask appends step to the active list under name and returns its ref.
// Names are not required to be unique. When autostart is set and the
// scheduler is idle, RunTasks is called.
func (s *Scheduler) AddTask(step StepFunc, name string, autostart bool) (TaskRef, error) {
	if step == nil {
		return 0, NewInvalidTaskError(name)
	}
	t := s.reg.add(name, step)
	s.logger.Debug("task added", "task", name, "ref", t.ref, "autostart", autostart)

	if autostart && s.state == StateIdle {
		s.RunTasks()
	}
	return t.ref, nil
}

// QueueTask registers step to be promoted to the active list once a task
// named parent is removed with QueuePromote. parent must name an active or
// queued task at call time.
func (s *Scheduler) QueueTask(step StepFunc, name, parent string) (TaskRef, error) {
	if step == nil {
		return 0, NewInvalidTaskError(name)
	}
	q, err := s.reg.queue(name, parent, step)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("task queued", "task", name, "ref", q.ref, "parent", parent)
	return q.ref, nil
}

// RemoveTask removes the active tasks matched by sel and applies policy to
// their queued children. Removing nothing is not an error. If the active
// list ends up empty while running, the scheduler stops.
func (s *Scheduler) RemoveTask(sel Selector, policy QueuePolicy) {
	removed := s.reg.remove(sel, policy)
	for _, t := range removed {
		s.logger.Debug("task removed", "task", t.name, "ref", t.ref, "policy", policy.String())
	}
	s.gens.detach(removed)

	if s.reg.len() == 0 && s.state == StateRunning {
		s.StopTasks()
	}
}

// RunTasks starts a run: it resets the tick counter and the run anchor,
// publishes start and insertframe, and arms the tick driver unless one is
// already pending.
func (s *Scheduler) RunTasks() {
	if s.state == StateIdle {
		s.reg.cursor = 0
	}
	s.state = StateRunning
	s.fc.reset(s.clock.Now())
	s.logger.Debug("scheduler started", "tasks", s.reg.len(), "frequency", s.fc.frequency)

	s.emit(EventStart, nil)
	s.arm()
}

// StopTasks publishes stop and moves to idle. A tick in flight finishes its
// current step and is not re-armed. Each call publishes exactly one stop.
func (s *Scheduler) StopTasks() {
	s.emit(EventStop, nil)
	if s.state == StateRunning {
		s.logger.Debug("scheduler stopped", "frames", s.fc.frames, "tasks", s.reg.len())
	}
	s.state = StateIdle
}

// InsertFrame runs fn after the current synchronous work, through the Deferrer.
func (s *Scheduler) InsertFrame(fn func()) {
	if fn == nil {
		return
	}
	s.deferrer.Defer(fn)
}

// Frequency returns the target number of ticks per second.
func (s *Scheduler) Frequency() float64 {
	return s.fc.frequency
}

// SetFrequency sets the target frequency to |hz|, recomputes the nominal
// tick duration and resets the tick counter.
func (s *Scheduler) SetFrequency(hz float64) error {
	if !validFrequency(hz) {
		return NewInvalidFrequencyError(hz)
	}
	s.fc.setFrequency(hz)
	s.logger.Debug("frequency changed", "frequency", s.fc.frequency, "nominal", s.fc.nominal)
	return nil
}

// FPS returns the average frames per second of the current run, rounded to
// one decimal. When idle it returns the last value computed while running.
func (s *Scheduler) FPS() float64 {
	return s.fc.fps(s.clock.Now(), s.state == StateRunning)
}

// TasksCount returns the number of active tasks.
func (s *Scheduler) TasksCount() int {
	return s.reg.len()
}

// QueuedTasksCount returns the number of queued tasks.
func (s *Scheduler) QueuedTasksCount() int {
	return s.reg.queuedLen()
}

// ExecutionTime returns how long the current run has been inserting frames
// without interruption.
func (s *Scheduler) ExecutionTime() time.Duration {
	return s.fc.executionTime()
}

// TaskNames returns the active task names in round-robin order.
func (s *Scheduler) TaskNames() []string {
	return s.reg.names()
}

// QueuedTaskNames returns the queued task names in registration order.
func (s *Scheduler) QueuedTaskNames() []string {
	return s.reg.queuedNames()
}

// Stats is a snapshot of the scheduler's counters.
type Stats struct {
	State         string        `json:"state"`
	Frequency     float64       `json:"frequency"`
	FPS           float64       `json:"fps"`
	Frames        int           `json:"frames"`
	Tasks         int           `json:"tasks"`
	Queued        int           `json:"queued"`
	Generators    int           `json:"generators"`
	ExecutionTime time.Duration `json:"execution_time"`
	Budget        time.Duration `json:"budget"`
}

// Stats returns a snapshot of the scheduler's counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		State:         s.state.String(),
		Frequency:     s.fc.frequency,
		FPS:           s.FPS(),
		Frames:        s.fc.frames,
		Tasks:         s.reg.len(),
		Queued:        s.reg.queuedLen(),
		Generators:    s.gens.len(),
		ExecutionTime: s.fc.executionTime(),
		Budget:        s.fc.corrected,
	}
}

// arm publishes insertframe and defers the tick driver.
func (s *Scheduler) arm() {
	s.emit(EventInsertFrame, nil)
	if s.pending {
		return
	}
	s.pending = true
	s.deferrer.Defer(s.drive)
}

// drive is the tick driver. It runs steps round-robin until the budget is
// spent, then either re-arms itself or stops.
func (s *Scheduler) drive() {
	s.pending = false
	s.emit(EventFrameInserted, nil)

	start := s.clock.Now()
	for s.state == StateRunning && s.reg.len() > 0 {
		s.runStep()
		s.fc.measured = s.clock.Now().Sub(start)
		if s.fc.measured > s.fc.corrected {
			break
		}
	}

	if s.state != StateRunning {
		// Stopped externally; stop was already published.
		return
	}
	if s.reg.len() == 0 {
		s.StopTasks()
		return
	}

	s.fc.correct(s.clock.Now())
	s.arm()
}

// runStep invokes the task under the cursor once.
func (s *Scheduler) runStep() {
	t := s.reg.next()
	if t == nil {
		return
	}

	if t.step() != Done {
		s.reg.advance(t)
		return
	}

	// The step may already have removed itself.
	removed := s.reg.remove(ByRef(t.ref), QueuePromote)
	if len(removed) == 0 {
		return
	}
	s.logger.Debug("task killed", "task", t.name, "ref", t.ref, "frame", s.fc.frames)
	info := t.info()
	s.emit(EventKilled, &info)
}

func (s *Scheduler) emit(t EventType, info *TaskInfo) {
	s.bus.Publish(Event{
		Type:  t,
		Seq:   s.seq.Next(),
		Frame: s.fc.frames,
		Task:  info,
	})
}
