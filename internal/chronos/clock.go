package chronos

import (
	"math"
	"sync/atomic"
	"time"
)

// DefaultFrequency is the target number of ticks per second.
const DefaultFrequency = 80

// Clock reads wall-clock time. The scheduler only measures durations, so any
// monotonic source works; tests inject a fake one.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Sequence is a monotonic logical clock stamping published events.
//
// Ordering of events always uses Seq, never wall-clock time, so a recorded
// run reads back in exactly the order it was published.
//
// Thread-safety: Sequence is safe for concurrent use (atomic operations).
type Sequence struct {
	seq atomic.Int64
}

// NewSequence creates a sequence starting at 0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next increments the sequence and returns the new value.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the last value handed out.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}

// frameClock holds the timing state of the frame budget feedback loop.
type frameClock struct {
	frequency float64       // target ticks per second
	nominal   time.Duration // 1s / frequency
	corrected time.Duration // budget for the next tick
	measured  time.Duration // duration of the last tick
	delay     time.Duration // measured - nominal of the last completed tick
	frames    int           // ticks since the last reset
	runStart  time.Time     // anchor set by RunTasks
	lastFrame time.Time     // anchor set each time a tick re-arms
	lastFPS   float64
}

func newFrameClock(hz float64) *frameClock {
	c := &frameClock{}
	c.setFrequency(hz)
	return c
}

func validFrequency(hz float64) bool {
	return hz != 0 && !math.IsNaN(hz) && !math.IsInf(hz, 0)
}

// setFrequency recomputes the nominal duration and resets the tick counter
// and the correction term. The caller validates hz.
func (c *frameClock) setFrequency(hz float64) {
	c.frequency = math.Abs(hz)
	c.nominal = time.Duration(float64(time.Second) / c.frequency)
	c.corrected = c.nominal
	c.delay = 0
	c.frames = 0
}

// reset starts a new run anchored at now.
func (c *frameClock) reset(now time.Time) {
	c.frames = 0
	c.runStart = now
	c.lastFrame = now
}

// correct closes a tick: delay = measured - nominal, next budget = nominal - delay.
func (c *frameClock) correct(now time.Time) {
	c.lastFrame = now
	c.frames++
	c.delay = c.measured - c.nominal
	c.corrected = c.nominal - c.delay
}

// fps reports round(frames*10000/elapsedMs)/10 while running, and the last
// computed value otherwise.
func (c *frameClock) fps(now time.Time, running bool) float64 {
	if !running {
		return c.lastFPS
	}
	elapsedMs := float64(now.Sub(c.runStart)) / float64(time.Millisecond)
	if elapsedMs <= 0 {
		return c.lastFPS
	}
	c.lastFPS = math.Round(float64(c.frames)*10000/elapsedMs) / 10
	return c.lastFPS
}

// executionTime is how long the current run has been inserting frames.
func (c *frameClock) executionTime() time.Duration {
	return c.lastFrame.Sub(c.runStart)
}
