package chronos

// Deferrer is the host's zero-delay deferred-callback primitive.
//
// Contract: every deferred callback runs exactly once, after the current
// synchronous work has unwound, in the order Defer was called, and never
// reentrantly inside another callback.
type Deferrer interface {
	Defer(fn func())
}

// ManualDeferrer queues callbacks until the owner runs them explicitly.
// The harness and the tests use it to step the scheduler one frame at a time.
//
// Thread-safety: none.
type ManualDeferrer struct {
	pending []func()
	ran     int
}

// NewManualDeferrer creates an empty deferrer.
func NewManualDeferrer() *ManualDeferrer {
	return &ManualDeferrer{}
}

// Defer queues fn.
func (d *ManualDeferrer) Defer(fn func()) {
	d.pending = append(d.pending, fn)
}

// RunNext runs the oldest pending callback. Callbacks it defers are queued
// behind the ones already pending. Returns false if nothing was pending.
func (d *ManualDeferrer) RunNext() bool {
	if len(d.pending) == 0 {
		return false
	}
	fn := d.pending[0]
	d.pending[0] = nil
	d.pending = d.pending[1:]
	d.ran++
	fn()
	return true
}

// Drain runs callbacks until none are pending or max callbacks have run
// (max <= 0 means no limit). It returns how many ran.
func (d *ManualDeferrer) Drain(max int) int {
	n := 0
	for max <= 0 || n < max {
		if !d.RunNext() {
			break
		}
		n++
	}
	return n
}

// Len returns the number of pending callbacks.
func (d *ManualDeferrer) Len() int {
	return len(d.pending)
}

// Ran returns how many callbacks have run so far.
func (d *ManualDeferrer) Ran() int {
	return d.ran
}
