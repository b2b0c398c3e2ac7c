package chronos

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrLoopRunning is returned when Run is called on a loop that is already running.
var ErrLoopRunning = errors.New("chronos: loop is already running")

// Loop is a single-goroutine host loop delivering deferred callbacks in FIFO
// order. It implements Deferrer, so a Scheduler built on a Loop yields to
// every callback posted before its next frame.
//
// Thread-safety model:
//   - Post() / Defer(): safe from any goroutine
//   - Run() / RunUntilIdle(): exactly one goroutine, which then owns the
//     Scheduler and everything it calls
type Loop struct {
	queue   *callbackQueue
	logger  *slog.Logger
	running atomic.Bool
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLoopLogger sets the loop's logger.
func WithLoopLogger(l *slog.Logger) LoopOption {
	return func(lp *Loop) {
		lp.logger = l
	}
}

// NewLoop creates a stopped loop.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		queue:  newCallbackQueue(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Defer queues fn. Callbacks deferred after Stop are dropped.
func (l *Loop) Defer(fn func()) {
	l.queue.Enqueue(fn)
}

// Post queues fn and reports whether it was accepted.
// Returns false once the loop has been stopped.
func (l *Loop) Post(fn func()) bool {
	return l.queue.Enqueue(fn)
}

// Len returns the number of pending callbacks.
func (l *Loop) Len() int {
	return l.queue.Len()
}

// Run delivers callbacks until ctx is cancelled or Stop is called.
// A panicking callback propagates out of Run.
func (l *Loop) Run(ctx context.Context) error {
	return l.run(ctx, false)
}

// RunUntilIdle delivers callbacks until the queue is empty, ctx is cancelled
// or Stop is called. A Scheduler always keeps its next frame queued while it
// has work, so an empty queue means every run has finished.
func (l *Loop) RunUntilIdle(ctx context.Context) error {
	return l.run(ctx, true)
}

func (l *Loop) run(ctx context.Context, untilIdle bool) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer l.running.Store(false)

	l.logger.Debug("loop starting", "until_idle", untilIdle)

	for {
		if err := ctx.Err(); err != nil {
			l.logger.Debug("loop stopping: context cancelled")
			return err
		}

		fn, ok := l.queue.TryDequeue()
		if ok {
			fn()
			continue
		}

		if l.queue.Closed() {
			l.logger.Debug("loop stopping: closed")
			return nil
		}
		if untilIdle {
			l.logger.Debug("loop idle")
			return nil
		}

		select {
		case <-ctx.Done():
			l.logger.Debug("loop stopping: context cancelled")
			return ctx.Err()
		case <-l.queue.Wait():
		}
	}
}

// Stop closes the loop. Pending callbacks are discarded and Run returns.
func (l *Loop) Stop() {
	l.queue.Close()
}

// callbackQueue is a thread-safe unbounded FIFO of callbacks.
//
// The queue uses a channel for signaling so the loop can wait for work and
// for context cancellation in the same select.
type callbackQueue struct {
	mu     sync.Mutex
	items  []func()
	closed bool
	signal chan struct{} // buffered, size 1; closed on Close
}

func newCallbackQueue() *callbackQueue {
	return &callbackQueue{
		items:  make([]func(), 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds fn to the back of the queue. Returns false if closed.
func (q *callbackQueue) Enqueue(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || fn == nil {
		return false
	}

	q.items = append(q.items, fn)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front callback without blocking.
func (q *callbackQueue) TryDequeue() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.items) == 0 {
		return nil, false
	}

	fn := q.items[0]
	// Release the closure so the backing array does not pin it.
	q.items[0] = nil
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return fn, true
}

// Wait returns a channel that fires when callbacks may be available.
func (q *callbackQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of pending callbacks.
func (q *callbackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close has been called.
func (q *callbackQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close drops pending callbacks and wakes the waiter.
func (q *callbackQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	close(q.signal)
}
