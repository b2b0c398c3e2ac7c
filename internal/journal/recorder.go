package journal

import (
	"context"
	"fmt"

	"github.com/roach88/chronos/internal/chronos"
)

// Recorder buffers every event published on a bus until Flush.
//
// Thread-safety: none. It records on the scheduler's goroutine and must be
// flushed there too (or after the loop has returned).
type Recorder struct {
	bus     *chronos.EventBus
	sub     chronos.SubscriptionID
	pending []EventRecord
	total   int
}

// NewRecorder subscribes to every event type on bus.
func NewRecorder(bus *chronos.EventBus) *Recorder {
	r := &Recorder{bus: bus}
	r.sub = bus.SubscribeAll(r.record)
	return r
}

func (r *Recorder) record(ev chronos.Event) {
	rec := EventRecord{
		Seq:   ev.Seq,
		Type:  ev.Type.String(),
		Frame: ev.Frame,
	}
	if ev.Task != nil {
		rec.TaskName = ev.Task.Name
		rec.TaskRef = uint64(ev.Task.Ref)
	}
	r.pending = append(r.pending, rec)
	r.total++
}

// Pending returns the number of buffered events.
func (r *Recorder) Pending() int {
	return len(r.pending)
}

// Total returns how many events were recorded since creation.
func (r *Recorder) Total() int {
	return r.total
}

// Flush writes the buffered events to runID and clears the buffer.
// On error the buffer is kept so the flush can be retried.
func (r *Recorder) Flush(ctx context.Context, j *Journal, runID string) error {
	if err := j.WriteEvents(ctx, runID, r.pending); err != nil {
		return fmt.Errorf("flush recorder: %w", err)
	}
	r.pending = r.pending[:0]
	return nil
}

// Close stops recording. Buffered events are kept until Flush.
func (r *Recorder) Close() error {
	return r.bus.Unsubscribe(r.sub)
}

// StatsFrom converts scheduler counters to journal stats.
func StatsFrom(st chronos.Stats) RunStats {
	return RunStats{
		Frames:        st.Frames,
		FPS:           st.FPS,
		ExecutionTime: st.ExecutionTime,
		Tasks:         st.Tasks,
		Queued:        st.Queued,
		Generators:    st.Generators,
	}
}
