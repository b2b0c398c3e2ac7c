package chronos

// taskRegistry owns the active and queued task lists and the round-robin
// cursor.
//
// INVARIANTS:
//   - cursor indexes the task that runs next (modulo len(active))
//   - removing a task before the cursor shifts the cursor back by one, so list
//     compaction never skips or repeats a task
//   - a queued task is only ever promoted, never run in place
type taskRegistry struct {
	active  []*task
	queued  []*queuedTask
	cursor  int
	nextRef TaskRef
}

func newTaskRegistry() *taskRegistry {
	return &taskRegistry{
		active: make([]*task, 0, 16),
	}
}

func (r *taskRegistry) newRef() TaskRef {
	r.nextRef++
	return r.nextRef
}

// add appends an active task. Names are not checked for uniqueness.
func (r *taskRegistry) add(name string, step StepFunc) *task {
	t := &task{ref: r.newRef(), name: name, step: step}
	r.active = append(r.active, t)
	return t
}

// queue appends a task that waits for parent. It fails when no active or
// queued task is named parent; the queued list is left untouched then.
func (r *taskRegistry) queue(name, parent string, step StepFunc) (*queuedTask, error) {
	if !r.known(parent) {
		return nil, NewUnknownParentError(name, parent)
	}
	q := &queuedTask{ref: r.newRef(), name: name, parent: parent, step: step}
	r.queued = append(r.queued, q)
	return q, nil
}

// known reports whether name matches an active or queued task.
func (r *taskRegistry) known(name string) bool {
	for _, t := range r.active {
		if t.name == name {
			return true
		}
	}
	for _, q := range r.queued {
		if q.name == name {
			return true
		}
	}
	return false
}

// remove removes the active tasks matched by sel and applies policy to the
// queued children of every removed name. It returns the removed tasks in
// list order.
func (r *taskRegistry) remove(sel Selector, policy QueuePolicy) []*task {
	if sel.kind == selectAll {
		return r.removeAll(policy)
	}

	var removed []*task
	shift := 0
	kept := r.active[:0]
	for i, t := range r.active {
		if sel.matches(t) {
			removed = append(removed, t)
			if i < r.cursor {
				shift++
			}
			continue
		}
		kept = append(kept, t)
	}
	// Nil out the tail so removed tasks can be collected.
	for i := len(kept); i < len(r.active); i++ {
		r.active[i] = nil
	}
	r.active = kept
	r.cursor -= shift

	for _, t := range removed {
		r.settleChildren(t.name, policy)
	}
	return removed
}

func (r *taskRegistry) removeAll(policy QueuePolicy) []*task {
	removed := r.active
	r.active = make([]*task, 0, cap(removed))
	r.cursor = 0

	switch policy {
	case QueuePromote:
		for _, q := range r.queued {
			r.active = append(r.active, q.promote())
		}
		r.queued = nil
	case QueueDiscard:
		r.queued = nil
	}
	return removed
}

// settleChildren applies policy to the tasks queued under parent.
func (r *taskRegistry) settleChildren(parent string, policy QueuePolicy) {
	if policy == QueueIgnore || len(r.queued) == 0 {
		return
	}
	kept := r.queued[:0]
	for _, q := range r.queued {
		if q.parent != parent {
			kept = append(kept, q)
			continue
		}
		if policy == QueuePromote {
			r.active = append(r.active, q.promote())
		}
	}
	for i := len(kept); i < len(r.queued); i++ {
		r.queued[i] = nil
	}
	r.queued = kept
}

// next returns the task under the cursor, or nil when nothing is active.
func (r *taskRegistry) next() *task {
	if len(r.active) == 0 {
		return nil
	}
	r.cursor %= len(r.active)
	return r.active[r.cursor]
}

// advance moves the cursor past t if t is still under it. When t was
// removed while running, the cursor already points at its successor.
func (r *taskRegistry) advance(t *task) {
	if r.cursor < len(r.active) && r.active[r.cursor] == t {
		r.cursor++
	}
}

func (r *taskRegistry) len() int {
	return len(r.active)
}

func (r *taskRegistry) queuedLen() int {
	return len(r.queued)
}

// names returns the active task names in list order.
func (r *taskRegistry) names() []string {
	out := make([]string, len(r.active))
	for i, t := range r.active {
		out[i] = t.name
	}
	return out
}

// queuedNames returns the queued task names in list order.
func (r *taskRegistry) queuedNames() []string {
	out := make([]string, len(r.queued))
	for i, q := range r.queued {
		out[i] = q.name
	}
	return out
}
