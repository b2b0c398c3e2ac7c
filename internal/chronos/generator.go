package chronos

// generator is a self-restarting task gated by a continuation predicate.
type generator struct {
	id      string
	step    StepFunc
	cont    func() bool
	running bool
	marked  bool
	ref     TaskRef // task admitted for the current wave
}

// generatorRotation admits generators into the task list in waves.
//
// Every generator of a wave is added at once and runs interleaved with the
// others. The next wave is only admitted when every generator of the current
// one has completed its run.
//
// INVARIANTS:
//   - admitting is true between a wave start and its deferred admission;
//     no other wave can start in that window, but completions are still
//     applied so the admission sees every idle generator
//   - a generator is running iff its task was admitted and has not completed
type generatorRotation struct {
	s         *Scheduler
	order     []string // insertion order, for deterministic waves
	byID      map[string]*generator
	admitting bool
}

func newGeneratorRotation(s *Scheduler) *generatorRotation {
	g := &generatorRotation{
		s:    s,
		byID: make(map[string]*generator),
	}
	s.bus.Subscribe(EventKilled, g.onKilled)
	return g
}

// AddGenerator registers a generator whose step runs as a task named id.
// When the task completes, cont decides whether the generator joins the
// next wave. Adding an id that already exists is a no-op. If no generator is
// running, a new wave is started.
func (s *Scheduler) AddGenerator(id string, step StepFunc, cont func() bool) error {
	return s.gens.add(id, step, cont)
}

// RemoveGenerator removes a generator. A running generator finishes its
// current run first and is then dropped without consulting its continuation.
func (s *Scheduler) RemoveGenerator(id string) {
	s.gens.remove(id)
}

// StartGenerators admits the next wave: every generator not already
// running. With no generators it publishes stopgenerators.
func (s *Scheduler) StartGenerators() {
	s.gens.start()
}

// GeneratorIDs returns the generator ids in insertion order.
func (s *Scheduler) GeneratorIDs() []string {
	out := make([]string, len(s.gens.order))
	copy(out, s.gens.order)
	return out
}

func (g *generatorRotation) add(id string, step StepFunc, cont func() bool) error {
	if step == nil || cont == nil {
		return NewInvalidTaskError(id)
	}
	if _, ok := g.byID[id]; ok {
		return nil
	}
	g.byID[id] = &generator{id: id, step: step, cont: cont}
	g.order = append(g.order, id)
	g.s.logger.Debug("generator added", "generator", id)

	if g.runningCount() == 0 {
		g.start()
	}
	return nil
}

func (g *generatorRotation) remove(id string) {
	gen, ok := g.byID[id]
	if !ok {
		return
	}
	if gen.running {
		gen.marked = true
		g.s.logger.Debug("generator marked for removal", "generator", id)
		return
	}
	g.delete(id)
}

// start publishes startgenerators and defers the admission of the wave.
func (g *generatorRotation) start() {
	if g.admitting {
		return
	}
	if len(g.byID) == 0 {
		g.s.emit(EventStopGenerators, nil)
		return
	}
	g.s.emit(EventStartGenerators, nil)
	g.admitting = true
	g.s.InsertFrame(g.admit)
}

// admit adds every idle generator's task at once and runs the scheduler.
func (g *generatorRotation) admit() {
	g.admitting = false
	if len(g.byID) == 0 {
		g.s.emit(EventStopGenerators, nil)
		return
	}

	admitted := 0
	for _, id := range g.order {
		gen := g.byID[id]
		if gen.running {
			continue
		}
		// step is non-nil, checked in add.
		ref, _ := g.s.AddTask(gen.step, id, false)
		gen.ref = ref
		gen.running = true
		admitted++
	}
	g.s.logger.Debug("generator wave admitted", "generators", admitted)
	g.s.RunTasks()
}

// onKilled is the completion handler.
func (g *generatorRotation) onKilled(ev Event) {
	if ev.Task == nil {
		return
	}
	gen, ok := g.byID[ev.Task.Name]
	if !ok || !gen.running || gen.ref != ev.Task.Ref {
		return
	}

	if gen.marked || !gen.cont() {
		g.delete(gen.id)
	} else {
		gen.running = false
	}

	// A pending admission picks up the now idle generator.
	if g.runningCount() == 0 && !g.admitting {
		g.start()
	}
}

// detach handles generator tasks removed through RemoveTask. Their run was
// cancelled rather than completed, so the generators are dropped.
func (g *generatorRotation) detach(removed []*task) {
	detached := false
	for _, t := range removed {
		gen, ok := g.byID[t.name]
		if !ok || !gen.running || gen.ref != t.ref {
			continue
		}
		g.delete(gen.id)
		detached = true
	}
	if detached && g.runningCount() == 0 {
		g.start()
	}
}

func (g *generatorRotation) delete(id string) {
	delete(g.byID, id)
	for i, v := range g.order {
		if v == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	g.s.logger.Debug("generator deleted", "generator", id)
}

func (g *generatorRotation) runningCount() int {
	n := 0
	for _, gen := range g.byID {
		if gen.running {
			n++
		}
	}
	return n
}

func (g *generatorRotation) len() int {
	return len(g.byID)
}
