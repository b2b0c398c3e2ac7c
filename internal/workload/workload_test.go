package workload

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronos/internal/chronos"
	"github.com/roach88/chronos/internal/testutil"
)

type stepCall struct {
	name   string
	call   int
	result chronos.StepResult
}

func newScheduler(t *testing.T) (*chronos.Scheduler, *chronos.ManualDeferrer, *testutil.FakeClock) {
	t.Helper()
	d := chronos.NewManualDeferrer()
	clock := testutil.NewFakeClock()
	s := chronos.New(d,
		chronos.WithClock(clock),
		chronos.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return s, d, clock
}

func TestInstall_TasksAndGenerators(t *testing.T) {
	s, d, clock := newScheduler(t)
	var calls []stepCall

	w := Workload{
		Tasks: []TaskSpec{
			{Name: "layout", Steps: 2, Cost: "1ms"},
			{Name: "render", Steps: 1, After: "layout"},
		},
		Generators: []GeneratorSpec{
			{ID: "pulse", Steps: 2, Rounds: 2},
		},
	}
	hooks := Hooks{OnStep: func(name string, call int, r chronos.StepResult) {
		calls = append(calls, stepCall{name, call, r})
	}}

	inst, err := Install(s, w, BurnFunc(clock.Advance), hooks)
	require.NoError(t, err)
	assert.Len(t, inst.Tasks, 2)
	assert.Equal(t, []string{"pulse"}, inst.Generators)
	assert.Equal(t, 1, s.TasksCount())
	assert.Equal(t, 1, s.QueuedTasksCount())

	s.RunTasks()
	d.Drain(100)

	var render, pulse, layout []int
	for _, c := range calls {
		switch c.name {
		case "render":
			render = append(render, c.call)
		case "pulse":
			pulse = append(pulse, c.call)
		case "layout":
			layout = append(layout, c.call)
		}
	}
	assert.Equal(t, []int{1, 2}, layout)
	assert.Equal(t, []int{1}, render)
	assert.Equal(t, []int{1, 2, 1, 2}, pulse, "two rounds of two steps")
	assert.Equal(t, 2*time.Millisecond, clock.Elapsed())
	assert.Equal(t, 0, s.TasksCount())
	assert.Empty(t, s.GeneratorIDs())
}

func TestInstall_RejectsInvalidWorkload(t *testing.T) {
	s, _, _ := newScheduler(t)

	_, err := Install(s, Workload{Tasks: []TaskSpec{{Name: "a", Steps: 0}}}, nil, Hooks{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrInvalidSteps)
	assert.Equal(t, 0, s.TasksCount())
}

func TestInstallTask_QueuesBehindExistingTask(t *testing.T) {
	s, _, _ := newScheduler(t)

	_, err := s.AddTask(Countdown("draw", 1, 0, NopBurner{}, Hooks{}), "draw", false)
	require.NoError(t, err)

	ref, err := InstallTask(s, TaskSpec{Name: "labels", Steps: 1, After: "draw"}, nil, Hooks{})
	require.NoError(t, err)
	assert.NotZero(t, ref)
	assert.Equal(t, []string{"labels"}, s.QueuedTaskNames())

	_, err = InstallTask(s, TaskSpec{Name: "orphan", Steps: 1, After: "missing"}, nil, Hooks{})
	require.Error(t, err)
	assert.True(t, chronos.IsUnknownParentError(err))
}

func TestInstallTask_InvalidCost(t *testing.T) {
	s, _, _ := newScheduler(t)

	_, err := InstallTask(s, TaskSpec{Name: "a", Steps: 1, Cost: "-1ms"}, nil, Hooks{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid cost "-1ms"`)
	assert.Equal(t, 0, s.TasksCount())
}

func TestInstallGenerator_DefaultsToOneRound(t *testing.T) {
	s, d, _ := newScheduler(t)
	runs := 0

	err := InstallGenerator(s, GeneratorSpec{ID: "g", Steps: 1}, nil, Hooks{
		OnStep: func(string, int, chronos.StepResult) { runs++ },
	})
	require.NoError(t, err)

	d.Drain(100)
	assert.Equal(t, 1, runs)
	assert.Empty(t, s.GeneratorIDs())
}

func TestCountdown(t *testing.T) {
	step := Countdown("c", 3, 0, NopBurner{}, Hooks{})
	assert.Equal(t, chronos.Continue, step())
	assert.Equal(t, chronos.Continue, step())
	assert.Equal(t, chronos.Done, step())
	assert.Equal(t, chronos.Done, step())
}

func TestCycle(t *testing.T) {
	var got []int
	step := Cycle("g", 2, 0, NopBurner{}, Hooks{OnStep: func(_ string, call int, _ chronos.StepResult) {
		got = append(got, call)
	}})

	assert.Equal(t, chronos.Continue, step())
	assert.Equal(t, chronos.Done, step())
	assert.Equal(t, chronos.Continue, step())
	assert.Equal(t, chronos.Done, step())
	assert.Equal(t, []int{1, 2, 1, 2}, got)
}

func TestRounds(t *testing.T) {
	cont := Rounds(3)
	assert.True(t, cont())
	assert.True(t, cont())
	assert.False(t, cont())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		w     Workload
		codes []string
	}{
		{
			name: "valid",
			w: Workload{
				Tasks:      []TaskSpec{{Name: "a", Steps: 1}, {Name: "b", Steps: 2, After: "a", Cost: "3ms"}},
				Generators: []GeneratorSpec{{ID: "g", Steps: 1}},
			},
		},
		{
			name:  "empty name and zero steps",
			w:     Workload{Tasks: []TaskSpec{{}}},
			codes: []string{ErrEmptyName, ErrInvalidSteps},
		},
		{
			name:  "bad cost",
			w:     Workload{Tasks: []TaskSpec{{Name: "a", Steps: 1, Cost: "fast"}}},
			codes: []string{ErrInvalidCost},
		},
		{
			name:  "negative cost",
			w:     Workload{Generators: []GeneratorSpec{{ID: "g", Steps: 1, Cost: "-1ms"}}},
			codes: []string{ErrInvalidCost},
		},
		{
			name:  "after declared later",
			w:     Workload{Tasks: []TaskSpec{{Name: "b", Steps: 1, After: "a"}, {Name: "a", Steps: 1}}},
			codes: []string{ErrUnknownAfter},
		},
		{
			name:  "after itself",
			w:     Workload{Tasks: []TaskSpec{{Name: "a", Steps: 1, After: "a"}}},
			codes: []string{ErrSelfDependency},
		},
		{
			name:  "duplicate generator",
			w:     Workload{Generators: []GeneratorSpec{{ID: "g", Steps: 1}, {ID: "g", Steps: 1, Rounds: -1}}},
			codes: []string{ErrDuplicateID, ErrInvalidRounds},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(tt.w)
			var codes []string
			for _, e := range errs {
				codes = append(codes, e.Code)
			}
			assert.Equal(t, tt.codes, codes)
		})
	}
}

func TestDrawPasses(t *testing.T) {
	w := DrawPasses("main", 250, 1000, 100, "1ms")

	require.Len(t, w.Tasks, 3)
	assert.Equal(t, TaskSpec{Name: "main_nodes", Steps: 3, Cost: "1ms"}, w.Tasks[0])
	assert.Equal(t, TaskSpec{Name: "main_edges", Steps: 10, Cost: "1ms", After: "main_nodes"}, w.Tasks[1])
	assert.Equal(t, TaskSpec{Name: "main_labels", Steps: 3, Cost: "1ms", After: "main_edges"}, w.Tasks[2])
	assert.Empty(t, Validate(w))

	empty := DrawPasses("x", 0, 0, 0, "")
	assert.Equal(t, 1, empty.Tasks[0].Steps)
}

func TestDrawPasses_RunInOrder(t *testing.T) {
	s, d, _ := newScheduler(t)
	var order []string

	_, err := Install(s, DrawPasses("g", 2, 4, 2, ""), NopBurner{}, Hooks{
		OnStep: func(name string, _ int, _ chronos.StepResult) { order = append(order, name) },
	})
	require.NoError(t, err)
	s.RunTasks()
	d.Drain(0)

	assert.Equal(t, []string{"g_nodes", "g_edges", "g_edges", "g_labels"}, order)
}

func TestSpinBurner(t *testing.T) {
	start := time.Now()
	SpinBurner{}.Burn(2 * time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 2*time.Millisecond)
	SpinBurner{}.Burn(0)
}

func TestDigest(t *testing.T) {
	w := Workload{
		Tasks:      []TaskSpec{{Name: "nodes", Steps: 3, Cost: "2ms"}, {Name: "edges", Steps: 1, After: "nodes"}},
		Generators: []GeneratorSpec{{ID: "layout", Steps: 2, Rounds: 4}},
	}

	a, err := Digest(w)
	require.NoError(t, err)
	assert.Len(t, a, 64)

	b, err := Digest(w)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	w.Tasks[0].Steps = 4
	c, err := Digest(w)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	empty, err := Digest(Workload{})
	require.NoError(t, err)
	assert.NotEqual(t, a, empty)
}
