package config

import (
	"bytes"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronos/internal/workload"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 80.0, cfg.Scheduler.Frequency)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Empty(t, cfg.Journal.Path)
	assert.Zero(t, cfg.Host.FrameRate)
	assert.Empty(t, cfg.Workload.Tasks)
	assert.Empty(t, cfg.Workload.Generators)
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := Parse([]byte(`
		scheduler: frequency: 30.5
		log: level: "warn"
	`), "inline.cue")
	require.NoError(t, err)

	assert.Equal(t, 30.5, cfg.Scheduler.Frequency)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format, "unset fields keep defaults")
}

func TestParse_NegativeFrequencyAllowed(t *testing.T) {
	cfg, err := Parse([]byte(`scheduler: frequency: -40`), "neg.cue")
	require.NoError(t, err)
	assert.Equal(t, -40.0, cfg.Scheduler.Frequency)
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"zero frequency", `scheduler: frequency: 0`},
		{"unknown level", `log: level: "trace"`},
		{"unknown format", `log: format: "xml"`},
		{"negative frame rate", `host: frame_rate: -1`},
		{"unknown field", `schedular: frequency: 10`},
		{"task without steps", `workload: tasks: [{name: "a"}]`},
		{"zero steps", `workload: tasks: [{name: "a", steps: 0}]`},
		{"empty generator id", `workload: generators: [{id: "", steps: 1}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "bad.cue")
			require.Error(t, err)

			var cerr *Error
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, ErrCodeSchema, cerr.Code)
		})
	}
}

func TestParse_SyntaxErrorHasPosition(t *testing.T) {
	_, err := Parse([]byte("scheduler: {\n\tfrequency: \n"), "broken.cue")
	require.Error(t, err)

	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, ErrCodeBuildFailed, cerr.Code)
	require.True(t, cerr.Pos.IsValid())
	assert.Equal(t, "broken.cue", cerr.Pos.Filename())
	assert.Contains(t, err.Error(), "broken.cue:")
}

func TestParse_InvalidWorkload(t *testing.T) {
	_, err := Parse([]byte(`
		workload: tasks: [
			{name: "edges", steps: 1, after: "nodes"},
			{name: "labels", steps: 1, cost: "soon"},
		]
	`), "wl.cue")
	require.Error(t, err)

	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, ErrCodeInvalidWorkload, cerr.Code)
	require.Len(t, cerr.Issues, 2)
	assert.Equal(t, workload.ErrUnknownAfter, cerr.Issues[0].Code)
	assert.Equal(t, workload.ErrInvalidCost, cerr.Issues[1].Code)
	assert.Contains(t, err.Error(), "workload.tasks[0].after")
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "run.cue"))
	require.NoError(t, err)

	assert.Equal(t, 60.0, cfg.Scheduler.Frequency)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 30.0, cfg.Host.FrameRate)

	require.Len(t, cfg.Workload.Tasks, 2)
	assert.Equal(t, workload.TaskSpec{Name: "nodes", Steps: 4, Cost: "2ms"}, cfg.Workload.Tasks[0])
	assert.Equal(t, "nodes", cfg.Workload.Tasks[1].After)

	require.Len(t, cfg.Workload.Generators, 1)
	assert.Equal(t, workload.GeneratorSpec{ID: "layout", Steps: 3, Rounds: 2}, cfg.Workload.Generators[0])
}

func TestLoad_Directory(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "pkg"))
	require.NoError(t, err)

	assert.Equal(t, 120.0, cfg.Scheduler.Frequency)
	assert.Equal(t, "runs.db", cfg.Journal.Path)
	require.Len(t, cfg.Workload.Tasks, 1)
	assert.Equal(t, "render", cfg.Workload.Tasks[0].Name)
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "missing.cue"))
	require.Error(t, err)

	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, ErrCodeNotFound, cerr.Code)
	assert.False(t, cerr.Pos.IsValid())
	assert.Contains(t, err.Error(), "E301: config not found")
}

func TestLogConfig_SlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LogConfig{Level: tt.level}.SlogLevel(), tt.level)
	}
}

func TestLogConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf, false)

	logger.Info("hidden")
	logger.Warn("shown", "task", "nodes")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"task":"nodes"`)

	buf.Reset()
	verbose := LogConfig{Level: "error"}.NewLogger(&buf, true)
	verbose.Debug("tick", "frame", 3)
	assert.Contains(t, buf.String(), "frame=3")
}
