package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronos/internal/journal"
	"github.com/roach88/chronos/internal/testutil"
	"github.com/roach88/chronos/internal/workload"
)

const smallConfig = `
scheduler: frequency: 60

workload: {
	tasks: [
		{name: "nodes", steps: 4, cost: "1ms"},
		{name: "edges", steps: 2, after: "nodes"},
	]
	generators: [
		{id: "layout", steps: 3, rounds: 2},
	]
}
`

// writeConfig writes a CUE config into a temp dir and returns its path.
func writeConfig(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.cue")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

// newTestRunOptions returns options with predictable run ids and free steps.
func newTestRunOptions(format string) *RunOptions {
	return &RunOptions{
		RootOptions: &RootOptions{Format: format},
		RunIDs:      testutil.NewFixedRunIDGenerator("test"),
		Burner:      workload.NopBurner{},
	}
}

func newBareCommand(out, errOut *bytes.Buffer) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd
}

func TestRunNonExistentConfig(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"/nonexistent/run.cue"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), ErrCodeNotFound)
}

func TestRunInvalidConfig(t *testing.T) {
	path := writeConfig(t, `scheduler: frequency: "fast"`)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid config")
	assert.Contains(t, buf.String(), ErrCodeInvalid)
}

func TestRunWithoutJournal(t *testing.T) {
	path := writeConfig(t, smallConfig)
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}

	err := runWorkload(newTestRunOptions("text"), path, newBareCommand(out, errOut))
	require.NoError(t, err)

	assert.Contains(t, out.String(), "✓ Run finished")
	assert.Contains(t, out.String(), "frames:")
	assert.NotContains(t, out.String(), "host frames")
}

func TestRunJournalsEvents(t *testing.T) {
	path := writeConfig(t, smallConfig)
	dbPath := filepath.Join(t.TempDir(), "chronos.db")
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}

	opts := newTestRunOptions("json")
	opts.Database = dbPath
	require.NoError(t, runWorkload(opts, path, newBareCommand(out, errOut)))

	var response struct {
		Status string    `json:"status"`
		RunID  string    `json:"run_id"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &response))
	assert.Equal(t, "ok", response.Status)
	assert.Equal(t, "test-0001", response.RunID)
	assert.Equal(t, "idle", response.Data.Stats.State)
	assert.Equal(t, 0, response.Data.Stats.Tasks)
	assert.Equal(t, 0, response.Data.Stats.Generators)
	assert.Greater(t, response.Data.Events, 0)

	assert.GreaterOrEqual(t, response.Data.Counts["start"], 1)
	assert.GreaterOrEqual(t, response.Data.Counts["killed"], 2, "nodes and its promoted child both finish")

	j, err := journal.Open(dbPath)
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	run, err := j.ReadRun(ctx, "test-0001")
	require.NoError(t, err)
	assert.Equal(t, "run.cue", run.Label)
	assert.Equal(t, 60.0, run.Frequency)
	assert.NotEmpty(t, run.WorkloadDigest)

	events, err := j.ReadEvents(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, events, response.Data.Events)

	stats, err := j.ReadStats(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, response.Data.Stats.Frames, stats.Frames)
}

func TestRunJournalPathFromConfig(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "from-config.db")
	path := writeConfig(t, smallConfig+"\njournal: path: \""+filepath.ToSlash(dbPath)+"\"\n")
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}

	require.NoError(t, runWorkload(newTestRunOptions("text"), path, newBareCommand(out, errOut)))

	_, err := os.Stat(dbPath)
	assert.NoError(t, err, "journal should be created at journal.path")
}

func TestRunTimeoutInterrupts(t *testing.T) {
	path := writeConfig(t, `
workload: tasks: [{name: "forever", steps: 100000, cost: "1ms"}]
`)
	dbPath := filepath.Join(t.TempDir(), "chronos.db")
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}

	opts := newTestRunOptions("text")
	opts.Database = dbPath
	opts.Timeout = 50 * time.Millisecond
	opts.Burner = workload.BurnFunc(time.Sleep)

	start := time.Now()
	err := runWorkload(opts, path, newBareCommand(out, errOut))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second, "run should stop soon after the timeout")
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "run interrupted")
	assert.Contains(t, out.String(), ErrCodeInterrupted)

	// The interrupted run is still journaled, ending with one stop.
	j, err := journal.Open(dbPath)
	require.NoError(t, err)
	defer j.Close()

	counts, err := j.CountEvents(context.Background(), "test-0001")
	require.NoError(t, err)
	assert.Equal(t, 1, counts["start"])
	assert.Equal(t, 1, counts["stop"])
	assert.Zero(t, counts["killed"])

	stats, err := j.ReadStats(context.Background(), "test-0001")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Tasks)
}

func TestRunHostTicker(t *testing.T) {
	path := writeConfig(t, `
host: frame_rate: 500
workload: tasks: [{name: "slow", steps: 20, cost: "5ms"}]
`)
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}

	opts := newTestRunOptions("json")
	opts.Burner = workload.BurnFunc(time.Sleep)
	require.NoError(t, runWorkload(opts, path, newBareCommand(out, errOut)))

	var response struct {
		Data RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &response))
	assert.Equal(t, "idle", response.Data.Stats.State)
	assert.Greater(t, response.Data.HostFrames, 0)
}

func TestRunResultString(t *testing.T) {
	r := RunResult{Config: "run.cue", Events: 12, HostFrames: 3}
	r.Stats.Frames = 4

	s := r.String()
	assert.Contains(t, s, "Run finished: run.cue")
	assert.Contains(t, s, "frames:     4")
	assert.Contains(t, s, "events:     12")
	assert.Contains(t, s, "host frames: 3")
}

func TestRunHelpText(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "frame budget")
	assert.Contains(t, output, "--db")
	assert.Contains(t, output, "--timeout")
}
