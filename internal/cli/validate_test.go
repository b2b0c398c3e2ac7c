package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronos/internal/config"
)

func executeValidate(t *testing.T, format string, path string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: format}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{path})
	err := cmd.Execute()
	return buf.String(), err
}

func TestValidateValidConfig(t *testing.T) {
	output, err := executeValidate(t, "text", filepath.Join("..", "config", "testdata", "run.cue"))
	require.NoError(t, err)
	assert.Contains(t, output, "✓ Config valid (2 task(s), 1 generator(s), 60 Hz)")
}

func TestValidateValidConfigJSON(t *testing.T) {
	output, err := executeValidate(t, "json", filepath.Join("..", "config", "testdata", "run.cue"))
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 2, resp.Data.Tasks)
	assert.Equal(t, 1, resp.Data.Generators)
	assert.Equal(t, 60.0, resp.Data.Frequency)
}

func TestValidatePackageDirectory(t *testing.T) {
	output, err := executeValidate(t, "text", filepath.Join("..", "config", "testdata", "pkg"))
	require.NoError(t, err)
	assert.Contains(t, output, "✓ Config valid")
}

func TestValidateNonExistentPath(t *testing.T) {
	output, err := executeValidate(t, "text", "/nonexistent/run.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Contains(t, output, "not found")
}

func TestValidateSchemaViolation(t *testing.T) {
	path := writeConfig(t, `log: level: "loud"`)

	output, err := executeValidate(t, "text", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed with 1 error(s)")
	assert.Contains(t, output, "✗ Validation failed")
	assert.Contains(t, output, config.ErrCodeSchema)
}

func TestValidateSyntaxErrorHasLine(t *testing.T) {
	path := writeConfig(t, "scheduler: {\n\tfrequency: 60\n\tlog: [\n}\n")

	output, err := executeValidate(t, "json", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 1)
	assert.Equal(t, config.ErrCodeBuildFailed, resp.Data.Errors[0].Code)
	assert.Greater(t, resp.Data.Errors[0].Line, 0)
}

func TestValidateWorkloadIssues(t *testing.T) {
	path := writeConfig(t, `
workload: tasks: [
	{name: "a", steps: 1, after: "missing"},
	{name: "b", steps: 1, cost: "soon"},
]
`)

	output, err := executeValidate(t, "json", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Data  ValidationResult `json:"data"`
		Error *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	require.Len(t, resp.Data.Errors, 2)

	assert.Equal(t, "E204", resp.Data.Errors[0].Code)
	assert.Equal(t, "workload.tasks[0].after", resp.Data.Errors[0].Field)
	assert.Equal(t, "E203", resp.Data.Errors[1].Code)
	assert.Equal(t, "workload.tasks[1].cost", resp.Data.Errors[1].Field)

	require.NotNil(t, resp.Error)
	assert.Equal(t, "E204", resp.Error.Code)
}

func TestValidateWorkloadIssuesText(t *testing.T) {
	path := writeConfig(t, `workload: tasks: [{name: "a", steps: 1, after: "missing"}]`)

	output, err := executeValidate(t, "text", path)
	require.Error(t, err)
	assert.Contains(t, output, "workload.tasks[0].after")
	assert.Contains(t, output, "E204:")
}

func TestIssuesFrom(t *testing.T) {
	issues := issuesFrom(&config.Error{Code: config.ErrCodeDecode, Message: "bad"})
	require.Len(t, issues, 1)
	assert.Equal(t, ValidationIssue{Code: config.ErrCodeDecode, Message: "bad"}, issues[0])
}

func TestValidateHelpText(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "#Config schema")
	assert.Contains(t, buf.String(), "Exit codes")
}
