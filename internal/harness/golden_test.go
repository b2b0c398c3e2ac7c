package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGoldenScenarios runs every scenario under testdata and compares its
// trace with testdata/golden/<name>.golden. Regenerate with -update.
func TestGoldenScenarios(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)
			require.Equal(t, name, scenario.Name, "file name and scenario name must agree")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestSnapshot_IsCanonical(t *testing.T) {
	result := NewResult()
	result.addEvent("start", "", 1)
	result.addStep("A", 1, 2)
	result.addEvent("killed", "A", 3)

	data, err := Snapshot("tiny", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"tiny","trace":[{"seq":1,"type":"start"},{"call":1,"seq":2,"task":"A","type":"step"},{"seq":3,"task":"A","type":"killed"}]}`,
		string(data))
}

func TestSnapshot_Deterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "generator_wave.yaml"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := Snapshot(scenario.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGoldenFilesHaveNoTrailingNewline(t *testing.T) {
	files, err := filepath.Glob(filepath.Join(GoldenDir, "*.golden"))
	require.NoError(t, err)
	for _, file := range files {
		data, err := os.ReadFile(file)
		require.NoError(t, err)
		assert.False(t, strings.HasSuffix(string(data), "\n"), file)
	}
}
