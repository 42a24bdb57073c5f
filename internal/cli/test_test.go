package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const harnessScenarios = "../harness/testdata/scenarios"

func TestTestCommandMissingArgs(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"/nonexistent/scenarios"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{t.TempDir()})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "No scenarios found.")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{t.TempDir()})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Data.Total)
}

func TestTestCommandHarnessScenarios(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{harnessScenarios, "--jobs", "2"})

	require.NoError(t, cmd.Execute())
	output := buf.String()
	assert.Contains(t, output, "✓ lethal_cascade")
	assert.Contains(t, output, "✓ runaway")
	assert.Contains(t, output, "Test Summary: 4 passed, 0 failed, 4 total")
	assert.Contains(t, output, "✓ All scenarios passed")
}

func TestTestCommandFilterJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{harnessScenarios, "--filter", "b*"})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Data TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "bounce", resp.Data.Scenarios[0].Name)
	assert.True(t, resp.Data.Scenarios[0].Pass)
}

func TestTestCommandInvalidJobs(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{harnessScenarios, "--jobs", "0"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

// copyScenario copies the lethal cascade scenario into a fresh scenarios
// directory.
func copyScenario(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(harnessScenarios, "lethal_cascade.yaml"))
	require.NoError(t, err)
	dir := t.TempDir()
	writeFile(t, dir, "lethal_cascade.yaml", string(data))
	return dir
}

func runTestCommand(t *testing.T, args ...string) (TestResult, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()

	var resp struct {
		Data  TestResult `json:"data"`
		Error *struct {
			Details TestResult `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	if resp.Error != nil {
		return resp.Error.Details, err
	}
	return resp.Data, err
}

func TestTestCommandGoldenLifecycle(t *testing.T) {
	dir := copyScenario(t)
	goldenPath := filepath.Join(dir, "golden", "lethal_cascade.golden")

	result, err := runTestCommand(t, dir)
	require.NoError(t, err)
	assert.Empty(t, result.Scenarios[0].Golden)

	result, err = runTestCommand(t, dir, "--update")
	require.NoError(t, err)
	assert.Equal(t, "updated", result.Scenarios[0].Golden)

	// The CLI renders golden files exactly like the harness package.
	written, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	expected, err := os.ReadFile("../harness/testdata/golden/lethal_cascade.golden")
	require.NoError(t, err)
	assert.Equal(t, string(expected), string(written))

	result, err = runTestCommand(t, dir)
	require.NoError(t, err)
	assert.Equal(t, "match", result.Scenarios[0].Golden)

	require.NoError(t, os.WriteFile(goldenPath, []byte("{}\n"), 0644))
	result, err = runTestCommand(t, dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, "mismatch", result.Scenarios[0].Golden)
	assert.Contains(t, result.Scenarios[0].Errors, "trace does not match golden file (run with --update to regenerate)")
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.yaml", `
name: broken
description: Expects a position the knight never reaches.
seed:
  - {id: 1, x: 1, y: 1}
steps:
  - actions:
      - {kind: move, id: 1, x: 2, y: 1}
assertions:
  - type: position
    id: 1
    x: 5
    y: 5
`)

	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "✗ broken")
	assert.Contains(t, buf.String(), "Expected: 1 at (5,5)")
	assert.Contains(t, buf.String(), "Test Summary: 0 passed, 1 failed, 1 total")
}

func TestTestCommandUnparseableScenario(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "typo.yaml", "name: typo\nassertion: []\n")

	result, err := runTestCommand(t, dir)
	require.Error(t, err)
	require.Len(t, result.Scenarios, 1)
	assert.Equal(t, "typo.yaml", result.Scenarios[0].Name)
	assert.Contains(t, result.Scenarios[0].Errors[0], "failed to load scenario")
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "")
	writeFile(t, dir, "b.yml", "")
	writeFile(t, dir, "notes.txt", "")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0755))
	writeFile(t, filepath.Join(dir, "golden"), "a.golden", "")

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yaml"), filepath.Join(dir, "b.yml")}, files)
}

func TestFindScenarioFilesWithFilter(t *testing.T) {
	files, err := findScenarioFiles(harnessScenarios, "*cascade")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(harnessScenarios, "lethal_cascade.yaml")}, files)

	_, err = findScenarioFiles(harnessScenarios, "[")
	assert.ErrorContains(t, err, "invalid filter pattern")
}

func TestFindScenarioFilesSubdirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "combat")
	require.NoError(t, os.MkdirAll(sub, 0755))
	writeFile(t, sub, "lethal.yaml", "")

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(sub, "lethal.yaml")}, files)
}

func TestGoldenFilePath(t *testing.T) {
	tests := []struct {
		dir  string
		file string
		want string
	}{
		{"scenarios", "scenarios/lethal.yaml", "scenarios/golden/lethal.golden"},
		{"scenarios", "scenarios/combat/lethal.yml", "scenarios/golden/combat/lethal.golden"},
	}
	for _, tt := range tests {
		assert.Equal(t, filepath.FromSlash(tt.want), goldenFilePath(filepath.FromSlash(tt.dir), filepath.FromSlash(tt.file)))
	}
}

func TestWatchLoop(t *testing.T) {
	dir := t.TempDir()
	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer watcher.Close()
	require.NoError(t, watcher.Add(dir))

	ignored := filepath.Join(dir, "ignored.yaml")
	reruns := make(chan struct{}, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		done <- watchLoop(ctx, watcher, 10*time.Millisecond, logger,
			func(path string) bool { return path == ignored },
			func() { reruns <- struct{}{} })
	}()

	writeFile(t, dir, "ignored.yaml", "x")
	writeFile(t, dir, "scenario.yaml", "x")

	select {
	case <-reruns:
	case <-time.After(5 * time.Second):
		t.Fatal("no rerun after a file change")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch loop did not stop")
	}
}

func TestTestHelpText(t *testing.T) {
	cmd := NewTestCommand(&RootOptions{})
	assert.Contains(t, cmd.Long, "golden")
	assert.NotNil(t, cmd.Flags().Lookup("watch"))
	assert.NotNil(t, cmd.Flags().Lookup("jobs"))
}
