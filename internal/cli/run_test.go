package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/worldtx/internal/engine"
	"github.com/roach88/worldtx/internal/store"
	"github.com/roach88/worldtx/internal/testutil"
)

// The damage destroys 2 through the lethal rule, freeing (2,2) for the
// knight; the create then finds the cell taken.
const lethalActions = `
seed:
  - {id: 1, x: 1, y: 1, label: knight}
  - {id: 2, x: 2, y: 2, health: 3}
steps:
  - - {kind: damage, id: 2, amount: 5}
    - {kind: move, id: 1, x: 3, y: 1}
  - - {kind: move, id: 1, x: 2, y: 2}
    - {kind: create, id: 3, x: 2, y: 2}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// recordSession runs lethalActions into a new database with sequential
// cascade tokens and returns the database path.
func recordSession(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "world.db")
	actions := writeFile(t, dir, "actions.yaml", lethalActions)

	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})

	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "text"},
		Database:    dbPath,
		Cascades:    testutil.NewSequentialGenerator(""),
	}
	require.NoError(t, runActions(opts, actions, cmd))
	return dbPath
}

func TestRunMissingArgs(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestRunWithoutDatabase(t *testing.T) {
	actions := writeFile(t, t.TempDir(), "actions.yaml", lethalActions)

	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{actions})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.True(t, strings.HasPrefix(output, strings.Join([]string{
		"created 1 at (1,1)",
		"created 2 at (2,2)",
		"damaged 2 health=-2",
		"moved 1 (1,1) -> (3,1)",
		"destroyed 2 at (2,2)",
		"moved 1 (3,1) -> (2,2)",
		"rejected 3",
		"processed 5 actions (4 accepted, 1 rejected), 0 pending",
	}, "\n")), output)
	assert.Contains(t, output, "seq 5 digest ")
	assert.NotContains(t, output, "session")
}

func TestRunJSON(t *testing.T) {
	actions := writeFile(t, t.TempDir(), "actions.yaml", lethalActions)

	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{actions})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 5, resp.Data.Processed)
	assert.Equal(t, 4, resp.Data.Accepted)
	assert.Equal(t, 1, resp.Data.Rejected)
	assert.Equal(t, int64(5), resp.Data.Seq)
	assert.Len(t, resp.Data.Events, 7)
	assert.Len(t, resp.Data.Digest, 64)
}

func TestRunRecordsSession(t *testing.T) {
	dbPath := recordSession(t)
	ctx := context.Background()

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	sess, err := st.LatestSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sess.StartedSeq)
	assert.Contains(t, string(sess.Config), `"exclusive_cells":true`)

	seed, err := st.ReadSnapshot(ctx, sess.ID, SeedSnapshot)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seed.Seq)

	final, err := st.ReadSnapshot(ctx, sess.ID, FinalSnapshot)
	require.NoError(t, err)
	assert.Equal(t, int64(5), final.Seq)

	journal, err := st.ReadJournal(ctx, sess.ID, "")
	require.NoError(t, err)
	require.Len(t, journal, 5)

	var kinds []string
	var batches []int
	for _, e := range journal {
		kinds = append(kinds, e.Kind)
		batches = append(batches, e.Batch)
	}
	assert.Equal(t, []string{"damage", "move", "destroy", "move", "create"}, kinds)
	assert.Equal(t, []int{1, 1, 1, 2, 2}, batches)
	assert.False(t, journal[4].Accepted)

	roots, err := st.RootActions(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, roots, 4)
}

func TestRunContinuesSequence(t *testing.T) {
	dbPath := recordSession(t)
	actions := writeFile(t, t.TempDir(), "actions.yaml", lethalActions)

	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", dbPath, actions})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "seq 10 digest ")

	ctx := context.Background()
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	sessions, err := st.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	latest, err := st.LatestSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), latest.StartedSeq)
	assert.Contains(t, buf.String(), "session "+latest.ID)

	journal, err := st.ReadJournal(ctx, latest.ID, "")
	require.NoError(t, err)
	require.Len(t, journal, 5)
	assert.Equal(t, int64(6), journal[0].Seq)
	assert.Equal(t, int64(10), journal[4].Seq)
}

func TestRunStepsExceeded(t *testing.T) {
	dir := t.TempDir()
	actions := writeFile(t, dir, "actions.yaml", lethalActions)
	cfg := writeFile(t, dir, "world.cue", "max_steps: 1\n")

	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfg, actions})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	output := buf.String()
	assert.Contains(t, output, "processed 1 actions (1 accepted, 0 rejected), 2 pending")
	assert.Contains(t, output, "stopped: ")
	assert.NotContains(t, output, "moved 1")
}

func TestRunStepsExceededJSON(t *testing.T) {
	dir := t.TempDir()
	actions := writeFile(t, dir, "actions.yaml", lethalActions)
	cfg := writeFile(t, dir, "world.cue", "max_steps: 1\n")

	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfg, actions})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_STEPS_EXCEEDED", resp.Error.Code)
}

func TestRunInvalidActions(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "unknown field",
			content: "seed: []\nstep: []\n",
			wantErr: "field step not found",
		},
		{
			name:    "duplicate seed",
			content: "seed:\n  - {id: 1}\n  - {id: 1}\nsteps: []\n",
			wantErr: "duplicate id 1",
		},
		{
			name:    "empty batch",
			content: "steps:\n  - []\n",
			wantErr: "steps[0]: empty batch",
		},
		{
			name:    "nan seed",
			content: "seed:\n  - {id: 1, x: .nan, y: 1}\nsteps: []\n",
			wantErr: "seed[0]: invalid action: entity 1 position (NaN,1) is not finite",
		},
		{
			name:    "infinite move",
			content: "steps:\n  - - {kind: move, id: 1, x: .inf, y: 1}\n",
			wantErr: "steps[0][0]",
		},
		{
			name:    "unknown kind",
			content: "steps:\n  - - {kind: teleport, id: 1}\n",
			wantErr: `unknown kind "teleport"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actions := writeFile(t, t.TempDir(), "actions.yaml", tt.content)

			buf := &bytes.Buffer{}
			cmd := NewRunCommand(&RootOptions{Format: "text"})
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs([]string{actions})

			err := cmd.Execute()
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRunMissingActionsFile(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "missing.yaml")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to read actions file")
}

func TestParsePoint(t *testing.T) {
	p, err := parsePoint("3, 4.5", 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4.5}, p)

	_, err = parsePoint("3", 2)
	assert.ErrorContains(t, err, "expected 2 comma-separated numbers")

	_, err = parsePoint("a,b", 2)
	assert.ErrorContains(t, err, "invalid coordinate")

	_, err = parsePoint("NaN,1", 2)
	assert.ErrorContains(t, err, "not finite")
}

func TestRunHelpText(t *testing.T) {
	cmd := NewRunCommand(&RootOptions{})
	assert.Contains(t, cmd.Long, "Exit codes:")
	assert.Contains(t, cmd.Long, "--db")
}

func TestRunSharedCascade(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "world.db")
	actions := writeFile(t, dir, "actions.yaml", lethalActions)

	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "text"},
		Database:    dbPath,
		Cascades:    testutil.NewFixedCascadeGenerator("shared"),
	}
	require.NoError(t, runActions(opts, actions, cmd))

	ctx := context.Background()
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	sess, err := st.LatestSession(ctx)
	require.NoError(t, err)
	cascades, err := st.ListCascades(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []store.CascadeSummary{
		{Cascade: "shared", FirstSeq: 1, Actions: 5, Accepted: 4, MaxDepth: 1},
	}, cascades)
}

func TestRunVerify(t *testing.T) {
	actions := writeFile(t, t.TempDir(), "actions.yaml", lethalActions)

	buf := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--verify", actions})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "processed 5 actions (4 accepted, 1 rejected), 0 pending")
}

func TestDrainErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"steps", fmt.Errorf("drain 1: %w", &engine.StepsExceededError{Cascade: "c", Steps: 2, Limit: 1}), "E_STEPS_EXCEEDED"},
		{"index", fmt.Errorf("drain 1: %w", engine.NewIndexDivergedError("c", 3, assert.AnError)), "E_INDEX_DIVERGED"},
		{"other", assert.AnError, "E_DRAIN_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, drainErrorCode(tt.err))
		})
	}
}
