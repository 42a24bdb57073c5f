package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/worldtx/internal/config"
	"github.com/roach88/worldtx/internal/engine"
	"github.com/roach88/worldtx/internal/gridworld"
	"github.com/roach88/worldtx/internal/store"
	"github.com/roach88/worldtx/internal/world"
)

// ActionsFile is the input of the run command.
//
//	seed:
//	  - {id: 1, x: 1, y: 1, label: knight}
//	steps:
//	  - [{kind: move, id: 1, x: 2, y: 1}]
//	  - [{kind: damage, id: 1, amount: 3}, {kind: heal, id: 1, amount: 1}]
//
// Each step is enqueued as a batch and drained before the next.
type ActionsFile struct {
	Seed  []gridworld.Entity   `yaml:"seed"`
	Steps [][]gridworld.Action `yaml:"steps"`
}

// loadActionsFile reads and validates an actions file. Unknown fields are
// rejected.
func loadActionsFile(path string) (*ActionsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read actions file: %w", err)
	}

	var file ActionsFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	seen := make(map[world.EntityID]bool, len(file.Seed))
	for i, e := range file.Seed {
		if seen[e.ID] {
			return nil, fmt.Errorf("seed[%d]: duplicate id %d", i, e.ID)
		}
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("seed[%d]: %w", i, err)
		}
		seen[e.ID] = true
	}
	for i, step := range file.Steps {
		if len(step) == 0 {
			return nil, fmt.Errorf("steps[%d]: empty batch", i)
		}
		for j, a := range step {
			if err := a.Validate(); err != nil {
				return nil, fmt.Errorf("steps[%d][%d]: %w", i, j, err)
			}
		}
	}
	return &file, nil
}

// loadConfig loads a CUE config, or the defaults when path is empty.
func loadConfig(path string) (config.World, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// openExistingStore opens a database that must already exist. Read-only
// commands use it so that a typo does not create an empty database.
func openExistingStore(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
		}
		return nil, WrapExitError(ExitCommandError, "failed to stat database", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// resolveSession returns the session with id, or the latest one if id is
// empty.
func resolveSession(ctx context.Context, st *store.Store, id string) (store.Session, error) {
	var (
		sess store.Session
		err  error
	)
	if id == "" {
		sess, err = st.LatestSession(ctx)
	} else {
		sess, err = st.ReadSession(ctx, id)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Session{}, WrapExitError(ExitCommandError, "no such session", err)
		}
		return store.Session{}, WrapExitError(ExitCommandError, "failed to read session", err)
	}
	return sess, nil
}

// sessionWorld rebuilds the world a session ran with. A non-empty
// override config path replaces the recorded configuration.
func sessionWorld(sess store.Session, override string, logger *slog.Logger) (*gridworld.World, error) {
	var cfg config.World
	if override != "" {
		loaded, err := config.Load(override)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = loaded
	} else if err := json.Unmarshal(sess.Config, &cfg); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to decode session config", err)
	}

	w, err := gridworld.New(cfg, gridworld.WithLogger(logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build world", err)
	}
	return w, nil
}

// journalEntries converts trace records of gridworld actions.
func journalEntries(session string, recs []engine.Record) ([]store.JournalEntry, error) {
	entries := make([]store.JournalEntry, 0, len(recs))
	for _, rec := range recs {
		a, ok := rec.Action.(gridworld.Action)
		if !ok {
			return nil, fmt.Errorf("seq %d: unexpected action type %T", rec.Seq, rec.Action)
		}
		e, err := store.EntryFromRecord(session, rec, string(a.Kind), a.ID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// journalAction decodes the action stored in a journal entry.
func journalAction(e store.JournalEntry) (gridworld.Action, error) {
	var a gridworld.Action
	if err := json.Unmarshal(e.Payload, &a); err != nil {
		return gridworld.Action{}, fmt.Errorf("decode action seq=%d: %w", e.Seq, err)
	}
	return a, nil
}

// parsePoint parses n comma-separated coordinates, e.g. "3,4".
func parsePoint(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d comma-separated numbers, got %q", n, s)
	}
	out := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid coordinate %q: %w", p, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("invalid coordinate %q: not finite", p)
		}
		out[i] = v
	}
	return out, nil
}

// commandContext returns the command's context, or Background when the
// command runs without one.
func commandContext(cmd interface{ Context() context.Context }) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
