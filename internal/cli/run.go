package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/worldtx/internal/engine"
	"github.com/roach88/worldtx/internal/gridworld"
	"github.com/roach88/worldtx/internal/store"
)

// Snapshot labels written by run and read by replay and inspect.
const (
	SeedSnapshot  = "seed"
	FinalSnapshot = "final"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config   string
	Database string
	Verify   bool

	// Cascades allows overriding the cascade token generator (for testing).
	// If nil, the engine uses UUIDv7 tokens.
	Cascades engine.CascadeGenerator
}

// RunResult summarizes a run.
type RunResult struct {
	Session   string            `json:"session,omitempty"`
	Processed int               `json:"processed"`
	Accepted  int               `json:"accepted"`
	Rejected  int               `json:"rejected"`
	Pending   int               `json:"pending"`
	Seq       int64             `json:"seq"`
	Digest    string            `json:"digest"`
	Events    []gridworld.Event `json:"events"`
	Error     string            `json:"error,omitempty"`
}

func (r RunResult) String() string {
	var b strings.Builder
	for _, ev := range r.Events {
		fmt.Fprintln(&b, ev)
	}
	fmt.Fprintf(&b, "processed %d actions (%d accepted, %d rejected), %d pending\n",
		r.Processed, r.Accepted, r.Rejected, r.Pending)
	if r.Session != "" {
		fmt.Fprintf(&b, "session %s\n", r.Session)
	}
	fmt.Fprintf(&b, "seq %d digest %s", r.Seq, r.Digest)
	if r.Error != "" {
		fmt.Fprintf(&b, "\nstopped: %s", r.Error)
	}
	return b.String()
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <actions.yaml>",
		Short: "Run actions against a seeded world",
		Long: `Seed a world, then enqueue and drain each batch of actions,
printing the events the hooks report.

With --db, the run is recorded as a session: the seed and final snapshots
and one journal entry per processed action. Sequence numbers continue from
the last journaled action.

Exit codes:
  0 - All batches drained
  1 - A drain stopped (step quota exceeded, index diverged with --verify)
  2 - Command error (invalid files, database error)

Examples:
  worldtx run ./actions.yaml
  worldtx run ./actions.yaml --config ./world.cue --db ./world.db
  worldtx run ./actions.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runActions(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to CUE world config (default: built-in defaults)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database to record the session in")
	cmd.Flags().BoolVar(&opts.Verify, "verify", false, "check the spatial indexes against state after every action")

	return cmd
}

func runActions(opts *RunOptions, path string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	logger := opts.Logger(cmd)
	out := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	file, err := loadActionsFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load actions", err)
	}
	w, err := gridworld.New(cfg, gridworld.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build world", err)
	}
	seed := w.Seed(file.Seed)

	var (
		db       *store.Store
		session  string
		startSeq int64
	)
	if opts.Database != "" {
		logger.Info("opening database", "path", opts.Database)
		db, err = store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()

		if startSeq, err = db.MaxSeq(ctx); err != nil {
			return WrapExitError(ExitCommandError, "failed to read journal", err)
		}
		cfgJSON, err := json.Marshal(w.Config())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to encode config", err)
		}
		session = engine.UUIDv7Generator{}.Generate()
		if err := db.WriteSession(ctx, store.Session{ID: session, StartedSeq: startSeq, Config: cfgJSON}); err != nil {
			return WrapExitError(ExitCommandError, "failed to record session", err)
		}
		if _, err := db.WriteSnapshot(ctx, session, SeedSnapshot, startSeq, seed); err != nil {
			return WrapExitError(ExitCommandError, "failed to record seed snapshot", err)
		}
		logger.Info("session started", "session", session, "seq", startSeq)
	}

	rec := &engine.Recorder{}
	engineOpts := []engine.Option{
		engine.WithTracer(rec),
		engine.WithClock(engine.NewClockAt(startSeq)),
	}
	if opts.Cascades != nil {
		engineOpts = append(engineOpts, engine.WithCascadeGenerator(opts.Cascades))
	}
	if opts.Verify {
		engineOpts = append(engineOpts, engine.WithVerifyIndexes())
	}
	eng := w.NewEngine(seed, engineOpts...)

	result := RunResult{Session: session, Events: eng.Events().Drain()}
	var drainErr error
	for i, batch := range file.Steps {
		for _, a := range batch {
			eng.Enqueue(a)
		}
		drainErr = eng.Drain()
		result.Events = append(result.Events, eng.Events().Drain()...)

		for _, r := range rec.Records {
			result.Processed++
			if r.Accepted {
				result.Accepted++
			} else {
				result.Rejected++
			}
		}
		if db != nil {
			entries, err := journalEntries(session, rec.Records)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to build journal", err)
			}
			if err := db.AppendJournal(ctx, entries); err != nil {
				return WrapExitError(ExitCommandError, "failed to append journal", err)
			}
		}
		rec.Records = rec.Records[:0]

		if drainErr != nil {
			logger.Warn("batch stopped", "batch", i, "pending", eng.Pending(), "error", drainErr)
			result.Error = drainErr.Error()
			break
		}
	}

	result.Seq = eng.Seq()
	result.Pending = eng.Pending()
	if result.Digest, err = eng.State().Digest(); err != nil {
		return WrapExitError(ExitCommandError, "failed to digest state", err)
	}
	if db != nil {
		if _, err := db.WriteSnapshot(ctx, session, FinalSnapshot, result.Seq, eng.State()); err != nil {
			return WrapExitError(ExitCommandError, "failed to record final snapshot", err)
		}
	}

	if drainErr == nil {
		return out.Success(result)
	}

	if opts.Format == "json" {
		if err := out.Error(drainErrorCode(drainErr), result.Error, result); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(out.Writer, result)
	}
	return WrapExitError(ExitFailure, "run stopped", drainErr)
}

// drainErrorCode maps a failed drain to its JSON error code.
func drainErrorCode(err error) string {
	switch {
	case engine.IsStepsExceededError(err):
		return "E_STEPS_EXCEEDED"
	case engine.IsIndexDivergedError(err):
		return "E_INDEX_DIVERGED"
	default:
		return "E_DRAIN_FAILED"
	}
}
