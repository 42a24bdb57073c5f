package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/worldtx/internal/engine"
	"github.com/roach88/worldtx/internal/gridworld"
	"github.com/roach88/worldtx/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Session  string // optional - defaults to the latest session
	Config   string // optional - overrides the recorded config
}

// ReplayResult holds the outcome of replaying a session.
type ReplayResult struct {
	Session     string `json:"session"`
	RootActions int    `json:"root_actions"`
	Processed   int    `json:"processed"`
	Recorded    string `json:"recorded_digest"`
	First       string `json:"first_digest"`
	Second      string `json:"second_digest"`

	// Deterministic is true if both replays produced the same trace and
	// state.
	Deterministic bool `json:"deterministic"`

	// Matches is true if the replay reproduced the journal and the final
	// snapshot.
	Matches bool `json:"matches"`

	// Divergence describes the first journal entry the replay did not
	// reproduce.
	Divergence string `json:"divergence,omitempty"`

	// Unreplayed counts root actions the first replay never enqueued
	// because an earlier drain failed.
	Unreplayed int `json:"unreplayed,omitempty"`
}

func (r ReplayResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "session %s: %d root actions, %d processed\n", r.Session, r.RootActions, r.Processed)
	fmt.Fprintf(&b, "recorded %s\n", r.Recorded)
	fmt.Fprintf(&b, "replay 1 %s\n", r.First)
	fmt.Fprintf(&b, "replay 2 %s\n", r.Second)
	if r.Divergence != "" {
		fmt.Fprintf(&b, "diverged: %s\n", r.Divergence)
	}
	if r.Unreplayed > 0 {
		fmt.Fprintf(&b, "%d root actions not replayed\n", r.Unreplayed)
	}
	switch {
	case !r.Deterministic:
		b.WriteString("✗ replay is not deterministic")
	case !r.Matches:
		b.WriteString("✗ replay does not match the recorded session")
	default:
		b.WriteString("✓ replay is deterministic and matches the recorded session")
	}
	return b.String()
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a recorded session and verify determinism",
		Long: `Restore a session's seed snapshot and re-run its root actions, batch
by batch, with the recorded cascade tokens and sequence numbers.

The session is replayed twice. Both replays must agree with each other,
with every journaled action checksum, and with the final snapshot digest.

Exit codes:
  0 - Replay is deterministic and matches the recording
  1 - Replay diverged
  2 - Command error (database not found, no sessions, etc.)

Examples:
  worldtx replay --db ./world.db
  worldtx replay --db ./world.db --session 0190...
  worldtx replay --db ./world.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session to replay (default: latest)")
	cmd.Flags().StringVar(&opts.Config, "config", "", "CUE world config overriding the recorded one")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	logger := opts.Logger(cmd)
	out := newFormatter(opts.RootOptions, cmd)

	db, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	sess, err := resolveSession(ctx, db, opts.Session)
	if err != nil {
		return err
	}
	w, err := sessionWorld(sess, opts.Config, logger)
	if err != nil {
		return err
	}

	seedSnap, err := db.ReadSnapshot(ctx, sess.ID, SeedSnapshot)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read seed snapshot", err)
	}
	finalSnap, err := db.ReadSnapshot(ctx, sess.ID, FinalSnapshot)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read final snapshot", err)
	}
	journal, err := db.ReadJournal(ctx, sess.ID, "")
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}
	roots, err := db.RootActions(ctx, sess.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read root actions", err)
	}

	result := ReplayResult{
		Session:     sess.ID,
		RootActions: len(roots),
		Recorded:    finalSnap.Digest,
	}

	first, err := replayOnce(ctx, w, sess, seedSnap, roots)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}
	second, err := replayOnce(ctx, w, sess, seedSnap, roots)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	result.Processed = len(first.records)
	result.Unreplayed = first.unreplayed
	result.First = first.digest
	result.Second = second.digest
	result.Deterministic = first.digest == second.digest && sameRecords(first.records, second.records)
	result.Divergence = divergence(journal, first.records)
	result.Matches = result.Divergence == "" && first.digest == finalSnap.Digest

	logger.Debug("replay finished",
		"session", sess.ID,
		"processed", result.Processed,
		"deterministic", result.Deterministic,
		"matches", result.Matches,
		"unreplayed", result.Unreplayed,
	)

	if result.Deterministic && result.Matches {
		return out.Success(result)
	}

	code := "E_REPLAY_DIVERGED"
	if !result.Deterministic {
		code = "E_NONDETERMINISTIC"
	}
	if opts.Format == "json" {
		if err := out.Error(code, "replay diverged", result); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(out.Writer, result)
	}
	return NewExitError(ExitFailure, "replay diverged")
}

type replayRun struct {
	records    []engine.Record
	digest     string
	unreplayed int
}

// replayOnce rebuilds the session's engine from its seed snapshot and
// drains the root actions batch by batch.
func replayOnce(ctx context.Context, w *gridworld.World, sess store.Session, seedSnap store.Snapshot, roots []store.JournalEntry) (replayRun, error) {
	seed, err := seedSnap.Restore(w.Schema)
	if err != nil {
		return replayRun{}, err
	}

	tokens := make([]string, len(roots))
	for i, r := range roots {
		tokens[i] = r.Cascade
	}

	rec := &engine.Recorder{}
	gen := engine.NewFixedGenerator(tokens...)
	eng := w.NewEngine(seed,
		engine.WithCascadeGenerator(gen),
		engine.WithClock(engine.NewClockAt(sess.StartedSeq)),
		engine.WithTracer(rec),
	)

	for i := 0; i < len(roots); {
		batch := roots[i].Batch
		for ; i < len(roots) && roots[i].Batch == batch; i++ {
			a, err := journalAction(roots[i])
			if err != nil {
				return replayRun{}, err
			}
			eng.Enqueue(a)
		}
		if err := ctx.Err(); err != nil {
			return replayRun{}, err
		}
		// The recorded run stopped at its first failed drain.
		if err := eng.Drain(); err != nil {
			break
		}
	}

	digest, err := eng.State().Digest()
	if err != nil {
		return replayRun{}, err
	}
	return replayRun{records: rec.Records, digest: digest, unreplayed: gen.Remaining()}, nil
}

func sameRecords(a, b []engine.Record) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Seq != b[i].Seq || a[i].Cascade != b[i].Cascade ||
			a[i].Accepted != b[i].Accepted || a[i].Checksum != b[i].Checksum {
			return false
		}
	}
	return true
}

// divergence compares the journal with replayed records and describes the
// first mismatch, or returns "" if they agree.
func divergence(journal []store.JournalEntry, records []engine.Record) string {
	for i, e := range journal {
		if i >= len(records) {
			return fmt.Sprintf("seq %d: journaled but not replayed", e.Seq)
		}
		r := records[i]
		switch {
		case r.Seq != e.Seq:
			return fmt.Sprintf("seq %d: replay processed seq %d", e.Seq, r.Seq)
		case r.Cascade != e.Cascade:
			return fmt.Sprintf("seq %d: cascade %s, replay %s", e.Seq, e.Cascade, r.Cascade)
		case r.Accepted != e.Accepted:
			return fmt.Sprintf("seq %d: accepted %t, replay %t", e.Seq, e.Accepted, r.Accepted)
		case r.Checksum != e.Checksum:
			return fmt.Sprintf("seq %d: checksum %016x, replay %016x", e.Seq, e.Checksum, r.Checksum)
		}
	}
	if len(records) > len(journal) {
		return fmt.Sprintf("seq %d: replayed but not journaled", records[len(journal)].Seq)
	}
	return ""
}
