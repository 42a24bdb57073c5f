package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/worldtx/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string // optional - defaults to the latest session
	Cascade  string // optional - filter to one cascade
	Summary  bool   // list cascades instead of actions
}

// TraceEntry is one journaled action in the timeline.
type TraceEntry struct {
	store.JournalEntry
	Action string `json:"action"`
}

// TraceResult holds the trace output.
type TraceResult struct {
	Session  string                 `json:"session"`
	Cascade  string                 `json:"cascade,omitempty"`
	Timeline []TraceEntry           `json:"timeline,omitempty"`
	Cascades []store.CascadeSummary `json:"cascades,omitempty"`
}

func (r TraceResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "session %s", r.Session)
	if r.Cascade != "" {
		fmt.Fprintf(&b, " cascade %s", r.Cascade)
	}
	b.WriteByte('\n')

	for _, c := range r.Cascades {
		fmt.Fprintf(&b, "%s  first seq %d, %d actions (%d accepted), max depth %d\n",
			c.Cascade, c.FirstSeq, c.Actions, c.Accepted, c.MaxDepth)
	}

	lastCascade := ""
	for _, e := range r.Timeline {
		if e.Cascade != lastCascade {
			fmt.Fprintf(&b, "cascade %s\n", e.Cascade)
			lastCascade = e.Cascade
		}
		verdict := "accepted"
		if !e.Accepted {
			verdict = "rejected"
		}
		fmt.Fprintf(&b, "  [%d] %s%s %s (batch %d, rules %d, follow-ons %d, checksum %016x)\n",
			e.Seq, strings.Repeat("  ", e.Depth), e.Action, verdict, e.Batch, e.RulesRun, e.FollowOns, e.Checksum)
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the journal of a recorded session",
		Long: `Show every processed action of a session in sequence order, with the
cascade it belongs to, its depth in the cascade, the verdict of the rule
chain and the state checksum after it.

Examples:
  worldtx trace --db ./world.db
  worldtx trace --db ./world.db --cascade 0190...
  worldtx trace --db ./world.db --summary
  worldtx trace --db ./world.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session to show (default: latest)")
	cmd.Flags().StringVar(&opts.Cascade, "cascade", "", "only show this cascade")
	cmd.Flags().BoolVar(&opts.Summary, "summary", false, "list cascades instead of actions")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
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

	result := TraceResult{Session: sess.ID, Cascade: opts.Cascade}

	if opts.Summary {
		cascades, err := db.ListCascades(ctx, sess.ID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list cascades", err)
		}
		for _, c := range cascades {
			if opts.Cascade == "" || c.Cascade == opts.Cascade {
				result.Cascades = append(result.Cascades, c)
			}
		}
		return out.Success(result)
	}

	entries, err := db.ReadJournal(ctx, sess.ID, opts.Cascade)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}
	if opts.Cascade != "" && len(entries) == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("no actions in cascade %s", opts.Cascade))
	}

	for _, e := range entries {
		a, err := journalAction(e)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to decode journal", err)
		}
		result.Timeline = append(result.Timeline, TraceEntry{JournalEntry: e, Action: a.String()})
	}
	return out.Success(result)
}
