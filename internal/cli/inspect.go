package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/worldtx/internal/gridworld"
	"github.com/roach88/worldtx/internal/spatial"
	"github.com/roach88/worldtx/internal/world"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Database string
	Session  string
	Snapshot string
	Near     string // "x,y"
	K        int
	Within   string // "x0,y0,x1,y1"
}

// EntityView is one entity of a snapshot.
type EntityView struct {
	ID       world.EntityID      `json:"id"`
	Label    string              `json:"label,omitempty"`
	Position *gridworld.Position `json:"position,omitempty"`
	Health   *int                `json:"health,omitempty"`
}

func (e EntityView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d", e.ID)
	if e.Label != "" {
		fmt.Fprintf(&b, " %q", e.Label)
	}
	if e.Position != nil {
		fmt.Fprintf(&b, " at %s", e.Position)
	}
	if e.Health != nil {
		fmt.Fprintf(&b, " health %d", *e.Health)
	}
	return b.String()
}

// InspectResult holds the entities of a snapshot and the spatial query
// results.
type InspectResult struct {
	Session  string       `json:"session"`
	Snapshot string       `json:"snapshot"`
	Seq      int64        `json:"seq"`
	Digest   string       `json:"digest"`
	Entities []EntityView `json:"entities"`
	Near     []EntityView `json:"near,omitempty"`
	Within   []EntityView `json:"within,omitempty"`
}

func (r InspectResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "session %s snapshot %s seq %d digest %s\n", r.Session, r.Snapshot, r.Seq, r.Digest)
	fmt.Fprintf(&b, "%d entities\n", len(r.Entities))
	for _, e := range r.Entities {
		fmt.Fprintf(&b, "  %s\n", e)
	}
	if r.Near != nil {
		b.WriteString("nearest:\n")
		for _, e := range r.Near {
			fmt.Fprintf(&b, "  %s\n", e)
		}
	}
	if r.Within != nil {
		b.WriteString("within:\n")
		for _, e := range r.Within {
			fmt.Fprintf(&b, "  %s\n", e)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the entities of a snapshot and query its spatial index",
		Long: `Restore a snapshot of a recorded session, rebuild its spatial index and
list its entities. --near and --within query the rebuilt index.

Examples:
  worldtx inspect --db ./world.db
  worldtx inspect --db ./world.db --snapshot seed
  worldtx inspect --db ./world.db --near 3,4 --k 2
  worldtx inspect --db ./world.db --within 0,0,5,5`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session to inspect (default: latest)")
	cmd.Flags().StringVar(&opts.Snapshot, "snapshot", FinalSnapshot, "snapshot label (seed|final)")
	cmd.Flags().StringVar(&opts.Near, "near", "", "list the entities nearest to x,y")
	cmd.Flags().IntVar(&opts.K, "k", 1, "number of nearest entities for --near")
	cmd.Flags().StringVar(&opts.Within, "within", "", "list the entities inside x0,y0,x1,y1")

	return cmd
}

func runInspect(opts *InspectOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	out := newFormatter(opts.RootOptions, cmd)

	var near, lo, hi []float64
	var err error
	if opts.Near != "" {
		if near, err = parsePoint(opts.Near, 2); err != nil {
			return WrapExitError(ExitCommandError, "invalid --near", err)
		}
		if opts.K <= 0 {
			return NewExitError(ExitCommandError, fmt.Sprintf("--k must be positive, got %d", opts.K))
		}
	}
	if opts.Within != "" {
		box, err := parsePoint(opts.Within, 4)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --within", err)
		}
		lo, hi = box[:2], box[2:]
	}

	db, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	sess, err := resolveSession(ctx, db, opts.Session)
	if err != nil {
		return err
	}
	w, err := sessionWorld(sess, "", opts.Logger(cmd))
	if err != nil {
		return err
	}
	snap, err := db.ReadSnapshot(ctx, sess.ID, opts.Snapshot)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read snapshot", err)
	}
	st, err := snap.Restore(w.Schema)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to restore snapshot", err)
	}

	indexes := spatial.NewSet(w.Schema)
	indexes.Rebuild(st)
	cells := indexes.Of(w.Position)

	result := InspectResult{
		Session:  sess.ID,
		Snapshot: snap.Label,
		Seq:      snap.Seq,
		Digest:   snap.Digest,
		Entities: []EntityView{},
	}
	for _, id := range st.Entities() {
		result.Entities = append(result.Entities, entityView(w, st, id))
	}
	if near != nil {
		result.Near = []EntityView{}
		for _, e := range cells.Nearest(near, opts.K) {
			result.Near = append(result.Near, entityView(w, st, e.ID))
		}
	}
	if lo != nil {
		result.Within = []EntityView{}
		for _, e := range cells.Within(lo, hi) {
			result.Within = append(result.Within, entityView(w, st, e.ID))
		}
	}
	return out.Success(result)
}

func entityView(w *gridworld.World, st *world.State, id world.EntityID) EntityView {
	v := EntityView{ID: id}
	v.Label, _ = w.Label.Get(st, id)
	if p, ok := w.Position.Get(st, id); ok {
		v.Position = &p
	}
	if hp, ok := w.Health.Get(st, id); ok {
		v.Health = &hp
	}
	return v
}
