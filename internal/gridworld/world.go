package gridworld

import (
	"fmt"
	"log/slog"

	"github.com/roach88/worldtx/internal/config"
	"github.com/roach88/worldtx/internal/engine"
	"github.com/roach88/worldtx/internal/spatial"
	"github.com/roach88/worldtx/internal/world"
)

// Position is a point on the plane.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Coordinates implements world.Point.
func (p Position) Coordinates() []float64 { return []float64{p.X, p.Y} }

func (p Position) String() string { return fmt.Sprintf("(%g,%g)", p.X, p.Y) }

// Engine is the engine instantiation driven by this host.
type Engine = engine.Engine[Action, Event]

// World wires the gridworld components, rules and hooks together.
type World struct {
	Schema   *world.Schema
	Position world.Component[Position]
	Label    world.Component[string]
	Health   world.Component[int]

	cfg     config.World
	scripts []*ScriptRule
	logger  *slog.Logger
}

// Option configures a World.
type Option func(*World)

// WithLogger sets the logger used for script failures. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *World) {
		w.logger = logger
	}
}

// New builds a World from cfg, compiling its scripts.
func New(cfg config.World, opts ...Option) (*World, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := world.NewSchema()
	w := &World{
		Schema:   s,
		Position: world.RegisterSpatial[Position](s, "position", 2),
		Label:    world.Register[string](s, "label"),
		Health:   world.Register[int](s, "health"),
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	for _, sc := range cfg.Scripts {
		rule, err := CompileScript(sc.Name, sc.Source)
		if err != nil {
			return nil, err
		}
		w.scripts = append(w.scripts, rule)
	}
	return w, nil
}

// Config returns the configuration the world was built from.
func (w *World) Config() config.World {
	return w.cfg
}

// NewEngine creates an engine running this world's populator, rules and
// hooks. The configured max_steps becomes the engine's step quota.
func (w *World) NewEngine(seed *world.State, opts ...engine.Option) *Engine {
	opts = append([]engine.Option{
		engine.WithMaxSteps(w.cfg.MaxSteps),
		engine.WithLogger(w.logger),
	}, opts...)
	return engine.New(w.Schema, w.Populate, w.Rules(), w.Hooks(), seed, opts...)
}

// Exists reports whether id will exist once d commits.
func (w *World) Exists(s *world.State, d *world.Delta, id world.EntityID) bool {
	_, ok := w.Label.Future(s, d, id)
	return ok
}

// Entity is a seed entity.
type Entity struct {
	ID     world.EntityID `json:"id" yaml:"id"`
	X      float64        `json:"x" yaml:"x"`
	Y      float64        `json:"y" yaml:"y"`
	Label  string         `json:"label,omitempty" yaml:"label,omitempty"`
	Health *int           `json:"health,omitempty" yaml:"health,omitempty"`
}

// Validate rejects a seed entity with a NaN or infinite position.
func (e Entity) Validate() error {
	if !isFinite(e.X) || !isFinite(e.Y) {
		return fmt.Errorf("%w: entity %d position (%g,%g) is not finite", ErrInvalidAction, e.ID, e.X, e.Y)
	}
	return nil
}

// Seed builds a state holding entities. Missing health defaults to the
// configured start health. Seeds bypass every rule.
func (w *World) Seed(entities []Entity) *world.State {
	st := w.Schema.NewState()
	d := w.Schema.NewDelta()
	for _, e := range entities {
		hp := w.cfg.StartHealth
		if e.Health != nil {
			hp = *e.Health
		}
		w.Position.Insert(d, e.ID, Position{X: e.X, Y: e.Y})
		w.Label.Insert(d, e.ID, labelOrDefault(e.Label, e.ID))
		w.Health.Insert(d, e.ID, hp)
	}
	st.Commit(d)
	return st
}

// Positions returns the committed positions keyed by id, read through idx
// so that callers see exactly what the index holds.
func (w *World) Positions(idx *spatial.Set) map[world.EntityID]Position {
	out := make(map[world.EntityID]Position)
	for _, e := range idx.Of(w.Position).Entries() {
		out[e.ID] = Position{X: e.Pos[0], Y: e.Pos[1]}
	}
	return out
}

func labelOrDefault(label string, id world.EntityID) string {
	if label != "" {
		return label
	}
	return fmt.Sprintf("entity-%d", id)
}
