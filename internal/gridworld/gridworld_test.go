package gridworld

import (
	"bytes"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/worldtx/internal/config"
	"github.com/roach88/worldtx/internal/engine"
	"github.com/roach88/worldtx/internal/world"
)

func newWorld(t *testing.T, mutate func(*config.World)) *World {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	w, err := New(cfg, WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
	require.NoError(t, err)
	return w
}

func run(t *testing.T, e *Engine, actions ...Action) []Event {
	t.Helper()
	for _, a := range actions {
		e.Enqueue(a)
	}
	require.NoError(t, e.Drain())
	require.NoError(t, e.Indexes().Verify(e.State()))
	return e.Events().Drain()
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func TestGridworld_CreateMoveOutOfBounds(t *testing.T) {
	w := newWorld(t, nil)
	e := w.NewEngine(nil)
	cells := e.Indexes().Of(w.Position)

	events := run(t, e, Action{Kind: KindCreate, ID: 1})
	require.Len(t, events, 1)
	assert.Equal(t, EventCreated, events[0].Kind)
	assert.Equal(t, &Position{0, 0}, events[0].At)
	assert.Equal(t, []world.EntityID{1}, cells.At([]float64{0, 0}))

	events = run(t, e, Action{Kind: KindMove, ID: 1, X: 5, Y: 5})
	require.Len(t, events, 1)
	assert.Equal(t, EventMoved, events[0].Kind)
	assert.Equal(t, &Position{0, 0}, events[0].From)
	assert.Empty(t, cells.At([]float64{0, 0}))
	assert.Equal(t, []world.EntityID{1}, cells.At([]float64{5, 5}))

	events = run(t, e, Action{Kind: KindMove, ID: 1, X: 99, Y: 99})
	assert.Equal(t, []EventKind{EventRejected}, kinds(events))
	p, _ := w.Position.Get(e.State(), 1)
	assert.Equal(t, Position{5, 5}, p)
}

func TestGridworld_CreateDefaults(t *testing.T) {
	w := newWorld(t, func(c *config.World) { c.StartHealth = 7 })
	e := w.NewEngine(nil)

	run(t, e, Action{Kind: KindCreate, ID: 3, X: 1, Y: 2}, Action{Kind: KindCreate, ID: 4, X: 2, Y: 2, Label: "orc", Amount: 20})

	label, _ := w.Label.Get(e.State(), 3)
	assert.Equal(t, "entity-3", label)
	hp, _ := w.Health.Get(e.State(), 3)
	assert.Equal(t, 7, hp)
	label, _ = w.Label.Get(e.State(), 4)
	assert.Equal(t, "orc", label)
	hp, _ = w.Health.Get(e.State(), 4)
	assert.Equal(t, 20, hp)
}

func TestGridworld_ExistenceRule(t *testing.T) {
	w := newWorld(t, nil)
	e := w.NewEngine(nil)
	run(t, e, Action{Kind: KindCreate, ID: 1})

	tests := []struct {
		name   string
		action Action
	}{
		{"duplicate create", Action{Kind: KindCreate, ID: 1, X: 3, Y: 3}},
		{"move unknown", Action{Kind: KindMove, ID: 2, X: 1, Y: 1}},
		{"damage unknown", Action{Kind: KindDamage, ID: 2, Amount: 1}},
		{"heal unknown", Action{Kind: KindHeal, ID: 2, Amount: 1}},
		{"destroy unknown", Action{Kind: KindDestroy, ID: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := run(t, e, tt.action)
			require.NotEmpty(t, events)
			for _, ev := range events {
				assert.Equal(t, EventRejected, ev.Kind)
			}
		})
	}

	assert.Equal(t, []world.EntityID{1}, e.State().Entities())
}

func TestGridworld_ExclusiveCells(t *testing.T) {
	w := newWorld(t, nil)
	e := w.NewEngine(nil)
	run(t, e, Action{Kind: KindCreate, ID: 1, X: 1, Y: 1}, Action{Kind: KindCreate, ID: 2, X: 2, Y: 2})

	events := run(t, e, Action{Kind: KindMove, ID: 2, X: 1, Y: 1})
	assert.Equal(t, []EventKind{EventRejected}, kinds(events))

	events = run(t, e, Action{Kind: KindCreate, ID: 3, X: 2, Y: 2})
	assert.Equal(t, []EventKind{EventRejected}, kinds(events))

	// Once 1 leaves, the cell is free.
	run(t, e, Action{Kind: KindMove, ID: 1, X: 0, Y: 0})
	events = run(t, e, Action{Kind: KindMove, ID: 2, X: 1, Y: 1})
	assert.Equal(t, []EventKind{EventMoved}, kinds(events))

	// Staying in place is not a collision with oneself.
	events = run(t, e, Action{Kind: KindMove, ID: 2, X: 1, Y: 1})
	assert.Equal(t, []EventKind{EventMoved}, kinds(events))
}

func TestGridworld_SharedCells(t *testing.T) {
	w := newWorld(t, func(c *config.World) { c.ExclusiveCells = false })
	e := w.NewEngine(nil)

	run(t, e, Action{Kind: KindCreate, ID: 1, X: 1, Y: 1}, Action{Kind: KindCreate, ID: 2, X: 1, Y: 1})

	assert.Equal(t, []world.EntityID{1, 2}, e.Indexes().Of(w.Position).At([]float64{1, 1}))
}

func TestGridworld_LethalDamageCascades(t *testing.T) {
	w := newWorld(t, nil)
	rec := &engine.Recorder{}
	e := w.NewEngine(nil, engine.WithTracer(rec))
	run(t, e, Action{Kind: KindCreate, ID: 1, X: 4, Y: 4})
	rec.Records = nil

	events := run(t, e, Action{Kind: KindDamage, ID: 1, Amount: 3})
	assert.Equal(t, []EventKind{EventDamaged}, kinds(events))
	assert.Equal(t, 7, *events[0].Health)

	events = run(t, e, Action{Kind: KindDamage, ID: 1, Amount: 9})
	assert.Equal(t, []EventKind{EventDamaged, EventDestroyed}, kinds(events))
	assert.Equal(t, &Position{4, 4}, events[1].At)
	assert.Empty(t, e.State().Entities())
	assert.Equal(t, 0, e.Indexes().Of(w.Position).Len())

	require.Len(t, rec.Records, 3)
	last := rec.Records[2]
	assert.Equal(t, KindDestroy, last.Action.(Action).Kind)
	assert.Equal(t, 1, last.Depth)
	assert.Equal(t, rec.Records[1].Cascade, last.Cascade)
}

func TestGridworld_Heal(t *testing.T) {
	w := newWorld(t, nil)
	e := w.NewEngine(nil)
	run(t, e, Action{Kind: KindCreate, ID: 1})

	events := run(t, e, Action{Kind: KindHeal, ID: 1, Amount: 5})

	assert.Equal(t, []EventKind{EventHealed}, kinds(events))
	hp, _ := w.Health.Get(e.State(), 1)
	assert.Equal(t, 15, hp)
}

func TestGridworld_Census(t *testing.T) {
	w := newWorld(t, func(c *config.World) { c.Census = true })
	e := w.NewEngine(nil)

	events := run(t, e, Action{Kind: KindCreate, ID: 1}, Action{Kind: KindMove, ID: 1, X: 50})

	assert.Equal(t, []EventKind{EventCreated, EventCensus, EventRejected, EventCensus}, kinds(events))
	assert.Equal(t, 1, events[1].Count)
	assert.Equal(t, 1, events[3].Count)
}

func TestGridworld_Seed(t *testing.T) {
	w := newWorld(t, nil)
	hp := 3
	seed := w.Seed([]Entity{{ID: 5, X: 2, Y: 2, Label: "tower", Health: &hp}, {ID: 6, X: 3, Y: 3}})
	e := w.NewEngine(seed)

	events := e.Events().Drain()
	assert.Equal(t, []EventKind{EventCreated, EventCreated}, kinds(events))
	got, _ := w.Health.Get(e.State(), 5)
	assert.Equal(t, 3, got)
	got, _ = w.Health.Get(e.State(), 6)
	assert.Equal(t, 10, got)
	assert.Equal(t, map[world.EntityID]Position{5: {2, 2}, 6: {3, 3}}, w.Positions(e.Indexes()))
}

func TestGridworld_MaxStepsFromConfig(t *testing.T) {
	w := newWorld(t, func(c *config.World) { c.MaxSteps = 1 })
	e := w.NewEngine(nil)

	e.Enqueue(Action{Kind: KindCreate, ID: 1})
	e.Enqueue(Action{Kind: KindCreate, ID: 2, X: 1})

	err := e.Drain()
	assert.True(t, engine.IsStepsExceededError(err))
	assert.Equal(t, 1, e.Pending())
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Bounds.MaxX = -1

	_, err := New(cfg)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestAction_Validate(t *testing.T) {
	assert.NoError(t, Action{Kind: KindMove, ID: 1}.Validate())
	assert.ErrorIs(t, Action{ID: 1}.Validate(), ErrInvalidAction)
	assert.ErrorIs(t, Action{Kind: "teleport"}.Validate(), ErrInvalidAction)
	assert.ErrorIs(t, Action{Kind: KindDamage, Amount: -2}.Validate(), ErrInvalidAction)
	assert.ErrorIs(t, Action{Kind: KindMove, ID: 1, X: math.NaN()}.Validate(), ErrInvalidAction)
	assert.ErrorIs(t, Action{Kind: KindCreate, ID: 1, Y: math.Inf(-1)}.Validate(), ErrInvalidAction)
}

func TestEntity_Validate(t *testing.T) {
	assert.NoError(t, Entity{ID: 1, X: math.Copysign(0, -1), Y: 2}.Validate())
	assert.ErrorIs(t, Entity{ID: 1, X: math.Inf(1)}.Validate(), ErrInvalidAction)
}

func TestAction_String(t *testing.T) {
	assert.Equal(t, "move:1@(2,3)", Action{Kind: KindMove, ID: 1, X: 2, Y: 3}.String())
	assert.Equal(t, "damage:4/2", Action{Kind: KindDamage, ID: 4, Amount: 2}.String())
	assert.Equal(t, "destroy:9", Action{Kind: KindDestroy, ID: 9}.String())
}

func TestEvent_String(t *testing.T) {
	hp := 4
	assert.Equal(t, "created 1 at (0,0)", Event{Kind: EventCreated, ID: 1, At: &Position{}}.String())
	assert.Equal(t, "moved 1 (0,0) -> (1,2)", Event{Kind: EventMoved, ID: 1, From: &Position{}, At: &Position{1, 2}}.String())
	assert.Equal(t, "damaged 2 health=4", Event{Kind: EventDamaged, ID: 2, Health: &hp}.String())
	assert.Equal(t, "census count=3", Event{Kind: EventCensus, Count: 3}.String())
	assert.Equal(t, "rejected 7", Event{Kind: EventRejected, ID: 7}.String())
}
