package engine

import (
	"fmt"
	"log/slog"

	"github.com/roach88/worldtx/internal/spatial"
	"github.com/roach88/worldtx/internal/world"
)

// DefaultMaxSteps disables the per-drain step quota.
const DefaultMaxSteps = 0

// pendingAction is a queued action with its cascade bookkeeping.
type pendingAction[A any] struct {
	action  A
	cascade string
	depth   int
}

// settings holds the options shared by every Engine instantiation.
type settings struct {
	maxSteps      int
	logger        *slog.Logger
	cascades      CascadeGenerator
	tracer        Tracer
	clock         *Clock
	verifyIndexes bool
}

// Option configures an Engine.
type Option func(*settings)

// WithMaxSteps limits how many actions a single Drain may process.
// Zero (the default) means unlimited.
func WithMaxSteps(maxSteps int) Option {
	return func(s *settings) {
		s.maxSteps = maxSteps
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithCascadeGenerator sets the source of cascade tokens for host actions.
// Default: UUIDv7Generator.
func WithCascadeGenerator(gen CascadeGenerator) Option {
	return func(s *settings) {
		s.cascades = gen
	}
}

// WithTracer installs a tracer receiving one Record per processed action.
func WithTracer(t Tracer) Option {
	return func(s *settings) {
		s.tracer = t
	}
}

// WithClock sets the logical clock, e.g. to continue a journal's numbering.
func WithClock(c *Clock) Option {
	return func(s *settings) {
		s.clock = c
	}
}

// WithVerifyIndexes makes the engine check the spatial invariant after
// every action and fail the drain with an ErrCodeIndexDiverged RuntimeError
// when it does not hold.
func WithVerifyIndexes() Option {
	return func(s *settings) {
		s.verifyIndexes = true
	}
}

// Engine drives actions of type A through population, rule evaluation,
// commit and hooks, emitting events of type E.
//
// INVARIANTS:
//   - rules order never changes after construction
//   - the delta is empty between actions
//   - after every accepted commit the indexes mirror the spatial components
type Engine[A, E any] struct {
	settings

	schema   *world.Schema
	state    *world.State
	delta    *world.Delta
	indexes  *spatial.Set
	populate Populator[A]
	rules    []Rule[A]
	hooks    Hooks[E]
	events   EventQueue[E]

	pending queue[pendingAction[A]]
	// current is reused per rule. accepted and rejected keep the follow-ons
	// of the outcome that did not win until the drain ends.
	current  []A
	accepted []pendingAction[A]
	rejected []pendingAction[A]
	quota    *QuotaEnforcer

	drains int
}

// New creates an engine over schema.
//
// The rules slice is copied, so later changes by the caller do not affect
// evaluation order.
//
// If seed is non-nil its contents are applied once as a trusted commit: the
// on-accept hooks fire and the indexes are synchronized, but no rule runs
// and no after-commit hook fires. seed must come from schema.
func New[A, E any](
	schema *world.Schema,
	populate Populator[A],
	rules []Rule[A],
	hooks Hooks[E],
	seed *world.State,
	opts ...Option,
) *Engine[A, E] {
	e := &Engine[A, E]{
		settings: settings{
			maxSteps: DefaultMaxSteps,
			logger:   slog.Default(),
			cascades: UUIDv7Generator{},
			clock:    NewClock(),
		},
		schema:   schema,
		state:    schema.NewState(),
		delta:    schema.NewDelta(),
		indexes:  spatial.NewSet(schema),
		populate: populate,
		rules:    append([]Rule[A](nil), rules...),
		hooks:    hooks,
	}
	for _, opt := range opts {
		opt(&e.settings)
	}
	e.quota = NewQuotaEnforcer(e.maxSteps)

	if seed != nil {
		if seed.Schema() != schema {
			panic("engine: seed state belongs to a different schema")
		}
		e.applySeed(seed)
	}
	return e
}

func (e *Engine[A, E]) applySeed(seed *world.State) {
	d := seed.ToDelta()
	for _, hook := range e.hooks.OnAccept {
		hook(&e.events, d, e.state, e.indexes)
	}
	e.indexes.Sync(d, e.state)
	e.state.Commit(d)

	e.logger.Debug("engine seeded",
		"entities", len(e.state.Entities()),
		"events", e.events.Len(),
	)
}

// Enqueue appends a host action to the pending queue, starting a new
// cascade. It returns the cascade token.
func (e *Engine[A, E]) Enqueue(action A) string {
	cascade := e.cascades.Generate()
	e.pending.push(pendingAction[A]{action: action, cascade: cascade})
	return cascade
}

// Pending returns the number of queued actions.
func (e *Engine[A, E]) Pending() int {
	return e.pending.len()
}

// State returns the committed state. Callers must not mutate it.
func (e *Engine[A, E]) State() *world.State {
	return e.state
}

// Indexes returns the spatial indexes. Callers must not mutate them.
func (e *Engine[A, E]) Indexes() *spatial.Set {
	return e.indexes
}

// Events returns the event queue filled by hooks.
func (e *Engine[A, E]) Events() *EventQueue[E] {
	return &e.events
}

// Schema returns the schema the engine was built over.
func (e *Engine[A, E]) Schema() *world.Schema {
	return e.schema
}

// Seq returns the sequence number of the last processed action.
func (e *Engine[A, E]) Seq() int64 {
	return e.clock.Current()
}

// Drain processes pending actions, follow-ons included, until the queue is
// empty.
//
// Drain only fails when the step quota runs out (StepsExceededError; the
// remaining actions stay queued) or when index verification is enabled and
// fails. Rejections are not errors.
func (e *Engine[A, E]) Drain() error {
	e.drains++
	defer e.resetFollowOns()
	e.quota.Reset()
	processed := 0

	for e.pending.len() > 0 {
		next, _ := e.pending.peek()
		if e.quota.MaxSteps() > 0 {
			if err := e.quota.Check(next.cascade); err != nil {
				e.logger.Warn("max steps quota exceeded",
					"drain", e.drains,
					"cascade", next.cascade,
					"steps", e.quota.Current(),
					"limit", e.quota.MaxSteps(),
					"pending", e.pending.len(),
				)
				return fmt.Errorf("drain %d: %w", e.drains, err)
			}
		}
		e.pending.pop()

		if err := e.process(next); err != nil {
			return fmt.Errorf("drain %d: %w", e.drains, err)
		}
		processed++
	}

	e.logger.Debug("drain complete",
		"drain", e.drains,
		"processed", processed,
		"seq", e.clock.Current(),
		"events", e.events.Len(),
	)
	return nil
}

// process runs one action through population, the rule chain, commit or
// discard, hooks and follow-on scheduling.
func (e *Engine[A, E]) process(p pendingAction[A]) error {
	seq := e.clock.Next()

	e.populate(p.action, e.state, e.delta, e.indexes)

	accepted := true
	rulesRun := 0
	for _, rule := range e.rules {
		status, cont, reactions := rule(e.delta, e.state, e.indexes)
		rulesRun++

		e.current = append(e.current, reactions...)
		if status == Reject {
			accepted = false
		}
		for _, a := range e.current {
			f := pendingAction[A]{action: a, cascade: p.cascade, depth: p.depth + 1}
			if accepted {
				e.accepted = append(e.accepted, f)
			} else {
				e.rejected = append(e.rejected, f)
			}
		}
		clear(e.current)
		e.current = e.current[:0]

		if cont == StopChecking {
			break
		}
	}

	var followOns int
	if accepted {
		for _, hook := range e.hooks.OnAccept {
			hook(&e.events, e.delta, e.state, e.indexes)
		}
		e.indexes.Sync(e.delta, e.state)
		e.state.Commit(e.delta)
		e.delta.Clear()
		followOns = e.schedule(&e.accepted)
	} else {
		for _, hook := range e.hooks.OnReject {
			hook(&e.events, e.delta, e.state, e.indexes)
		}
		e.delta.Clear()
		followOns = e.schedule(&e.rejected)
	}

	for _, hook := range e.hooks.AfterCommit {
		hook(&e.events, e.state, e.indexes)
	}

	e.logger.Debug("action processed",
		"seq", seq,
		"cascade", p.cascade,
		"depth", p.depth,
		"accepted", accepted,
		"rules_run", rulesRun,
		"follow_ons", followOns,
	)

	if e.verifyIndexes {
		if err := e.indexes.Verify(e.state); err != nil {
			e.logger.Error("spatial index diverged",
				"seq", seq,
				"cascade", p.cascade,
				"error", err,
			)
			return NewIndexDivergedError(p.cascade, seq, err)
		}
	}

	if e.tracer != nil {
		e.tracer.Trace(Record{
			Seq:       seq,
			Drain:     e.drains,
			Cascade:   p.cascade,
			Depth:     p.depth,
			Action:    p.action,
			Accepted:  accepted,
			RulesRun:  rulesRun,
			FollowOns: followOns,
			Checksum:  e.checksum(seq),
		})
	}
	return nil
}

// schedule moves every buffered follow-on of buf to the pending tail and
// returns how many were moved.
func (e *Engine[A, E]) schedule(buf *[]pendingAction[A]) int {
	n := len(*buf)
	for _, f := range *buf {
		e.pending.push(f)
	}
	clear(*buf)
	*buf = (*buf)[:0]
	return n
}

// resetFollowOns discards follow-ons still waiting for an outcome of their
// kind. Called when a drain ends.
func (e *Engine[A, E]) resetFollowOns() {
	if n := len(e.accepted) + len(e.rejected); n > 0 {
		e.logger.Debug("discarding unscheduled follow-ons",
			"drain", e.drains,
			"accepted", len(e.accepted),
			"rejected", len(e.rejected),
		)
	}
	clear(e.accepted)
	e.accepted = e.accepted[:0]
	clear(e.rejected)
	e.rejected = e.rejected[:0]
}

func (e *Engine[A, E]) checksum(seq int64) uint64 {
	sum, err := e.state.Checksum()
	if err != nil {
		e.logger.Warn("state checksum failed", "seq", seq, "error", err)
		return 0
	}
	return sum
}
