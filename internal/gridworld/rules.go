package gridworld

import (
	"github.com/roach88/worldtx/internal/engine"
	"github.com/roach88/worldtx/internal/spatial"
	"github.com/roach88/worldtx/internal/world"
)

// Rules returns the rule chain in evaluation order.
func (w *World) Rules() []engine.Rule[Action] {
	rules := []engine.Rule[Action]{w.existenceRule, w.boundsRule}
	if w.cfg.ExclusiveCells {
		rules = append(rules, w.occupancyRule)
	}
	rules = append(rules, w.lethalRule)
	for _, sc := range w.scripts {
		rules = append(rules, sc.Rule(w))
	}
	return rules
}

// existenceRule rejects creating an entity that exists and touching one
// that does not. Nothing else is worth checking after that.
func (w *World) existenceRule(d *world.Delta, s *world.State, _ *spatial.Set) (engine.Status, engine.Continuation, []Action) {
	for _, id := range w.Label.UpdatedIDs(d) {
		if w.Label.Has(s, id) {
			return engine.Reject, engine.StopChecking, nil
		}
	}
	for _, id := range w.Label.RemovedIDs(d) {
		if !w.Label.Has(s, id) {
			return engine.Reject, engine.StopChecking, nil
		}
	}
	for _, id := range w.Position.UpdatedIDs(d) {
		if !w.Exists(s, d, id) {
			return engine.Reject, engine.StopChecking, nil
		}
	}
	for _, id := range w.Health.UpdatedIDs(d) {
		if !w.Exists(s, d, id) {
			return engine.Reject, engine.StopChecking, nil
		}
	}
	return engine.Accept, engine.KeepChecking, nil
}

func (w *World) boundsRule(d *world.Delta, _ *world.State, _ *spatial.Set) (engine.Status, engine.Continuation, []Action) {
	for _, p := range w.Position.Updated(d) {
		if !w.cfg.Bounds.Contains(p.X, p.Y) {
			return engine.Reject, engine.KeepChecking, nil
		}
	}
	return engine.Accept, engine.KeepChecking, nil
}

// occupancyRule rejects placing an entity on a cell another entity will
// still hold once the delta commits.
func (w *World) occupancyRule(d *world.Delta, s *world.State, idx *spatial.Set) (engine.Status, engine.Continuation, []Action) {
	cells := idx.Of(w.Position)
	claimed := make(map[Position]world.EntityID)

	for _, id := range w.Position.UpdatedIDs(d) {
		if w.Position.IsRemoved(d, id) {
			continue
		}
		p, _ := w.Position.Update(d, id)

		for _, other := range cells.At(p.Coordinates()) {
			if other == id {
				continue
			}
			if op, ok := w.Position.Future(s, d, other); ok && op == p {
				return engine.Reject, engine.KeepChecking, nil
			}
		}
		if holder, ok := claimed[p]; ok && holder != id {
			return engine.Reject, engine.KeepChecking, nil
		}
		claimed[p] = id
	}
	return engine.Accept, engine.KeepChecking, nil
}

// lethalRule schedules the destruction of entities whose health drops to
// zero or below.
func (w *World) lethalRule(d *world.Delta, s *world.State, _ *spatial.Set) (engine.Status, engine.Continuation, []Action) {
	var follow []Action
	for _, id := range w.Health.UpdatedIDs(d) {
		hp, _ := w.Health.Update(d, id)
		if hp <= 0 && w.Exists(s, d, id) {
			follow = append(follow, Action{Kind: KindDestroy, ID: id})
		}
	}
	return engine.Accept, engine.KeepChecking, follow
}
