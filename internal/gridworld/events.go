package gridworld

import (
	"fmt"

	"github.com/roach88/worldtx/internal/engine"
	"github.com/roach88/worldtx/internal/spatial"
	"github.com/roach88/worldtx/internal/world"
)

// EventKind names an event.
type EventKind string

const (
	EventCreated   EventKind = "created"
	EventMoved     EventKind = "moved"
	EventDestroyed EventKind = "destroyed"
	EventDamaged   EventKind = "damaged"
	EventHealed    EventKind = "healed"
	EventRejected  EventKind = "rejected"
	EventCensus    EventKind = "census"
)

// Event is what hooks report to the host.
type Event struct {
	Kind   EventKind      `json:"kind" yaml:"kind"`
	ID     world.EntityID `json:"id,omitempty" yaml:"id,omitempty"`
	At     *Position      `json:"at,omitempty" yaml:"at,omitempty"`
	From   *Position      `json:"from,omitempty" yaml:"from,omitempty"`
	Health *int           `json:"health,omitempty" yaml:"health,omitempty"`
	Count  int            `json:"count,omitempty" yaml:"count,omitempty"`
}

func (e Event) String() string {
	switch e.Kind {
	case EventCreated:
		return fmt.Sprintf("created %d at %s", e.ID, e.At)
	case EventMoved:
		return fmt.Sprintf("moved %d %s -> %s", e.ID, e.From, e.At)
	case EventDestroyed:
		if e.At != nil {
			return fmt.Sprintf("destroyed %d at %s", e.ID, e.At)
		}
		return fmt.Sprintf("destroyed %d", e.ID)
	case EventDamaged, EventHealed:
		return fmt.Sprintf("%s %d health=%d", e.Kind, e.ID, *e.Health)
	case EventCensus:
		return fmt.Sprintf("census count=%d", e.Count)
	default:
		return fmt.Sprintf("%s %d", e.Kind, e.ID)
	}
}

// Hooks returns the event hooks. Census is only reported when enabled.
func (w *World) Hooks() engine.Hooks[Event] {
	h := engine.Hooks[Event]{
		OnAccept: []engine.ActionHook[Event]{w.reportAccepted},
		OnReject: []engine.ActionHook[Event]{w.reportRejected},
	}
	if w.cfg.Census {
		h.AfterCommit = append(h.AfterCommit, w.reportCensus)
	}
	return h
}

// reportAccepted describes the delta about to commit, one entity at a time
// in id order. It sees the pre-commit state, which holds the old values.
func (w *World) reportAccepted(q *engine.EventQueue[Event], d *world.Delta, s *world.State, _ *spatial.Set) {
	for _, id := range d.Touched() {
		existed := w.Label.Has(s, id)

		if existed && w.Label.IsRemoved(d, id) {
			ev := Event{Kind: EventDestroyed, ID: id}
			if p, ok := w.Position.Get(s, id); ok {
				ev.At = &p
			}
			q.Push(ev)
			continue
		}

		if !existed {
			if _, ok := w.Label.Update(d, id); ok {
				ev := Event{Kind: EventCreated, ID: id}
				if p, ok := w.Position.Update(d, id); ok {
					ev.At = &p
				}
				q.Push(ev)
			}
			continue
		}

		if next, ok := w.Position.Update(d, id); ok {
			ev := Event{Kind: EventMoved, ID: id, At: &next}
			if prev, ok := w.Position.Get(s, id); ok {
				ev.From = &prev
			}
			q.Push(ev)
		}
		if next, ok := w.Health.Update(d, id); ok {
			prev, _ := w.Health.Get(s, id)
			hp := next
			switch {
			case next < prev:
				q.Push(Event{Kind: EventDamaged, ID: id, Health: &hp})
			case next > prev:
				q.Push(Event{Kind: EventHealed, ID: id, Health: &hp})
			}
		}
	}
}

func (w *World) reportRejected(q *engine.EventQueue[Event], d *world.Delta, _ *world.State, _ *spatial.Set) {
	for _, id := range d.Touched() {
		q.Push(Event{Kind: EventRejected, ID: id})
	}
}

func (w *World) reportCensus(q *engine.EventQueue[Event], s *world.State, _ *spatial.Set) {
	q.Push(Event{Kind: EventCensus, Count: w.Label.Len(s)})
}
