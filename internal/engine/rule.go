package engine

import (
	"github.com/roach88/worldtx/internal/spatial"
	"github.com/roach88/worldtx/internal/world"
)

// Status is a rule's verdict on the action being processed.
type Status int

const (
	// Accept lets the action through this rule.
	Accept Status = iota
	// Reject marks the action rejected. The mark is never undone by later rules.
	Reject
)

func (s Status) String() string {
	if s == Reject {
		return "reject"
	}
	return "accept"
}

// Continuation tells the engine whether to consult the next rule.
type Continuation int

const (
	// KeepChecking continues with the next rule.
	KeepChecking Continuation = iota
	// StopChecking skips every remaining rule for this action.
	StopChecking
)

func (c Continuation) String() string {
	if c == StopChecking {
		return "stop"
	}
	return "keep"
}

// Populator fills d with the changes action proposes. It may read s, the
// indexes and a world.View of (s, d), but must not mutate s or idx.
type Populator[A any] func(action A, s *world.State, d *world.Delta, idx *spatial.Set)

// Rule validates the populated delta. Rules are consulted in registration
// order and receive the delta and committed state separately; use
// Component.Future for the effective value of a component.
//
// The returned actions are follow-ons, scheduled after everything already
// queued.
type Rule[A any] func(d *world.Delta, s *world.State, idx *spatial.Set) (Status, Continuation, []A)

// ActionHook observes an action before its delta is committed or discarded.
type ActionHook[E any] func(q *EventQueue[E], d *world.Delta, s *world.State, idx *spatial.Set)

// CommitHook observes committed state after every action, accepted or not.
type CommitHook[E any] func(q *EventQueue[E], s *world.State, idx *spatial.Set)

// Hooks groups the observers of an engine. Each list runs in order.
type Hooks[E any] struct {
	OnAccept    []ActionHook[E]
	OnReject    []ActionHook[E]
	AfterCommit []CommitHook[E]
}
