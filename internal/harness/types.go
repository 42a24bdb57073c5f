package harness

import (
	"github.com/roach88/worldtx/internal/gridworld"
	"github.com/roach88/worldtx/internal/world"
)

// TraceEvent is one processed action.
type TraceEvent struct {
	Seq       int64  `json:"seq"`
	Drain     int    `json:"drain"`
	Cascade   string `json:"cascade"`
	Depth     int    `json:"depth"`
	Action    string `json:"action"`
	Accepted  bool   `json:"accepted"`
	RulesRun  int    `json:"rules_run"`
	FollowOns int    `json:"follow_ons"`
	Checksum  string `json:"checksum,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every assertion held and no step failed.
	Pass bool `json:"pass"`

	// Trace contains every processed action in order.
	Trace []TraceEvent `json:"trace"`

	// Events contains every reported event in order, seed events first.
	Events []gridworld.Event `json:"events"`

	// Errors contains assertion and step failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	world  *gridworld.World
	engine *gridworld.Engine

	// processed holds "kind:id" of every processed action.
	processed []string
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Events: []gridworld.Event{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// State returns the committed state at the end of the run, or nil if the
// result did not come from Run.
func (r *Result) State() *world.State {
	if r.engine == nil {
		return nil
	}
	return r.engine.State()
}
