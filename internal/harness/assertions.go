package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/worldtx/internal/gridworld"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			verdict := "accepted"
			if !ev.Accepted {
				verdict = "rejected"
			}
			fmt.Fprintf(&buf, "  [%d] %s %s (%s depth %d)\n", ev.Seq, ev.Action, verdict, ev.Cascade, ev.Depth)
		}
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion against result and returns the
// failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func evaluate(r *Result, a Assertion) error {
	switch a.Type {
	case AssertEventContains:
		if countEvents(r.Events, a) == 0 {
			return r.fail(a.Type, describeEvent(a), "not reported")
		}
	case AssertEventAbsent:
		if n := countEvents(r.Events, a); n > 0 {
			return r.fail(a.Type, "no "+describeEvent(a), fmt.Sprintf("%d reported", n))
		}
	case AssertEventCount:
		if n := countEvents(r.Events, a); n != a.Count {
			return r.fail(a.Type, fmt.Sprintf("%d x %s", a.Count, describeEvent(a)), fmt.Sprintf("%d reported", n))
		}
	case AssertEventOrder:
		return assertEventOrder(r, a)
	case AssertPosition, AssertAbsent, AssertSpatialAt, AssertHealth, AssertIndexConsistent:
		if r.engine == nil {
			return fmt.Errorf("%s needs a result produced by Run", a.Type)
		}
		return assertState(r, a)
	case AssertProcessedOrder:
		if !slices.Equal(r.processed, a.Actions) {
			return r.fail(a.Type, fmt.Sprintf("%v", a.Actions), fmt.Sprintf("%v", r.processed))
		}
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
	return nil
}

func (r *Result) fail(typ, expected, actual string) error {
	return &AssertionError{Type: typ, Expected: expected, Actual: actual, Trace: r.Trace}
}

func matchesEvent(ev gridworld.Event, a Assertion) bool {
	if ev.Kind != a.Event {
		return false
	}
	return a.ID == nil || ev.ID == *a.ID
}

func countEvents(events []gridworld.Event, a Assertion) int {
	n := 0
	for _, ev := range events {
		if matchesEvent(ev, a) {
			n++
		}
	}
	return n
}

func describeEvent(a Assertion) string {
	if a.ID == nil {
		return fmt.Sprintf("%s event", a.Event)
	}
	return fmt.Sprintf("%s event for %d", a.Event, *a.ID)
}

func eventKey(ev gridworld.Event) string {
	return fmt.Sprintf("%s:%d", ev.Kind, ev.ID)
}

// assertEventOrder checks that events appear in the specified order.
// Events don't need to be consecutive.
func assertEventOrder(r *Result, a Assertion) error {
	next := 0
	for _, ev := range r.Events {
		if next < len(a.Events) && eventKey(ev) == a.Events[next] {
			next++
		}
	}
	if next < len(a.Events) {
		keys := make([]string, len(r.Events))
		for i, ev := range r.Events {
			keys[i] = eventKey(ev)
		}
		return r.fail(a.Type,
			fmt.Sprintf("events in order: %v", a.Events),
			fmt.Sprintf("%s missing or out of order in %v", a.Events[next], keys))
	}
	return nil
}

func assertState(r *Result, a Assertion) error {
	w, st := r.world, r.engine.State()

	switch a.Type {
	case AssertPosition:
		want := gridworld.Position{X: *a.X, Y: *a.Y}
		got, ok := w.Position.Get(st, *a.ID)
		if !ok {
			return r.fail(a.Type, fmt.Sprintf("%d at %s", *a.ID, want), "no position")
		}
		if got != want {
			return r.fail(a.Type, fmt.Sprintf("%d at %s", *a.ID, want), got.String())
		}

	case AssertAbsent:
		if w.Label.Has(st, *a.ID) || w.Position.Has(st, *a.ID) || w.Health.Has(st, *a.ID) {
			return r.fail(a.Type, fmt.Sprintf("%d absent", *a.ID), "entity exists")
		}

	case AssertSpatialAt:
		pos := gridworld.Position{X: *a.X, Y: *a.Y}
		got := r.engine.Indexes().Of(w.Position).At(pos.Coordinates())
		want := slices.Clone(a.IDs)
		slices.Sort(want)
		if !slices.Equal(got, want) {
			return r.fail(a.Type, fmt.Sprintf("%v at %s", want, pos), fmt.Sprintf("%v", got))
		}

	case AssertHealth:
		got, ok := w.Health.Get(st, *a.ID)
		if !ok {
			return r.fail(a.Type, fmt.Sprintf("%d health %d", *a.ID, *a.Health), "no health")
		}
		if got != *a.Health {
			return r.fail(a.Type, fmt.Sprintf("%d health %d", *a.ID, *a.Health), fmt.Sprintf("%d", got))
		}

	case AssertIndexConsistent:
		if err := r.engine.Indexes().Verify(st); err != nil {
			return r.fail(a.Type, "index mirrors committed positions", err.Error())
		}
	}
	return nil
}
