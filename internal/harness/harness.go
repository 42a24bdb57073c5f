package harness

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/worldtx/internal/engine"
	"github.com/roach88/worldtx/internal/gridworld"
	"github.com/roach88/worldtx/internal/testutil"
)

// Run executes a scenario and returns the result.
//
// Each run builds a fresh world and engine. Cascade tokens are sequential
// and the clock starts at zero, so results are reproducible.
//
// Execution flow:
//  1. Build the world from the scenario config and seed it
//  2. For each step, enqueue its actions and drain
//  3. Collect the trace and events
//  4. Evaluate assertions
//
// An error means the scenario could not be set up; failing steps and
// assertions are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with engine and script logs sent to logger.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	cfg, err := scenario.World()
	if err != nil {
		return nil, err
	}
	w, err := gridworld.New(cfg, gridworld.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	rec := &engine.Recorder{}
	eng := w.NewEngine(w.Seed(scenario.Seed),
		engine.WithCascadeGenerator(testutil.NewSequentialGenerator("")),
		engine.WithTracer(rec),
		engine.WithVerifyIndexes(),
	)

	result := NewResult()
	result.world = w
	result.engine = eng
	result.Events = append(result.Events, eng.Events().Drain()...)

	for i, step := range scenario.Steps {
		for _, a := range step.Actions {
			eng.Enqueue(a)
		}
		err := eng.Drain()
		result.Events = append(result.Events, eng.Events().Drain()...)

		if step.ExpectError == ExpectStepsExceeded {
			if !engine.IsStepsExceededError(err) {
				result.AddError(fmt.Sprintf("step %d: expected steps exceeded, got %v", i, err))
				break
			}
			logger.Debug("step stopped by quota", "step", i, "pending", eng.Pending())
			continue
		}
		if err != nil {
			result.AddError(fmt.Sprintf("step %d: %v", i, err))
			break
		}
	}

	for _, r := range rec.Records {
		result.Trace = append(result.Trace, traceEvent(r))
		if a, ok := r.Action.(gridworld.Action); ok {
			result.processed = append(result.processed, fmt.Sprintf("%s:%d", a.Kind, a.ID))
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	logger.Debug("scenario finished",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"processed", len(result.Trace),
		"events", len(result.Events),
	)
	return result, nil
}

func traceEvent(r engine.Record) TraceEvent {
	action := fmt.Sprint(r.Action)
	if a, ok := r.Action.(gridworld.Action); ok {
		action = a.String()
	}
	return TraceEvent{
		Seq:       r.Seq,
		Drain:     r.Drain,
		Cascade:   r.Cascade,
		Depth:     r.Depth,
		Action:    action,
		Accepted:  r.Accepted,
		RulesRun:  r.RulesRun,
		FollowOns: r.FollowOns,
		Checksum:  fmt.Sprintf("%016x", r.Checksum),
	}
}
