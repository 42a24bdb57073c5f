package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/worldtx/internal/config"
	"github.com/roach88/worldtx/internal/gridworld"
	"github.com/roach88/worldtx/internal/world"
)

// Scenario is a seeded world, batches of actions to drain, and assertions
// on what happened.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config overrides fields of config.Default(). Script files are
	// resolved relative to the scenario file.
	Config yaml.Node `yaml:"config,omitempty"`

	// Seed entities are committed before the first step, bypassing rules.
	Seed []gridworld.Entity `yaml:"seed,omitempty"`

	// Steps are drained in order; all actions of a step are enqueued
	// before the drain.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace, events and state.
	Assertions []Assertion `yaml:"assertions"`

	dir string
}

// Step is one batch of host actions.
type Step struct {
	Actions []gridworld.Action `yaml:"actions"`

	// ExpectError names an error the drain must return. The only
	// supported value is "steps_exceeded".
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion validates trace, events or final state. Which fields apply
// depends on Type.
type Assertion struct {
	Type string `yaml:"type"`

	// Event is the event kind (event_contains, event_absent, event_count).
	Event gridworld.EventKind `yaml:"event,omitempty"`

	// ID selects an entity. Optional for event assertions.
	ID *world.EntityID `yaml:"id,omitempty"`

	// Count is the expected number of matching events (event_count).
	Count int `yaml:"count,omitempty"`

	// Events is the expected order of "kind:id" events (event_order).
	Events []string `yaml:"events,omitempty"`

	// X and Y locate a cell (position, spatial_at).
	X *float64 `yaml:"x,omitempty"`
	Y *float64 `yaml:"y,omitempty"`

	// IDs are the entities expected at a cell (spatial_at).
	IDs []world.EntityID `yaml:"ids,omitempty"`

	// Health is the expected committed health (health).
	Health *int `yaml:"health,omitempty"`

	// Actions is the expected processing order of "kind:id" actions
	// (processed_order).
	Actions []string `yaml:"actions,omitempty"`
}

// Assertion type constants.
const (
	AssertEventContains   = "event_contains"
	AssertEventAbsent     = "event_absent"
	AssertEventCount      = "event_count"
	AssertEventOrder      = "event_order"
	AssertPosition        = "position"
	AssertAbsent          = "absent"
	AssertSpatialAt       = "spatial_at"
	AssertHealth          = "health"
	AssertProcessedOrder  = "processed_order"
	AssertIndexConsistent = "index_consistent"
)

// ExpectStepsExceeded is the Step.ExpectError value for a drain that must
// run out of step quota.
const ExpectStepsExceeded = "steps_exceeded"

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	scenario.dir = filepath.Dir(path)
	return scenario, nil
}

// ParseScenario parses scenario YAML. Relative script files resolve
// against the working directory.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// World returns the scenario's configuration: config.Default() with the
// scenario's overrides applied and script files inlined.
func (s *Scenario) World() (config.World, error) {
	cfg := config.Default()
	if !s.Config.IsZero() {
		if err := s.Config.Decode(&cfg); err != nil {
			return config.World{}, fmt.Errorf("scenario %s: config: %w", s.Name, err)
		}
	}
	if err := cfg.InlineScripts(s.dir); err != nil {
		return config.World{}, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	if err := cfg.Validate(); err != nil {
		return config.World{}, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	return cfg, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	seen := make(map[world.EntityID]bool, len(s.Seed))
	for i, e := range s.Seed {
		if seen[e.ID] {
			return fmt.Errorf("seed[%d]: duplicate id %d", i, e.ID)
		}
		if err := e.Validate(); err != nil {
			return fmt.Errorf("seed[%d]: %w", i, err)
		}
		seen[e.ID] = true
	}

	for i, step := range s.Steps {
		if len(step.Actions) == 0 {
			return fmt.Errorf("steps[%d]: actions list is required and must be non-empty", i)
		}
		for j, a := range step.Actions {
			if err := a.Validate(); err != nil {
				return fmt.Errorf("steps[%d].actions[%d]: %w", i, j, err)
			}
		}
		if step.ExpectError != "" && step.ExpectError != ExpectStepsExceeded {
			return fmt.Errorf("steps[%d]: unknown expect_error %q", i, step.ExpectError)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertEventContains, AssertEventAbsent:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for %s", index, a.Type)
		}
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for event_order", index)
		}
	case AssertPosition:
		if a.ID == nil || a.X == nil || a.Y == nil {
			return fmt.Errorf("assertions[%d]: id, x and y are required for position", index)
		}
	case AssertAbsent:
		if a.ID == nil {
			return fmt.Errorf("assertions[%d]: id is required for absent", index)
		}
	case AssertSpatialAt:
		if a.X == nil || a.Y == nil {
			return fmt.Errorf("assertions[%d]: x and y are required for spatial_at", index)
		}
	case AssertHealth:
		if a.ID == nil || a.Health == nil {
			return fmt.Errorf("assertions[%d]: id and health are required for health", index)
		}
	case AssertProcessedOrder:
		if a.Actions == nil {
			return fmt.Errorf("assertions[%d]: actions list is required for processed_order", index)
		}
	case AssertIndexConsistent:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
