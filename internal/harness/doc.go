// Package harness runs gridworld scenarios against the real engine.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: lethal_cascade
//	description: "Damage to zero health destroys the entity"
//	config:            # optional, overrides config.Default()
//	  census: true
//	seed:
//	  - {id: 1, x: 1, y: 1, health: 3}
//	steps:             # each step is enqueued as a batch and drained
//	  - actions:
//	      - {kind: damage, id: 1, amount: 5}
//	assertions:
//	  - type: event_contains
//	    event: destroyed
//	    id: 1
//	  - type: processed_order
//	    actions: ["damage:1", "destroy:1"]
//
// # Assertion Types
//
//   - event_contains: an event of the kind (and id, if given) was reported
//   - event_absent: no such event was reported
//   - event_count: exactly count such events were reported
//   - event_order: events ("kind:id") appear in the given order
//   - position: the entity's committed position is (x, y)
//   - absent: the entity does not exist
//   - spatial_at: the spatial index holds exactly ids at (x, y)
//   - health: the entity's committed health
//   - processed_order: every processed action ("kind:id"), in order
//   - index_consistent: the spatial index mirrors the committed positions
//
// # Deterministic Testing
//
// Cascade tokens come from testutil.SequentialGenerator ("cascade-1", ...)
// and the logical clock starts at zero, so the same scenario always yields
// the same trace. RunWithGolden compares it against testdata/golden.
package harness
