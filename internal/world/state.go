package world

import "fmt"

// State is the committed world: for each registered component type, a
// mapping from EntityID to value.
//
// State never holds a value for an id that was removed or never inserted.
type State struct {
	schema *Schema
	cols   []column
}

// Schema returns the schema the state was created from.
func (s *State) Schema() *Schema {
	return s.schema
}

// Commit merges d into s. For every component type in registration order,
// the delta's updates are merged first and its removals for that same type
// are applied afterwards, so an id both updated and removed ends up absent.
//
// Commit does not modify d. Committing an empty delta leaves s unchanged.
func (s *State) Commit(d *Delta) {
	mustShareSchema(s.schema, d.schema)
	for i, cs := range d.sets {
		if cs.empty() {
			continue
		}
		cs.applyTo(s.cols[i])
	}
}

// Clear removes every value of every component type.
func (s *State) Clear() {
	for _, col := range s.cols {
		col.clear()
	}
}

// Len returns the number of entities holding ref.
func (s *State) Len(ref ComponentRef) int {
	return s.cols[ref.Index()].len()
}

// Lookup returns the committed value of ref for id as an untyped value.
// Prefer Component[T].Get when the type is known.
func (s *State) Lookup(ref ComponentRef, id EntityID) (any, bool) {
	return s.cols[ref.Index()].lookup(id)
}

// Has reports whether id holds a committed value of ref.
func (s *State) Has(ref ComponentRef, id EntityID) bool {
	return s.cols[ref.Index()].has(id)
}

// IDs returns the ids holding ref, sorted ascending.
func (s *State) IDs(ref ComponentRef) []EntityID {
	return s.cols[ref.Index()].ids()
}

// Entities returns the sorted union of ids across all component types.
func (s *State) Entities() []EntityID {
	seen := make(map[EntityID]struct{})
	for _, col := range s.cols {
		for _, id := range col.ids() {
			seen[id] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// ToDelta returns a delta that inserts every committed value of s.
// Committing it into an empty state reproduces s.
func (s *State) ToDelta() *Delta {
	d := s.schema.NewDelta()
	for i, col := range s.cols {
		col.fill(d.sets[i])
	}
	return d
}

// Clone returns an independent copy of s. Values are copied shallowly.
func (s *State) Clone() *State {
	out := &State{schema: s.schema, cols: make([]column, len(s.cols))}
	for i, col := range s.cols {
		out.cols[i] = col.clone()
	}
	return out
}

func mustShareSchema(a, b *Schema) {
	if a != b {
		panic(fmt.Sprintf("world: state and delta belong to different schemas (%p, %p)", a, b))
	}
}
