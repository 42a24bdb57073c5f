package spatial

import (
	"fmt"
	"strings"

	"github.com/roach88/worldtx/internal/world"
)

// Set holds one Index per spatial component of a schema.
type Set struct {
	order   []world.Descriptor
	indexes map[int]*Index
}

// NewSet returns empty indexes for every spatial component of schema.
func NewSet(schema *world.Schema) *Set {
	s := &Set{indexes: make(map[int]*Index)}
	for _, desc := range schema.SpatialComponents() {
		s.order = append(s.order, desc)
		s.indexes[desc.Index()] = NewIndex(desc.Name(), desc.Dims())
	}
	return s
}

// Of returns the index mirroring ref, or nil if ref is not spatial.
func (s *Set) Of(ref world.ComponentRef) *Index {
	return s.indexes[ref.Index()]
}

// Components returns the indexed components in registration order.
func (s *Set) Components() []world.Descriptor {
	return s.order
}

// Sync applies the spatial effect of d to the indexes. It reads old
// positions from st and must therefore run before st.Commit(d).
func (s *Set) Sync(d *world.Delta, st *world.State) {
	for _, desc := range s.order {
		idx := s.indexes[desc.Index()]

		for _, id := range d.UpdateIDs(desc) {
			if old, ok := st.Lookup(desc, id); ok {
				idx.Remove(coordinates(old), id)
			}
			next, _ := d.LookupUpdate(desc, id)
			idx.Insert(coordinates(next), id)
		}

		for _, id := range d.RemovalIDs(desc) {
			if old, ok := st.Lookup(desc, id); ok {
				idx.Remove(coordinates(old), id)
			}
			// Commit applies removals after updates, so an id that was
			// also updated ends up absent.
			if next, ok := d.LookupUpdate(desc, id); ok {
				idx.Remove(coordinates(next), id)
			}
		}
	}
}

// Rebuild discards every entry and re-indexes the committed positions of st.
func (s *Set) Rebuild(st *world.State) {
	s.Clear()
	for _, desc := range s.order {
		idx := s.indexes[desc.Index()]
		for _, id := range st.IDs(desc) {
			v, _ := st.Lookup(desc, id)
			idx.Insert(coordinates(v), id)
		}
	}
}

// Clear empties every index.
func (s *Set) Clear() {
	for _, idx := range s.indexes {
		idx.Clear()
	}
}

// Verify checks that every index holds exactly one entry per positioned id
// of st, at its committed position, and nothing else. The R-tree must hold
// the same number of items as the index.
func (s *Set) Verify(st *world.State) error {
	for _, desc := range s.order {
		idx := s.indexes[desc.Index()]
		want := make(map[entryKey]Entry)
		for _, id := range st.IDs(desc) {
			v, _ := st.Lookup(desc, id)
			pos, _ := canonical(coordinates(v))
			want[keyOf(pos, id)] = Entry{Pos: pos, ID: id}
		}

		var missing, stale []Entry
		for k, e := range want {
			if _, ok := idx.entries[k]; !ok {
				missing = append(missing, e)
			}
		}
		for k, e := range idx.entries {
			if _, ok := want[k]; !ok {
				stale = append(stale, e)
			}
		}
		treeSize := idx.tree.Size()
		if len(missing) > 0 || len(stale) > 0 || treeSize != len(idx.entries) {
			sortEntries(missing)
			sortEntries(stale)
			return &DivergenceError{
				Component: desc.Name(),
				Missing:   missing,
				Stale:     stale,
				Entries:   len(idx.entries),
				TreeItems: treeSize,
			}
		}
	}
	return nil
}

// DivergenceError reports an index that no longer mirrors committed state.
type DivergenceError struct {
	Component string
	Missing   []Entry
	Stale     []Entry
	Entries   int
	TreeItems int
}

func (e *DivergenceError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "spatial index %s diverged from state", e.Component)
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": missing %v", e.Missing)
	}
	if len(e.Stale) > 0 {
		fmt.Fprintf(&b, ": stale %v", e.Stale)
	}
	if e.TreeItems != e.Entries {
		fmt.Fprintf(&b, ": tree holds %d items for %d entries", e.TreeItems, e.Entries)
	}
	return b.String()
}

func coordinates(v any) []float64 {
	p, ok := v.(world.Point)
	if !ok {
		panic(fmt.Sprintf("spatial: value %T does not implement world.Point", v))
	}
	return p.Coordinates()
}
