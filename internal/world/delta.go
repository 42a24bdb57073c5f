package world

// Delta buffers proposed updates and removals per component type.
//
// A delta is applied with State.Commit. Until then it has no effect on any
// State. The engine reuses one delta for every action and clears it in between.
type Delta struct {
	schema *Schema
	sets   []changeSet
}

// Schema returns the schema the delta was created from.
func (d *Delta) Schema() *Schema {
	return d.schema
}

// Clear discards every buffered update and removal.
func (d *Delta) Clear() {
	for _, cs := range d.sets {
		cs.clear()
	}
}

// Empty reports whether the delta buffers nothing.
func (d *Delta) Empty() bool {
	for _, cs := range d.sets {
		if !cs.empty() {
			return false
		}
	}
	return true
}

// RemoveAll marks id removed from every component type.
func (d *Delta) RemoveAll(id EntityID) {
	for _, cs := range d.sets {
		cs.markRemoved(id)
	}
}

// Touched returns the sorted ids with at least one buffered update or removal.
func (d *Delta) Touched() []EntityID {
	seen := make(map[EntityID]struct{})
	for _, cs := range d.sets {
		cs.touch(seen)
	}
	return sortedKeys(seen)
}

// UpdateIDs returns the ids with a queued update of ref, sorted.
func (d *Delta) UpdateIDs(ref ComponentRef) []EntityID {
	return d.sets[ref.Index()].updateIDs()
}

// RemovalIDs returns the ids queued for removal from ref, sorted.
func (d *Delta) RemovalIDs(ref ComponentRef) []EntityID {
	return d.sets[ref.Index()].removalIDs()
}

// LookupUpdate returns the queued update of ref for id as an untyped value.
func (d *Delta) LookupUpdate(ref ComponentRef, id EntityID) (any, bool) {
	return d.sets[ref.Index()].lookupUpdate(id)
}

// IsRemoved reports whether id is queued for removal from ref.
func (d *Delta) IsRemoved(ref ComponentRef, id EntityID) bool {
	return d.sets[ref.Index()].removed(id)
}
