package world

// Component is the typed handle of a registered component type. It is the
// only way to read or write typed values; State and Delta store them erased.
//
// A handle is only valid with states and deltas of the schema that issued it.
type Component[T any] struct {
	desc Descriptor
}

// Index returns the registration position of the component.
func (c Component[T]) Index() int { return c.desc.index }

// Name returns the normalized component name.
func (c Component[T]) Name() string { return c.desc.name }

// Descriptor returns the untyped description of the component.
func (c Component[T]) Descriptor() Descriptor { return c.desc }

func (c Component[T]) table(s *State) *table[T] {
	return s.cols[c.desc.index].(*table[T])
}

func (c Component[T]) changes(d *Delta) *changes[T] {
	return d.sets[c.desc.index].(*changes[T])
}

// Get returns the committed value for id.
func (c Component[T]) Get(s *State, id EntityID) (T, bool) {
	v, ok := c.table(s).rows[id]
	return v, ok
}

// Has reports whether id holds a committed value.
func (c Component[T]) Has(s *State, id EntityID) bool {
	_, ok := c.table(s).rows[id]
	return ok
}

// Len returns the number of entities holding a committed value.
func (c Component[T]) Len(s *State) int {
	return len(c.table(s).rows)
}

// IDs returns the ids with a committed value, sorted.
func (c Component[T]) IDs(s *State) []EntityID {
	return c.table(s).ids()
}

// Each calls fn for every committed value in ascending id order.
// Iteration stops early when fn returns false.
func (c Component[T]) Each(s *State, fn func(EntityID, T) bool) {
	t := c.table(s)
	for _, id := range t.ids() {
		if !fn(id, t.rows[id]) {
			return
		}
	}
}

// Insert queues v as the new value for id, replacing any earlier queued
// update. A queued removal of the same id is kept and wins at commit.
func (c Component[T]) Insert(d *Delta, id EntityID, v T) {
	c.changes(d).updates[id] = v
}

// Remove queues id for removal.
func (c Component[T]) Remove(d *Delta, id EntityID) {
	c.changes(d).removals[id] = struct{}{}
}

// Update returns the queued update for id.
func (c Component[T]) Update(d *Delta, id EntityID) (T, bool) {
	v, ok := c.changes(d).updates[id]
	return v, ok
}

// IsRemoved reports whether id is queued for removal.
func (c Component[T]) IsRemoved(d *Delta, id EntityID) bool {
	_, ok := c.changes(d).removals[id]
	return ok
}

// Updated exposes the queued updates. Callers must treat the map as read-only.
func (c Component[T]) Updated(d *Delta) map[EntityID]T {
	return c.changes(d).updates
}

// Removed exposes the queued removals. Callers must treat the set as read-only.
func (c Component[T]) Removed(d *Delta) map[EntityID]struct{} {
	return c.changes(d).removals
}

// UpdatedIDs returns the ids with a queued update, sorted.
func (c Component[T]) UpdatedIDs(d *Delta) []EntityID {
	return c.changes(d).updateIDs()
}

// RemovedIDs returns the ids queued for removal, sorted.
func (c Component[T]) RemovedIDs(d *Delta) []EntityID {
	return c.changes(d).removalIDs()
}

// Peek resolves id through v: a queued update wins, a queued removal yields
// absence, otherwise the committed value.
func (c Component[T]) Peek(v View, id EntityID) (T, bool) {
	return c.Future(v.state, v.delta, id)
}

// Future is Peek for callers that hold the state and delta separately.
func (c Component[T]) Future(s *State, d *Delta, id EntityID) (T, bool) {
	ch := c.changes(d)
	if v, ok := ch.updates[id]; ok {
		return v, true
	}
	if _, ok := ch.removals[id]; ok {
		var zero T
		return zero, false
	}
	return c.Get(s, id)
}
