package world

import (
	"encoding/json"
	"fmt"
	"slices"
)

// column is the type-erased committed storage of one component type.
type column interface {
	lookup(id EntityID) (any, bool)
	has(id EntityID) bool
	len() int
	clear()
	ids() []EntityID
	clone() column
	fill(cs changeSet)
	encode() (map[EntityID]json.RawMessage, error)
	decode(values map[EntityID]json.RawMessage) error
}

// changeSet is the type-erased buffered updates/removals of one component type.
type changeSet interface {
	empty() bool
	clear()
	applyTo(col column)
	markRemoved(id EntityID)
	updateIDs() []EntityID
	removalIDs() []EntityID
	lookupUpdate(id EntityID) (any, bool)
	removed(id EntityID) bool
	touch(into map[EntityID]struct{})
}

type table[T any] struct {
	rows map[EntityID]T
}

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[EntityID]T)}
}

func (t *table[T]) lookup(id EntityID) (any, bool) {
	v, ok := t.rows[id]
	if !ok {
		return nil, false
	}
	return v, true
}

func (t *table[T]) has(id EntityID) bool {
	_, ok := t.rows[id]
	return ok
}

func (t *table[T]) len() int { return len(t.rows) }

func (t *table[T]) clear() { clear(t.rows) }

func (t *table[T]) ids() []EntityID {
	return sortedKeys(t.rows)
}

func (t *table[T]) clone() column {
	out := newTable[T]()
	for id, v := range t.rows {
		out.rows[id] = v
	}
	return out
}

// fill queues every committed row as an update in cs.
func (t *table[T]) fill(cs changeSet) {
	c := cs.(*changes[T])
	for id, v := range t.rows {
		c.updates[id] = v
	}
}

func (t *table[T]) encode() (map[EntityID]json.RawMessage, error) {
	out := make(map[EntityID]json.RawMessage, len(t.rows))
	for id, v := range t.rows {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode entity %d: %w", id, err)
		}
		out[id] = raw
	}
	return out, nil
}

func (t *table[T]) decode(values map[EntityID]json.RawMessage) error {
	for id, raw := range values {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("decode entity %d: %w", id, err)
		}
		t.rows[id] = v
	}
	return nil
}

type changes[T any] struct {
	updates  map[EntityID]T
	removals map[EntityID]struct{}
}

func newChanges[T any]() *changes[T] {
	return &changes[T]{
		updates:  make(map[EntityID]T),
		removals: make(map[EntityID]struct{}),
	}
}

func (c *changes[T]) empty() bool {
	return len(c.updates) == 0 && len(c.removals) == 0
}

func (c *changes[T]) clear() {
	clear(c.updates)
	clear(c.removals)
}

// applyTo merges updates first, then removals.
func (c *changes[T]) applyTo(col column) {
	t := col.(*table[T])
	for id, v := range c.updates {
		t.rows[id] = v
	}
	for id := range c.removals {
		delete(t.rows, id)
	}
}

func (c *changes[T]) markRemoved(id EntityID) {
	c.removals[id] = struct{}{}
}

func (c *changes[T]) updateIDs() []EntityID {
	return sortedKeys(c.updates)
}

func (c *changes[T]) removalIDs() []EntityID {
	return sortedKeys(c.removals)
}

func (c *changes[T]) lookupUpdate(id EntityID) (any, bool) {
	v, ok := c.updates[id]
	if !ok {
		return nil, false
	}
	return v, true
}

func (c *changes[T]) removed(id EntityID) bool {
	_, ok := c.removals[id]
	return ok
}

func (c *changes[T]) touch(into map[EntityID]struct{}) {
	for id := range c.updates {
		into[id] = struct{}{}
	}
	for id := range c.removals {
		into[id] = struct{}{}
	}
}

func sortedKeys[V any](m map[EntityID]V) []EntityID {
	out := make([]EntityID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
