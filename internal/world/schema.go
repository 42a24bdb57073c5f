package world

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	// ErrUnknownComponent is returned when a snapshot references a component
	// name the schema does not know.
	ErrUnknownComponent = errors.New("unknown component")

	// ErrDuplicateComponent is raised (as a panic value) when two components
	// are registered under the same normalized name.
	ErrDuplicateComponent = errors.New("duplicate component")
)

// EntityID identifies one entity. IDs are supplied by the host application;
// this package never allocates them.
type EntityID uint64

// Point is implemented by spatial component values.
// Coordinates must return exactly Dims values for the component it belongs to.
type Point interface {
	Coordinates() []float64
}

// ComponentRef addresses a registered component without its value type.
// Both Component[T] and Descriptor implement it.
type ComponentRef interface {
	Index() int
	Name() string
}

// Descriptor describes one registered component type.
type Descriptor struct {
	index   int
	name    string
	spatial bool
	dims    int
}

// Index returns the registration position of the component.
func (d Descriptor) Index() int { return d.index }

// Name returns the normalized component name.
func (d Descriptor) Name() string { return d.name }

// Spatial reports whether values of this component are indexed by position.
func (d Descriptor) Spatial() bool { return d.spatial }

// Dims returns the dimensionality of spatial values (0 for ordinary components).
func (d Descriptor) Dims() int { return d.dims }

// kind carries the constructors for the type-erased storage of one component.
type kind struct {
	desc       Descriptor
	newColumn  func() column
	newChanges func() changeSet
}

// Schema is the registry of component types.
//
// A Schema is sealed the first time a State or Delta is created from it;
// registering afterwards panics, since existing states would not have a
// column for the new type.
type Schema struct {
	kinds  []kind
	byName map[string]int
	sealed bool
}

// NewSchema creates an empty schema.
func NewSchema() *Schema {
	return &Schema{byName: make(map[string]int)}
}

// Register adds an ordinary component type named name and returns its handle.
//
// Names are NFC-normalized and trimmed so that snapshot keys are stable.
// Registering a duplicate name or registering on a sealed schema panics:
// schemas are built once at startup and a mistake there is a programming error.
func Register[T any](s *Schema, name string) Component[T] {
	return register[T](s, name, false, 0)
}

// RegisterSpatial adds a spatial component type whose values are points of
// the given dimensionality.
func RegisterSpatial[T Point](s *Schema, name string, dims int) Component[T] {
	if dims <= 0 {
		panic(fmt.Sprintf("world: spatial component %q needs a positive dimension, got %d", name, dims))
	}
	return register[T](s, name, true, dims)
}

func register[T any](s *Schema, name string, spatial bool, dims int) Component[T] {
	if s.sealed {
		panic(fmt.Sprintf("world: cannot register %q on a sealed schema", name))
	}
	key := normalizeName(name)
	if key == "" {
		panic("world: component name must not be empty")
	}
	if _, exists := s.byName[key]; exists {
		panic(fmt.Errorf("%w: %q", ErrDuplicateComponent, key))
	}

	desc := Descriptor{index: len(s.kinds), name: key, spatial: spatial, dims: dims}
	s.kinds = append(s.kinds, kind{
		desc:       desc,
		newColumn:  func() column { return newTable[T]() },
		newChanges: func() changeSet { return newChanges[T]() },
	})
	s.byName[key] = desc.index

	return Component[T]{desc: desc}
}

// Components returns every registered component in registration order.
func (s *Schema) Components() []Descriptor {
	out := make([]Descriptor, len(s.kinds))
	for i, k := range s.kinds {
		out[i] = k.desc
	}
	return out
}

// SpatialComponents returns the spatial components in registration order.
func (s *Schema) SpatialComponents() []Descriptor {
	var out []Descriptor
	for _, k := range s.kinds {
		if k.desc.spatial {
			out = append(out, k.desc)
		}
	}
	return out
}

// Lookup finds a component by name. The name is normalized first.
func (s *Schema) Lookup(name string) (Descriptor, bool) {
	i, ok := s.byName[normalizeName(name)]
	if !ok {
		return Descriptor{}, false
	}
	return s.kinds[i].desc, true
}

// Len returns the number of registered components.
func (s *Schema) Len() int {
	return len(s.kinds)
}

// NewState returns an empty State for this schema and seals the schema.
func (s *Schema) NewState() *State {
	s.sealed = true
	cols := make([]column, len(s.kinds))
	for i, k := range s.kinds {
		cols[i] = k.newColumn()
	}
	return &State{schema: s, cols: cols}
}

// NewDelta returns an empty Delta for this schema and seals the schema.
func (s *Schema) NewDelta() *Delta {
	s.sealed = true
	sets := make([]changeSet, len(s.kinds))
	for i, k := range s.kinds {
		sets[i] = k.newChanges()
	}
	return &Delta{schema: s, sets: sets}
}

func normalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}
