// Package world holds committed entity/component state and the buffered
// changes proposed against it.
//
// The package has three moving parts:
//
//   - State: the committed mapping component type -> (EntityID -> value).
//   - Delta: per component type, updates to insert/replace and ids to remove.
//     A Delta never touches State until State.Commit is called.
//   - View: a read-through overlay of a Delta over a State, answering
//     "what would this component be if the delta committed".
//
// Component types are registered on a Schema and addressed through a typed
// handle, Component[T]. Registration order is the order in which types are
// committed. Spatial components (values implementing Point) are ordinary
// components that the spatial package additionally indexes.
//
// # Commit ordering
//
// Within one component type, updates are merged before removals are applied,
// so an id that is both updated and removed in the same Delta ends up absent.
//
// # Absence
//
// Lookups of unknown ids return (zero, false). Absence is a valid state and
// never an error.
//
// Nothing in this package is safe for concurrent mutation; the engine owns
// a State and a Delta from a single goroutine.
package world
