// Package gridworld is the reference host application for the engine: a
// bounded plane of labelled entities with health, moved around by actions.
//
// Components:
//   - position: Position, spatial, 2 dimensions
//   - label: string; an entity exists exactly when it has a label
//   - health: int
//
// Rules run in this order: existence, bounds, occupancy (only when cells are
// exclusive), lethal damage, then configured Tengo scripts.
package gridworld
