// Package spatial keeps position indexes in step with the spatial components
// of a world.State.
//
// Each spatial component type gets one Index: an R-tree of (position, id)
// entries. An entry is identified by both fields, so a stale entry at an old
// position can be removed independently of inserting the new one.
//
// The synchronization protocol (Set.Sync) runs against the pre-commit state,
// before State.Commit:
//
//  1. for each queued update, remove the entry at the old committed position
//     (if any), then insert the new position;
//  2. for each queued removal, remove the entry at the committed position.
//
// After every commit each positioned id has exactly one entry, at its
// current position. Set.Verify checks this.
package spatial
