// Package store provides SQLite-backed persistence for world runs.
//
// A session is one run of the engine. It records:
//   - the configuration it ran with (sessions)
//   - labelled world snapshots, typically "seed" and "final" (snapshots)
//   - one journal row per processed action (journal)
//
// Replaying a session restores its seed snapshot, re-enqueues the journal's
// root actions (depth 0) batch by batch with their recorded cascade tokens,
// and compares the resulting digest with the final snapshot.
//
// # Ordering
//
// Every query orders by seq, the engine's logical clock. Wall-clock time is
// never stored.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait on lock contention
//   - foreign_keys=ON: Snapshots and journal rows need their session
package store
