// Package engine implements the transactional action processor.
//
// An Engine owns the committed world.State, one reusable world.Delta, the
// spatial index set and a FIFO of pending actions. Drain pops actions one at
// a time until the queue is empty.
//
// ARCHITECTURE:
//
// Processing one action:
// 1. The host Populator fills the Delta from the action.
// 2. Rules run in registration order. Each returns a Status, a Continuation
// and follow-on actions. A Reject latches the action as rejected; only
// StopChecking ends the chain early.
// 3. Accepted: on-accept hooks, spatial sync, commit. Rejected: on-reject
// hooks and the Delta is discarded.
// 4. After-commit hooks run in both cases.
// 5. Follow-ons go to the tail of the pending queue.
//
// Follow-on classification:
// Each rule's reactions are classified by the accepted flag as it stands
// right after that rule ran. Reactions from rules that ran before a later
// rejection are therefore classified accepted. An accepted action schedules
// its accepted follow-ons; a rejected one schedules its rejected follow-ons.
// The other group is dropped.
//
// Cascades:
// Every action enqueued by the host starts a cascade with a fresh token.
// Follow-ons carry their parent's token and depth+1. Because follow-ons are
// appended to the tail, cascades expand breadth-first.
//
// CRITICAL PATTERNS:
//
// Single-threaded: the engine holds no locks. Hosts that share an Engine
// between goroutines must serialize every call.
//
// Logical clock: each processed action is stamped with Clock.Next().
// Wall-clock time is never used for ordering.
//
// Read-only collaborators: rules and hooks must not mutate the State, the
// Delta or the indexes. This is not enforced.
package engine
