// Package queue persists galleries and their lifecycle state in SQLite.
//
// The store serializes all writers; state changes go through Transition,
// a compare-and-swap that rejects racing or illegal edges with ErrConflict
// instead of overwriting. Lock contention is retried with bounded backoff
// and surfaced as ErrStorageUnavailable once exhausted.
package queue
