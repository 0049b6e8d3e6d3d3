// Package dedup records content identifiers that were successfully
// delivered so later discovery cycles can skip them.
//
// The index lives in its own SQLite file next to the task database. It is
// append-only: entries are never removed by the daemon, which keeps the
// "already processed" guarantee intact even after finished tasks are
// pruned from the task store.
package dedup
