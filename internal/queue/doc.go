// Package queue persists tasks in SQLite and enforces their lifecycle.
//
// The Store is the durable task table: Put admits a new task, Get and List
// read it back in insertion order, and Update applies a mutator under a
// per-task lock, validating the stage change against the transition table
// before the row is written. Writes run with synchronous=FULL so a
// transition that returned successfully survives a crash.
//
// Maintenance helpers cover startup reconciliation of interrupted transfers,
// requeueing failed tasks, retention of finished tasks, and health checks.
// Schema changes bump the version in schema.go; users clear the database to
// adopt the new schema.
package queue
