// Package api defines wire-format types and converters shared by the HTTP and
// IPC surfaces. It translates tasks, dedup entries, status snapshots, and
// control acknowledgements into transport-friendly DTOs so consumers never
// couple to internal types.
//
// # Key Types
//
// Task: transport representation of a task with stage, progress, failure
// details, and attempt count.
//
// Status: the status snapshot plus queue lengths, pool activity, the current
// cycle, and stage health.
//
// Ack: acknowledgement returned by start, stop, and reset-failed.
//
// # Design Notes
//
// DTOs use snake_case JSON tags. Stages and failure kinds are exposed as
// lowercase strings. Timestamps use RFC3339 with milliseconds and are omitted
// when unset.
package api
