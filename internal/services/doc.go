// Package services defines shared utilities consumed by the worker pools,
// the orchestrator, and the external collaborators.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, stage names, worker names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so collaborator failures
//     carry a transient, fatal, or interrupted classification that the
//     workflow persists alongside the task error.
package services
