// Package orchestrator drives discovery cycles and owns the control plane.
//
// A cycle fetches listing pages from the discovery source, runs each item
// through admission (known task, dedup index, age window, rating floor,
// retry eligibility, download-queue backpressure) and enqueues the
// admitted tasks for the workflow pools. The cycle stays running until
// discovery ends and both pools drain.
//
// Start, Stop and ResetFailed are idempotent and report no-ops instead of
// failing. Stop is cooperative: admission stops at the next checkpoint and
// transfers already in flight finish. Recover reconciles tasks left in an
// active stage by a crash and rebuilds the in-memory queues from the store.
package orchestrator
