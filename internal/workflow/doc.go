// Package workflow runs the download and upload worker pools.
//
// The Manager owns the two stage queues. Each pool pops task ids from its
// queue, claims the task in the store by moving it into the active stage,
// invokes the stage collaborator with a throttled progress callback, and
// records the outcome: a finished download is handed to the upload queue, a
// finished upload is recorded in the dedup index and completed, and any
// collaborator failure lands the task in failed with its classification.
//
// Pools live for one cycle. Run takes two contexts: cancelling the first
// stops workers from dequeueing, cancelling the second interrupts transfers
// already in flight. Durable-state failures are reported through the store
// failure handler so the orchestrator can halt admission.
package workflow
