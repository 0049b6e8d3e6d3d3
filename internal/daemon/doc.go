// Package daemon coordinates the long-running harvester process.
//
// It wires the task store, dedup index, orchestrator, and status hub into a
// single lifecycle with flock-based locking to prevent multiple instances.
// On start it reconciles tasks interrupted by the previous shutdown, then
// serves the HTTP observer API and runs the cycle scheduler. The IPC server
// and the HTTP API both call into the same Daemon methods.
//
// Keep orchestration logic out of here: admission and transfers live in the
// orchestrator and workflow packages while the daemon focuses on startup,
// shutdown, and surfaces.
package daemon
