// Package main hosts the harvester CLI entrypoint and command graph.
//
// The Cobra command tree translates terminal invocations into IPC calls
// against the daemon: cycle control, task and dedup inspection, and
// notification tests. "harvester daemon" runs the daemon in the
// foreground; "harvester start" launches it detached when needed. When the
// daemon is offline, "harvester status" reads the task database directly.
package main
