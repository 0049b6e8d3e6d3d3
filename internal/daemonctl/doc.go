// Package daemonctl holds the CLI-side process control for the harvester
// daemon: launching a detached process, waiting for its IPC socket,
// asking it to exit, and force-killing it through the pid file when it
// does not. It also assembles the offline status view from the task store
// and preflight checks when no daemon answers.
package daemonctl
