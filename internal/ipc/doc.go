// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response types. Task,
// status, and acknowledgement payloads reuse the api DTOs so the CLI and the
// HTTP API render the same shapes.
//
// Add new RPC endpoints as a request/response pair in types.go, a service
// method in server.go, and a client wrapper in client.go.
package ipc
