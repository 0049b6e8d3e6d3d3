// Package preflight provides readiness checks for the filesystem paths and
// remote endpoints harvester depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at launch and logs every failure so a broken
//     mount or unreachable listing site shows up before the first cycle.
//   - The CLI "harvester status" command uses the same results to display
//     system health when the daemon is offline.
//
// Checks never mutate state; the only network traffic is one GET per
// configured endpoint.
package preflight
