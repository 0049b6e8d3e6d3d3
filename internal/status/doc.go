// Package status projects engine state into read-only snapshots.
//
// Projector builds a Snapshot from one store read plus the queue and
// control-plane counters. Hub pushes snapshots to subscribers whenever the
// engine signals a change, coalescing bursts to at most one snapshot per
// interval; slow subscribers only ever see the latest snapshot.
package status
