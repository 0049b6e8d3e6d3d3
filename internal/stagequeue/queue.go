// Package stagequeue provides the in-memory FIFO that feeds a worker pool.
//
// A queue holds task ids only; the task store stays the source of truth.
// An id is present at most once, so re-pushing a queued id is a no-op.
// Popped ids stay in flight until the consumer calls Done, which lets
// callers tell an idle pool from one that is between items.
package stagequeue

import (
	"context"
	"sync"
)

// Queue is a multi-producer multi-consumer FIFO of unique task ids.
type Queue struct {
	name string

	mu      sync.Mutex
	items   []string
	members map[string]struct{}
	flight  map[string]struct{}
	changed chan struct{}
}

// New returns an empty queue labelled name.
func New(name string) *Queue {
	return &Queue{
		name:    name,
		members: make(map[string]struct{}),
		flight:  make(map[string]struct{}),
		changed: make(chan struct{}),
	}
}

// Name returns the queue label.
func (q *Queue) Name() string {
	return q.name
}

// signal wakes every waiter. Callers hold q.mu.
func (q *Queue) signal() {
	close(q.changed)
	q.changed = make(chan struct{})
}

// Push appends id and reports whether it was added.
func (q *Queue) Push(id string) bool {
	if id == "" {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.members[id]; ok {
		return false
	}
	q.members[id] = struct{}{}
	q.items = append(q.items, id)
	q.signal()
	return true
}

// Changed returns a channel closed on the next change to the queue contents
// or the in-flight set.
func (q *Queue) Changed() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.changed
}

func (q *Queue) popLocked() (string, bool) {
	if len(q.items) == 0 {
		return "", false
	}
	id := q.items[0]
	q.items[0] = ""
	q.items = q.items[1:]
	delete(q.members, id)
	q.flight[id] = struct{}{}
	q.signal()
	return id, true
}

// Done marks a popped id as finished.
func (q *Queue) Done(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.flight[id]; !ok {
		return
	}
	delete(q.flight, id)
	q.signal()
}

// Pop blocks until an id is available or ctx ends. Each id is delivered to
// exactly one caller. A cancelled ctx wins over queued ids.
func (q *Queue) Pop(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		q.mu.Lock()
		if id, ok := q.popLocked(); ok {
			q.mu.Unlock()
			return id, nil
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-wait:
		}
	}
}

// WaitBelow blocks until the queue holds fewer than limit ids. A limit of
// zero or less never blocks.
func (q *Queue) WaitBelow(ctx context.Context, limit int) error {
	if limit <= 0 {
		return nil
	}
	for {
		q.mu.Lock()
		if len(q.items) < limit {
			q.mu.Unlock()
			return nil
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// Contains reports whether id is queued.
func (q *Queue) Contains(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.members[id]
	return ok
}

// Len returns the number of queued ids.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// InFlight returns the number of popped ids not yet marked Done.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.flight)
}

// Idle reports whether the queue is empty with nothing in flight.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0 && len(q.flight) == 0
}

// Snapshot returns the queued ids in order.
func (q *Queue) Snapshot() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.items))
	copy(out, q.items)
	return out
}
