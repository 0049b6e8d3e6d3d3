package status

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"harvester/internal/logging"
)

// Source produces snapshots for the hub.
type Source interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Hub fans snapshots out to subscribers. Change signals are coalesced so a
// burst of updates yields one snapshot per interval.
type Hub struct {
	source   Source
	interval time.Duration
	logger   *slog.Logger
	dirty    chan struct{}

	// publishMu serialises read and stamp so a higher sequence is never
	// an older view.
	publishMu sync.Mutex

	mu     sync.Mutex
	seq    uint64
	latest *Snapshot
	nextID int
	subs   map[int]chan Snapshot
}

// NewHub constructs a hub. A non-positive interval publishes on every
// signal.
func NewHub(source Source, interval time.Duration, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Hub{
		source:   source,
		interval: interval,
		logger:   logging.NewComponentLogger(logger, "status"),
		dirty:    make(chan struct{}, 1),
		subs:     make(map[int]chan Snapshot),
	}
}

// Notify marks state as changed. It never blocks.
func (h *Hub) Notify() {
	select {
	case h.dirty <- struct{}{}:
	default:
	}
}

// Run publishes snapshots until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	var last time.Time
	for {
		select {
		case <-ctx.Done():
			h.closeSubscribers()
			return
		case <-h.dirty:
		}
		if h.interval > 0 {
			if wait := h.interval - time.Since(last); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					h.closeSubscribers()
					return
				case <-timer.C:
				}
				// Signals that arrived while waiting are covered by this
				// snapshot.
				select {
				case <-h.dirty:
				default:
				}
			}
		}
		last = time.Now()
		if _, err := h.Snapshot(ctx); err != nil && ctx.Err() == nil {
			logging.WarnWithContext(h.logger, "status snapshot failed", "status_snapshot_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "subscribers keep the previous snapshot"),
			)
		}
	}
}

// Snapshot takes a fresh snapshot, stamps it with the next sequence number,
// and hands it to every subscriber.
func (h *Hub) Snapshot(ctx context.Context) (Snapshot, error) {
	h.publishMu.Lock()
	defer h.publishMu.Unlock()
	snap, err := h.source.Snapshot(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	snap.Sequence = h.seq
	h.latest = &snap
	for _, ch := range h.subs {
		offer(ch, snap)
	}
	return snap, nil
}

// Latest returns the most recently published snapshot.
func (h *Hub) Latest() (Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil {
		return Snapshot{}, false
	}
	return *h.latest, true
}

// Subscribe registers a subscriber. The channel holds at most one pending
// snapshot, replaced by newer ones, and starts with the latest snapshot if
// one exists. The returned func unsubscribes and closes the channel.
func (h *Hub) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	if h.latest != nil {
		ch <- *h.latest
	}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(ch)
			}
			h.mu.Unlock()
		})
	}
}

// Subscribers reports the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) closeSubscribers() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// offer replaces any pending snapshot; callers hold h.mu so only one
// producer touches the channel at a time.
func offer(ch chan Snapshot, snap Snapshot) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}
