package testsupport

import (
	"context"
	"testing"
	"time"

	"harvester/internal/config"
	"harvester/internal/dedup"
	"harvester/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenIndex opens a dedup.Index for tests and registers cleanup.
func MustOpenIndex(t testing.TB, cfg *config.Config) *dedup.Index {
	t.Helper()

	index, err := dedup.Open(cfg.DedupDBPath())
	if err != nil {
		t.Fatalf("dedup.Open: %v", err)
	}
	t.Cleanup(func() {
		index.Close()
	})
	return index
}

// NewTask inserts a task in the discovered stage.
func NewTask(t testing.TB, store *queue.Store, id, title string) *queue.Task {
	t.Helper()

	task, err := store.Put(context.Background(), &queue.Task{
		ID:          id,
		Title:       title,
		PublishedAt: time.Now().AddDate(0, 0, -5),
		Rating:      90,
	})
	if err != nil {
		t.Fatalf("store.Put: %v", err)
	}
	return task
}

// MustUpdate applies a mutation and fails the test on error.
func MustUpdate(t testing.TB, store *queue.Store, id string, mutate func(*queue.Task) error) *queue.Task {
	t.Helper()

	task, err := store.Update(context.Background(), id, mutate)
	if err != nil {
		t.Fatalf("store.Update(%s): %v", id, err)
	}
	return task
}
