package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"harvester/internal/logging"
	"harvester/internal/services"
)

// Run starts the worker pools and blocks until every worker has exited.
// Cancelling ctx stops dequeueing; units already claimed keep running on
// execCtx until they finish or execCtx is cancelled.
func (m *Manager) Run(ctx, execCtx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.downloader == nil || m.uploader == nil {
		m.mu.Unlock()
		return errors.New("workflow collaborators not configured")
	}
	m.running = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	var wg sync.WaitGroup
	for _, kind := range m.laneOrder {
		lane := m.lanes[kind]
		workers := lane.workers
		if workers <= 0 {
			workers = 1
		}
		for i := 1; i <= workers; i++ {
			name := fmt.Sprintf("%s-%d", lane.queue.Name(), i)
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.runWorker(ctx, execCtx, lane, name)
			}()
		}
	}
	wg.Wait()
	return nil
}

func (m *Manager) runWorker(ctx, execCtx context.Context, lane *laneState, name string) {
	logger := m.workerLogger(lane, name)
	workerCtx := services.WithWorker(execCtx, name)
	logger.Debug("worker started")
	defer logger.Debug("worker stopped")

	for {
		id, err := lane.queue.Pop(ctx)
		if err != nil {
			return
		}
		m.runUnit(workerCtx, lane, logger, id)
	}
}

// runUnit processes one popped id and always releases it from the queue,
// including when the handler panics.
func (m *Manager) runUnit(ctx context.Context, lane *laneState, logger *slog.Logger, id string) {
	defer lane.queue.Done(id)
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%s worker panic: %v", lane.kind, r)
			m.setLastError(err)
			logging.ErrorWithContext(logger, "worker recovered from panic", "worker_panic",
				logging.String(logging.FieldTaskID, id),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "task left in its active stage; restart reconciles it"),
			)
		}
	}()
	lane.process(ctx, lane, logger, id)
}
