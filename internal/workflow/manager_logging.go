package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"harvester/internal/logging"
	"harvester/internal/queue"
	"harvester/internal/services"
)

func (m *Manager) workerLogger(lane *laneState, name string) *slog.Logger {
	return m.logger.With(
		logging.String(logging.FieldComponent, fmt.Sprintf("workflow-%s-worker", lane.kind)),
		logging.String(logging.FieldWorker, name),
		logging.String("queue", lane.queue.Name()),
	)
}

func withTaskContext(ctx context.Context, task *queue.Task, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if task != nil {
		ctx = services.WithTaskID(ctx, task.ID)
		ctx = services.WithStage(ctx, string(task.Stage))
	}
	if requestID != "" {
		ctx = services.WithRequestID(ctx, requestID)
	}
	return ctx
}
