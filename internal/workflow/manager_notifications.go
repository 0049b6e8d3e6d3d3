package workflow

import (
	"context"
	"errors"
	"log/slog"

	"harvester/internal/logging"
	"harvester/internal/notifications"
	"harvester/internal/queue"
)

func (m *Manager) notifyTaskCompleted(ctx context.Context, logger *slog.Logger, task *queue.Task) {
	m.publish(ctx, logger, notifications.EventTaskCompleted, notifications.Payload{
		"id":    task.ID,
		"title": task.Title,
	})
}

func (m *Manager) notifyTaskFailed(ctx context.Context, logger *slog.Logger, task *queue.Task) {
	reason := "retry ceiling reached"
	if !task.FailureKind.Retryable() {
		reason = "fatal failure"
	}
	m.publish(ctx, logger, notifications.EventTaskFailed, notifications.Payload{
		"id":     task.ID,
		"title":  task.Title,
		"error":  task.Error,
		"reason": reason,
	})
}

func (m *Manager) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("shutting down, notification skipped", logging.String("event", string(event)))
			return
		}
		logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}
