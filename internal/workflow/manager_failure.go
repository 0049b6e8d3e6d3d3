package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"harvester/internal/dedup"
	"harvester/internal/logging"
	"harvester/internal/queue"
	"harvester/internal/services"
)

// failTask records a collaborator failure on the task. adjust, when set,
// runs after the failure fields are filled in.
func (m *Manager) failTask(ctx context.Context, logger *slog.Logger, task *queue.Task, stageErr error, adjust func(*queue.Task)) {
	persistCtx := context.WithoutCancel(ctx)
	details := services.Details(stageErr)

	failed, err := m.store.Update(persistCtx, task.ID, func(t *queue.Task) error {
		t.SetFailed(stageErr)
		if adjust != nil {
			adjust(t)
		}
		return nil
	})
	if err != nil {
		m.handleStoreError(persistCtx, logger, task.ID, "persist stage failure", err)
		return
	}
	m.setLastError(stageErr)

	ceiling := m.cfg.Workflow.RetryCeiling
	retryable := failed.RetryEligible(ceiling)
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String("failed_from", string(failed.FailedFrom)),
		logging.String("failure_kind", string(failed.FailureKind)),
		logging.Int("attempt", failed.AttemptCount),
		logging.Int("retry_ceiling", ceiling),
		logging.Bool("auto_retry", retryable),
		logging.String("error_message", strings.TrimSpace(failed.Error)),
		logging.String(logging.FieldErrorHint, details.Hint),
	}
	if details.Kind == services.FailureInterrupted {
		logger.Warn("stage interrupted", logging.Args(attrs...)...)
	} else {
		attrs = append(attrs, logging.Alert("stage_failure"))
		logger.Error("stage failed", logging.Args(attrs...)...)
	}

	if !retryable {
		m.notifyTaskFailed(persistCtx, logger, failed)
	}
}

// handleStoreError routes store errors. Errors caused by ctx ending are
// dropped. Durability failures are escalated to the store failure handler;
// transition violations are contract bugs and only abort the current task.
func (m *Manager) handleStoreError(ctx context.Context, logger *slog.Logger, id, operation string, err error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		logger.Debug("shutting down, task update skipped",
			logging.String(logging.FieldTaskID, id),
			logging.String("operation", operation),
			logging.Error(err),
		)
		return
	}
	m.setLastError(err)
	switch {
	case IsStoreUnavailable(err):
		logging.ErrorWithContext(logger, "durable state unavailable", "store_unavailable",
			logging.String(logging.FieldTaskID, id),
			logging.String("operation", operation),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the data directory and database files"),
		)
		m.mu.RLock()
		fn := m.onStoreFailure
		m.mu.RUnlock()
		if fn != nil {
			fn(err)
		}
	case errors.Is(err, queue.ErrInvalidTransition):
		logging.ErrorWithContext(logger, "invalid stage transition", "invalid_transition",
			logging.String(logging.FieldTaskID, id),
			logging.String("operation", operation),
			logging.Error(err),
			logging.Alert("invalid_transition"),
			logging.String(logging.FieldErrorHint, "report this as a bug; the task keeps its last stored stage"),
		)
	default:
		logging.ErrorWithContext(logger, "task update failed", "task_update_failed",
			logging.String(logging.FieldTaskID, id),
			logging.String("operation", operation),
			logging.Error(err),
		)
	}
}

// IsStoreUnavailable reports whether err comes from the durability layer of
// the task store or the dedup index.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, queue.ErrStoreUnavailable) || errors.Is(err, dedup.ErrUnavailable)
}
