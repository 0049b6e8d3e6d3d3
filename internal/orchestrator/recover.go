package orchestrator

import (
	"context"
	"errors"

	"harvester/internal/logging"
	"harvester/internal/queue"
)

// Recovery summarises startup reconciliation.
type Recovery struct {
	Interrupted int
	Advanced    int
	Enqueued    int
}

// Recover runs once at startup before any cycle. Tasks left in an active
// stage become failed with an interrupted error, tasks stranded in
// discovered move on to the download queue, and every queued task is
// pushed back onto its in-memory queue in insertion order.
func (o *Orchestrator) Recover(ctx context.Context) (Recovery, error) {
	var report Recovery

	interrupted, err := o.store.ReconcileInterrupted(ctx)
	report.Interrupted = len(interrupted)
	if err != nil {
		o.recordStoreError(err)
		return report, err
	}
	for _, task := range interrupted {
		logging.WarnWithContext(o.logger, "task interrupted by previous shutdown", "task_interrupted",
			logging.String(logging.FieldTaskID, task.ID),
			logging.String("failed_from", string(task.FailedFrom)),
			logging.Int("attempts", task.AttemptCount),
			logging.String(logging.FieldErrorHint, "the task is retried automatically on the next cycle"),
			logging.String(logging.FieldImpact, "transfer restarts or resumes from its partial file"),
		)
	}

	stranded, err := o.store.ListByStage(ctx, queue.StageDiscovered)
	if err != nil {
		o.recordStoreError(err)
		return report, err
	}
	for _, task := range stranded {
		_, err := o.store.Update(ctx, task.ID, func(t *queue.Task) error {
			if t.Stage != queue.StageDiscovered {
				return errSkipRecovery
			}
			t.Stage = queue.StageQueuedDownload
			return nil
		})
		if errors.Is(err, errSkipRecovery) {
			continue
		}
		if err != nil {
			o.recordStoreError(err)
			return report, err
		}
		report.Advanced++
	}

	queued, err := o.store.ListByStage(ctx, queue.StageQueuedDownload, queue.StageQueuedUpload)
	if err != nil {
		o.recordStoreError(err)
		return report, err
	}
	for i := range queued {
		if o.workflow.Enqueue(&queued[i]) {
			report.Enqueued++
		}
	}

	o.logger.Info("startup reconciliation complete",
		logging.String(logging.FieldEventType, "recovery_complete"),
		logging.Int("interrupted", report.Interrupted),
		logging.Int("advanced", report.Advanced),
		logging.Int("enqueued", report.Enqueued),
	)
	o.changed()
	return report, nil
}

var errSkipRecovery = errors.New("task changed during recovery")
