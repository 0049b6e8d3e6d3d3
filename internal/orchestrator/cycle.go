package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"harvester/internal/logging"
	"harvester/internal/notifications"
	"harvester/internal/queue"
	"harvester/internal/services"
)

func (o *Orchestrator) runCycle(ctx context.Context, correlationID string, done chan struct{}) {
	ctx = services.WithRequestID(ctx, correlationID)
	logger := logging.WithContext(ctx, o.logger)
	start := o.now()
	logger.Info("cycle started", logging.String(logging.FieldEventType, "cycle_start"))
	o.publish(ctx, logger, notifications.EventCycleStarted, nil)

	defer o.finishCycle(logger, start, done)

	o.prune(ctx, logger)
	if err := o.sweep(ctx, logger); err != nil {
		o.recordStoreError(err)
		return
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	runDone := make(chan error, 1)
	go func() { runDone <- o.workflow.Run(workerCtx, o.execCtx) }()

	// A failed scan still drains what is already queued; stop and store
	// failures cancel ctx and skip the drain.
	_ = o.discover(ctx, logger)
	if ctx.Err() == nil {
		if err := o.workflow.WaitIdle(ctx); err != nil {
			logger.Debug("drain interrupted", logging.Error(err))
		}
	}
	stopWorkers()
	if err := <-runDone; err != nil {
		logging.ErrorWithContext(logger, "worker pools failed to run", "workflow_run_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check downloader and uploader configuration"),
		)
		o.setLastError(err)
	}
}

func (o *Orchestrator) finishCycle(logger *slog.Logger, start time.Time, done chan struct{}) {
	o.mu.Lock()
	stopped := o.stopping
	o.running = false
	o.stopping = false
	if o.cancel != nil {
		o.cancel()
	}
	o.cancel = nil
	o.cycle.FinishedAt = o.now()
	stats := o.cycle.clone()
	close(done)
	o.mu.Unlock()

	duration := stats.FinishedAt.Sub(start)
	processed, failed := 0, 0
	if counts, err := o.store.Stats(context.Background()); err == nil {
		processed = counts[queue.StageCompleted] + counts[queue.StageSkipped]
		failed = counts[queue.StageFailed]
	}
	logger.Info("cycle finished",
		logging.String(logging.FieldEventType, "cycle_complete"),
		logging.Bool("stopped", stopped),
		logging.Int("pages", stats.PagesScanned),
		logging.Int("admitted", stats.Admitted),
		logging.Int("requeued", stats.Requeued),
		logging.Int("rejected", totalRejected(stats.Rejected)),
		logging.Int("processed_total", processed),
		logging.Int("failed_total", failed),
		logging.Duration("cycle_duration", duration),
	)
	o.publish(context.Background(), logger, notifications.EventCycleFinished, notifications.Payload{
		"admitted":  stats.Admitted,
		"processed": processed,
		"failed":    failed,
		"duration":  duration,
	})
	o.changed()
}

// discover walks listing pages until the source reports no next page, an
// error ends the scan, or the cycle is stopped.
func (o *Orchestrator) discover(ctx context.Context, logger *slog.Logger) error {
	token := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := o.source.FetchPage(ctx, token)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.handleDiscoveryError(logger, token, err)
			return err
		}
		o.updateCycle(func(c *CycleStats) { c.PagesScanned++ })
		logger.Debug("listing page fetched",
			logging.String("page", page.Token),
			logging.Int("items", len(page.Items)),
			logging.Int("skipped", page.Skipped),
			logging.String("next", page.Next),
		)

		for _, item := range page.Items {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := o.admit(ctx, logger, item); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				o.recordStoreError(err)
				return err
			}
		}
		o.changed()

		if page.Next == "" {
			return nil
		}
		token = page.Next
	}
}

// handleDiscoveryError ends the scan. Queued work still drains; fatal
// failures are surfaced as the last error.
func (o *Orchestrator) handleDiscoveryError(logger *slog.Logger, token string, err error) {
	details := services.Details(err)
	if details.Kind == services.FailureFatal {
		o.setLastError(err)
		logging.ErrorWithContext(logger, "discovery failed", "discovery_failed",
			logging.String("page", token),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, details.Hint),
		)
		return
	}
	logging.WarnWithContext(logger, "discovery ended early", "discovery_incomplete",
		logging.String("page", token),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, details.Hint),
		logging.String(logging.FieldImpact, "remaining pages are scanned on the next cycle"),
	)
}

// sweep requeues failed tasks eligible for automatic retry.
func (o *Orchestrator) sweep(ctx context.Context, logger *slog.Logger) error {
	ceiling := o.cfg.Workflow.RetryCeiling
	requeued, err := o.store.RequeueFailed(ctx, func(t queue.Task) bool {
		return t.RetryEligible(ceiling)
	})
	for i := range requeued {
		o.workflow.Enqueue(&requeued[i])
		logger.Info("retrying failed task",
			logging.String(logging.FieldEventType, "retry_requeued"),
			logging.String(logging.FieldTaskID, requeued[i].ID),
			logging.String("stage", string(requeued[i].Stage)),
			logging.Int("attempts", requeued[i].AttemptCount),
		)
	}
	o.updateCycle(func(c *CycleStats) { c.Requeued += len(requeued) })
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// prune drops finished tasks past the retention window.
func (o *Orchestrator) prune(ctx context.Context, logger *slog.Logger) {
	days := o.cfg.Workflow.RetentionDays
	if days <= 0 {
		return
	}
	cutoff := o.now().AddDate(0, 0, -days)
	removed, err := o.store.PruneFinished(ctx, cutoff)
	if err != nil {
		logging.WarnWithContext(logger, "retention prune failed", "retention_prune_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "finished tasks stay in the store"),
		)
		return
	}
	if removed > 0 {
		logger.Info("pruned finished tasks",
			logging.String(logging.FieldEventType, "retention_prune"),
			logging.Int64("count", removed),
			logging.Int("retention_days", days),
		)
	}
}

func (o *Orchestrator) updateCycle(fn func(*CycleStats)) {
	o.mu.Lock()
	fn(&o.cycle)
	o.mu.Unlock()
}

func (o *Orchestrator) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if err := o.notifier.Publish(ctx, event, payload); err != nil {
		logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}

func totalRejected(rejected map[string]int) int {
	total := 0
	for _, n := range rejected {
		total += n
	}
	return total
}
