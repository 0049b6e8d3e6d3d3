package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"harvester/internal/discovery"
	"harvester/internal/logging"
	"harvester/internal/queue"
)

// Admission rejection reasons.
const (
	ReasonKnown        = "known"
	ReasonDedup        = "dedup"
	ReasonMissingDate  = "missing_date"
	ReasonTooRecent    = "too_recent"
	ReasonTooOld       = "too_old"
	ReasonLowRating    = "low_rating"
	ReasonRetryCeiling = "retry_ceiling"
	ReasonFatalFailure = "fatal_failure"
	ReasonInvalidID    = "invalid_id"
)

// Decision is the outcome of admitting one discovered item.
type Decision struct {
	Admitted bool
	Requeued bool
	Reason   string
	Task     *queue.Task
}

var errNoLongerFailed = errors.New("task left the failed stage")

// Admit runs one discovered item through admission. Rejections are normal
// outcomes and come back as a Decision; an error means the store, the
// index, or ctx failed.
func (o *Orchestrator) Admit(ctx context.Context, item discovery.Item) (Decision, error) {
	return o.admit(ctx, logging.WithContext(ctx, o.logger), item)
}

func (o *Orchestrator) admit(ctx context.Context, logger *slog.Logger, item discovery.Item) (Decision, error) {
	id := strings.TrimSpace(item.ID)
	if id == "" {
		return o.reject(logger, item, ReasonInvalidID), nil
	}

	existing, err := o.store.Get(ctx, id)
	switch {
	case err == nil:
		if existing.Stage != queue.StageFailed {
			return o.reject(logger, item, ReasonKnown), nil
		}
	case errors.Is(err, queue.ErrNotFound):
		existing = nil
	default:
		return Decision{}, err
	}

	seen, err := o.index.Contains(ctx, id)
	if err != nil {
		return Decision{}, err
	}
	if seen {
		return o.reject(logger, item, ReasonDedup), nil
	}

	if reason := o.eligibility(item); reason != "" {
		return o.reject(logger, item, reason), nil
	}

	if existing != nil && !existing.RetryEligible(o.cfg.Workflow.RetryCeiling) {
		reason := ReasonRetryCeiling
		if !existing.FailureKind.Retryable() {
			reason = ReasonFatalFailure
		}
		return o.reject(logger, item, reason), nil
	}

	if err := o.workflow.DownloadQueue().WaitBelow(ctx, o.cfg.Workflow.MaxDownloadQueue); err != nil {
		return Decision{}, err
	}

	if existing != nil {
		return o.readmit(ctx, logger, id, item)
	}
	return o.create(ctx, logger, id, item)
}

// eligibility applies the age window and rating floor.
func (o *Orchestrator) eligibility(item discovery.Item) string {
	if item.PublishedAt.IsZero() {
		return ReasonMissingDate
	}
	age := o.now().Sub(item.PublishedAt)
	if age < o.cfg.MinAge() {
		return ReasonTooRecent
	}
	if maxAge := o.cfg.MaxAge(); maxAge > 0 && age > maxAge {
		return ReasonTooOld
	}
	if item.Rating < o.cfg.Discovery.MinRating {
		return ReasonLowRating
	}
	return ""
}

func (o *Orchestrator) create(ctx context.Context, logger *slog.Logger, id string, item discovery.Item) (Decision, error) {
	_, err := o.store.Put(ctx, &queue.Task{
		ID:          id,
		Title:       strings.TrimSpace(item.Title),
		Stage:       queue.StageDiscovered,
		SourceRef:   item.SourceRef,
		PublishedAt: item.PublishedAt,
		Rating:      item.Rating,
	})
	if errors.Is(err, queue.ErrExists) {
		return o.reject(logger, item, ReasonKnown), nil
	}
	if err != nil {
		return Decision{}, err
	}
	task, err := o.store.Update(ctx, id, func(t *queue.Task) error {
		t.Stage = queue.StageQueuedDownload
		return nil
	})
	if err != nil {
		return Decision{}, err
	}
	o.workflow.Enqueue(task)
	o.updateCycle(func(c *CycleStats) { c.Admitted++ })

	logger.Info("task admitted",
		logging.Args(append(logging.DecisionAttrs("admission", "admitted", "new"),
			logging.String(logging.FieldTaskID, task.ID),
			logging.String("title", task.Title),
			logging.Float64("rating", task.Rating),
		)...)...,
	)
	return Decision{Admitted: true, Task: task}, nil
}

func (o *Orchestrator) readmit(ctx context.Context, logger *slog.Logger, id string, item discovery.Item) (Decision, error) {
	task, err := o.store.Update(ctx, id, func(t *queue.Task) error {
		if t.Stage != queue.StageFailed {
			return errNoLongerFailed
		}
		t.Requeue()
		return nil
	})
	if errors.Is(err, errNoLongerFailed) {
		return o.reject(logger, item, ReasonKnown), nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("requeue %s: %w", id, err)
	}
	o.workflow.Enqueue(task)
	o.updateCycle(func(c *CycleStats) { c.Requeued++ })

	logger.Info("failed task re-admitted",
		logging.Args(append(logging.DecisionAttrs("admission", "admitted", "retry"),
			logging.String(logging.FieldTaskID, task.ID),
			logging.String("stage", string(task.Stage)),
			logging.Int("attempts", task.AttemptCount),
		)...)...,
	)
	return Decision{Admitted: true, Requeued: true, Task: task}, nil
}

func (o *Orchestrator) reject(logger *slog.Logger, item discovery.Item, reason string) Decision {
	o.updateCycle(func(c *CycleStats) {
		if c.Rejected == nil {
			c.Rejected = make(map[string]int)
		}
		c.Rejected[reason]++
	})
	logger.Debug("item rejected",
		logging.Args(append(logging.DecisionAttrs("admission", "rejected", reason),
			logging.String(logging.FieldTaskID, item.ID),
			logging.String("title", item.Title),
		)...)...,
	)
	return Decision{Reason: reason}
}
