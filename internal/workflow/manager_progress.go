package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"harvester/internal/logging"
	"harvester/internal/queue"
)

const progressLogBucketPercent = 5

// progressReporter throttles collaborator progress callbacks into store
// writes. Writes are advisory, so failures are only logged.
type progressReporter struct {
	ctx      context.Context
	store    *queue.Store
	logger   *slog.Logger
	id       string
	stage    queue.Stage
	attempt  int
	interval time.Duration

	mu      sync.Mutex
	last    time.Time
	highest float64
	sampler *logging.ProgressSampler
}

func (m *Manager) newProgressReporter(ctx context.Context, logger *slog.Logger, task *queue.Task) *progressReporter {
	return &progressReporter{
		ctx:      ctx,
		store:    m.store,
		logger:   logger,
		id:       task.ID,
		stage:    task.Stage,
		attempt:  task.AttemptCount,
		interval: m.cfg.ProgressInterval(),
		sampler:  logging.NewProgressSampler(progressLogBucketPercent),
	}
}

// Report is safe for concurrent use.
func (r *progressReporter) Report(fraction float64) {
	if fraction < 0 {
		return
	}
	if fraction > 1 {
		fraction = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sampler.ShouldLog(fraction) {
		r.logger.Debug("transfer progress",
			logging.String(logging.FieldEventType, "progress"),
			logging.Float64("progress", fraction),
		)
	}
	if fraction <= r.highest {
		return
	}
	now := time.Now()
	if fraction < 1 && !r.last.IsZero() && now.Sub(r.last) < r.interval {
		return
	}
	r.last = now
	r.highest = fraction
	if err := r.store.UpdateProgress(r.ctx, r.id, r.stage, r.attempt, fraction); err != nil {
		r.logger.Debug("progress update failed", logging.Error(err))
	}
}
