package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"harvester/internal/services"
)

// ReconcileInterrupted moves every task left in an active stage to failed
// with an interrupted error. It runs at startup, before workers exist, so
// nothing else owns those tasks.
func (s *Store) ReconcileInterrupted(ctx context.Context) ([]Task, error) {
	active, err := s.ListByStage(ctx, StageDownloading, StageUploading)
	if err != nil {
		return nil, err
	}
	reconciled := make([]Task, 0, len(active))
	for _, task := range active {
		updated, err := s.Update(ctx, task.ID, func(t *Task) error {
			if !t.Stage.IsActive() {
				return errSkipTask
			}
			t.SetFailed(services.Wrap(services.ErrInterrupted, string(t.Stage), "", InterruptedReason, nil))
			return nil
		})
		if errors.Is(err, errSkipTask) {
			continue
		}
		if err != nil {
			return reconciled, err
		}
		reconciled = append(reconciled, *updated)
	}
	return reconciled, nil
}

// RequeueFailed returns failed tasks accepted by eligible (all when nil) to
// the queued stage they failed from, clearing their error. Requeued tasks
// are returned in insertion order.
func (s *Store) RequeueFailed(ctx context.Context, eligible func(Task) bool) ([]Task, error) {
	failed, err := s.ListByStage(ctx, StageFailed)
	if err != nil {
		return nil, err
	}
	requeued := make([]Task, 0, len(failed))
	for _, task := range failed {
		if eligible != nil && !eligible(task) {
			continue
		}
		updated, err := s.Update(ctx, task.ID, func(t *Task) error {
			if t.Stage != StageFailed {
				return errSkipTask
			}
			t.Requeue()
			return nil
		})
		if errors.Is(err, errSkipTask) {
			continue
		}
		if err != nil {
			return requeued, err
		}
		requeued = append(requeued, *updated)
	}
	return requeued, nil
}

var errSkipTask = errors.New("task changed concurrently")

// ClearFinished deletes completed and skipped tasks.
func (s *Store) ClearFinished(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM tasks WHERE stage IN (?, ?)`, StageCompleted, StageSkipped)
	if err != nil {
		return 0, unavailable("clear finished tasks", err)
	}
	return res.RowsAffected()
}

// PruneFinished deletes completed and skipped tasks last updated before cutoff.
func (s *Store) PruneFinished(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`DELETE FROM tasks WHERE stage IN (?, ?) AND updated_at < ?`,
		StageCompleted, StageSkipped, formatTime(cutoff),
	)
	if err != nil {
		return 0, unavailable("prune finished tasks", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of tasks grouped by stage.
func (s *Store) Stats(ctx context.Context) (map[Stage]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT stage, COUNT(1) FROM tasks GROUP BY stage`)
	if err != nil {
		return nil, unavailable("task stats", err)
	}
	defer rows.Close()

	stats := make(map[Stage]int)
	for rows.Next() {
		var stage Stage
		var count int
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, unavailable("scan task stats", err)
		}
		stats[stage] = count
	}
	return stats, rows.Err()
}

// CheckHealth returns diagnostic information about the task database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return health, errors.New("task database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat task database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("task database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping task database: %w", err)
	}
	health.DatabaseReadable = true

	if err := s.db.QueryRowContext(connCtx, "SELECT version FROM schema_version LIMIT 1").Scan(&health.SchemaVersion); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("read schema version: %w", err)
	}
	if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM tasks").Scan(&health.TotalTasks); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("count tasks: %w", err)
	}

	var integrity string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrity, "ok")
	return health, nil
}
