package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Put inserts a new task. Stage defaults to discovered and AddedAt to now.
// An existing id yields ErrExists.
func (s *Store) Put(ctx context.Context, task *Task) (*Task, error) {
	if task == nil {
		return nil, errors.New("put task: task is nil")
	}
	id := strings.TrimSpace(task.ID)
	if id == "" {
		return nil, errors.New("put task: id is required")
	}

	stored := task.Clone()
	stored.ID = id
	if stored.Stage == "" {
		stored.Stage = StageDiscovered
	}
	if _, ok := stageSet[stored.Stage]; !ok {
		return nil, fmt.Errorf("put task %s: unknown stage %q", id, stored.Stage)
	}
	now := time.Now().UTC()
	if stored.AddedAt.IsZero() {
		stored.AddedAt = now
	}
	stored.UpdatedAt = now
	stored.Progress = clampProgress(stored.Progress)

	release := s.locks.Lock(id)
	defer release()

	if _, err := s.get(ctx, id); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, id)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	res, err := s.execWithRetry(ctx,
		`INSERT INTO tasks (id, title, stage, progress, error_message, failure_kind, failed_from,
            attempt_count, source_ref, published_at, rating, local_path, remote_path, added_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID,
		stored.Title,
		stored.Stage,
		stored.Progress,
		nullableString(stored.Error),
		nullableString(string(stored.FailureKind)),
		nullableString(string(stored.FailedFrom)),
		stored.AttemptCount,
		nullableString(stored.SourceRef),
		nullableTime(stored.PublishedAt),
		stored.Rating,
		nullableString(stored.LocalPath),
		nullableString(stored.RemotePath),
		formatTime(stored.AddedAt),
		formatTime(stored.UpdatedAt),
	)
	if err != nil {
		return nil, unavailable("insert task", err)
	}
	if seq, err := res.LastInsertId(); err == nil {
		stored.Seq = seq
	}
	s.notify(stored)
	return stored.Clone(), nil
}

// Get returns the task with id or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Task, error) {
	return s.get(ensureContext(ctx), strings.TrimSpace(id))
}

func (s *Store) get(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, unavailable("get task", err)
	}
	return task, nil
}

// List returns every task ordered by insertion.
func (s *Store) List(ctx context.Context) ([]Task, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT "+taskColumns+" FROM tasks ORDER BY seq")
	if err != nil {
		return nil, unavailable("list tasks", err)
	}
	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, unavailable("scan tasks", err)
	}
	return tasks, nil
}

// ListByStage returns tasks in any of the given stages ordered by insertion.
func (s *Store) ListByStage(ctx context.Context, stages ...Stage) ([]Task, error) {
	if len(stages) == 0 {
		return s.List(ctx)
	}
	args := make([]any, 0, len(stages))
	for _, stage := range stages {
		args = append(args, stage)
	}
	query := "SELECT " + taskColumns + " FROM tasks WHERE stage IN (" + makePlaceholders(len(stages)) + ") ORDER BY seq"
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, unavailable("list tasks by stage", err)
	}
	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, unavailable("scan tasks", err)
	}
	return tasks, nil
}

// Update applies mutate to the current task state and persists the result.
// Concurrent updates of the same id are serialized. A mutator error aborts
// the update without writing. Stage changes are validated against the
// lifecycle; id and title are immutable. The returned task is the state
// that was durably written.
func (s *Store) Update(ctx context.Context, id string, mutate func(*Task) error) (*Task, error) {
	ctx = ensureContext(ctx)
	id = strings.TrimSpace(id)

	release := s.locks.Lock(id)
	defer release()

	current, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	next := current.Clone()
	if mutate != nil {
		if err := mutate(next); err != nil {
			return nil, err
		}
	}
	if err := normalizeUpdate(current, next); err != nil {
		return nil, err
	}

	if _, err := s.execWithRetry(ctx,
		`UPDATE tasks
         SET stage = ?, progress = ?, error_message = ?, failure_kind = ?, failed_from = ?,
             attempt_count = ?, source_ref = ?, published_at = ?, rating = ?, local_path = ?,
             remote_path = ?, updated_at = ?
         WHERE id = ?`,
		next.Stage,
		next.Progress,
		nullableString(next.Error),
		nullableString(string(next.FailureKind)),
		nullableString(string(next.FailedFrom)),
		next.AttemptCount,
		nullableString(next.SourceRef),
		nullableTime(next.PublishedAt),
		next.Rating,
		nullableString(next.LocalPath),
		nullableString(next.RemotePath),
		formatTime(next.UpdatedAt),
		next.ID,
	); err != nil {
		return nil, unavailable("update task", err)
	}
	s.notify(next)
	return next.Clone(), nil
}

// UpdateProgress records transfer progress for an active task. Updates that
// arrive after the task left the given stage or attempt are ignored, and
// progress never moves backwards within an attempt.
func (s *Store) UpdateProgress(ctx context.Context, id string, stage Stage, attempt int, fraction float64) error {
	_, err := s.Update(ctx, id, func(task *Task) error {
		if task.Stage != stage || task.AttemptCount != attempt {
			return errStaleProgress
		}
		task.Progress = fraction
		return nil
	})
	if errors.Is(err, errStaleProgress) {
		return nil
	}
	return err
}

var errStaleProgress = errors.New("stale progress update")

func normalizeUpdate(current, next *Task) error {
	if next.ID != current.ID || next.Title != current.Title {
		return fmt.Errorf("%w: task %s id and title are immutable", ErrInvalidTransition, current.ID)
	}
	if _, ok := stageSet[next.Stage]; !ok {
		return &TransitionError{ID: current.ID, From: current.Stage, To: next.Stage}
	}
	if !CanTransition(current.Stage, next.Stage) {
		return &TransitionError{ID: current.ID, From: current.Stage, To: next.Stage}
	}

	next.Seq = current.Seq
	next.AddedAt = current.AddedAt
	next.UpdatedAt = time.Now().UTC()
	next.Progress = clampProgress(next.Progress)

	switch {
	case next.Stage.IsActive():
		if next.Stage == current.Stage && next.AttemptCount == current.AttemptCount && next.Progress < current.Progress {
			next.Progress = current.Progress
		}
	case next.Stage.IsQueued(), next.Stage == StageDiscovered:
		next.Progress = 0
	case next.Stage.IsProcessed():
		next.Progress = 1
	}
	if next.Stage != StageFailed {
		next.Error = ""
		next.FailureKind = ""
	}
	return nil
}
