package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"harvester/internal/dedup"
	"harvester/internal/queue"
)

// TaskReader abstracts the task store reads needed for API queries.
type TaskReader interface {
	List(ctx context.Context) ([]queue.Task, error)
	ListByStage(ctx context.Context, stages ...queue.Stage) ([]queue.Task, error)
	Get(ctx context.Context, id string) (*queue.Task, error)
}

// DedupReader abstracts the dedup index reads needed for API queries.
type DedupReader interface {
	List(ctx context.Context) ([]dedup.Entry, error)
}

// TaskService exposes read-only task and dedup queries returning API DTOs.
type TaskService struct {
	tasks TaskReader
	dedup DedupReader
}

// NewTaskService constructs a TaskService. Either reader may be nil.
func NewTaskService(tasks TaskReader, index DedupReader) *TaskService {
	return &TaskService{tasks: tasks, dedup: index}
}

// ParseStages validates stage filters. Empty values are ignored.
func ParseStages(values []string) ([]queue.Stage, error) {
	var stages []queue.Stage
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			s, ok := queue.ParseStage(part)
			if !ok {
				return nil, &UnknownStageError{Value: strings.TrimSpace(part)}
			}
			stages = append(stages, s)
		}
	}
	return stages, nil
}

// UnknownStageError reports an unrecognised stage filter.
type UnknownStageError struct {
	Value string
}

func (e *UnknownStageError) Error() string {
	return fmt.Sprintf("unknown stage %q", e.Value)
}

// List returns tasks in insertion order, optionally filtered by stage.
func (s *TaskService) List(ctx context.Context, stages ...queue.Stage) ([]Task, error) {
	if s == nil || s.tasks == nil {
		return []Task{}, nil
	}
	var (
		tasks []queue.Task
		err   error
	)
	if len(stages) == 0 {
		tasks, err = s.tasks.List(ctx)
	} else {
		tasks, err = s.tasks.ListByStage(ctx, stages...)
	}
	if err != nil {
		return nil, err
	}
	return FromTasks(tasks), nil
}

// Describe fetches a single task. A missing task yields nil without error.
func (s *TaskService) Describe(ctx context.Context, id string) (*Task, error) {
	if s == nil || s.tasks == nil {
		return nil, nil
	}
	task, err := s.tasks.Get(ctx, strings.TrimSpace(id))
	if errors.Is(err, queue.ErrNotFound) {
		return nil, nil
	}
	if err != nil || task == nil {
		return nil, err
	}
	dto := FromTask(*task)
	return &dto, nil
}

// Dedup returns every recorded identifier.
func (s *TaskService) Dedup(ctx context.Context) ([]DedupEntry, error) {
	if s == nil || s.dedup == nil {
		return []DedupEntry{}, nil
	}
	entries, err := s.dedup.List(ctx)
	if err != nil {
		return nil, err
	}
	return FromDedupEntries(entries), nil
}
