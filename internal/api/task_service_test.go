package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"harvester/internal/dedup"
	"harvester/internal/queue"
)

type mockTaskReader struct {
	tasks    []queue.Task
	byStage  []queue.Stage
	err      error
	notFound bool
}

func (m *mockTaskReader) List(context.Context) ([]queue.Task, error) {
	return m.tasks, m.err
}

func (m *mockTaskReader) ListByStage(_ context.Context, stages ...queue.Stage) ([]queue.Task, error) {
	m.byStage = stages
	var out []queue.Task
	for _, task := range m.tasks {
		for _, s := range stages {
			if task.Stage == s {
				out = append(out, task)
			}
		}
	}
	return out, m.err
}

func (m *mockTaskReader) Get(_ context.Context, id string) (*queue.Task, error) {
	if m.notFound {
		return nil, queue.ErrNotFound
	}
	for _, task := range m.tasks {
		if task.ID == id {
			clone := task
			return &clone, nil
		}
	}
	return nil, m.err
}

type mockDedupReader struct {
	entries []dedup.Entry
}

func (m *mockDedupReader) List(context.Context) ([]dedup.Entry, error) {
	return m.entries, nil
}

func TestTaskServiceListFiltersByStage(t *testing.T) {
	reader := &mockTaskReader{tasks: []queue.Task{
		{ID: "A", Stage: queue.StageCompleted},
		{ID: "B", Stage: queue.StageFailed},
	}}
	svc := NewTaskService(reader, nil)

	all, err := svc.List(context.Background())
	if err != nil || len(all) != 2 {
		t.Fatalf("List = %d, %v", len(all), err)
	}
	failed, err := svc.List(context.Background(), queue.StageFailed)
	if err != nil {
		t.Fatalf("List(failed): %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "B" {
		t.Fatalf("unexpected filtered tasks %+v", failed)
	}
	if len(reader.byStage) != 1 || reader.byStage[0] != queue.StageFailed {
		t.Fatalf("expected stage filter passed through, got %v", reader.byStage)
	}
}

func TestTaskServiceDescribe(t *testing.T) {
	reader := &mockTaskReader{tasks: []queue.Task{{ID: "A", Title: "Alpha"}}}
	svc := NewTaskService(reader, nil)

	got, err := svc.Describe(context.Background(), " A ")
	if err != nil || got == nil || got.Title != "Alpha" {
		t.Fatalf("Describe = %+v, %v", got, err)
	}

	reader.notFound = true
	got, err = svc.Describe(context.Background(), "missing")
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil for missing task, got %+v, %v", got, err)
	}
}

func TestTaskServicePropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	svc := NewTaskService(&mockTaskReader{err: boom}, nil)
	if _, err := svc.List(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestTaskServiceDedup(t *testing.T) {
	when := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc := NewTaskService(nil, &mockDedupReader{entries: []dedup.Entry{{ID: "X", CompletedAt: when}}})
	entries, err := svc.Dedup(context.Background())
	if err != nil {
		t.Fatalf("Dedup: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "X" || entries[0].CompletedAt == "" {
		t.Fatalf("unexpected entries %+v", entries)
	}

	tasks, err := svc.List(context.Background())
	if err != nil || tasks == nil || len(tasks) != 0 {
		t.Fatalf("expected empty list without a task reader, got %v, %v", tasks, err)
	}
}

func TestParseStages(t *testing.T) {
	stages, err := ParseStages([]string{"failed, completed", ""})
	if err != nil {
		t.Fatalf("ParseStages: %v", err)
	}
	if len(stages) != 2 || stages[0] != queue.StageFailed || stages[1] != queue.StageCompleted {
		t.Fatalf("unexpected stages %v", stages)
	}

	_, err = ParseStages([]string{"bogus"})
	var unknown *UnknownStageError
	if !errors.As(err, &unknown) || unknown.Value != "bogus" {
		t.Fatalf("expected UnknownStageError, got %v", err)
	}
}
