package status

import (
	"context"
	"fmt"
	"time"

	"harvester/internal/dedup"
	"harvester/internal/orchestrator"
	"harvester/internal/queue"
)

// Snapshot is a consistent view of all tasks plus aggregate counters.
type Snapshot struct {
	Running         bool
	Stopping        bool
	StoreDown       bool
	DownloadQueue   int
	UploadQueue     int
	DownloadQueued  []string
	UploadQueued    []string
	ActiveDownloads int
	ActiveUploads   int
	ProcessedCount  int
	FailedCount     int
	DedupCount      int
	StageCounts     map[queue.Stage]int
	LastError       string
	Cycle           orchestrator.CycleStats
	Tasks           []queue.Task
	UpdatedAt       time.Time
	Sequence        uint64
}

// Projector assembles snapshots.
type Projector struct {
	store *queue.Store
	index *dedup.Index
	orch  *orchestrator.Orchestrator
	now   func() time.Time
}

// NewProjector constructs a projector.
func NewProjector(store *queue.Store, index *dedup.Index, orch *orchestrator.Orchestrator) *Projector {
	return &Projector{store: store, index: index, orch: orch, now: time.Now}
}

// Snapshot reads every task in one query, so the task list and the counters
// derived from it always agree.
func (p *Projector) Snapshot(ctx context.Context) (Snapshot, error) {
	tasks, err := p.store.List(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot tasks: %w", err)
	}
	snap := Snapshot{
		Tasks:       tasks,
		StageCounts: make(map[queue.Stage]int, len(queue.AllStages())),
		UpdatedAt:   p.now().UTC(),
	}
	for _, task := range tasks {
		snap.StageCounts[task.Stage]++
		if task.Stage.IsProcessed() {
			snap.ProcessedCount++
		}
		if task.Stage == queue.StageFailed {
			snap.FailedCount++
		}
	}

	if p.index != nil {
		count, err := p.index.Count(ctx)
		if err != nil {
			return Snapshot{}, fmt.Errorf("snapshot dedup count: %w", err)
		}
		snap.DedupCount = count
	}

	if p.orch != nil {
		state := p.orch.State()
		snap.Running = state.Running
		snap.Stopping = state.Stopping
		snap.StoreDown = state.StoreDown
		snap.LastError = state.LastError
		snap.Cycle = state.Cycle
		mgr := p.orch.Workflow()
		snap.DownloadQueued = mgr.DownloadQueue().Snapshot()
		snap.UploadQueued = mgr.UploadQueue().Snapshot()
		snap.DownloadQueue = len(snap.DownloadQueued)
		snap.UploadQueue = len(snap.UploadQueued)
		snap.ActiveDownloads = mgr.ActiveDownloads()
		snap.ActiveUploads = mgr.ActiveUploads()
	}
	return snap, nil
}
