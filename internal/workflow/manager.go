package workflow

import (
	"context"
	"log/slog"
	"sync"

	"harvester/internal/config"
	"harvester/internal/dedup"
	"harvester/internal/logging"
	"harvester/internal/notifications"
	"harvester/internal/queue"
	"harvester/internal/stage"
	"harvester/internal/stagequeue"
)

// Manager coordinates the download and upload worker pools.
type Manager struct {
	cfg        *config.Config
	store      *queue.Store
	index      *dedup.Index
	downloader stage.Downloader
	uploader   stage.Uploader
	logger     *slog.Logger
	notifier   notifications.Service

	lanes     map[laneKind]*laneState
	laneOrder []laneKind

	mu             sync.RWMutex
	running        bool
	lastErr        error
	onStoreFailure func(error)
}

// NewManager constructs a workflow manager publishing through the configured
// notification service.
func NewManager(cfg *config.Config, store *queue.Store, index *dedup.Index, downloader stage.Downloader, uploader stage.Uploader, logger *slog.Logger) *Manager {
	return NewManagerWithNotifier(cfg, store, index, downloader, uploader, logger, notifications.NewService(cfg))
}

// NewManagerWithNotifier constructs a workflow manager with a custom notifier (used in tests).
func NewManagerWithNotifier(cfg *config.Config, store *queue.Store, index *dedup.Index, downloader stage.Downloader, uploader stage.Uploader, logger *slog.Logger, notifier notifications.Service) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	m := &Manager{
		cfg:        cfg,
		store:      store,
		index:      index,
		downloader: downloader,
		uploader:   uploader,
		logger:     logging.NewComponentLogger(logger, "workflow-manager"),
		notifier:   notifier,
		lanes:      make(map[laneKind]*laneState, 2),
		laneOrder:  []laneKind{laneDownload, laneUpload},
	}
	m.lanes[laneDownload] = &laneState{
		kind:    laneDownload,
		queue:   stagequeue.New(string(laneDownload)),
		workers: cfg.Workflow.DownloadWorkers,
		active:  queue.StageDownloading,
		process: m.processDownload,
	}
	m.lanes[laneUpload] = &laneState{
		kind:    laneUpload,
		queue:   stagequeue.New(string(laneUpload)),
		workers: cfg.Workflow.UploadWorkers,
		active:  queue.StageUploading,
		process: m.processUpload,
	}
	return m
}

type laneKind string

const (
	laneDownload laneKind = "download"
	laneUpload   laneKind = "upload"
)

type laneState struct {
	kind    laneKind
	queue   *stagequeue.Queue
	workers int
	active  queue.Stage
	process func(ctx context.Context, lane *laneState, logger *slog.Logger, id string)
}

// DownloadQueue returns the queue feeding the download pool.
func (m *Manager) DownloadQueue() *stagequeue.Queue {
	return m.lanes[laneDownload].queue
}

// UploadQueue returns the queue feeding the upload pool.
func (m *Manager) UploadQueue() *stagequeue.Queue {
	return m.lanes[laneUpload].queue
}

// Enqueue pushes a task onto the queue matching its queued stage. Tasks in
// any other stage are ignored.
func (m *Manager) Enqueue(task *queue.Task) bool {
	if task == nil {
		return false
	}
	switch task.Stage {
	case queue.StageQueuedDownload:
		return m.DownloadQueue().Push(task.ID)
	case queue.StageQueuedUpload:
		return m.UploadQueue().Push(task.ID)
	default:
		return false
	}
}

// ActiveDownloads returns the number of downloads in flight.
func (m *Manager) ActiveDownloads() int {
	return m.DownloadQueue().InFlight()
}

// ActiveUploads returns the number of uploads in flight.
func (m *Manager) ActiveUploads() int {
	return m.UploadQueue().InFlight()
}

// Idle reports whether both queues are empty and no unit is in flight.
func (m *Manager) Idle() bool {
	for _, kind := range m.laneOrder {
		if !m.lanes[kind].queue.Idle() {
			return false
		}
	}
	return true
}

// WaitIdle blocks until the pools drain or ctx ends.
func (m *Manager) WaitIdle(ctx context.Context) error {
	for {
		waits := make([]<-chan struct{}, 0, len(m.laneOrder))
		for _, kind := range m.laneOrder {
			waits = append(waits, m.lanes[kind].queue.Changed())
		}
		if m.Idle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-waits[0]:
		case <-waits[1]:
		}
	}
}

// OnStoreFailure registers the handler invoked when the task store or dedup
// index becomes unavailable during processing.
func (m *Manager) OnStoreFailure(fn func(error)) {
	m.mu.Lock()
	m.onStoreFailure = fn
	m.mu.Unlock()
}

// Running reports whether the pools are currently running.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// LastError returns the most recent processing error, if any.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// StageHealth runs the collaborator health checks.
func (m *Manager) StageHealth(ctx context.Context) []stage.Health {
	health := make([]stage.Health, 0, 2)
	if m.downloader != nil {
		health = append(health, m.downloader.HealthCheck(ctx))
	} else {
		health = append(health, stage.Unhealthy(string(laneDownload), "downloader not configured"))
	}
	if m.uploader != nil {
		health = append(health, m.uploader.HealthCheck(ctx))
	} else {
		health = append(health, stage.Unhealthy(string(laneUpload), "uploader not configured"))
	}
	return health
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
