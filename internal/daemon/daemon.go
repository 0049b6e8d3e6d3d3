package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"harvester/internal/api"
	"harvester/internal/config"
	"harvester/internal/dedup"
	"harvester/internal/logging"
	"harvester/internal/notifications"
	"harvester/internal/orchestrator"
	"harvester/internal/queue"
	"harvester/internal/stage"
	"harvester/internal/status"
)

// ErrAlreadyRunning is returned when another daemon holds the lock.
var ErrAlreadyRunning = errors.New("another harvester daemon instance is already running")

// Daemon owns the process lifecycle and the outward surfaces.
type Daemon struct {
	cfg      *config.Config
	base     *slog.Logger
	logger   *slog.Logger
	store    *queue.Store
	index    *dedup.Index
	orch     *orchestrator.Orchestrator
	notifier notifications.Service
	hub      *status.Hub
	tasks    *api.TaskService
	logPath  string

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	api     *apiServer
}

// Info describes the daemon process.
type Info struct {
	PID         int
	Running     bool
	TaskDBPath  string
	DedupDBPath string
	LockPath    string
	LogPath     string
	APIBind     string
}

// Option customises a Daemon.
type Option func(*Daemon)

// WithNotifier overrides the notification service used by test-notify.
func WithNotifier(n notifications.Service) Option {
	return func(d *Daemon) {
		if n != nil {
			d.notifier = n
		}
	}
}

// WithLogPath records the session log file reported by Info.
func WithLogPath(path string) Option {
	return func(d *Daemon) { d.logPath = path }
}

// New constructs a daemon. Store and orchestrator change hooks are pointed
// at the status hub.
func New(cfg *config.Config, store *queue.Store, index *dedup.Index, orch *orchestrator.Orchestrator, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || index == nil || orch == nil {
		return nil, errors.New("daemon requires config, store, dedup index, and orchestrator")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	projector := status.NewProjector(store, index, orch)
	d := &Daemon{
		cfg:      cfg,
		base:     logger,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		index:    index,
		orch:     orch,
		notifier: notifications.NewService(cfg),
		hub:      status.NewHub(projector, cfg.ProgressInterval(), logger),
		tasks:    api.NewTaskService(store, index),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	for _, opt := range opts {
		opt(d)
	}
	store.OnChange(func(queue.Task) { d.hub.Notify() })
	orch.OnChange(d.hub.Notify)
	return d, nil
}

// Start acquires the lock, reconciles interrupted tasks, and launches the
// status hub, HTTP API, and scheduler. A second instance fails fast.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}

	if _, err := d.orch.Recover(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("recover tasks: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	srv, err := newAPIServer(d.cfg, d, d.base)
	if err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	if err := srv.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	d.api = srv
	d.cancel = cancel
	d.running = true

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.hub.Run(runCtx)
	}()
	go func() {
		defer d.wg.Done()
		d.runScheduler(runCtx)
	}()
	d.hub.Notify()

	d.logger.Info("harvester daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
		logging.String("api", srv.addr()),
	)
	return nil
}

// Close interrupts in-flight work, stops the surfaces, and releases the
// lock. The store and index stay open; their owner closes them.
func (d *Daemon) Close() {
	d.mu.Lock()
	running := d.running
	cancel := d.cancel
	srv := d.api
	d.running = false
	d.cancel = nil
	d.api = nil
	d.mu.Unlock()

	d.orch.Close()
	if !running {
		return
	}
	if cancel != nil {
		cancel()
	}
	srv.stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_lock_release_failed"),
			logging.String(logging.FieldImpact, "the next start may report another instance"),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no daemon is running"),
		)
	}
	d.logger.Info("harvester daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Running reports whether Start succeeded and Close has not run.
func (d *Daemon) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Info returns process details.
func (d *Daemon) Info() Info {
	info := Info{
		PID:         os.Getpid(),
		Running:     d.Running(),
		TaskDBPath:  d.store.Path(),
		DedupDBPath: d.index.Path(),
		LockPath:    d.lockPath,
		LogPath:     d.logPath,
	}
	d.mu.Lock()
	if d.api != nil {
		info.APIBind = d.api.addr()
	}
	d.mu.Unlock()
	return info
}

// StartCycle begins a discovery cycle.
func (d *Daemon) StartCycle(ctx context.Context) (api.Ack, error) {
	ack, err := d.orch.Start(ctx)
	if err != nil {
		return api.Ack{}, err
	}
	return api.FromAck(ack), nil
}

// StopCycle requests a cooperative stop of the running cycle.
func (d *Daemon) StopCycle() api.Ack {
	return api.FromAck(d.orch.Stop())
}

// ResetFailed requeues every failed task.
func (d *Daemon) ResetFailed(ctx context.Context) (api.Ack, error) {
	ack, err := d.orch.ResetFailed(ctx)
	if err != nil {
		return api.Ack{}, err
	}
	return api.FromAck(ack), nil
}

// Status takes a fresh snapshot and publishes it to subscribers.
func (d *Daemon) Status(ctx context.Context) (api.Status, error) {
	snap, err := d.hub.Snapshot(ctx)
	if err != nil {
		return api.Status{}, err
	}
	return api.FromSnapshot(snap, d.stageHealth(ctx)), nil
}

// Subscribe registers a push subscriber on the status hub.
func (d *Daemon) Subscribe() (<-chan status.Snapshot, func()) {
	return d.hub.Subscribe()
}

// Convert renders a pushed snapshot for the wire.
func (d *Daemon) Convert(ctx context.Context, snap status.Snapshot) api.Status {
	return api.FromSnapshot(snap, d.stageHealth(ctx))
}

func (d *Daemon) stageHealth(ctx context.Context) []stage.Health {
	return d.orch.Workflow().StageHealth(ctx)
}

// ListTasks returns tasks in insertion order, optionally filtered by stage.
func (d *Daemon) ListTasks(ctx context.Context, stages []queue.Stage) ([]api.Task, error) {
	return d.tasks.List(ctx, stages...)
}

// Task returns one task, or nil when it does not exist.
func (d *Daemon) Task(ctx context.Context, id string) (*api.Task, error) {
	return d.tasks.Describe(ctx, id)
}

// ClearFinished removes completed and skipped tasks. The dedup index keeps
// their identifiers.
func (d *Daemon) ClearFinished(ctx context.Context) (int64, error) {
	removed, err := d.store.ClearFinished(ctx)
	if err != nil {
		return 0, err
	}
	d.logger.Info("finished tasks cleared",
		logging.String(logging.FieldEventType, "clear_finished"),
		logging.Int64("removed_count", removed),
	)
	d.hub.Notify()
	return removed, nil
}

// DedupList returns every recorded identifier.
func (d *Daemon) DedupList(ctx context.Context) ([]api.DedupEntry, error) {
	return d.tasks.Dedup(ctx)
}

// DedupRecord marks an identifier as delivered so discovery never admits
// it again.
func (d *Daemon) DedupRecord(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("dedup id is required")
	}
	if err := d.index.Record(ctx, id); err != nil {
		return err
	}
	d.logger.Info("identifier recorded manually",
		logging.String(logging.FieldEventType, "dedup_record"),
		logging.String(logging.FieldTaskID, id),
	)
	d.hub.Notify()
	return nil
}

// TestNotification sends a test notification using the current
// configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// DatabaseHealth returns task store diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}
