package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"harvester/internal/config"
	"harvester/internal/dedup"
	"harvester/internal/discovery"
	"harvester/internal/logging"
	"harvester/internal/notifications"
	"harvester/internal/queue"
	"harvester/internal/workflow"
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("orchestrator closed")

// CycleStats describes the current or most recent discovery cycle.
type CycleStats struct {
	CorrelationID string
	StartedAt     time.Time
	FinishedAt    time.Time
	PagesScanned  int
	Admitted      int
	Requeued      int
	Rejected      map[string]int
}

func (c CycleStats) clone() CycleStats {
	out := c
	if c.Rejected != nil {
		out.Rejected = make(map[string]int, len(c.Rejected))
		for k, v := range c.Rejected {
			out.Rejected[k] = v
		}
	}
	return out
}

// State is a point-in-time view of the control plane.
type State struct {
	Running   bool
	Stopping  bool
	StoreDown bool
	LastError string
	Cycle     CycleStats
}

// Ack acknowledges a control request.
type Ack struct {
	OK         bool
	Noop       bool
	Message    string
	Running    bool
	Stopping   bool
	ResetCount int
}

// Orchestrator runs discovery cycles against the workflow pools.
type Orchestrator struct {
	cfg      *config.Config
	store    *queue.Store
	index    *dedup.Index
	source   discovery.Source
	workflow *workflow.Manager
	notifier notifications.Service
	logger   *slog.Logger
	now      func() time.Time

	execCtx    context.Context
	cancelExec context.CancelFunc

	mu        sync.Mutex
	running   bool
	stopping  bool
	closed    bool
	storeDown bool
	lastErr   error
	cancel    context.CancelFunc
	done      chan struct{}
	cycle     CycleStats
	onChange  func()
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithNotifier overrides the notification service.
func WithNotifier(n notifications.Service) Option {
	return func(o *Orchestrator) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithClock overrides the time source used for admission and retention.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New wires an orchestrator. Transfers run on an internal context that only
// Close cancels, so Stop never interrupts them.
func New(cfg *config.Config, store *queue.Store, index *dedup.Index, source discovery.Source, manager *workflow.Manager, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	execCtx, cancelExec := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:        cfg,
		store:      store,
		index:      index,
		source:     source,
		workflow:   manager,
		notifier:   notifications.NewService(cfg),
		logger:     logging.NewComponentLogger(logger, "orchestrator"),
		now:        time.Now,
		execCtx:    execCtx,
		cancelExec: cancelExec,
	}
	for _, opt := range opts {
		opt(o)
	}
	manager.OnStoreFailure(o.haltForStore)
	return o
}

// OnChange registers a callback invoked after every control-plane state
// change. It must not block.
func (o *Orchestrator) OnChange(fn func()) {
	o.mu.Lock()
	o.onChange = fn
	o.mu.Unlock()
}

func (o *Orchestrator) changed() {
	o.mu.Lock()
	fn := o.onChange
	o.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// State returns the current control-plane state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	state := State{
		Running:   o.running,
		Stopping:  o.stopping,
		StoreDown: o.storeDown,
		Cycle:     o.cycle.clone(),
	}
	if o.lastErr != nil {
		state.LastError = o.lastErr.Error()
	}
	return state
}

// Workflow returns the worker pool manager.
func (o *Orchestrator) Workflow() *workflow.Manager {
	return o.workflow
}

// Start launches a discovery cycle. It is a no-op while a cycle runs. When
// a durable-state failure halted the previous cycle, the store must answer
// a ping before a new cycle starts.
func (o *Orchestrator) Start(ctx context.Context) (Ack, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return Ack{}, ErrClosed
	}
	if o.running {
		ack := o.ackLocked(true, "cycle already running")
		o.mu.Unlock()
		return ack, nil
	}
	storeDown := o.storeDown
	o.mu.Unlock()

	if storeDown {
		if err := o.checkStores(ctx); err != nil {
			return Ack{}, fmt.Errorf("durable state still unavailable: %w", err)
		}
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return Ack{}, ErrClosed
	}
	if o.running {
		ack := o.ackLocked(true, "cycle already running")
		o.mu.Unlock()
		return ack, nil
	}
	cycleCtx, cancel := context.WithCancel(o.execCtx)
	done := make(chan struct{})
	o.running = true
	o.stopping = false
	o.storeDown = false
	o.cancel = cancel
	o.done = done
	o.cycle = CycleStats{
		CorrelationID: uuid.NewString(),
		StartedAt:     o.now(),
		Rejected:      make(map[string]int),
	}
	correlationID := o.cycle.CorrelationID
	ack := o.ackLocked(false, "cycle started")
	o.mu.Unlock()

	go o.runCycle(cycleCtx, correlationID, done)
	o.changed()
	return ack, nil
}

// Stop requests a cooperative stop of the running cycle. Admission halts at
// the next checkpoint and in-flight transfers finish. Stop does not wait;
// use Wait for that.
func (o *Orchestrator) Stop() Ack {
	o.mu.Lock()
	if !o.running {
		ack := o.ackLocked(true, "no cycle running")
		o.mu.Unlock()
		return ack
	}
	if o.stopping {
		ack := o.ackLocked(true, "stop already requested")
		o.mu.Unlock()
		return ack
	}
	o.stopping = true
	cancel := o.cancel
	ack := o.ackLocked(false, "stop requested")
	o.mu.Unlock()

	cancel()
	o.logger.Info("cycle stop requested", logging.String(logging.FieldEventType, "cycle_stop_requested"))
	o.changed()
	return ack
}

// Wait blocks until the current cycle, if any, has finished.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	done := o.done
	running := o.running
	o.mu.Unlock()
	if !running || done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ResetFailed requeues every failed task to the stage it failed from. The
// attempt count is kept, so the next attempt counts as a fresh one. Tasks
// are picked up by the running cycle or by the next Start.
func (o *Orchestrator) ResetFailed(ctx context.Context) (Ack, error) {
	requeued, err := o.store.RequeueFailed(ctx, nil)
	for i := range requeued {
		o.workflow.Enqueue(&requeued[i])
	}
	if err != nil {
		if ctx.Err() == nil {
			o.recordStoreError(err)
		}
		return Ack{}, fmt.Errorf("reset failed tasks: %w", err)
	}

	o.mu.Lock()
	message := fmt.Sprintf("%d failed tasks requeued", len(requeued))
	if len(requeued) > 0 && !o.running {
		message += "; they run on the next start"
	}
	ack := o.ackLocked(len(requeued) == 0, message)
	ack.ResetCount = len(requeued)
	o.mu.Unlock()

	o.logger.Info("failed tasks reset",
		logging.String(logging.FieldEventType, "reset_failed"),
		logging.Int("count", len(requeued)),
	)
	o.changed()
	return ack, nil
}

// Close interrupts in-flight transfers, stops the running cycle, and waits
// for it to finish. Interrupted transfers land in failed and are retried
// automatically on a later cycle.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	cancel := o.cancel
	done := o.done
	running := o.running
	if running {
		o.stopping = true
	}
	o.mu.Unlock()

	o.cancelExec()
	if cancel != nil {
		cancel()
	}
	if running && done != nil {
		<-done
	}
}

func (o *Orchestrator) ackLocked(noop bool, message string) Ack {
	return Ack{
		OK:       true,
		Noop:     noop,
		Message:  message,
		Running:  o.running,
		Stopping: o.stopping,
	}
}

// haltForStore treats a durability failure like Stop and blocks Start until
// the store answers again.
func (o *Orchestrator) haltForStore(err error) {
	o.mu.Lock()
	o.storeDown = true
	o.lastErr = err
	var cancel context.CancelFunc
	if o.running && !o.stopping {
		o.stopping = true
		cancel = o.cancel
	}
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	logging.ErrorWithContext(o.logger, "halting admission: durable state unavailable", "store_unavailable",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the data directory; start again once the database is reachable"),
	)
	o.changed()
}

func (o *Orchestrator) recordStoreError(err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	if workflow.IsStoreUnavailable(err) {
		o.haltForStore(err)
		return
	}
	o.setLastError(err)
}

func (o *Orchestrator) setLastError(err error) {
	o.mu.Lock()
	o.lastErr = err
	o.mu.Unlock()
}

func (o *Orchestrator) checkStores(ctx context.Context) error {
	if err := o.store.Ping(ctx); err != nil {
		return err
	}
	return o.index.Ping(ctx)
}
