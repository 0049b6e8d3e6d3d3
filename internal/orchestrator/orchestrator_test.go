package orchestrator_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"harvester/internal/config"
	"harvester/internal/dedup"
	"harvester/internal/discovery"
	"harvester/internal/notifications"
	"harvester/internal/orchestrator"
	"harvester/internal/queue"
	"harvester/internal/services"
	"harvester/internal/stage"
	"harvester/internal/testsupport"
	"harvester/internal/workflow"
)

type stubSource struct {
	mu    sync.Mutex
	pages map[string]discovery.Page
	err   error
	calls []string
}

func (s *stubSource) FetchPage(_ context.Context, token string) (discovery.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, token)
	if s.err != nil {
		return discovery.Page{}, s.err
	}
	page, ok := s.pages[token]
	if !ok {
		return discovery.Page{Token: token}, nil
	}
	return page, nil
}

func (s *stubSource) offer(items ...discovery.Item) {
	s.mu.Lock()
	s.pages = map[string]discovery.Page{"": {Token: "1", Items: items}}
	s.mu.Unlock()
}

func (s *stubSource) setPages(pages map[string]discovery.Page) {
	s.mu.Lock()
	s.pages = pages
	s.mu.Unlock()
}

type stubDownloader struct {
	dir     string
	fail    func(call int) error
	block   chan struct{}
	started chan string

	mu    sync.Mutex
	calls int
}

func (s *stubDownloader) Download(ctx context.Context, task *queue.Task, onProgress stage.ProgressFunc) (string, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()
	if s.started != nil {
		s.started <- task.ID
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return "", services.Wrap(services.ErrInterrupted, "download", "transfer", "transfer cancelled", ctx.Err())
		}
	}
	if s.fail != nil {
		if err := s.fail(call); err != nil {
			return "", err
		}
	}
	onProgress(1)
	path := filepath.Join(s.dir, task.ID+".mp4")
	if err := os.WriteFile(path, []byte("media"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (s *stubDownloader) HealthCheck(context.Context) stage.Health { return stage.Healthy("download") }

type stubUploader struct {
	outcome stage.UploadOutcome
}

func (s *stubUploader) Upload(_ context.Context, localPath, targetFolder string, _ stage.ProgressFunc) (stage.UploadResult, error) {
	outcome := s.outcome
	if outcome == "" {
		outcome = stage.Uploaded
	}
	return stage.UploadResult{Outcome: outcome, RemotePath: filepath.Join(targetFolder, filepath.Base(localPath))}, nil
}

func (s *stubUploader) HealthCheck(context.Context) stage.Health { return stage.Healthy("upload") }

type nopNotifier struct{}

func (nopNotifier) Publish(context.Context, notifications.Event, notifications.Payload) error {
	return nil
}

type harness struct {
	cfg        *config.Config
	store      *queue.Store
	index      *dedup.Index
	source     *stubSource
	downloader *stubDownloader
	uploader   *stubUploader
	mgr        *workflow.Manager
	orch       *orchestrator.Orchestrator
	now        time.Time
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	h := &harness{
		cfg:        cfg,
		store:      testsupport.MustOpenStore(t, cfg),
		index:      testsupport.MustOpenIndex(t, cfg),
		source:     &stubSource{},
		downloader: &stubDownloader{dir: t.TempDir()},
		uploader:   &stubUploader{},
		now:        time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	h.mgr = workflow.NewManagerWithNotifier(cfg, h.store, h.index, h.downloader, h.uploader, nil, nopNotifier{})
	h.orch = orchestrator.New(cfg, h.store, h.index, h.source, h.mgr, nil,
		orchestrator.WithNotifier(nopNotifier{}),
		orchestrator.WithClock(func() time.Time { return h.now }),
	)
	t.Cleanup(h.orch.Close)
	return h
}

func (h *harness) item(id string, ageDays int, rating float64) discovery.Item {
	return discovery.Item{
		ID:          id,
		Title:       id + " title",
		PublishedAt: h.now.AddDate(0, 0, -ageDays),
		Rating:      rating,
		SourceRef:   "http://listing.invalid/videos/" + id,
	}
}

func (h *harness) cycle(t *testing.T) {
	t.Helper()
	ack, err := h.orch.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if ack.Noop || !ack.Running {
		t.Fatalf("expected a new cycle, got %+v", ack)
	}
	h.wait(t)
}

func (h *harness) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.orch.Wait(ctx); err != nil {
		t.Fatalf("cycle did not finish: %v", err)
	}
	if state := h.orch.State(); state.Running || state.Stopping {
		t.Fatalf("expected idle state after cycle, got %+v", state)
	}
}

func (h *harness) task(t *testing.T, id string) *queue.Task {
	t.Helper()
	task, err := h.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s): %v", id, err)
	}
	return task
}

func (h *harness) tasks(t *testing.T) []queue.Task {
	t.Helper()
	tasks, err := h.store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	return tasks
}

func TestAdmissionRejections(t *testing.T) {
	cases := []struct {
		name   string
		age    int
		rating float64
		reason string
	}{
		{"too recent", 2, 80, orchestrator.ReasonTooRecent},
		{"low rating", 5, 60, orchestrator.ReasonLowRating},
		{"too old", 45, 90, orchestrator.ReasonTooOld},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.source.offer(h.item("FC2-PPV-1001", tc.age, tc.rating))
			h.cycle(t)

			if tasks := h.tasks(t); len(tasks) != 0 {
				t.Fatalf("expected store untouched, got %d tasks", len(tasks))
			}
			state := h.orch.State()
			if state.Cycle.Rejected[tc.reason] != 1 || state.Cycle.Admitted != 0 {
				t.Fatalf("expected one %s rejection, got %+v", tc.reason, state.Cycle)
			}
		})
	}
}

func TestAdmissionRejectsMissingDate(t *testing.T) {
	h := newHarness(t)
	item := h.item("FC2-PPV-1002", 5, 90)
	item.PublishedAt = time.Time{}
	decision, err := h.orch.Admit(context.Background(), item)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if decision.Admitted || decision.Reason != orchestrator.ReasonMissingDate {
		t.Fatalf("unexpected decision %+v", decision)
	}
}

func TestDuplicateUploadEndsSkipped(t *testing.T) {
	h := newHarness(t)
	h.uploader.outcome = stage.Duplicate
	h.source.offer(h.item("FC2-PPV-2001", 5, 90))
	h.cycle(t)

	task := h.task(t, "FC2-PPV-2001")
	if task.Stage != queue.StageSkipped {
		t.Fatalf("expected skipped, got %s (%s)", task.Stage, task.Error)
	}
	if ok, _ := h.index.Contains(context.Background(), task.ID); ok {
		t.Fatal("skipped task must not be recorded in the dedup index")
	}
}

func TestCompletedTaskIsNeverReadmitted(t *testing.T) {
	h := newHarness(t)
	h.source.offer(h.item("FC2-PPV-3001", 5, 90))
	h.cycle(t)

	task := h.task(t, "FC2-PPV-3001")
	if task.Stage != queue.StageCompleted {
		t.Fatalf("expected completed, got %s (%s)", task.Stage, task.Error)
	}
	if ok, err := h.index.Contains(context.Background(), task.ID); err != nil || !ok {
		t.Fatalf("expected dedup entry, got %v %v", ok, err)
	}

	h.cycle(t)
	if got := h.orch.State().Cycle.Rejected[orchestrator.ReasonKnown]; got != 1 {
		t.Fatalf("expected known rejection while the task is stored, got %d", got)
	}

	if _, err := h.store.ClearFinished(context.Background()); err != nil {
		t.Fatalf("ClearFinished: %v", err)
	}
	h.cycle(t)
	if got := h.orch.State().Cycle.Rejected[orchestrator.ReasonDedup]; got != 1 {
		t.Fatalf("expected dedup rejection after clearing the store, got %d", got)
	}
	if tasks := h.tasks(t); len(tasks) != 0 {
		t.Fatalf("expected no re-admission, got %d tasks", len(tasks))
	}
}

func TestRetryCeilingAndReset(t *testing.T) {
	h := newHarness(t, testsupport.WithRetryCeiling(3))
	h.downloader.fail = func(call int) error {
		if call <= 3 {
			return services.Wrap(services.ErrNetwork, "download", "transfer", "connection reset", nil)
		}
		return nil
	}
	var (
		mu       sync.Mutex
		attempts = map[queue.Stage][]int{}
	)
	h.store.OnChange(func(task queue.Task) {
		mu.Lock()
		attempts[task.Stage] = append(attempts[task.Stage], task.AttemptCount)
		mu.Unlock()
	})

	h.source.offer(h.item("FC2-PPV-4001", 5, 90))
	h.cycle(t)
	h.source.setPages(nil)
	h.cycle(t)
	h.cycle(t)

	task := h.task(t, "FC2-PPV-4001")
	if task.Stage != queue.StageFailed || task.AttemptCount != 3 {
		t.Fatalf("expected failed after three attempts, got %s/%d", task.Stage, task.AttemptCount)
	}
	if task.FailureKind != services.FailureTransient {
		t.Fatalf("expected transient failure, got %s", task.FailureKind)
	}

	h.cycle(t)
	if task := h.task(t, "FC2-PPV-4001"); task.Stage != queue.StageFailed || task.AttemptCount != 3 {
		t.Fatalf("automatic retry must stop at the ceiling, got %s/%d", task.Stage, task.AttemptCount)
	}

	decision, err := h.orch.Admit(context.Background(), h.item("FC2-PPV-4001", 5, 90))
	if err != nil || decision.Reason != orchestrator.ReasonRetryCeiling {
		t.Fatalf("expected retry_ceiling rejection, got %+v %v", decision, err)
	}

	ack, err := h.orch.ResetFailed(context.Background())
	if err != nil {
		t.Fatalf("ResetFailed: %v", err)
	}
	if ack.ResetCount != 1 || ack.Noop {
		t.Fatalf("unexpected ack %+v", ack)
	}
	task = h.task(t, "FC2-PPV-4001")
	if task.Stage != queue.StageQueuedDownload || task.AttemptCount != 3 || task.Error != "" {
		t.Fatalf("expected queued_download with 3 attempts, got %s/%d %q", task.Stage, task.AttemptCount, task.Error)
	}

	h.cycle(t)
	mu.Lock()
	defer mu.Unlock()
	uploadAttempts := attempts[queue.StageQueuedUpload]
	if len(uploadAttempts) != 1 || uploadAttempts[0] != 4 {
		t.Fatalf("expected the fourth attempt to reach queued_upload, got %v", uploadAttempts)
	}
	if task := h.task(t, "FC2-PPV-4001"); task.Stage != queue.StageCompleted {
		t.Fatalf("expected completed after reset, got %s", task.Stage)
	}
}

func TestReadmissionRespectsFailureKind(t *testing.T) {
	h := newHarness(t)
	failUpload := func(id string, cause error) {
		t.Helper()
		testsupport.NewTask(t, h.store, id, id)
		steps := []func(*queue.Task){
			func(task *queue.Task) { task.Stage = queue.StageQueuedDownload },
			func(task *queue.Task) { task.BeginAttempt() },
			func(task *queue.Task) { task.Stage = queue.StageQueuedUpload },
			func(task *queue.Task) { task.BeginAttempt() },
			func(task *queue.Task) { task.SetFailed(cause) },
		}
		for _, step := range steps {
			testsupport.MustUpdate(t, h.store, id, func(task *queue.Task) error {
				step(task)
				return nil
			})
		}
	}
	failUpload("FC2-PPV-5001", services.Wrap(services.ErrNetwork, "upload", "put", "HTTP 503", nil))
	failUpload("FC2-PPV-5002", services.Wrap(services.ErrAuth, "upload", "put", "HTTP 401", nil))

	decision, err := h.orch.Admit(context.Background(), h.item("FC2-PPV-5001", 5, 90))
	if err != nil || !decision.Admitted || !decision.Requeued {
		t.Fatalf("expected re-admission, got %+v %v", decision, err)
	}
	if task := h.task(t, "FC2-PPV-5001"); task.Stage != queue.StageQueuedUpload || task.Error != "" {
		t.Fatalf("expected requeue to upload, got %s %q", task.Stage, task.Error)
	}
	if !h.mgr.UploadQueue().Contains("FC2-PPV-5001") {
		t.Fatal("expected task in the upload queue")
	}

	decision, err = h.orch.Admit(context.Background(), h.item("FC2-PPV-5002", 5, 90))
	if err != nil || decision.Reason != orchestrator.ReasonFatalFailure {
		t.Fatalf("expected fatal_failure rejection, got %+v %v", decision, err)
	}
}

func TestPaginationOverlapIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.source.setPages(map[string]discovery.Page{
		"":  {Token: "1", Items: []discovery.Item{h.item("FC2-PPV-6001", 5, 90), h.item("FC2-PPV-6002", 5, 90)}, Next: "2"},
		"2": {Token: "2", Items: []discovery.Item{h.item("FC2-PPV-6002", 5, 90), h.item("FC2-PPV-6003", 5, 90)}},
	})
	h.cycle(t)

	tasks := h.tasks(t)
	if len(tasks) != 3 {
		t.Fatalf("expected 3 unique tasks, got %d", len(tasks))
	}
	state := h.orch.State()
	if state.Cycle.PagesScanned != 2 || state.Cycle.Admitted != 3 || state.Cycle.Rejected[orchestrator.ReasonKnown] != 1 {
		t.Fatalf("unexpected cycle stats %+v", state.Cycle)
	}
	for _, task := range tasks {
		if task.Stage != queue.StageCompleted {
			t.Fatalf("%s ended in %s", task.ID, task.Stage)
		}
	}
}

func TestStartAndStopAreIdempotent(t *testing.T) {
	h := newHarness(t)
	if ack := h.orch.Stop(); !ack.Noop || ack.Running {
		t.Fatalf("stop while idle should be a no-op, got %+v", ack)
	}

	h.downloader.block = make(chan struct{})
	h.downloader.started = make(chan string, 1)
	h.source.offer(h.item("FC2-PPV-7001", 5, 90))

	if _, err := h.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-h.downloader.started:
	case <-time.After(5 * time.Second):
		t.Fatal("download did not start")
	}

	ack, err := h.orch.Start(context.Background())
	if err != nil || !ack.Noop || !ack.Running {
		t.Fatalf("second start should be a no-op, got %+v %v", ack, err)
	}

	ack = h.orch.Stop()
	if ack.Noop || !ack.Stopping || !ack.Running {
		t.Fatalf("unexpected stop ack %+v", ack)
	}
	if ack := h.orch.Stop(); !ack.Noop {
		t.Fatalf("repeated stop should be a no-op, got %+v", ack)
	}
	if state := h.orch.State(); !state.Running || !state.Stopping {
		t.Fatalf("expected running+stopping while the download finishes, got %+v", state)
	}

	close(h.downloader.block)
	h.wait(t)

	task := h.task(t, "FC2-PPV-7001")
	if task.Stage != queue.StageQueuedUpload {
		t.Fatalf("in-flight download should finish and wait for upload, got %s", task.Stage)
	}

	h.cycle(t)
	if task := h.task(t, "FC2-PPV-7001"); task.Stage != queue.StageCompleted {
		t.Fatalf("next cycle should drain the upload queue, got %s", task.Stage)
	}
}

func TestCloseInterruptsTransfers(t *testing.T) {
	h := newHarness(t)
	h.downloader.block = make(chan struct{})
	h.downloader.started = make(chan string, 1)
	h.source.offer(h.item("FC2-PPV-7101", 5, 90))

	if _, err := h.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-h.downloader.started:
	case <-time.After(5 * time.Second):
		t.Fatal("download did not start")
	}
	h.orch.Close()

	task := h.task(t, "FC2-PPV-7101")
	if task.Stage != queue.StageFailed || task.FailureKind != services.FailureInterrupted {
		t.Fatalf("expected interrupted failure, got %s/%s", task.Stage, task.FailureKind)
	}
	if state := h.orch.State(); state.StoreDown {
		t.Fatalf("shutdown must not be reported as a store outage, got %+v", state)
	}
	if _, err := h.orch.Start(context.Background()); !errors.Is(err, orchestrator.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestCancelledResetLeavesCycleRunning(t *testing.T) {
	h := newHarness(t)
	h.downloader.block = make(chan struct{})
	h.downloader.started = make(chan string, 1)
	h.source.offer(h.item("FC2-PPV-7201", 5, 90))

	if _, err := h.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-h.downloader.started:
	case <-time.After(5 * time.Second):
		t.Fatal("download did not start")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.orch.ResetFailed(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	state := h.orch.State()
	if state.StoreDown || state.Stopping || !state.Running || state.LastError != "" {
		t.Fatalf("a cancelled caller must not halt the cycle, got %+v", state)
	}

	close(h.downloader.block)
	h.wait(t)
	if task := h.task(t, "FC2-PPV-7201"); task.Stage != queue.StageCompleted {
		t.Fatalf("cycle should finish normally, got %s (%s)", task.Stage, task.Error)
	}
	if _, err := h.orch.Start(context.Background()); err != nil {
		t.Fatalf("next start must not wait on a store ping: %v", err)
	}
	h.wait(t)
}

func TestBackpressureBlocksAdmission(t *testing.T) {
	h := newHarness(t, testsupport.WithMaxDownloadQueue(1))

	decision, err := h.orch.Admit(context.Background(), h.item("FC2-PPV-8001", 5, 90))
	if err != nil || !decision.Admitted {
		t.Fatalf("first admission: %+v %v", decision, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := h.orch.Admit(ctx, h.item("FC2-PPV-8002", 5, 90)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected admission to wait for queue room, got %v", err)
	}
	if _, err := h.store.Get(context.Background(), "FC2-PPV-8002"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("blocked item must not be stored, got %v", err)
	}

	if _, err := h.mgr.DownloadQueue().Pop(context.Background()); err != nil {
		t.Fatalf("Pop: %v", err)
	}
	decision, err = h.orch.Admit(context.Background(), h.item("FC2-PPV-8002", 5, 90))
	if err != nil || !decision.Admitted {
		t.Fatalf("admission after room freed: %+v %v", decision, err)
	}
}

func TestRecoverRebuildsQueues(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	testsupport.NewTask(t, h.store, "FC2-PPV-9001", "queued")
	testsupport.MustUpdate(t, h.store, "FC2-PPV-9001", func(task *queue.Task) error {
		task.Stage = queue.StageQueuedDownload
		return nil
	})
	testsupport.NewTask(t, h.store, "FC2-PPV-9002", "downloading")
	testsupport.MustUpdate(t, h.store, "FC2-PPV-9002", func(task *queue.Task) error {
		task.Stage = queue.StageQueuedDownload
		return nil
	})
	testsupport.MustUpdate(t, h.store, "FC2-PPV-9002", func(task *queue.Task) error {
		task.BeginAttempt()
		return nil
	})
	testsupport.NewTask(t, h.store, "FC2-PPV-9003", "stranded")

	report, err := h.orch.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if report.Interrupted != 1 || report.Advanced != 1 || report.Enqueued != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	interrupted := h.task(t, "FC2-PPV-9002")
	if interrupted.Stage != queue.StageFailed || interrupted.FailureKind != services.FailureInterrupted {
		t.Fatalf("expected interrupted failure, got %s/%s", interrupted.Stage, interrupted.FailureKind)
	}
	if got := h.mgr.DownloadQueue().Snapshot(); len(got) != 2 || got[0] != "FC2-PPV-9001" || got[1] != "FC2-PPV-9003" {
		t.Fatalf("unexpected download queue %v", got)
	}

	h.cycle(t)
	for _, id := range []string{"FC2-PPV-9001", "FC2-PPV-9002", "FC2-PPV-9003"} {
		if task := h.task(t, id); task.Stage != queue.StageCompleted {
			t.Fatalf("%s ended in %s (%s)", id, task.Stage, task.Error)
		}
	}
	if got := h.orch.State().Cycle.Requeued; got != 1 {
		t.Fatalf("expected the interrupted task to be swept, got %d", got)
	}
}

func TestDiscoveryFailureIsSurfaced(t *testing.T) {
	h := newHarness(t)
	h.source.err = services.Wrap(services.ErrFatal, "discovery", "fetch page", "HTTP 404", nil)
	h.cycle(t)

	state := h.orch.State()
	if state.LastError == "" || state.StoreDown {
		t.Fatalf("expected last error without store halt, got %+v", state)
	}
}

func TestStoreFailureHaltsAdmission(t *testing.T) {
	h := newHarness(t)
	h.source.offer(h.item("FC2-PPV-9101", 5, 90))
	if err := h.index.Close(); err != nil {
		t.Fatalf("close index: %v", err)
	}
	h.cycle(t)

	state := h.orch.State()
	if !state.StoreDown || state.LastError == "" {
		t.Fatalf("expected store halt, got %+v", state)
	}
	if _, err := h.orch.Start(context.Background()); err == nil {
		t.Fatal("start must fail while durable state is unavailable")
	}
}

func TestResetFailedWhileIdleIsReported(t *testing.T) {
	h := newHarness(t)
	ack, err := h.orch.ResetFailed(context.Background())
	if err != nil || !ack.Noop || ack.ResetCount != 0 {
		t.Fatalf("empty reset should be a no-op, got %+v %v", ack, err)
	}
}
