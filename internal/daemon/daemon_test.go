package daemon_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"harvester/internal/api"
	"harvester/internal/config"
	"harvester/internal/daemon"
	"harvester/internal/dedup"
	"harvester/internal/discovery"
	"harvester/internal/orchestrator"
	"harvester/internal/queue"
	"harvester/internal/stage"
	"harvester/internal/testsupport"
	"harvester/internal/workflow"
)

type emptySource struct{}

func (emptySource) FetchPage(_ context.Context, token string) (discovery.Page, error) {
	return discovery.Page{Token: token}, nil
}

type noopDownloader struct{}

func (noopDownloader) Download(context.Context, *queue.Task, stage.ProgressFunc) (string, error) {
	return "", errors.New("unused")
}

func (noopDownloader) HealthCheck(context.Context) stage.Health { return stage.Healthy("download") }

type noopUploader struct{}

func (noopUploader) Upload(context.Context, string, string, stage.ProgressFunc) (stage.UploadResult, error) {
	return stage.UploadResult{}, errors.New("unused")
}

func (noopUploader) HealthCheck(context.Context) stage.Health { return stage.Healthy("upload") }

func newDaemon(t *testing.T, cfg *config.Config, store *queue.Store, index *dedup.Index) *daemon.Daemon {
	t.Helper()
	mgr := workflow.NewManager(cfg, store, index, noopDownloader{}, noopUploader{}, nil)
	orch := orchestrator.New(cfg, store, index, emptySource{}, mgr, nil)
	d, err := daemon.New(cfg, store, index, orch, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Close)
	return d
}

func TestDaemonIsSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	index := testsupport.MustOpenIndex(t, cfg)

	first := newDaemon(t, cfg, store, index)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !first.Running() {
		t.Fatal("expected daemon to report running")
	}

	second := newDaemon(t, cfg, store, index)
	if err := second.Start(context.Background()); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	first.Close()
	if first.Running() {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonStartReconcilesInterruptedTasks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	index := testsupport.MustOpenIndex(t, cfg)

	testsupport.NewTask(t, store, "FC2-PPV-7", "left downloading")
	testsupport.MustUpdate(t, store, "FC2-PPV-7", func(task *queue.Task) error {
		task.Stage = queue.StageQueuedDownload
		return nil
	})
	testsupport.MustUpdate(t, store, "FC2-PPV-7", func(task *queue.Task) error {
		task.BeginAttempt()
		return nil
	})

	d := newDaemon(t, cfg, store, index)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	task, err := store.Get(context.Background(), "FC2-PPV-7")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if task.Stage != queue.StageFailed || task.FailedFrom != queue.StageDownloading {
		t.Fatalf("expected interrupted failure from downloading, got %s from %s", task.Stage, task.FailedFrom)
	}
}

func TestDaemonServesStatusAndControl(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	index := testsupport.MustOpenIndex(t, cfg)

	d := newDaemon(t, cfg, store, index)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	base := "http://" + d.Info().APIBind

	resp, err := http.Post(base+"/api/stop", "application/json", nil)
	if err != nil {
		t.Fatalf("POST stop: %v", err)
	}
	var ack api.Ack
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	resp.Body.Close()
	if !ack.OK || !ack.Noop || ack.Running {
		t.Fatalf("expected idle stop to be a no-op, got %+v", ack)
	}

	if err := d.DedupRecord(context.Background(), "FC2-PPV-9"); err != nil {
		t.Fatalf("DedupRecord: %v", err)
	}

	resp, err = http.Get(base + "/api/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	var payload api.Status
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	resp.Body.Close()
	if payload.Running || payload.DedupCount != 1 || payload.Sequence == 0 {
		t.Fatalf("unexpected status %+v", payload)
	}
	if len(payload.StageHealth) != 2 {
		t.Fatalf("expected download and upload health, got %+v", payload.StageHealth)
	}
}

func TestDaemonCycleRunsToIdle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	index := testsupport.MustOpenIndex(t, cfg)

	d := newDaemon(t, cfg, store, index)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ack, err := d.StartCycle(context.Background())
	if err != nil || !ack.OK {
		t.Fatalf("StartCycle = %+v, %v", ack, err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		payload, err := d.Status(context.Background())
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if !payload.Running {
			if payload.Cycle.PagesScanned != 1 {
				t.Fatalf("expected one page scanned, got %d", payload.Cycle.PagesScanned)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("cycle did not finish")
}
