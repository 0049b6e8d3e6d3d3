package daemonctl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"harvester/internal/queue"
	"harvester/internal/testsupport"
)

func TestReadPID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "harvester.pid")

	pid, err := ReadPID(path)
	if err != nil || pid != 0 {
		t.Fatalf("missing file: got pid=%d err=%v", pid, err)
	}

	if err := os.WriteFile(path, []byte("4242\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	pid, err = ReadPID(path)
	if err != nil || pid != 4242 {
		t.Fatalf("got pid=%d err=%v, want 4242", pid, err)
	}

	if err := os.WriteFile(path, []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadPID(path); err == nil {
		t.Fatal("expected error for invalid pid")
	}
}

func TestForceKillRefusesCurrentProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harvester.pid")
	if _, err := ForceKillProcess(path, "", os.Getpid()); err == nil {
		t.Fatal("expected refusal to kill the current process")
	}
}

func TestStopAndTerminateWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, err := StopAndTerminate(cfg.SocketPath(), cfg, 0)
	if !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestOfflineStatusWithoutDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	status, err := OfflineStatus(context.Background(), cfg, true)
	if err != nil {
		t.Fatalf("OfflineStatus: %v", err)
	}
	if len(status.Tasks) != 0 || status.Running {
		t.Fatalf("expected empty offline status, got %+v", status)
	}
	if _, err := os.Stat(cfg.TaskDBPath()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("offline status must not create the task database, stat err=%v", err)
	}
}

func TestOfflineStatusReadsStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewTask(t, store, "a1", "First")
	failed := testsupport.NewTask(t, store, "a2", "Second")
	testsupport.MustUpdate(t, store, failed.ID, func(task *queue.Task) error {
		task.Stage = queue.StageQueuedDownload
		return nil
	})
	testsupport.MustUpdate(t, store, failed.ID, func(task *queue.Task) error {
		task.BeginAttempt()
		return nil
	})
	testsupport.MustUpdate(t, store, failed.ID, func(task *queue.Task) error {
		task.SetFailed(errors.New("boom"))
		return nil
	})

	status, err := OfflineStatus(context.Background(), cfg, false)
	if err != nil {
		t.Fatalf("OfflineStatus: %v", err)
	}
	if status.FailedCount != 1 {
		t.Fatalf("FailedCount = %d, want 1", status.FailedCount)
	}
	if status.StageCounts["discovered"] != 1 {
		t.Fatalf("expected one discovered task, got %+v", status.StageCounts)
	}
	if len(status.Tasks) != 0 {
		t.Fatalf("tasks must be omitted, got %d", len(status.Tasks))
	}
}

func TestBuildSystemChecksOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Discovery.BaseURL = ""
	lines := BuildSystemChecks(context.Background(), cfg, false)
	if len(lines) == 0 || lines[0].Label != "Harvester" || lines[0].Severity != SeverityWarn {
		t.Fatalf("unexpected first line: %+v", lines)
	}
	found := false
	for _, line := range lines {
		if line.Label == "Listing site" {
			found = true
			if line.Severity != SeverityError || !strings.Contains(line.Detail, "missing") {
				t.Fatalf("expected listing check to fail on empty url, got %+v", line)
			}
		}
	}
	if !found {
		t.Fatal("expected listing site check")
	}
}
