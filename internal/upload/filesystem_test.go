package upload_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"harvester/internal/services"
	"harvester/internal/stage"
	"harvester/internal/testsupport"
	"harvester/internal/upload"
)

func writeLocal(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFilesystemUploadCopiesIntoFolder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	content := bytes.Repeat([]byte("z"), 300_000)
	local := writeLocal(t, cfg.Paths.DownloadDir, "FC2-PPV-1234567 clip.mp4", content)

	uploader, err := upload.New(cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	var last float64
	result, err := uploader.Upload(context.Background(), local, stage.TargetFolderFor("FC2-PPV-1234567"), func(f float64) { last = f })
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if result.Outcome != stage.Uploaded {
		t.Fatalf("expected uploaded, got %s", result.Outcome)
	}
	want := filepath.Join(cfg.Upload.TargetDir, "FC2-PPV-120", "FC2-PPV-1234567 clip.mp4")
	if result.RemotePath != want {
		t.Fatalf("remote path = %q, want %q", result.RemotePath, want)
	}
	got, err := os.ReadFile(want)
	if err != nil || !bytes.Equal(got, content) {
		t.Fatalf("target content mismatch (err=%v)", err)
	}
	if _, err := os.Stat(want + ".part"); !os.IsNotExist(err) {
		t.Fatalf("expected no partial file, stat err=%v", err)
	}
	if last != 1 {
		t.Fatalf("expected final progress 1, got %v", last)
	}
}

func TestFilesystemUploadReportsDuplicate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	local := writeLocal(t, cfg.Paths.DownloadDir, "clip.mp4", []byte("new"))

	folder := filepath.Join(cfg.Upload.TargetDir, "FC2-PPV-450")
	if err := os.MkdirAll(folder, 0o755); err != nil {
		t.Fatal(err)
	}
	writeLocal(t, folder, "clip.mp4", []byte("already there"))

	uploader := upload.NewFilesystem(cfg, nil)
	result, err := uploader.Upload(context.Background(), local, "FC2-PPV-450", nil)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if result.Outcome != stage.Duplicate {
		t.Fatalf("expected duplicate, got %s", result.Outcome)
	}
	got, _ := os.ReadFile(filepath.Join(folder, "clip.mp4"))
	if string(got) != "already there" {
		t.Fatalf("duplicate must not overwrite target, got %q", got)
	}
}

func TestFilesystemUploadEmptyTargetIsReplaced(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	local := writeLocal(t, cfg.Paths.DownloadDir, "clip.mp4", []byte("payload"))
	folder := filepath.Join(cfg.Upload.TargetDir, "FC2-PPV-0")
	if err := os.MkdirAll(folder, 0o755); err != nil {
		t.Fatal(err)
	}
	writeLocal(t, folder, "clip.mp4", nil)

	result, err := upload.NewFilesystem(cfg, nil).Upload(context.Background(), local, "FC2-PPV-0", nil)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if result.Outcome != stage.Uploaded || result.Bytes != int64(len("payload")) {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestFilesystemUploadErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	uploader := upload.NewFilesystem(cfg, nil)

	_, err := uploader.Upload(context.Background(), filepath.Join(cfg.Paths.DownloadDir, "missing.mp4"), "FC2-PPV-0", nil)
	if services.Classify(err) != services.FailureFatal {
		t.Fatalf("expected fatal error for missing local file, got %v", err)
	}

	local := writeLocal(t, cfg.Paths.DownloadDir, "clip.mp4", []byte("data"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = uploader.Upload(ctx, local, "FC2-PPV-0", nil)
	if services.Classify(err) != services.FailureInterrupted {
		t.Fatalf("expected interrupted error, got %v", err)
	}
}

func TestFilesystemHealthCheck(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if health := upload.NewFilesystem(cfg, nil).HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("expected healthy target, got %+v", health)
	}
	cfg.Upload.TargetDir = filepath.Join(cfg.Upload.TargetDir, "absent")
	if health := upload.NewFilesystem(cfg, nil).HealthCheck(context.Background()); health.Ready {
		t.Fatal("expected unhealthy for missing target")
	}
}
