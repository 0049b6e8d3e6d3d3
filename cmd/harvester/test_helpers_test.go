package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"harvester/internal/config"
	"harvester/internal/daemon"
	"harvester/internal/dedup"
	"harvester/internal/discovery"
	"harvester/internal/ipc"
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

type cliTestEnv struct {
	cfg        *config.Config
	store      *queue.Store
	index      *dedup.Index
	daemon     *daemon.Daemon
	socketPath string
	configPath string
}

// setupCLITestEnv runs a daemon with stub transfers behind a real IPC
// socket and writes a config file pointing at it.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	listing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(listing.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithBaseURL(listing.URL))
	configPath := filepath.Join(testsupport.BaseDir(cfg), "harvester.toml")
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)
	index := testsupport.MustOpenIndex(t, cfg)

	mgr := workflow.NewManager(cfg, store, index, noopDownloader{}, noopUploader{}, nil)
	orch := orchestrator.New(cfg, store, index, emptySource{}, mgr, nil)
	d, err := daemon.New(cfg, store, index, orch, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := cfg.SocketPath()
	srv, err := ipc.NewServer(ctx, socketPath, d, nil)
	if err != nil {
		cancel()
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		index:      index,
		daemon:     d,
		socketPath: socketPath,
		configPath: configPath,
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if socket != "" {
		flags = append(flags, "--socket", socket)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
data_dir = %q
download_dir = %q
log_dir = %q
api_bind = %q

[discovery]
base_url = %q

[upload]
backend = "filesystem"
target_dir = %q
`,
		cfg.Paths.DataDir,
		cfg.Paths.DownloadDir,
		cfg.Paths.LogDir,
		cfg.Paths.APIBind,
		cfg.Discovery.BaseURL,
		cfg.Upload.TargetDir,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
