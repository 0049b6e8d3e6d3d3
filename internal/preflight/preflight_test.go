package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"harvester/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckEndpoint(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		passed bool
	}{
		{name: "ok", code: http.StatusOK, passed: true},
		{name: "not found still reachable", code: http.StatusNotFound, passed: true},
		{name: "auth", code: http.StatusUnauthorized, passed: false},
		{name: "server error", code: http.StatusBadGateway, passed: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var agent string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				agent = r.Header.Get("User-Agent")
				w.WriteHeader(tt.code)
			}))
			defer srv.Close()

			result := CheckEndpoint(context.Background(), "listing", srv.URL, "harvester-test")
			if result.Passed != tt.passed {
				t.Fatalf("Passed = %v, want %v (%s)", result.Passed, tt.passed, result.Detail)
			}
			if agent != "harvester-test" {
				t.Fatalf("expected user agent forwarded, got %q", agent)
			}
		})
	}
}

func TestCheckEndpoint_MissingURL(t *testing.T) {
	if result := CheckEndpoint(context.Background(), "listing", " ", ""); result.Passed {
		t.Fatal("expected failure for empty url")
	}
}

func TestRunAllSkipsNetworkByDefault(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = base
	cfg.Paths.DownloadDir = base
	cfg.Upload.Backend = config.UploadBackendFilesystem
	cfg.Upload.TargetDir = filepath.Join(base, "missing")
	cfg.Discovery.BaseURL = "http://listing.invalid/"

	results := RunAll(context.Background(), &cfg, Options{})
	if len(results) != 3 {
		t.Fatalf("expected 3 local checks, got %d", len(results))
	}
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Upload target" {
		t.Fatalf("expected only the upload target to fail, got %+v", failed)
	}
}
