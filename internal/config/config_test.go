package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"harvester/internal/config"
)

func TestLoadDefaultConfigUsesEnvAndExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("HARVESTER_BASE_URL", "https://listing.example/latest/")
	t.Setenv("HARVESTER_UPLOAD_DIR", filepath.Join(tempHome, "share"))

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "harvester")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Discovery.BaseURL != "https://listing.example/latest" {
		t.Fatalf("expected trailing slash trimmed from env base url, got %q", cfg.Discovery.BaseURL)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7488" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Workflow.DownloadWorkers != 2 || cfg.Workflow.UploadWorkers != 2 {
		t.Fatalf("expected two workers per pool, got %d/%d", cfg.Workflow.DownloadWorkers, cfg.Workflow.UploadWorkers)
	}
	if cfg.Workflow.RetryCeiling != 3 {
		t.Fatalf("expected retry ceiling 3, got %d", cfg.Workflow.RetryCeiling)
	}
	if cfg.MinAge() != 72*time.Hour {
		t.Fatalf("expected 3 day min age, got %s", cfg.MinAge())
	}
	if cfg.Discovery.MinRating != 70 {
		t.Fatalf("expected min rating 70, got %v", cfg.Discovery.MinRating)
	}
	if cfg.SocketPath() != filepath.Join(wantData, "harvester.sock") {
		t.Fatalf("unexpected socket path %q", cfg.SocketPath())
	}
	if cfg.TaskDBPath() == cfg.DedupDBPath() {
		t.Fatal("task store and dedup index must use separate files")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.DownloadDir, cfg.Paths.LogDir, cfg.Upload.TargetDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "harvester.toml")

	type payload struct {
		Discovery struct {
			BaseURL    string  `toml:"base_url"`
			MinAgeDays int     `toml:"min_age_days"`
			MinRating  float64 `toml:"min_rating"`
		} `toml:"discovery"`
		Workflow struct {
			DownloadWorkers int `toml:"download_workers"`
			RetryCeiling    int `toml:"retry_ceiling"`
		} `toml:"workflow"`
		Upload struct {
			Backend string `toml:"backend"`
			BaseURL string `toml:"base_url"`
		} `toml:"upload"`
	}
	custom := payload{}
	custom.Discovery.BaseURL = "https://listing.example/new"
	custom.Discovery.MinAgeDays = 5
	custom.Discovery.MinRating = 85
	custom.Workflow.DownloadWorkers = 3
	custom.Workflow.RetryCeiling = 5
	custom.Upload.Backend = "HTTP"
	custom.Upload.BaseURL = "https://files.example/dav/"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Discovery.MinAgeDays != 5 || cfg.Discovery.MinRating != 85 {
		t.Fatalf("expected admission thresholds from file, got %d/%v", cfg.Discovery.MinAgeDays, cfg.Discovery.MinRating)
	}
	if cfg.Workflow.DownloadWorkers != 3 {
		t.Fatalf("expected 3 download workers, got %d", cfg.Workflow.DownloadWorkers)
	}
	if cfg.Workflow.UploadWorkers != 2 {
		t.Fatalf("expected default upload workers, got %d", cfg.Workflow.UploadWorkers)
	}
	if cfg.Upload.Backend != config.UploadBackendHTTP {
		t.Fatalf("expected backend normalized to http, got %q", cfg.Upload.Backend)
	}
	if cfg.Upload.BaseURL != "https://files.example/dav" {
		t.Fatalf("unexpected upload base url %q", cfg.Upload.BaseURL)
	}
}

func TestLoadRequiresBaseURL(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("HARVESTER_BASE_URL", "")
	t.Setenv("HARVESTER_UPLOAD_DIR", t.TempDir())

	_, _, _, err := config.Load("")
	if err == nil {
		t.Fatal("expected error without discovery.base_url")
	}
	if !strings.Contains(err.Error(), "discovery.base_url") {
		t.Fatalf("expected base_url hint, got %v", err)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if !strings.Contains(cfg.Paths.DataDir, "harvester") {
		t.Fatalf("expected data dir to contain harvester, got %q", cfg.Paths.DataDir)
	}
	if cfg.Workflow.MaxDownloadQueue != 20 {
		t.Fatalf("expected sample queue limit 20, got %d", cfg.Workflow.MaxDownloadQueue)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	valid := func() config.Config {
		cfg := config.Default()
		cfg.Discovery.BaseURL = "https://listing.example"
		cfg.Upload.TargetDir = "/srv/share"
		return cfg
	}

	base := valid()
	if err := base.Validate(); err != nil {
		t.Fatalf("baseline config should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"relative base url", func(c *config.Config) { c.Discovery.BaseURL = "listing.example" }},
		{"zero max pages", func(c *config.Config) { c.Discovery.MaxPages = 0 }},
		{"rating above 100", func(c *config.Config) { c.Discovery.MinRating = 120 }},
		{"lookback shorter than min age", func(c *config.Config) { c.Discovery.MaxAgeDays = 2 }},
		{"no download workers", func(c *config.Config) { c.Workflow.DownloadWorkers = 0 }},
		{"too many upload workers", func(c *config.Config) { c.Workflow.UploadWorkers = 64 }},
		{"zero retry ceiling", func(c *config.Config) { c.Workflow.RetryCeiling = 0 }},
		{"missing target dir", func(c *config.Config) { c.Upload.TargetDir = "" }},
		{"unknown backend", func(c *config.Config) { c.Upload.Backend = "ftp" }},
		{"http backend without url", func(c *config.Config) { c.Upload.Backend = config.UploadBackendHTTP }},
		{"oauth without secret", func(c *config.Config) {
			c.Upload.Backend = config.UploadBackendHTTP
			c.Upload.BaseURL = "https://files.example"
			c.Upload.OAuth.TokenURL = "https://auth.example/token"
			c.Upload.OAuth.ClientID = "harvester"
		}},
		{"bad log level", func(c *config.Config) { c.Logging.Level = "loud" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
