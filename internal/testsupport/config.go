package testsupport

import (
	"path/filepath"
	"testing"
	"time"

	"harvester/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.DownloadDir = filepath.Join(base, "downloads")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Discovery.BaseURL = "http://listing.invalid/latest"
	cfgVal.Discovery.PageDelaySeconds = 0
	cfgVal.Upload.TargetDir = filepath.Join(base, "remote")
	cfgVal.Workflow.ProgressIntervalMS = 10

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure test directories: %v", err)
	}
	return builder.cfg
}

// WithBaseURL points discovery at a test server.
func WithBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Discovery.BaseURL = url
	}
}

// WithRetryCeiling overrides the automatic retry ceiling.
func WithRetryCeiling(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.RetryCeiling = n
	}
}

// WithMaxDownloadQueue overrides admission backpressure.
func WithMaxDownloadQueue(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.MaxDownloadQueue = n
	}
}

// WithAdmissionThresholds overrides the age floor and rating floor.
func WithAdmissionThresholds(minAge time.Duration, minRating float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Discovery.MinAgeDays = int(minAge / (24 * time.Hour))
		b.cfg.Discovery.MinRating = minRating
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
