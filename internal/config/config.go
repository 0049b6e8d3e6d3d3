package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory, socket, and bind address configuration.
type Paths struct {
	DataDir     string `toml:"data_dir"`
	DownloadDir string `toml:"download_dir"`
	LogDir      string `toml:"log_dir"`
	Socket      string `toml:"socket"`
	APIBind     string `toml:"api_bind"`
	APIToken    string `toml:"api_token"`
}

// Discovery contains listing-site and admission settings.
type Discovery struct {
	BaseURL          string  `toml:"base_url"`
	MaxPages         int     `toml:"max_pages"`
	MinAgeDays       int     `toml:"min_age_days"`
	MinRating        float64 `toml:"min_rating"`
	MaxAgeDays       int     `toml:"max_age_days"`
	PageDelaySeconds float64 `toml:"page_delay_seconds"`
	RequestTimeout   int     `toml:"request_timeout_seconds"`
	UserAgent        string  `toml:"user_agent"`
	FetchRetries     int     `toml:"fetch_retries"`
	IntervalMinutes  int     `toml:"interval_minutes"`
	AutoStart        bool    `toml:"auto_start"`
}

// Workflow contains worker pool sizing and retry policy.
type Workflow struct {
	DownloadWorkers    int `toml:"download_workers"`
	UploadWorkers      int `toml:"upload_workers"`
	RetryCeiling       int `toml:"retry_ceiling"`
	MaxDownloadQueue   int `toml:"max_download_queue"`
	ProgressIntervalMS int `toml:"progress_interval_ms"`
	RetentionDays      int `toml:"retention_days"`
}

// OAuth contains optional client-credentials settings for the http upload backend.
type OAuth struct {
	TokenURL     string   `toml:"token_url"`
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	Scopes       []string `toml:"scopes"`
}

// Upload contains remote store settings.
type Upload struct {
	Backend        string `toml:"backend"`
	TargetDir      string `toml:"target_dir"`
	BaseURL        string `toml:"base_url"`
	RequestTimeout int    `toml:"request_timeout_seconds"`
	DeleteLocal    bool   `toml:"delete_local"`
	VerifySize     bool   `toml:"verify_size"`
	OAuth          OAuth  `toml:"oauth"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout_seconds"`
	TaskCompleted  bool   `toml:"task_completed"`
	TaskFailed     bool   `toml:"task_failed"`
	Cycle          bool   `toml:"cycle"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for harvester.
//
// Configuration sections by subsystem:
//   - Paths: data, download and log directories, IPC socket, API bind address
//   - Discovery: listing site, paging limits and admission thresholds
//   - Workflow: worker pool sizes, retry ceiling, queue backpressure
//   - Upload: remote store backend
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Discovery     Discovery     `toml:"discovery"`
	Workflow      Workflow      `toml:"workflow"`
	Upload        Upload        `toml:"upload"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("harvester.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// The filesystem upload target is created on a best-effort basis so the
// daemon can run while a network share is temporarily unmounted.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.DownloadDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Upload.Backend == UploadBackendFilesystem && strings.TrimSpace(c.Upload.TargetDir) != "" {
		_ = os.MkdirAll(c.Upload.TargetDir, 0o755)
	}
	return nil
}

// TaskDBPath returns the SQLite file backing the task store.
func (c *Config) TaskDBPath() string {
	return filepath.Join(c.Paths.DataDir, "tasks.db")
}

// DedupDBPath returns the SQLite file backing the dedup index.
func (c *Config) DedupDBPath() string {
	return filepath.Join(c.Paths.DataDir, "dedup.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "harvester.lock")
}

// PIDPath returns the file the daemon writes its process id to.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "harvester.pid")
}

// SocketPath returns the IPC socket path, defaulting under the data dir.
func (c *Config) SocketPath() string {
	if strings.TrimSpace(c.Paths.Socket) != "" {
		return c.Paths.Socket
	}
	return filepath.Join(c.Paths.DataDir, "harvester.sock")
}

// PageDelay returns the minimum spacing between listing page fetches.
func (c *Config) PageDelay() time.Duration {
	return time.Duration(c.Discovery.PageDelaySeconds * float64(time.Second))
}

// MinAge returns the admission age floor.
func (c *Config) MinAge() time.Duration {
	return time.Duration(c.Discovery.MinAgeDays) * 24 * time.Hour
}

// MaxAge returns the discovery lookback window, zero when disabled.
func (c *Config) MaxAge() time.Duration {
	return time.Duration(c.Discovery.MaxAgeDays) * 24 * time.Hour
}

// ProgressInterval returns the minimum spacing between persisted progress updates.
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.Workflow.ProgressIntervalMS) * time.Millisecond
}

// CycleInterval returns the scheduler period, zero when cycles are manual only.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.Discovery.IntervalMinutes) * time.Minute
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
