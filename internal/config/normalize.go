package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDiscovery()
	c.normalizeWorkflow()
	if err := c.normalizeUpload(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DownloadDir) == "" {
		c.Paths.DownloadDir = defaultDownloadDir
	}
	if c.Paths.DownloadDir, err = expandPath(c.Paths.DownloadDir); err != nil {
		return fmt.Errorf("paths.download_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.Socket, err = expandPath(strings.TrimSpace(c.Paths.Socket)); err != nil {
		return fmt.Errorf("paths.socket: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeDiscovery() {
	c.Discovery.BaseURL = strings.TrimRight(strings.TrimSpace(c.Discovery.BaseURL), "/")
	if c.Discovery.BaseURL == "" {
		if value, ok := os.LookupEnv("HARVESTER_BASE_URL"); ok {
			c.Discovery.BaseURL = strings.TrimRight(strings.TrimSpace(value), "/")
		}
	}
	c.Discovery.UserAgent = strings.TrimSpace(c.Discovery.UserAgent)
	if c.Discovery.UserAgent == "" {
		c.Discovery.UserAgent = defaultUserAgent
	}
	if c.Discovery.MaxAgeDays < 0 {
		c.Discovery.MaxAgeDays = 0
	}
	if c.Discovery.IntervalMinutes < 0 {
		c.Discovery.IntervalMinutes = 0
	}
	if c.Discovery.PageDelaySeconds < 0 {
		c.Discovery.PageDelaySeconds = 0
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.MaxDownloadQueue < 0 {
		c.Workflow.MaxDownloadQueue = 0
	}
	if c.Workflow.ProgressIntervalMS <= 0 {
		c.Workflow.ProgressIntervalMS = defaultProgressIntervalMS
	}
	if c.Workflow.RetentionDays < 0 {
		c.Workflow.RetentionDays = 0
	}
}

func (c *Config) normalizeUpload() error {
	c.Upload.Backend = strings.ToLower(strings.TrimSpace(c.Upload.Backend))
	if c.Upload.Backend == "" {
		c.Upload.Backend = defaultUploadBackend
	}
	if strings.TrimSpace(c.Upload.TargetDir) == "" {
		if value, ok := os.LookupEnv("HARVESTER_UPLOAD_DIR"); ok {
			c.Upload.TargetDir = value
		}
	}
	var err error
	if c.Upload.TargetDir, err = expandPath(strings.TrimSpace(c.Upload.TargetDir)); err != nil {
		return fmt.Errorf("upload.target_dir: %w", err)
	}
	c.Upload.BaseURL = strings.TrimRight(strings.TrimSpace(c.Upload.BaseURL), "/")
	if c.Upload.RequestTimeout < 0 {
		c.Upload.RequestTimeout = 0
	}
	c.Upload.OAuth.TokenURL = strings.TrimSpace(c.Upload.OAuth.TokenURL)
	c.Upload.OAuth.ClientID = strings.TrimSpace(c.Upload.OAuth.ClientID)
	c.Upload.OAuth.ClientSecret = strings.TrimSpace(c.Upload.OAuth.ClientSecret)
	if c.Upload.OAuth.ClientSecret == "" {
		if value, ok := os.LookupEnv("HARVESTER_UPLOAD_CLIENT_SECRET"); ok {
			c.Upload.OAuth.ClientSecret = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
