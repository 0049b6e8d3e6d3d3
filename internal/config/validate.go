package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDiscovery(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDiscovery() error {
	if c.Discovery.BaseURL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("discovery.base_url is required. Set HARVESTER_BASE_URL env var or edit %s (create with 'harvester config init')", defaultPath)
	}
	if err := validateHTTPURL("discovery.base_url", c.Discovery.BaseURL); err != nil {
		return err
	}
	if err := ensurePositiveMap(map[string]int{
		"discovery.max_pages":               c.Discovery.MaxPages,
		"discovery.request_timeout_seconds": c.Discovery.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Discovery.MinAgeDays < 0 {
		return errors.New("discovery.min_age_days must be >= 0")
	}
	if c.Discovery.MinRating < 0 || c.Discovery.MinRating > 100 {
		return errors.New("discovery.min_rating must be between 0 and 100")
	}
	if c.Discovery.MaxAgeDays > 0 && c.Discovery.MaxAgeDays <= c.Discovery.MinAgeDays {
		return errors.New("discovery.max_age_days must be greater than discovery.min_age_days (or 0 to disable)")
	}
	if c.Discovery.FetchRetries < 0 {
		return errors.New("discovery.fetch_retries must be >= 0")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.DownloadWorkers < 1 || c.Workflow.DownloadWorkers > maxWorkers {
		return fmt.Errorf("workflow.download_workers must be between 1 and %d", maxWorkers)
	}
	if c.Workflow.UploadWorkers < 1 || c.Workflow.UploadWorkers > maxWorkers {
		return fmt.Errorf("workflow.upload_workers must be between 1 and %d", maxWorkers)
	}
	if c.Workflow.RetryCeiling < 1 {
		return errors.New("workflow.retry_ceiling must be positive")
	}
	return nil
}

func (c *Config) validateUpload() error {
	switch c.Upload.Backend {
	case UploadBackendFilesystem:
		if c.Upload.TargetDir == "" {
			return errors.New("upload.target_dir must be set when upload.backend is \"filesystem\"")
		}
	case UploadBackendHTTP:
		if c.Upload.BaseURL == "" {
			return errors.New("upload.base_url must be set when upload.backend is \"http\"")
		}
		if err := validateHTTPURL("upload.base_url", c.Upload.BaseURL); err != nil {
			return err
		}
		oauth := c.Upload.OAuth
		if oauth.TokenURL != "" && (oauth.ClientID == "" || oauth.ClientSecret == "") {
			return errors.New("upload.oauth.client_id and client_secret must be set when upload.oauth.token_url is set")
		}
	default:
		return fmt.Errorf("upload.backend %q is not supported (use %q or %q)", c.Upload.Backend, UploadBackendFilesystem, UploadBackendHTTP)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}
}

func validateHTTPURL(key, raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if (scheme != "http" && scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL", key)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
