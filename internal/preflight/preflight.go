package preflight

import (
	"context"
	"strings"

	"harvester/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Options selects the optional network checks.
type Options struct {
	Network bool
}

// RunAll executes the checks that apply to cfg. Network checks only run
// when opts.Network is set.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Download directory", cfg.Paths.DownloadDir),
	}

	switch cfg.Upload.Backend {
	case config.UploadBackendFilesystem:
		results = append(results, CheckDirectoryAccess("Upload target", cfg.Upload.TargetDir))
	case config.UploadBackendHTTP:
		if opts.Network {
			results = append(results, CheckEndpoint(ctx, "Upload endpoint", cfg.Upload.BaseURL, ""))
		}
	}

	if opts.Network {
		results = append(results, CheckEndpoint(ctx, "Listing site", cfg.Discovery.BaseURL, cfg.Discovery.UserAgent))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// NotificationsConfigured reports whether an ntfy topic is set.
func NotificationsConfigured(cfg *config.Config) bool {
	return cfg != nil && strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""
}
