package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"harvester/internal/config"
	"harvester/internal/fileutil"
	"harvester/internal/logging"
	"harvester/internal/queue"
	"harvester/internal/services"
	"harvester/internal/stage"
	"harvester/internal/textutil"
)

const (
	stageName        = "download"
	partSuffix       = ".part"
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	maxPageBytes     = 8 << 20
)

var contentRangeTotal = regexp.MustCompile(`/(\d+)\s*$`)

// Client downloads task media over HTTP.
type Client struct {
	dir         string
	userAgent   string
	pageTimeout time.Duration
	http        *http.Client
	logger      *slog.Logger
}

// NewClient builds a downloader writing into the configured download dir.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	timeout := time.Duration(cfg.Discovery.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	userAgent := strings.TrimSpace(cfg.Discovery.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout

	return &Client{
		dir:         cfg.Paths.DownloadDir,
		userAgent:   userAgent,
		pageTimeout: timeout,
		http:        &http.Client{Transport: transport},
		logger:      logging.NewComponentLogger(logger, stageName),
	}
}

// LocalPath returns where the task's media is stored once downloaded.
func (c *Client) LocalPath(task *queue.Task) string {
	return filepath.Join(c.dir, textutil.MediaFileName(task.Title, task.ID))
}

// Download fetches the task's media and returns the local file path.
func (c *Client) Download(ctx context.Context, task *queue.Task, onProgress stage.ProgressFunc) (string, error) {
	if task == nil {
		return "", services.Wrap(services.ErrValidation, stageName, "download", "task is nil", nil)
	}
	final := c.LocalPath(task)
	if fileutil.FileSize(final) > 0 {
		c.logger.Info("media already downloaded",
			logging.String(logging.FieldTaskID, task.ID),
			logging.String("path", final),
		)
		report(onProgress, 1)
		return final, nil
	}
	if strings.TrimSpace(task.SourceRef) == "" {
		return "", services.Wrap(services.ErrSourceGone, stageName, "resolve", "task has no source page", nil)
	}

	mediaURL, err := c.ResolveMediaURL(ctx, task.SourceRef)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, stageName, "prepare", "create download dir", err)
	}
	if err := c.transfer(ctx, mediaURL, task.SourceRef, final, onProgress); err != nil {
		return "", err
	}
	return final, nil
}

// ResolveMediaURL loads a source page and extracts its media URL.
func (c *Client) ResolveMediaURL(ctx context.Context, pageRef string) (string, error) {
	pageURL, err := url.Parse(pageRef)
	if err != nil {
		return "", services.Wrap(services.ErrSourceGone, stageName, "resolve", "invalid source page "+pageRef, err)
	}

	pageCtx, cancel := context.WithTimeout(ctx, c.pageTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(pageCtx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return "", services.Wrap(services.ErrSourceGone, stageName, "resolve", "build page request", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", c.transportError(ctx, "resolve", err)
	}
	defer resp.Body.Close()
	if err := statusError("resolve", resp.StatusCode); err != nil {
		return "", err
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", c.transportError(ctx, "resolve", err)
	}
	mediaURL, ok := findMediaURL(doc, resp.Request.URL)
	if !ok {
		return "", services.Wrap(services.ErrSourceGone, stageName, "resolve", "no media url on "+pageRef, nil)
	}
	return mediaURL, nil
}

func (c *Client) transfer(ctx context.Context, mediaURL, referer, final string, onProgress stage.ProgressFunc) error {
	part := final + partSuffix
	offset := fileutil.FileSize(part)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return services.Wrap(services.ErrSourceGone, stageName, "transfer", "build media request", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Referer", referer)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportError(ctx, "transfer", err)
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	var total int64
	switch resp.StatusCode {
	case http.StatusRequestedRangeNotSatisfiable:
		if offset > 0 {
			c.logger.Info("partial download already complete", logging.String("path", part))
			report(onProgress, 1)
			return finalize(part, final)
		}
		return statusError("transfer", resp.StatusCode)
	case http.StatusPartialContent:
		flags |= os.O_APPEND
		total = rangeTotal(resp.Header.Get("Content-Range"), offset, resp.ContentLength)
		c.logger.Debug("resuming partial download",
			logging.String("path", part),
			logging.Int64("offset", offset),
		)
	case http.StatusOK:
		flags |= os.O_TRUNC
		offset = 0
		total = resp.ContentLength
	default:
		if err := statusError("transfer", resp.StatusCode); err != nil {
			return err
		}
		return services.Wrap(services.ErrNetwork, stageName, "transfer", fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	file, err := os.OpenFile(part, flags, 0o644)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, stageName, "transfer", "open partial file", err)
	}
	done, copyErr := fileutil.Copy(ctx, file, resp.Body, offset, total, func(done, total int64) {
		if total > 0 {
			report(onProgress, float64(done)/float64(total))
		}
	})
	done += offset
	if err := file.Sync(); err != nil && copyErr == nil {
		copyErr = err
	}
	if err := file.Close(); err != nil && copyErr == nil {
		copyErr = err
	}
	if copyErr != nil {
		return c.transportError(ctx, "transfer", copyErr)
	}
	if total > 0 && done != total {
		return services.Wrap(services.ErrNetwork, stageName, "transfer",
			fmt.Sprintf("incomplete body: received %d of %d bytes", done, total), nil)
	}
	report(onProgress, 1)
	return finalize(part, final)
}

func finalize(part, final string) error {
	if err := os.Rename(part, final); err != nil {
		return services.Wrap(services.ErrTransient, stageName, "finalize", "rename partial file", err)
	}
	return nil
}

func (c *Client) transportError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return services.Wrap(services.ErrInterrupted, stageName, op, "transfer cancelled", err)
	}
	return services.Wrap(services.ErrNetwork, stageName, op, "", err)
}

// statusError maps an HTTP status to a classified error; nil for 2xx.
func statusError(op string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound, status == http.StatusGone:
		return services.Wrap(services.ErrSourceGone, stageName, op, fmt.Sprintf("remote returned %d", status), nil)
	case status == http.StatusForbidden, status == http.StatusTooManyRequests, status >= 500:
		return services.Wrap(services.ErrNetwork, stageName, op, fmt.Sprintf("remote returned %d", status), nil)
	default:
		return services.Wrap(services.ErrFatal, stageName, op, fmt.Sprintf("remote returned %d", status), nil)
	}
}

func rangeTotal(header string, offset, length int64) int64 {
	if match := contentRangeTotal.FindStringSubmatch(header); match != nil {
		if total, err := strconv.ParseInt(match[1], 10, 64); err == nil {
			return total
		}
	}
	if length >= 0 {
		return offset + length
	}
	return 0
}

func report(onProgress stage.ProgressFunc, fraction float64) {
	if onProgress != nil {
		onProgress(fraction)
	}
}

// HealthCheck verifies the download directory is usable.
func (c *Client) HealthCheck(context.Context) stage.Health {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return stage.Unhealthy(stageName, err.Error())
	}
	return stage.Healthy(stageName)
}
