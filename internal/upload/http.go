package upload

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
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"harvester/internal/config"
	"harvester/internal/fileutil"
	"harvester/internal/logging"
	"harvester/internal/services"
	"harvester/internal/stage"
)

const methodMkcol = "MKCOL"

// HTTP uploads to a WebDAV-style server: MKCOL for folders, HEAD for
// duplicate checks, and PUT for content.
type HTTP struct {
	base       *url.URL
	client     *http.Client
	verifySize bool
	logger     *slog.Logger
}

// NewHTTP builds the http backend. When upload.oauth is configured, requests
// carry a client-credentials bearer token.
func NewHTTP(cfg *config.Config, logger *slog.Logger) (*HTTP, error) {
	base, err := url.Parse(strings.TrimRight(cfg.Upload.BaseURL, "/") + "/")
	if err != nil || base.Host == "" {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "parse base url",
			fmt.Sprintf("invalid upload.base_url %q", cfg.Upload.BaseURL), err)
	}

	timeout := time.Duration(cfg.Upload.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	client := &http.Client{Transport: transport}

	if oauth := cfg.Upload.OAuth; strings.TrimSpace(oauth.TokenURL) != "" {
		cc := &clientcredentials.Config{
			ClientID:     oauth.ClientID,
			ClientSecret: oauth.ClientSecret,
			TokenURL:     oauth.TokenURL,
			Scopes:       oauth.Scopes,
		}
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: timeout})
		client = &http.Client{
			Transport: &oauth2.Transport{
				Source: cc.TokenSource(tokenCtx),
				Base:   transport,
			},
		}
	}

	return &HTTP{
		base:       base,
		client:     client,
		verifySize: cfg.Upload.VerifySize,
		logger:     logging.NewComponentLogger(logger, "upload-http"),
	}, nil
}

func (h *HTTP) folderURL(folder string) string {
	ref := &url.URL{Path: strings.Trim(folder, "/") + "/"}
	return h.base.ResolveReference(ref).String()
}

func (h *HTTP) fileURL(folder, name string) string {
	ref := &url.URL{Path: strings.Trim(folder, "/") + "/" + name}
	return h.base.ResolveReference(ref).String()
}

// Upload transfers localPath into targetFolder on the server.
func (h *HTTP) Upload(ctx context.Context, localPath, targetFolder string, onProgress stage.ProgressFunc) (stage.UploadResult, error) {
	size, err := localSize(localPath)
	if err != nil {
		return stage.UploadResult{}, err
	}
	target := h.fileURL(targetFolder, filepath.Base(localPath))
	result := stage.UploadResult{RemotePath: target}

	existing, err := h.remoteSize(ctx, target)
	if err != nil {
		return result, err
	}
	if existing > 0 {
		h.logger.Info("target already holds file",
			logging.String("target", target),
			logging.Int64("bytes", existing),
		)
		result.Outcome = stage.Duplicate
		result.Bytes = existing
		return result, nil
	}

	if err := h.ensureFolder(ctx, targetFolder); err != nil {
		return result, err
	}

	file, err := os.Open(localPath)
	if err != nil {
		return result, services.Wrap(services.ErrValidation, stageName, "open local file", localPath, err)
	}
	defer file.Close()

	body := fileutil.NewReader(ctx, file, 0, size, func(done, total int64) {
		if total > 0 && onProgress != nil {
			onProgress(float64(done) / float64(total))
		}
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, io.NopCloser(body))
	if err != nil {
		return result, services.Wrap(services.ErrConfiguration, stageName, "put", "build request", err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := h.client.Do(req)
	if err != nil {
		return result, h.transportError(ctx, "put", err)
	}
	drain(resp)
	if err := statusError("put", resp.StatusCode); err != nil {
		return result, err
	}

	if h.verifySize {
		remote, err := h.remoteSize(ctx, target)
		if err != nil {
			return result, err
		}
		if remote >= 0 && remote != size {
			return result, services.Wrap(services.ErrNetwork, stageName, "verify",
				fmt.Sprintf("remote holds %d bytes, expected %d", remote, size), nil)
		}
	}
	result.Outcome = stage.Uploaded
	result.Bytes = size
	return result, nil
}

// remoteSize returns the size of target, zero when absent, and -1 when the
// server omits Content-Length.
func (h *HTTP) remoteSize(ctx context.Context, target string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return 0, services.Wrap(services.ErrConfiguration, stageName, "head", "build request", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return 0, h.transportError(ctx, "head", err)
	}
	drain(resp)
	if resp.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if err := statusError("head", resp.StatusCode); err != nil {
		return 0, err
	}
	return resp.ContentLength, nil
}

func (h *HTTP) ensureFolder(ctx context.Context, folder string) error {
	req, err := http.NewRequestWithContext(ctx, methodMkcol, h.folderURL(folder), nil)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, stageName, "mkcol", "build request", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return h.transportError(ctx, "mkcol", err)
	}
	drain(resp)
	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK, http.StatusNoContent, http.StatusMethodNotAllowed, http.StatusMovedPermanently:
		return nil
	}
	return statusError("mkcol", resp.StatusCode)
}

// HealthCheck issues a HEAD against the base URL.
func (h *HTTP) HealthCheck(ctx context.Context) stage.Health {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, h.base.String(), nil)
	if err != nil {
		return stage.Unhealthy(stageName, err.Error())
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return stage.Unhealthy(stageName, err.Error())
	}
	drain(resp)
	if err := statusError("head", resp.StatusCode); err != nil && resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusMethodNotAllowed {
		return stage.Unhealthy(stageName, err.Error())
	}
	return stage.Healthy(stageName)
}

func (h *HTTP) transportError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return services.Wrap(services.ErrInterrupted, stageName, op, "upload cancelled", err)
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return services.Wrap(services.ErrAuth, stageName, op, "token request rejected", err)
	}
	return services.Wrap(services.ErrNetwork, stageName, op, "", err)
}

func statusError(op string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return services.Wrap(services.ErrAuth, stageName, op, fmt.Sprintf("server returned %d", status), nil)
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return services.Wrap(services.ErrNetwork, stageName, op, fmt.Sprintf("server returned %d", status), nil)
	default:
		return services.Wrap(services.ErrFatal, stageName, op, fmt.Sprintf("server returned %d", status), nil)
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
