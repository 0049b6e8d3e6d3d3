package discovery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"harvester/internal/config"
	"harvester/internal/logging"
	"harvester/internal/services"
)

const (
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	maxPageBytes     = 8 << 20
	stageName        = "discovery"
)

// Client fetches and parses listing pages over HTTP.
type Client struct {
	base         *url.URL
	maxPages     int
	maxAge       time.Duration
	userAgent    string
	retries      int
	retryBackoff time.Duration
	http         *http.Client
	limiter      *rate.Limiter
	logger       *slog.Logger
	now          func() time.Time
}

// NewClient builds a listing client from configuration.
func NewClient(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.Discovery.BaseURL, "/") + "/")
	if err != nil || base.Host == "" {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "parse base url",
			fmt.Sprintf("invalid discovery.base_url %q", cfg.Discovery.BaseURL), err)
	}

	limit := rate.Inf
	if delay := cfg.PageDelay(); delay > 0 {
		limit = rate.Every(delay)
	}
	timeout := time.Duration(cfg.Discovery.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	userAgent := strings.TrimSpace(cfg.Discovery.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Client{
		base:         base,
		maxPages:     cfg.Discovery.MaxPages,
		maxAge:       cfg.MaxAge(),
		userAgent:    userAgent,
		retries:      cfg.Discovery.FetchRetries,
		retryBackoff: 500 * time.Millisecond,
		http:         &http.Client{Timeout: timeout},
		limiter:      rate.NewLimiter(limit, 1),
		logger:       logging.NewComponentLogger(logger, stageName),
		now:          time.Now,
	}, nil
}

// PageURL returns the listing URL for a page number. Page one is the base.
func (c *Client) PageURL(page int) string {
	if page <= 1 {
		return c.base.String()
	}
	next, _ := c.base.Parse(strconv.Itoa(page) + "/")
	return next.String()
}

// FetchPage fetches and parses the page identified by token.
func (c *Client) FetchPage(ctx context.Context, token string) (Page, error) {
	page := 1
	if token = strings.TrimSpace(token); token != "" {
		n, err := strconv.Atoi(token)
		if err != nil || n < 1 {
			return Page{}, services.Wrap(services.ErrValidation, stageName, "parse token",
				fmt.Sprintf("invalid page token %q", token), nil)
		}
		page = n
	}
	pageURL := c.PageURL(page)
	result := Page{Token: strconv.Itoa(page), URL: pageURL}

	body, status, err := c.fetchWithRetry(ctx, pageURL)
	if err != nil {
		return result, err
	}
	if status == http.StatusNotFound {
		if page == 1 {
			return result, services.Wrap(services.ErrFatal, stageName, "fetch", pageURL+" returned 404", nil)
		}
		c.logger.Info("listing page not found; treating as last page",
			logging.Int("page", page),
			logging.String("url", pageURL),
		)
		return result, nil
	}

	parsedURL, _ := url.Parse(pageURL)
	items, skipped, err := parseListing(strings.NewReader(body), parsedURL)
	if err != nil {
		return result, services.Wrap(services.ErrFatal, stageName, "parse", pageURL, err)
	}
	result.Items = items
	result.Skipped = skipped

	if len(items)+skipped > 0 && (c.maxPages <= 0 || page < c.maxPages) && !c.allOutsideLookback(items) {
		result.Next = strconv.Itoa(page + 1)
	}
	c.logger.Debug("listing page parsed",
		logging.Int("page", page),
		logging.Int("items", len(items)),
		logging.Int("skipped", skipped),
		logging.String("next", result.Next),
	)
	return result, nil
}

// allOutsideLookback reports whether every dated item is older than the
// lookback window, in which case later pages cannot hold newer items.
func (c *Client) allOutsideLookback(items []Item) bool {
	if c.maxAge <= 0 || len(items) == 0 {
		return false
	}
	cutoff := c.now().Add(-c.maxAge)
	dated := 0
	for _, item := range items {
		if item.PublishedAt.IsZero() {
			continue
		}
		dated++
		if !item.PublishedAt.Before(cutoff) {
			return false
		}
	}
	return dated > 0
}

func (c *Client) fetchWithRetry(ctx context.Context, pageURL string) (string, int, error) {
	var lastErr error
	backoff := c.retryBackoff
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("listing fetch failed; retrying",
				logging.String("url", pageURL),
				logging.Int("attempt", attempt),
				logging.Error(lastErr),
				logging.String(logging.FieldEventType, "discovery_retry"),
				logging.String(logging.FieldErrorHint, "check connectivity to the listing site"),
				logging.String(logging.FieldImpact, "discovery is delayed"),
			)
			select {
			case <-ctx.Done():
				return "", 0, services.Wrap(services.ErrInterrupted, stageName, "fetch", pageURL, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		body, status, err := c.fetch(ctx, pageURL)
		if err == nil {
			return body, status, nil
		}
		lastErr = err
		if services.Classify(err) != services.FailureTransient {
			return "", status, err
		}
	}
	return "", 0, lastErr
}

func (c *Client) fetch(ctx context.Context, pageURL string) (string, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", 0, services.Wrap(services.ErrInterrupted, stageName, "wait", pageURL, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", 0, services.Wrap(services.ErrFatal, stageName, "build request", pageURL, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", 0, services.Wrap(services.ErrInterrupted, stageName, "fetch", pageURL, ctx.Err())
		}
		return "", 0, services.Wrap(services.ErrNetwork, stageName, "fetch", pageURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", resp.StatusCode, nil
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return "", resp.StatusCode, services.Wrap(services.ErrNetwork, stageName, "fetch", fmt.Sprintf("%s returned %d", pageURL, resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		return "", resp.StatusCode, services.Wrap(services.ErrFatal, stageName, "fetch", fmt.Sprintf("%s returned %d", pageURL, resp.StatusCode), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		if ctx.Err() != nil {
			return "", 0, services.Wrap(services.ErrInterrupted, stageName, "read body", pageURL, ctx.Err())
		}
		return "", resp.StatusCode, services.Wrap(services.ErrNetwork, stageName, "read body", pageURL, err)
	}
	return string(data), resp.StatusCode, nil
}
