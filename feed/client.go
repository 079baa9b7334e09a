// Package feed pages through scanned mail items reported by the mail-scanning provider.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dhcgn/mailscan-to-drive/model"
)

const (
	DefaultURL      = "https://api.usestable.com/v1/mail-items"
	DefaultPageSize = 50
	StatusCompleted = "completed"

	defaultMaxRetries = 3
	maxBackoff        = 30 * time.Second
)

// StatusError is returned for a page that answered with a non-success status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

type Options struct {
	URL      string
	APIKey   string
	PageSize int
	// RequestsPerSecond paces page requests; zero or less disables pacing.
	RequestsPerSecond float64
	MaxRetries        int
	HTTPClient        *http.Client
}

// Client is a thin HTTP client for the mail-items endpoint.
type Client struct {
	url        string
	apiKey     string
	pageSize   int
	maxRetries int
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

func NewClient(opts Options, logger *slog.Logger) (*Client, error) {
	endpoint := strings.TrimSpace(opts.URL)
	if endpoint == "" {
		endpoint = DefaultURL
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("parse feed url: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &Client{
		url:        endpoint,
		apiKey:     opts.APIKey,
		pageSize:   pageSize,
		maxRetries: maxRetries,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}, nil
}

// FetchItems follows the cursor until the provider reports no further page.
//
// A failing page ends pagination; the items gathered so far are returned with
// a nil error because skipped items are picked up again by the next run. Only
// context cancellation is reported as an error.
func (c *Client) FetchItems(ctx context.Context, status string) ([]model.MailItem, error) {
	if status == "" {
		status = StatusCompleted
	}

	var (
		items  []model.MailItem
		cursor string
	)

	for pageNo := 1; ; pageNo++ {
		page, err := c.fetchPage(ctx, status, cursor)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return items, ctxErr
			}
			c.logger.Error("error fetching mail items", "page", pageNo, "fetched", len(items), "err", err)
			return items, nil
		}

		for idx, edge := range page.Edges {
			if edge.Node == nil || strings.TrimSpace(edge.Node.ID) == "" {
				c.logger.Warn("mail item without id skipped", "page", pageNo, "index", idx)
				continue
			}
			items = append(items, ToMailItem(edge.Node))
		}
		c.logger.Debug("fetched mail items page", "page", pageNo, "count", len(page.Edges), "total", len(items))

		if page.PageInfo == nil || !page.PageInfo.HasNextPage {
			break
		}
		if page.PageInfo.EndCursor == "" || page.PageInfo.EndCursor == cursor {
			c.logger.Error("feed reported another page without a new cursor", "page", pageNo, "cursor", cursor)
			break
		}
		cursor = page.PageInfo.EndCursor
	}

	c.logger.Info("completed fetching mail items", "total", len(items))
	return items, nil
}

func (c *Client) fetchPage(ctx context.Context, status, cursor string) (*Page, error) {
	query := url.Values{}
	query.Set("scan.status", status)
	query.Set("first", strconv.Itoa(c.pageSize))
	if cursor != "" {
		query.Set("after", cursor)
	}

	endpoint := c.url
	if strings.Contains(endpoint, "?") {
		endpoint += "&" + query.Encode()
	} else {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("accept", "application/json")
		req.Header.Set("x-api-key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("executing request: %w", err)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("reading response body: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body))}
			wait := retryAfterDuration(resp, attempt)
			c.logger.Warn("feed rate limited", "attempt", attempt+1, "wait", wait)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
				continue
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body))}
		}

		var page Page
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("decoding page: %w", err)
		}
		return &page, nil
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}

// retryAfterDuration reads the Retry-After header and falls back to
// exponential backoff when it is missing.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
			return time.Duration(seconds) * time.Second
		}
	}

	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}

func truncate(s string) string {
	const limit = 256
	s = strings.TrimSpace(s)
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
