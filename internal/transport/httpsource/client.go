// Package httpsource is a retrieval source speaking the HTTP search API of a
// vecdex-style backend.
package httpsource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fusegate/internal/domain/search/result"
)

// Default retry settings.
const (
	DefaultMaxRetries = 2
	DefaultBackoffMin = 50 * time.Millisecond
	DefaultBackoffMax = 1 * time.Second
)

// Config holds the upstream connection settings.
type Config struct {
	Name       string
	BaseURL    string
	Collection string
	MaxRetries int
	BackoffMin time.Duration
	BackoffMax time.Duration
	// Client is the underlying HTTP client; http.DefaultClient when nil.
	// Per-call deadlines come from the caller's context, not from here.
	Client *http.Client
	Logger *zap.Logger
}

// Client issues search calls against one upstream collection, retrying 5xx and
// transport errors with exponential backoff. 4xx responses fail immediately.
type Client struct {
	name       string
	searchURL  string
	healthURL  string
	maxRetries int
	backoffMin time.Duration
	backoffMax time.Duration
	http       *http.Client
	logger     *zap.Logger
}

// New creates an HTTP source client.
func New(cfg Config) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = DefaultBackoffMin
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = DefaultBackoffMax
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		name:       cfg.Name,
		searchURL:  fmt.Sprintf("%s/api/v1/collections/%s/search", cfg.BaseURL, cfg.Collection),
		healthURL:  cfg.BaseURL + "/healthz",
		maxRetries: cfg.MaxRetries,
		backoffMin: cfg.BackoffMin,
		backoffMax: cfg.BackoffMax,
		http:       cfg.Client,
		logger:     cfg.Logger,
	}
}

// Name identifies the source.
func (c *Client) Name() string { return c.name }

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type searchItem struct {
	ID      string          `json:"id"`
	Score   float64         `json:"score"`
	Payload json.RawMessage `json:"payload"`
}

type searchResponse struct {
	Items []searchItem `json:"items"`
}

// permanentError marks a failure that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Query runs the upstream search with retry. Backoff sleeps observe ctx, so a
// budget expiry or caller disconnect aborts the loop promptly.
func (c *Client) Query(ctx context.Context, query string, topK int) ([]result.Result, error) {
	body, err := json.Marshal(searchRequest{Query: query, TopK: topK})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	backoff := c.backoffMin
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying source call",
				zap.String("source", c.name),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
			)
			if err := sleep(ctx, backoff); err != nil {
				return nil, err
			}
			backoff *= 2
			if backoff > c.backoffMax {
				backoff = c.backoffMax
			}
		}

		hits, err := c.doSearch(ctx, body)
		if err == nil {
			return hits, nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			return nil, perm.err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("search failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Client) doSearch(ctx context.Context, body []byte) ([]result.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.searchURL, bytes.NewReader(body))
	if err != nil {
		return nil, &permanentError{fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport failure: retryable.
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 500:
		// Server fault: retryable.
		return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		// Client fault: retrying cannot help.
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &permanentError{fmt.Errorf("upstream status %d: %s", resp.StatusCode, msg)}
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	hits := make([]result.Result, len(parsed.Items))
	for i, it := range parsed.Items {
		hits[i] = result.New(it.ID, it.Score, it.Payload)
	}
	return hits, nil
}

// Ping probes the upstream health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.healthURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", c.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe %s: status %d", c.name, resp.StatusCode)
	}
	return nil
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
