// Package adapters holds the shared HTTP plumbing for source adapters:
// a retrying JSON client that paces requests per source and counts them
// against the monthly budget.
package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/plateindex/plateindex/internal/metrics"
	"github.com/plateindex/plateindex/internal/ratelimit"
)

// Client issues JSON GET requests for one source with pacing, budget
// accounting, and bounded retry on transient upstream failures.
type Client struct {
	source     string
	httpClient *http.Client
	pacer      *ratelimit.Pacer
	tracker    *ratelimit.Tracker
	maxRetries int
	backoff    time.Duration
}

// ClientConfig sizes a Client.
type ClientConfig struct {
	Source     string
	Timeout    time.Duration
	MaxRetries int
	Pacer      *ratelimit.Pacer
	Tracker    *ratelimit.Tracker
}

const defaultBackoff = 250 * time.Millisecond

// NewClient constructs a Client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		source:     cfg.Source,
		httpClient: &http.Client{Timeout: timeout},
		pacer:      cfg.Pacer,
		tracker:    cfg.Tracker,
		maxRetries: cfg.MaxRetries,
		backoff:    defaultBackoff,
	}
}

// GetJSON fetches url and decodes the response body into out. Requests are
// paced before they leave; 429 and 5xx responses are retried with doubling
// backoff up to MaxRetries, and every attempt, retries included, is counted
// against the monthly budget since each one reaches the provider.
func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, out any) error {
	if c.pacer != nil {
		if err := c.pacer.Wait(ctx, c.source); err != nil {
			return err
		}
	}

	var lastErr error
	backoff := c.backoff
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}

		if c.tracker != nil {
			if _, err := c.tracker.Increment(ctx, c.source, 1); err != nil {
				return fmt.Errorf("count request: %w", err)
			}
		}
		status, err := c.doOnce(ctx, url, header, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(status) {
			return err
		}
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, url string, header http.Header, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveAdapterRequest(c.source, "error")
		return 0, fmt.Errorf("%s request: %w", c.source, err)
	}
	defer func() { _ = resp.Body.Close() }()

	metrics.ObserveAdapterRequest(c.source, statusClass(resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("%s responded %d: %s", c.source, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s response: %w", c.source, err)
	}
	return resp.StatusCode, nil
}

func retryable(status int) bool {
	return status == 0 || status == http.StatusTooManyRequests || status >= 500
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}
