// Package sources holds the concrete integration adapters and the shared
// upstream HTTP client they call through.
package sources

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/BrianMills2718/OSINT-sub001/pkg/models"
)

const (
	maxRetries      = 2
	maxResponseSize = 10 << 20 // 10 MiB
)

// Client is the shared upstream HTTP transport. It retries transient 5xx
// responses with exponential backoff and runs a circuit breaker per host,
// so one failing upstream cannot burn the cohort's time budget on every
// call.
type Client struct {
	http *http.Client

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewClient creates the shared transport. Per-call deadlines come from the
// caller's context; the client timeout is a backstop.
func NewClient() *Client {
	return &Client{
		http:     &http.Client{Timeout: 90 * time.Second},
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// NewClientWithTransport injects a transport for tests.
func NewClientWithTransport(rt http.RoundTripper) *Client {
	c := NewClient()
	c.http.Transport = rt
	return c
}

func (c *Client) breakerFor(host string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.breakers[host]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    host,
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	c.breakers[host] = b
	return b
}

// Do performs one upstream request and returns body bytes and status.
// Transient 5xx responses are retried with exponential backoff within the
// context's deadline. 4xx responses are returned without retry; the
// adapter classifies them. An open breaker fails immediately.
func (c *Client) Do(ctx context.Context, method, url string, headers map[string]string, reqBody []byte) ([]byte, int, error) {
	newReq := func() (*http.Request, error) {
		var rd io.Reader
		if len(reqBody) > 0 {
			rd = bytes.NewReader(reqBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		if req.Header.Get("User-Agent") == "" {
			req.Header.Set("User-Agent", "osint-research-platform/1.0")
		}
		if len(reqBody) > 0 && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	}

	probe, err := newReq()
	if err != nil {
		return nil, 0, err
	}
	breaker := c.breakerFor(probe.URL.Host)

	var body []byte
	var status int
	attempt := func() error {
		req, err := newReq()
		if err != nil {
			return backoff.Permanent(err)
		}
		res, err := breaker.Execute(func() (any, error) {
			resp, err := c.http.Do(req)
			if err != nil {
				return nil, err
			}
			defer func() { _ = resp.Body.Close() }()

			data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
			if err != nil {
				return nil, fmt.Errorf("reading response: %w", err)
			}
			status = resp.StatusCode
			if resp.StatusCode >= 500 {
				// Counted as a breaker failure and retried by backoff.
				return data, fmt.Errorf("upstream status %d", resp.StatusCode)
			}
			return data, nil
		})
		if err != nil {
			if status >= 500 {
				return err // retryable
			}
			return backoff.Permanent(err)
		}
		body, _ = res.([]byte)
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	if err := backoff.Retry(attempt, bo); err != nil {
		if status >= 400 {
			return body, status, err
		}
		return nil, 0, err
	}
	return body, status, nil
}

// classifyResponse converts a non-2xx status or transport error into a
// SourceError for the given source.
func classifyResponse(sourceID string, status int, err error) *models.SourceError {
	if err != nil && status == 0 {
		return models.ClassifyError(sourceID, err)
	}
	if status >= 400 {
		return models.NewSourceError(models.ClassifyHTTPStatus(status), sourceID,
			"upstream returned status %d", status)
	}
	if err != nil {
		return models.ClassifyError(sourceID, err)
	}
	return nil
}
