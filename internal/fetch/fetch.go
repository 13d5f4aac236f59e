// Package fetch holds the HTTP plumbing shared by URL verification and local
// materialization: a tuned client and a retry loop that distinguishes
// transient from permanent failures.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vk/yolosetgo/internal/ctxlog"
)

// Options carries the caller-tunable network parameters. Verification and
// download both run under the same tuning.
type Options struct {
	Workers int           // bounded worker pool size
	Timeout time.Duration // per request
	Retries int           // retry budget for transient failures
	Backoff time.Duration // base delay, doubled per attempt
}

// NewClient builds the shared HTTP client for remote image fetches.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// transientStatus reports whether a response status is worth retrying.
// Everything else (404, 403, non-image content) is permanent.
func transientStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

// Do issues the request produced by newReq, retrying transient failures
// (network errors, timeouts, 5xx, 429) up to opts.Retries times with a
// doubling backoff. Permanent failures are returned immediately. The caller
// owns the returned response body.
func Do(ctx context.Context, client *http.Client, opts Options, newReq func() (*http.Request, error)) (*http.Response, error) {
	logger := ctxlog.FromContext(ctx)

	var lastErr error
	backoff := opts.Backoff

	for attempt := 0; attempt <= opts.Retries; attempt++ {
		if attempt > 0 {
			logger.Debug("Retrying request.", "attempt", attempt, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}

		req, err := newReq()
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req.WithContext(ctx))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if transientStatus(resp.StatusCode) {
			// Drain so the connection can be reused, then retry.
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("all %d attempts failed: %w", opts.Retries+1, lastErr)
}
