// Package monitor runs the periodic status reconciliation loop: it re-checks
// liveness for every known stream and propagates status changes through both
// backend stores.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
)

// Checker decides whether a stream URL is currently live. Implementations
// are expected to have their own retry policy; the reconciler only imposes an
// outer per-check timeout.
type Checker interface {
	Check(ctx context.Context, url string) (bool, error)
}

// HTTPChecker probes the stream page directly. Any 2xx/3xx response counts
// as live; 4xx means the stream is gone or offline. Platform API checkers
// can replace this behind the same interface.
type HTTPChecker struct {
	Client *http.Client
}

func (c *HTTPChecker) http() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}

func (c *HTTPChecker) Check(ctx context.Context, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return false, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode >= 500 {
		return false, fmt.Errorf("checker: status %d for %s", resp.StatusCode, url)
	}
	return resp.StatusCode < 400, nil
}
