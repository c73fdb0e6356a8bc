package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"coursebot/internal/domain"
)

const maxRetries = 3

// retryBackoff returns the wait before the given attempt (1-based).
// Quadratic with up to 50% jitter to avoid a thundering herd.
var retryBackoff = func(attempt int) time.Duration {
	base := time.Duration(attempt*attempt) * time.Second
	return base + time.Duration(rand.Int64N(int64(base/2+1)))
}

// doWithRetry executes an HTTP request with backoff for transient failures
// (network errors, 5xx, 429). Retrying lives here, in the transport; callers
// above the provider never retry. Exhausted retries and non-retryable error
// statuses come back as *domain.ModelAPIError; a 2xx response is returned for
// the caller to decode and close.
func doWithRetry(ctx context.Context, provider string, client *http.Client, buildReq func() (*http.Request, error), logger *slog.Logger) (*http.Response, error) {
	var lastErr *domain.ModelAPIError

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := retryBackoff(attempt)
			logger.Warn("retrying request", "provider", provider, "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = &domain.ModelAPIError{Provider: provider, Message: "request failed", Err: err}
			if attempt < maxRetries {
				logger.Warn("request failed, will retry", "provider", provider, "error", err)
				continue
			}
			break
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			lastErr = &domain.ModelAPIError{Provider: provider, Status: resp.StatusCode, Message: string(body)}
			if attempt < maxRetries {
				logger.Warn("server error, will retry", "provider", provider, "status", resp.StatusCode)
				continue
			}
			break
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, &domain.ModelAPIError{Provider: provider, Status: resp.StatusCode, Message: string(body)}
		}

		return resp, nil
	}

	lastErr.Message = fmt.Sprintf("%s (after %d retries)", lastErr.Message, maxRetries)
	return nil, lastErr
}

// decodeError reports an unusable response body.
func decodeError(provider string, err error) error {
	return &domain.ModelAPIError{Provider: provider, Message: "malformed response", Err: err}
}
