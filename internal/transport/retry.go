package transport

import (
	"context"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/biketag-game/biketag-go/internal/backend"
)

// Retry configuration constants.
const (
	maxRetries     = 3
	baseBackoffSec = 1
	maxBackoffSec  = 30
)

// retryableStatusCodes are HTTP status codes that warrant a retry.
var retryableStatusCodes = map[int]bool{
	http.StatusTooManyRequests:     true, // 429
	http.StatusServiceUnavailable:  true, // 503
	http.StatusInternalServerError: true, // 500 (may be transient)
	http.StatusBadGateway:          true, // 502
	http.StatusGatewayTimeout:      true, // 504
}

// idempotentMethods may be resent without changing the outcome.
var idempotentMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPut:     true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// RetryConfig configures retry behavior. MaxRetries counts attempts, so 1
// disables retrying.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  time.Duration(baseBackoffSec) * time.Second,
		MaxDelay:   time.Duration(maxBackoffSec) * time.Second,
	}
}

// NoRetry sends every request exactly once.
func NoRetry() RetryConfig {
	return RetryConfig{MaxRetries: 1}
}

// shouldRetry determines if a failed attempt should be retried. A response is
// judged by its status; an attempt without one by its error.
func shouldRetry(method string, resp *Response, err error) bool {
	if !idempotentMethods[method] {
		return false
	}
	if resp != nil {
		return retryableStatusCodes[resp.Status]
	}
	return backend.IsRetryable(err)
}

// getRetryAfter extracts the Retry-After value from response headers.
// Returns 0 if header is not present or invalid.
func getRetryAfter(resp *Response) time.Duration {
	if resp == nil || resp.Header == nil {
		return 0
	}

	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(header); err == nil {
		if delay := time.Until(t); delay > 0 {
			return delay
		}
	}

	return 0
}

// calculateBackoff calculates the backoff duration for a given attempt.
// Uses exponential backoff with ±25% jitter capped at maxDelay. A server
// supplied Retry-After is used as is, capped at maxDelay.
func calculateBackoff(attempt int, cfg RetryConfig, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return min(retryAfter, cfg.MaxDelay)
	}

	backoff := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))
	backoff = math.Min(backoff, float64(cfg.MaxDelay))

	jitterRange := backoff * 0.25
	jitter := (rand.Float64() * 2 * jitterRange) - jitterRange //nolint:gosec // Non-crypto jitter is fine
	backoff += jitter

	backoff = math.Max(backoff, float64(time.Millisecond))
	backoff = math.Min(backoff, float64(cfg.MaxDelay))

	return time.Duration(backoff)
}

// sleep waits for the specified duration or until context is cancelled.
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

// withRetry runs fn until it succeeds, returns a non-retryable result, or the
// attempts are used up. onRetry is called before each backoff sleep.
func withRetry(ctx context.Context, cfg RetryConfig, method string, fn func() (*Response, error), onRetry func()) (*Response, error) {
	attempts := max(cfg.MaxRetries, 1)

	var (
		resp *Response
		err  error
	)
	for attempt := range attempts {
		resp, err = fn()
		if err == nil {
			return resp, nil
		}

		if attempt == attempts-1 || !shouldRetry(method, resp, err) {
			return resp, err
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if onRetry != nil {
			onRetry()
		}
		if sleepErr := sleep(ctx, calculateBackoff(attempt, cfg, getRetryAfter(resp))); sleepErr != nil {
			return nil, sleepErr
		}
	}

	return resp, err
}
