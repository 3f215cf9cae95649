// Package retry provides the explicit retry policy used around page GETs:
// a bounded number of retries with exponential backoff for transport errors
// and a configurable set of HTTP status codes.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"slices"
	"time"
)

// ErrExhausted wraps the last error once every retry has been used.
var ErrExhausted = errors.New("retries exhausted")

// DefaultRetryableStatuses are the gateway/server errors worth retrying.
var DefaultRetryableStatuses = []int{
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// StatusError reports a completed HTTP exchange with a non-2xx status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d (%s) for %s", e.Code, http.StatusText(e.Code), e.URL)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Policy bounds the retry loop.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BackoffBase is the wait before the first retry; each retry doubles it.
	BackoffBase time.Duration
	// MaxBackoff caps a single wait.
	MaxBackoff time.Duration
	// RetryableStatuses lists status codes that trigger a retry.
	RetryableStatuses []int
	// Jitter adds up to half of the computed backoff at random.
	Jitter bool
}

// DefaultPolicy returns 3 retries, 300ms base backoff capped at 10s, retrying
// on 500/502/503/504 and transport errors.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:        3,
		BackoffBase:       300 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		RetryableStatuses: slices.Clone(DefaultRetryableStatuses),
		Jitter:            true,
	}
}

// Validate rejects negative bounds.
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", p.MaxRetries)
	}
	if p.BackoffBase < 0 || p.MaxBackoff < 0 {
		return fmt.Errorf("backoff durations must be >= 0")
	}
	return nil
}

// Retryable decides whether err should trigger another attempt. Status errors
// retry only for listed codes; permanent and context errors never retry;
// anything else is treated as a transient transport failure.
func (p Policy) Retryable(err error) bool {
	if err == nil {
		return false
	}
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return slices.Contains(p.RetryableStatuses, statusErr.Code)
	}
	return true
}

// Backoff returns the wait before retry number n (1-based), without jitter.
func (p Policy) Backoff(n int) time.Duration {
	if n < 1 || p.BackoffBase <= 0 {
		return 0
	}
	delay := float64(p.BackoffBase) * math.Pow(2, float64(n-1))
	if p.MaxBackoff > 0 && delay > float64(p.MaxBackoff) {
		delay = float64(p.MaxBackoff)
	}
	return time.Duration(delay)
}

// Do runs op until it succeeds, returns a non-retryable error, the retry
// budget is spent or ctx ends. onRetry, when non-nil, is called before each
// backoff wait with the retry number, the error and the wait.
func (p Policy) Do(
	ctx context.Context,
	op func(ctx context.Context) error,
	onRetry func(n int, err error, wait time.Duration),
) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("retry canceled: %w (last error: %w)", err, lastErr)
			}
			return fmt.Errorf("retry canceled: %w", err)
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt >= p.MaxRetries {
			return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt+1, lastErr)
		}
		wait := p.Backoff(attempt + 1)
		if p.Jitter {
			wait += randomJitter(wait / 2)
		}
		if onRetry != nil {
			onRetry(attempt+1, lastErr, wait)
		}
		sleep(ctx, wait)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
