package batch

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/okian/rcagrade/internal/adapters/llm"
	"github.com/okian/rcagrade/pkg/logger"
	"github.com/okian/rcagrade/pkg/metrics"
)

// RetryConfig controls retries of a row after transport failures.
type RetryConfig struct {
	// MaxRetries is the number of extra attempts. 0 disables retrying.
	MaxRetries int
	// BaseBackoff is the wait before the first retry; it doubles each attempt.
	BaseBackoff time.Duration
	// MaxBackoff caps the doubled wait.
	MaxBackoff time.Duration
	// MaxJitter is the upper bound of random time added to each wait.
	MaxJitter time.Duration
}

// DefaultRetryConfig disables retries and keeps sane backoff bounds for
// callers that only raise MaxRetries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  0,
		BaseBackoff: time.Second,
		MaxBackoff:  30 * time.Second,
		MaxJitter:   500 * time.Millisecond,
	}
}

// Validate checks that the retry configuration has valid values.
func (c RetryConfig) Validate() error {
	switch {
	case c.MaxRetries < 0:
		return errors.New("max retries cannot be negative")
	case c.BaseBackoff < 0:
		return errors.New("base backoff cannot be negative")
	case c.MaxBackoff < 0:
		return errors.New("max backoff cannot be negative")
	case c.MaxJitter < 0:
		return errors.New("max jitter cannot be negative")
	}
	return nil
}

// backoff returns the wait before retry number attempt (0-based).
func (c RetryConfig) backoff(attempt int) time.Duration {
	d := c.BaseBackoff << attempt
	if d < 0 || (c.MaxBackoff > 0 && d > c.MaxBackoff) {
		d = c.MaxBackoff
	}
	if c.MaxJitter > 0 {
		d += rand.N(c.MaxJitter)
	}
	return d
}

// isRetryable reports whether err is worth another attempt. Only transport
// failures qualify; a malformed or invalid answer is not retried.
func isRetryable(err error) bool {
	return errors.Is(err, llm.ErrTransport)
}

func withRetry[T any](ctx context.Context, cfg RetryConfig, log logger.Logger, incidentID string, fn func() (T, error)) (T, error) {
	var (
		result  T
		lastErr error
	)
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, lastErr = fn()
		if lastErr == nil || !isRetryable(lastErr) {
			return result, lastErr
		}
		if attempt >= cfg.MaxRetries {
			break
		}

		wait := cfg.backoff(attempt)
		metrics.RecordBatchRetry()
		log.Warn(ctx, "transport failure, retrying row",
			logger.String("incident_id", incidentID),
			logger.Int("attempt", attempt+1),
			logger.Int("max_retries", cfg.MaxRetries),
			logger.Duration("backoff", wait),
			logger.Error(lastErr),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, ctx.Err()
		case <-timer.C:
		}
	}
	if cfg.MaxRetries == 0 {
		return result, lastErr
	}
	return result, fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}
