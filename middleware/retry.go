package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/lokicoule-stack/fluxcache/backoff"
	"github.com/lokicoule-stack/fluxcache/transport"
)

// DeadLetterError wraps the last failure once a publish exhausts every
// retry attempt the RetryMiddleware was configured for.
type DeadLetterError struct {
	Channel     string
	Attempts    int
	MaxAttempts int
	Cause       error
}

func (e *DeadLetterError) Error() string {
	return fmt.Sprintf("middleware: dead letter on channel %q after %d/%d attempts: %v",
		e.Channel, e.Attempts, e.MaxAttempts, e.Cause)
}

func (e *DeadLetterError) Unwrap() error { return e.Cause }

// RetryConfig configures the inline retry middleware.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Strategy    backoff.Strategy // defaults to backoff.Exponential

	// OnRetry fires before retries 2..N (never before the first attempt).
	OnRetry func(channel string, payload []byte, attempt int)
	// OnDeadLetter fires exactly once when attempts are exhausted.
	OnDeadLetter func(channel string, payload []byte, err error, attempts int)
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		Strategy:    backoff.Exponential,
	}
}

// Retry is the inline publish-retry middleware. On failure it blocks on a
// backoff delay and retries up to MaxAttempts total attempts, honouring the
// inner transport's retryable classification: a non-retryable error (e.g.
// the NotReady error of an unconnected transport) is never retried and
// propagates immediately.
type Retry struct {
	inner transport.Transport
	cfg   RetryConfig
}

// NewRetry wraps inner with the retry middleware.
func NewRetry(inner transport.Transport, cfg RetryConfig) *Retry {
	if cfg.Strategy == nil {
		cfg.Strategy = backoff.Exponential
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Retry{inner: inner, cfg: cfg}
}

func (r *Retry) Connect(ctx context.Context) error    { return r.inner.Connect(ctx) }
func (r *Retry) Disconnect(ctx context.Context) error { return r.inner.Disconnect(ctx) }
func (r *Retry) OnReconnect(cb func())                { r.inner.OnReconnect(cb) }

func (r *Retry) Publish(ctx context.Context, channel string, payload []byte) error {
	var lastErr error
	attempt := 0
	for attempt < r.cfg.MaxAttempts {
		attempt++
		if attempt > 1 && r.cfg.OnRetry != nil {
			r.cfg.OnRetry(channel, payload, attempt)
		}
		err := r.inner.Publish(ctx, channel, payload)
		if err == nil {
			return nil
		}
		lastErr = err
		if !transport.IsRetryable(err) {
			return err
		}
		if attempt >= r.cfg.MaxAttempts {
			break
		}
		delay := r.cfg.Strategy(attempt, r.cfg.BaseDelay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	dlErr := &DeadLetterError{Channel: channel, Attempts: attempt, MaxAttempts: r.cfg.MaxAttempts, Cause: lastErr}
	if r.cfg.OnDeadLetter != nil {
		r.cfg.OnDeadLetter(channel, payload, dlErr, attempt)
	}
	return dlErr
}

func (r *Retry) Subscribe(ctx context.Context, channel string, handler transport.RawHandler) error {
	return r.inner.Subscribe(ctx, channel, handler)
}

func (r *Retry) Unsubscribe(ctx context.Context, channel string) error {
	return r.inner.Unsubscribe(ctx, channel)
}

var _ transport.Transport = (*Retry)(nil)
