// Package breaker implements the three-state circuit breaker guarding each
// remote cache layer. There is no explicit half-open
// state: time alone re-closes the breaker, and the first post-expiry call
// is the probe.
package breaker

import (
	"context"
	"sync"
	"time"
)

// Config parameterizes a Breaker.
type Config struct {
	FailureThreshold int
	BreakDuration    time.Duration
}

// DefaultConfig returns conservative defaults (threshold 3, 30s).
func DefaultConfig() Config {
	return Config{FailureThreshold: 3, BreakDuration: 30 * time.Second}
}

// Breaker is a failure-count-and-cooldown guard. All transitions are O(1)
// under a single mutex — a single lock suffices for this state.
type Breaker struct {
	cfg Config

	mu        sync.Mutex
	failures  int
	openUntil time.Time // zero value means not open
	now       func() time.Time
}

// New constructs a Breaker with cfg.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.BreakDuration <= 0 {
		cfg.BreakDuration = DefaultConfig().BreakDuration
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// IsOpen reports whether calls should currently be short-circuited. If the
// break has expired, it transitions back to closed (resetting the counter)
// and returns false — the very next call becomes the probe.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isOpenLocked()
}

func (b *Breaker) isOpenLocked() bool {
	if b.openUntil.IsZero() {
		return false
	}
	if !b.now().Before(b.openUntil) {
		b.openUntil = time.Time{}
		b.failures = 0
		return false
	}
	return true
}

// RecordFailure increments the failure counter and opens the breaker once
// the counter reaches FailureThreshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.cfg.FailureThreshold {
		b.openUntil = b.now().Add(b.cfg.BreakDuration)
	}
}

// RecordSuccess resets the failure counter.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}

// Call guards f with the breaker: if open, fallback is returned immediately;
// otherwise f runs, recording success/failure on the breaker accordingly and
// returning fallback in place of f's result on failure, per the breaker's
// guardedCall. The error from f is returned alongside for callers (e.g.
// TieredStore.Set) that need to distinguish "call skipped" from "call ran
// and failed" for their own bookkeeping, via the ran return value.
func Call[T any](ctx context.Context, b *Breaker, f func(context.Context) (T, error), fallback T) (result T, ran bool, err error) {
	if b.IsOpen() {
		return fallback, false, nil
	}
	v, callErr := f(ctx)
	if callErr != nil {
		b.RecordFailure()
		return fallback, true, callErr
	}
	b.RecordSuccess()
	return v, true, nil
}
