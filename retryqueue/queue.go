// Package retryqueue implements the background, bulk-resiliency retry
// mechanism complementary to, and independent of, the
// inline middleware.Retry decorator.
package retryqueue

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/lokicoule-stack/fluxcache/backoff"
	"github.com/rs/zerolog"
)

// ErrCode enumerates the queue's failure modes.
type ErrCode string

// QueueFull is returned by Enqueue when the queue is at MaxSize.
const QueueFull ErrCode = "QUEUE_FULL"

// Error is the surfaced error kind for queue operations.
type Error struct {
	Code        ErrCode
	CurrentSize int
	MaxSize     int
}

func (e *Error) Error() string {
	return fmt.Sprintf("retryqueue: %s (size=%d, max=%d)", e.Code, e.CurrentSize, e.MaxSize)
}

// QueuedMessage is a unit of work the queue retries until it succeeds, exhausts
// MaxAttempts, or is removed.
type QueuedMessage struct {
	ID          string
	Channel     string
	Payload     []byte
	Attempts    int
	NextRetryAt time.Time
	CreatedAt   time.Time
	LastError   string
}

// PublishFunc performs the actual retried operation.
type PublishFunc func(ctx context.Context, channel string, payload []byte) error

// Config configures a Queue.
type Config struct {
	MaxSize          int
	MaxAttempts      int
	BaseDelay        time.Duration
	Interval         time.Duration
	Concurrency      int
	RemoveDuplicates bool
	Strategy         backoff.Strategy // defaults to backoff.Exponential

	OnDeadLetter func(msg QueuedMessage, err error)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxSize:     10000,
		MaxAttempts: 5,
		BaseDelay:   200 * time.Millisecond,
		Interval:    time.Second,
		Concurrency: 8,
		Strategy:    backoff.Exponential,
	}
}

// Queue owns an in-memory map of failed publishes and periodically retries
// them with a backoff strategy, invoking OnDeadLetter on exhaustion. It is
// in-memory only: messages do not survive a process restart, matching the
// Non-goals.
type Queue struct {
	cfg     Config
	publish PublishFunc
	logger  zerolog.Logger

	mu       sync.Mutex
	messages map[string]*QueuedMessage

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Queue. publish is invoked by the scheduler for each due
// message; it is the caller's responsibility to route it to the actual
// transport/middleware chain.
func New(cfg Config, publish PublishFunc, logger zerolog.Logger) *Queue {
	if cfg.Strategy == nil {
		cfg.Strategy = backoff.Exponential
	}
	return &Queue{
		cfg:      cfg,
		publish:  publish,
		logger:   logger,
		messages: make(map[string]*QueuedMessage),
	}
}

// Start launches the background scheduler.
func (q *Queue) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.wg.Add(1)
	go q.run(loopCtx)
}

// Stop halts the scheduler and waits for in-flight batches to finish.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}

// Size reports the current queue depth.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// Enqueue adds channel/payload for background retry. If RemoveDuplicates is
// set, the id is a content hash so a duplicate enqueue while the original is
// still pending is a no-op; otherwise every enqueue gets a fresh random id.
func (q *Queue) Enqueue(channel string, payload []byte) (string, error) {
	id := q.idFor(channel, payload)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cfg.RemoveDuplicates {
		if _, exists := q.messages[id]; exists {
			return id, nil
		}
	}
	if len(q.messages) >= q.cfg.MaxSize {
		return "", &Error{Code: QueueFull, CurrentSize: len(q.messages), MaxSize: q.cfg.MaxSize}
	}

	now := time.Now()
	q.messages[id] = &QueuedMessage{
		ID:          id,
		Channel:     channel,
		Payload:     payload,
		Attempts:    0,
		NextRetryAt: now,
		CreatedAt:   now,
	}
	return id, nil
}

func (q *Queue) idFor(channel string, payload []byte) string {
	if q.cfg.RemoveDuplicates {
		h := sha256.New()
		h.Write([]byte(channel))
		h.Write(payload)
		return hex.EncodeToString(h.Sum(nil))
	}
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func (q *Queue) run(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(q.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.processDue(ctx)
		}
	}
}

func (q *Queue) processDue(ctx context.Context) {
	due := q.collectDue()
	if len(due) == 0 {
		return
	}

	sem := make(chan struct{}, q.cfg.Concurrency)
	var wg sync.WaitGroup
	for _, msg := range due {
		msg := msg
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			q.attempt(ctx, msg)
		}()
	}
	wg.Wait()
}

func (q *Queue) collectDue() []*QueuedMessage {
	now := time.Now()
	q.mu.Lock()
	defer q.mu.Unlock()
	due := make([]*QueuedMessage, 0)
	for _, msg := range q.messages {
		if !msg.NextRetryAt.After(now) {
			due = append(due, msg)
		}
	}
	return due
}

// DeadLetterHandoff returns a callback shaped like
// middleware.RetryConfig.OnDeadLetter (channel, payload, cause, attempts)
// that re-enqueues the exhausted publish into q for background retry. This
// is the bridge between the inline retry middleware and this package's
// bulk-resiliency queue: wire it as a RetryConfig.OnDeadLetter so a publish
// that exhausts its inline attempts gets one more shot on q's own schedule
// instead of being dropped. retryqueue deliberately doesn't import
// middleware for this — the callback shape is matched structurally, the
// same way telemetry's adapters bridge hook signatures without a direct
// dependency.
func DeadLetterHandoff(q *Queue) func(channel string, payload []byte, cause error, attempts int) {
	return func(channel string, payload []byte, cause error, attempts int) {
		_, _ = q.Enqueue(channel, payload)
	}
}

func (q *Queue) attempt(ctx context.Context, msg *QueuedMessage) {
	err := q.publish(ctx, msg.Channel, msg.Payload)
	if err == nil {
		q.mu.Lock()
		delete(q.messages, msg.ID)
		q.mu.Unlock()
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	current, ok := q.messages[msg.ID]
	if !ok {
		return // raced with a concurrent removal
	}
	current.Attempts++
	current.LastError = err.Error()

	if current.Attempts >= q.cfg.MaxAttempts {
		delete(q.messages, msg.ID)
		q.logger.Warn().Str("channel", current.Channel).Int("attempts", current.Attempts).
			Err(err).Msg("retryqueue: dead-lettering message after exhausting retries")
		if q.cfg.OnDeadLetter != nil {
			q.cfg.OnDeadLetter(*current, err)
		}
		return
	}
	delay := q.cfg.Strategy(current.Attempts, q.cfg.BaseDelay)
	current.NextRetryAt = time.Now().Add(delay)
}
