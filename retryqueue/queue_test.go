package retryqueue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestEnqueueDeduplicatesByContentHash(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RemoveDuplicates = true
	q := New(cfg, func(ctx context.Context, channel string, payload []byte) error { return nil }, zerolog.Nop())

	id1, err := q.Enqueue("ch", []byte("same"))
	require.NoError(t, err)
	id2, err := q.Enqueue("ch", []byte("same"))
	require.NoError(t, err)
	require.Equal(t, id1, id2)
	require.Equal(t, 1, q.Size())
}

func TestEnqueueFailsWhenFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSize = 1
	q := New(cfg, func(ctx context.Context, channel string, payload []byte) error { return nil }, zerolog.Nop())

	_, err := q.Enqueue("ch", []byte("a"))
	require.NoError(t, err)
	_, err = q.Enqueue("ch", []byte("b"))
	require.Error(t, err)
	var qerr *Error
	require.ErrorAs(t, err, &qerr)
	require.Equal(t, QueueFull, qerr.Code)
}

func TestSchedulerDeadLettersAfterMaxAttempts(t *testing.T) {
	var calls int32
	var deadLettered int32
	var finalAttempts int

	cfg := DefaultConfig()
	cfg.MaxAttempts = 2
	cfg.BaseDelay = time.Millisecond
	cfg.Interval = 2 * time.Millisecond
	cfg.Concurrency = 2
	cfg.OnDeadLetter = func(msg QueuedMessage, err error) {
		atomic.AddInt32(&deadLettered, 1)
		finalAttempts = msg.Attempts
	}

	q := New(cfg, func(ctx context.Context, channel string, payload []byte) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("boom")
	}, zerolog.Nop())

	_, err := q.Enqueue("ch", []byte("x"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&deadLettered) == 1
	}, 500*time.Millisecond, 5*time.Millisecond)

	require.Equal(t, 0, q.Size())
	require.Equal(t, 2, finalAttempts)
	require.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))
}

func TestSchedulerRemovesMessageOnSuccess(t *testing.T) {
	var attempts int32
	cfg := DefaultConfig()
	cfg.Interval = 2 * time.Millisecond
	q := New(cfg, func(ctx context.Context, channel string, payload []byte) error {
		if atomic.AddInt32(&attempts, 1) < 2 {
			return errors.New("transient")
		}
		return nil
	}, zerolog.Nop())

	_, err := q.Enqueue("ch", []byte("x"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	require.Eventually(t, func() bool {
		return q.Size() == 0
	}, 500*time.Millisecond, 5*time.Millisecond)
}
