package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/lokicoule-stack/fluxcache/transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRetryDeadLetterAfterExhaustion(t *testing.T) {
	ctx := context.Background()
	mem := transport.NewMemory(zerolog.Nop())
	require.NoError(t, mem.Connect(ctx))
	chaos := transport.NewChaos(mem)
	chaos.AlwaysFail()

	var retries int
	var deadLetterAttempts int
	var deadLetterCount int

	r := NewRetry(chaos, RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Millisecond,
		OnRetry: func(channel string, payload []byte, attempt int) {
			retries++
		},
		OnDeadLetter: func(channel string, payload []byte, err error, attempts int) {
			deadLetterCount++
			deadLetterAttempts = attempts
		},
	})

	err := r.Publish(ctx, "ch", []byte("x"))
	require.Error(t, err)

	var dl *DeadLetterError
	require.ErrorAs(t, err, &dl)
	require.Equal(t, 3, dl.Attempts)
	require.Equal(t, 3, dl.MaxAttempts)
	require.Equal(t, 2, retries) // fires before retries 2..N, never before attempt 1
	require.Equal(t, 1, deadLetterCount)
	require.Equal(t, 3, deadLetterAttempts)
}

func TestRetrySucceedsAfterTransientFailure(t *testing.T) {
	ctx := context.Background()
	mem := transport.NewMemory(zerolog.Nop())
	require.NoError(t, mem.Connect(ctx))
	chaos := transport.NewChaos(mem)
	chaos.AlwaysFail()

	r := NewRetry(chaos, RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond})

	done := make(chan error, 1)
	go func() {
		done <- r.Publish(ctx, "ch", []byte("x"))
	}()
	time.Sleep(3 * time.Millisecond)
	chaos.Recover()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publish never returned")
	}
}
