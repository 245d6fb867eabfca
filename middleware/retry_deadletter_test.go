package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/lokicoule-stack/fluxcache/retryqueue"
	"github.com/lokicoule-stack/fluxcache/transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// TestRetryDeadLetterHandsOffToRetryQueue exercises the full bulk-resiliency
// path: Retry exhausts its inline attempts, hands the failed publish off to
// a retryqueue.Queue, and the queue's own background schedule eventually
// delivers it once the transport recovers.
func TestRetryDeadLetterHandsOffToRetryQueue(t *testing.T) {
	ctx := context.Background()
	mem := transport.NewMemory(zerolog.Nop())
	require.NoError(t, mem.Connect(ctx))
	chaos := transport.NewChaos(mem)
	chaos.AlwaysFail()

	delivered := make(chan []byte, 1)
	require.NoError(t, mem.Subscribe(ctx, "orders", func(channel string, payload []byte) {
		delivered <- payload
	}))

	q := retryqueue.New(retryqueue.Config{
		MaxSize:     10,
		MaxAttempts: 5,
		BaseDelay:   2 * time.Millisecond,
		Interval:    5 * time.Millisecond,
		Concurrency: 1,
	}, chaos.Publish, zerolog.Nop())
	q.Start(ctx)
	defer q.Stop()

	r := NewRetry(chaos, RetryConfig{
		MaxAttempts:  2,
		BaseDelay:    time.Millisecond,
		OnDeadLetter: retryqueue.DeadLetterHandoff(q),
	})

	err := r.Publish(ctx, "orders", []byte("payload"))
	var dl *DeadLetterError
	require.ErrorAs(t, err, &dl)
	require.Equal(t, 1, q.Size(), "exhausted publish should have been handed off to the retry queue")

	chaos.Recover()

	select {
	case payload := <-delivered:
		require.Equal(t, []byte("payload"), payload)
	case <-time.After(time.Second):
		t.Fatal("retry queue never delivered the handed-off message after recovery")
	}
	require.Eventually(t, func() bool { return q.Size() == 0 }, time.Second, 5*time.Millisecond)
}
