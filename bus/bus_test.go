package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lokicoule-stack/fluxcache/codec"
	"github.com/lokicoule-stack/fluxcache/transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) (*MessageBus, *transport.Memory) {
	t.Helper()
	mem := transport.NewMemory(zerolog.Nop())
	b := New(mem, codec.NewJSON(), Hooks{})
	require.NoError(t, b.Connect(context.Background()))
	return b, mem
}

func TestBasicPubSub(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()

	received := make(chan any, 1)
	_, err := b.Subscribe(ctx, "ch", func(payload any) { received <- payload })
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "ch", map[string]any{"id": 1, "name": "A"}))

	select {
	case payload := <-received:
		m, ok := payload.(map[string]any)
		require.True(t, ok)
		require.EqualValues(t, 1, m["id"])
		require.Equal(t, "A", m["name"])
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
	require.Equal(t, []string{"ch"}, b.Channels())
}

func TestWithTracerWrapsPublishAndSubscribe(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()

	var mu sync.Mutex
	var spans []string
	b.WithTracer(func(ctx context.Context, name string) (context.Context, func()) {
		mu.Lock()
		spans = append(spans, name)
		mu.Unlock()
		return ctx, func() {}
	})

	_, err := b.Subscribe(ctx, "ch", func(payload any) {})
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, "ch", "hello"))

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, spans, "bus.subscribe")
	require.Contains(t, spans, "bus.publish")
}

func TestHandlerIsolation(t *testing.T) {
	b, _ := newTestBus(t)
	ctx := context.Background()

	var mu sync.Mutex
	var handlerErrors []error
	b.hooks.OnError = func(operation string, err error) {
		mu.Lock()
		handlerErrors = append(handlerErrors, err)
		mu.Unlock()
	}
	// dispatcher was built before hooks mutation above in this test helper;
	// rebuild it so the new hook takes effect.
	b.dispatcher = newDispatcher(b.codec, b.onHandlerError, b.hooks.safeHandlerExecution)

	h2Received := make(chan any, 1)
	_, err := b.Subscribe(ctx, "ch", func(payload any) { panic("boom") })
	require.NoError(t, err)
	_, err = b.Subscribe(ctx, "ch", func(payload any) { h2Received <- payload })
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "ch", "x"))

	select {
	case payload := <-h2Received:
		require.Equal(t, "x", payload)
	case <-time.After(time.Second):
		t.Fatal("second handler was not invoked")
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(handlerErrors) == 1
	}, time.Second, 5*time.Millisecond)

	// Bus remains healthy: publishing again still works.
	require.NoError(t, b.Publish(ctx, "ch", "y"))
	select {
	case payload := <-h2Received:
		require.Equal(t, "y", payload)
	case <-time.After(time.Second):
		t.Fatal("bus did not remain healthy after a handler panic")
	}
}

func TestReconnectResubscribes(t *testing.T) {
	mem := transport.NewMemory(zerolog.Nop())
	chaos := transport.NewChaos(mem)
	b := New(chaos, codec.NewJSON(), Hooks{})
	ctx := context.Background()
	require.NoError(t, b.Connect(ctx))

	received := make(chan any, 1)
	_, err := b.Subscribe(ctx, "orders", func(payload any) { received <- payload })
	require.NoError(t, err)

	chaos.AlwaysFail()
	chaos.Recover()

	require.NoError(t, b.Publish(ctx, "orders", "o"))
	select {
	case payload := <-received:
		require.Equal(t, "o", payload)
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked after reconnect resubscribe")
	}
}

func TestUnsubscribeUnknownChannelIsNoOp(t *testing.T) {
	b, _ := newTestBus(t)
	require.NoError(t, b.UnsubscribeChannel(context.Background(), "nope"))
}

func TestUnsubscribeTearsDownOnLastHandler(t *testing.T) {
	b, mem := newTestBus(t)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "ch", func(payload any) {})
	require.NoError(t, err)
	require.NoError(t, b.Unsubscribe(ctx, sub))
	require.Empty(t, b.Channels())

	// Underlying transport should have no active subscription either.
	err = mem.Publish(ctx, "ch", []byte(`"x"`))
	require.NoError(t, err) // no-op publish, not an error, since no handler
}
