package middleware

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/lokicoule-stack/fluxcache/transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestHMACRejectsTamperedPayload(t *testing.T) {
	ctx := context.Background()
	mem := transport.NewMemory(zerolog.Nop())
	require.NoError(t, mem.Connect(ctx))

	key := bytes.Repeat([]byte("k"), 32)
	h, err := NewHMAC(mem, key, zerolog.Nop())
	require.NoError(t, err)

	received := make(chan []byte, 1)
	require.NoError(t, h.Subscribe(ctx, "ch", func(channel string, p []byte) {
		received <- p
	}))
	require.NoError(t, h.Publish(ctx, "ch", []byte("trusted")))

	select {
	case got := <-received:
		require.Equal(t, []byte("trusted"), got)
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked for a legitimately signed message")
	}

	// Tamper directly on the underlying transport, bypassing signing.
	require.NoError(t, mem.Publish(ctx, "ch", []byte("not-even-signed")))
	select {
	case <-received:
		t.Fatal("tampered/unsigned payload should never reach the handler")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHMACRejectsShortKey(t *testing.T) {
	mem := transport.NewMemory(zerolog.Nop())
	_, err := NewHMAC(mem, []byte("too-short"), zerolog.Nop())
	require.Error(t, err)
}

func TestBase64IntegrityRoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := transport.NewMemory(zerolog.Nop())
	require.NoError(t, mem.Connect(ctx))
	b := NewBase64Integrity(mem)

	received := make(chan []byte, 1)
	require.NoError(t, b.Subscribe(ctx, "ch", func(channel string, p []byte) {
		received <- p
	}))
	require.NoError(t, b.Publish(ctx, "ch", []byte("obfuscated")))

	select {
	case got := <-received:
		require.Equal(t, []byte("obfuscated"), got)
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}
