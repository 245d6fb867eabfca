package bus

import (
	"context"
	"testing"

	"github.com/lokicoule-stack/fluxcache/codec"
	"github.com/lokicoule-stack/fluxcache/transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestManagerUseUnknownTransport(t *testing.T) {
	m := NewManager()
	_, err := m.Use("missing")
	require.Error(t, err)
	var uerr *UnknownTransportError
	require.ErrorAs(t, err, &uerr)
}

func TestManagerUseNoDefault(t *testing.T) {
	m := NewManager()
	_, err := m.Use("")
	require.Error(t, err)
	var derr *NoDefaultError
	require.ErrorAs(t, err, &derr)
}

func TestManagerLazilyConstructsAndCaches(t *testing.T) {
	m := NewManager()
	mem := transport.NewMemory(zerolog.Nop())
	m.Register("primary", Options{Transport: mem, Codec: codec.NewJSON()})
	m.SetDefault("primary")

	b1, err := m.Use("")
	require.NoError(t, err)
	b2, err := m.Use("primary")
	require.NoError(t, err)
	require.Same(t, b1, b2)
}

func TestManagerStopWithoutNameClearsCache(t *testing.T) {
	m := NewManager()
	mem := transport.NewMemory(zerolog.Nop())
	m.Register("primary", Options{Transport: mem, Codec: codec.NewJSON()})
	m.SetDefault("primary")

	ctx := context.Background()
	require.NoError(t, m.Start(ctx, ""))
	b1, err := m.Use("")
	require.NoError(t, err)
	require.NoError(t, m.Stop(ctx, ""))

	b2, err := m.Use("")
	require.NoError(t, err)
	require.NotSame(t, b1, b2)
}
