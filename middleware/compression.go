package middleware

import (
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/lokicoule-stack/fluxcache/transport"
)

const (
	markerRaw  byte = 0
	markerZstd byte = 1
)

// CompressionConfig configures the compression middleware.
type CompressionConfig struct {
	// MinSize is the smallest payload, in bytes, worth compressing. Smaller
	// payloads are sent raw with the markerRaw prefix to avoid paying the
	// zstd framing overhead for no gain.
	MinSize int
}

// DefaultCompressionConfig returns sensible defaults.
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{MinSize: 256}
}

// Compression prepends a 1-byte format marker to every payload and
// compresses with zstd (github.com/klauspost/compress) when it is worth it.
type Compression struct {
	inner   transport.Transport
	cfg     CompressionConfig
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCompression wraps inner with the compression middleware.
func NewCompression(inner transport.Transport, cfg CompressionConfig) (*Compression, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("middleware: build zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("middleware: build zstd decoder: %w", err)
	}
	return &Compression{inner: inner, cfg: cfg, encoder: enc, decoder: dec}, nil
}

func (c *Compression) Connect(ctx context.Context) error    { return c.inner.Connect(ctx) }
func (c *Compression) Disconnect(ctx context.Context) error { return c.inner.Disconnect(ctx) }
func (c *Compression) OnReconnect(cb func())                { c.inner.OnReconnect(cb) }

func (c *Compression) Publish(ctx context.Context, channel string, payload []byte) error {
	if len(payload) < c.cfg.MinSize {
		return c.inner.Publish(ctx, channel, append([]byte{markerRaw}, payload...))
	}
	compressed := c.encoder.EncodeAll(payload, make([]byte, 0, len(payload)))
	return c.inner.Publish(ctx, channel, append([]byte{markerZstd}, compressed...))
}

func (c *Compression) Subscribe(ctx context.Context, channel string, handler transport.RawHandler) error {
	return c.inner.Subscribe(ctx, channel, func(ch string, payload []byte) {
		decoded, err := c.decode(payload)
		if err != nil {
			return
		}
		handler(ch, decoded)
	})
}

func (c *Compression) Unsubscribe(ctx context.Context, channel string) error {
	return c.inner.Unsubscribe(ctx, channel)
}

func (c *Compression) decode(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return payload, nil
	}
	marker, body := payload[0], payload[1:]
	switch marker {
	case markerRaw:
		return body, nil
	case markerZstd:
		return c.decoder.DecodeAll(body, nil)
	default:
		return nil, fmt.Errorf("middleware: unknown compression marker %d", marker)
	}
}

var _ transport.Transport = (*Compression)(nil)
