package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/lokicoule-stack/fluxcache/transport"
	"github.com/rs/zerolog"
)

// ErrHMACVerificationFailed is the security-critical, never-retried failure
// kind for a tampered or misrouted signed payload.
var ErrHMACVerificationFailed = errors.New("middleware: hmac verification failed")

// Base64Integrity is an obfuscation-only wrapper (NOT a security control):
// it base64-encodes payloads in transit, useful only against transports
// that choke on raw binary or casual inspection.
type Base64Integrity struct {
	inner transport.Transport
}

// NewBase64Integrity wraps inner.
func NewBase64Integrity(inner transport.Transport) *Base64Integrity {
	return &Base64Integrity{inner: inner}
}

func (b *Base64Integrity) Connect(ctx context.Context) error    { return b.inner.Connect(ctx) }
func (b *Base64Integrity) Disconnect(ctx context.Context) error { return b.inner.Disconnect(ctx) }
func (b *Base64Integrity) OnReconnect(cb func())                { b.inner.OnReconnect(cb) }

func (b *Base64Integrity) Publish(ctx context.Context, channel string, payload []byte) error {
	encoded := make([]byte, base64.StdEncoding.EncodedLen(len(payload)))
	base64.StdEncoding.Encode(encoded, payload)
	return b.inner.Publish(ctx, channel, encoded)
}

func (b *Base64Integrity) Subscribe(ctx context.Context, channel string, handler transport.RawHandler) error {
	return b.inner.Subscribe(ctx, channel, func(ch string, payload []byte) {
		decoded := make([]byte, base64.StdEncoding.DecodedLen(len(payload)))
		n, err := base64.StdEncoding.Decode(decoded, payload)
		if err != nil {
			return
		}
		handler(ch, decoded[:n])
	})
}

func (b *Base64Integrity) Unsubscribe(ctx context.Context, channel string) error {
	return b.inner.Unsubscribe(ctx, channel)
}

var _ transport.Transport = (*Base64Integrity)(nil)

// MinHMACKeySize is the smallest accepted signing key.
const MinHMACKeySize = 32

// HMAC signs every publish with HMAC-SHA256 and verifies on receive,
// rejecting tampered payloads with the non-retryable ErrHMACVerificationFailed
// kind. This is the security-critical variant; unlike Base64Integrity it
// actually protects payload integrity.
type HMAC struct {
	inner  transport.Transport
	key    []byte
	logger zerolog.Logger
}

// NewHMAC wraps inner, signing with key. key must be at least MinHMACKeySize
// bytes.
func NewHMAC(inner transport.Transport, key []byte, logger zerolog.Logger) (*HMAC, error) {
	if len(key) < MinHMACKeySize {
		return nil, fmt.Errorf("middleware: hmac key must be at least %d bytes, got %d", MinHMACKeySize, len(key))
	}
	return &HMAC{inner: inner, key: key, logger: logger}, nil
}

func (h *HMAC) Connect(ctx context.Context) error    { return h.inner.Connect(ctx) }
func (h *HMAC) Disconnect(ctx context.Context) error { return h.inner.Disconnect(ctx) }
func (h *HMAC) OnReconnect(cb func())                { h.inner.OnReconnect(cb) }

func (h *HMAC) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, h.key)
	mac.Write(payload)
	return mac.Sum(nil)
}

func (h *HMAC) Publish(ctx context.Context, channel string, payload []byte) error {
	sig := h.sign(payload)
	framed := make([]byte, 0, len(sig)+len(payload))
	framed = append(framed, sig...)
	framed = append(framed, payload...)
	return h.inner.Publish(ctx, channel, framed)
}

func (h *HMAC) Subscribe(ctx context.Context, channel string, handler transport.RawHandler) error {
	return h.inner.Subscribe(ctx, channel, func(ch string, framed []byte) {
		if len(framed) < sha256.Size {
			h.logger.Warn().Str("channel", ch).Msg("hmac: payload too short to carry a signature")
			return
		}
		sig, payload := framed[:sha256.Size], framed[sha256.Size:]
		expected := h.sign(payload)
		if !hmac.Equal(sig, expected) {
			h.logger.Error().Str("channel", ch).Err(ErrHMACVerificationFailed).Msg("hmac: rejecting message")
			return
		}
		handler(ch, payload)
	})
}

func (h *HMAC) Unsubscribe(ctx context.Context, channel string) error {
	return h.inner.Unsubscribe(ctx, channel)
}

var _ transport.Transport = (*HMAC)(nil)
