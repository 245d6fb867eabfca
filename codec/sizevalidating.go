package codec

// DefaultMaxPayloadSize is the default cap enforced by SizeValidating, 10 MiB.
const DefaultMaxPayloadSize = 10 * 1024 * 1024

// SizeValidating wraps another codec and enforces a maximum payload size on
// both encode and decode. Disabling the cap requires an explicit opt-out
// (MaxPayloadSize <= 0) rather than a default "unbounded" mode.
type SizeValidating struct {
	inner   Codec
	maxSize int
}

// NewSizeValidating wraps inner with a limit of maxSize bytes. A maxSize
// <= 0 disables the check entirely (an explicit opt-out).
func NewSizeValidating(inner Codec, maxSize int) *SizeValidating {
	return &SizeValidating{inner: inner, maxSize: maxSize}
}

func (c *SizeValidating) Name() string { return c.inner.Name() }

func (c *SizeValidating) Encode(v any) ([]byte, error) {
	b, err := c.inner.Encode(v)
	if err != nil {
		return nil, err
	}
	if c.maxSize > 0 && len(b) > c.maxSize {
		return nil, &Error{
			Code: PayloadTooLarge, Codec: c.Name(), Operation: "encode",
			Size: len(b), Limit: c.maxSize,
		}
	}
	return b, nil
}

func (c *SizeValidating) Decode(data []byte, out any) error {
	if c.maxSize > 0 && len(data) > c.maxSize {
		return &Error{
			Code: PayloadTooLarge, Codec: c.Name(), Operation: "decode",
			Size: len(data), Limit: c.maxSize,
		}
	}
	return c.inner.Decode(data, out)
}
