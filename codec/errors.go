package codec

import "fmt"

// ErrCode classifies the failure modes a Codec can surface.
type ErrCode string

const (
	EncodeFailed    ErrCode = "ENCODE_FAILED"
	DecodeFailed    ErrCode = "DECODE_FAILED"
	PayloadTooLarge ErrCode = "PAYLOAD_TOO_LARGE"
	InvalidCodec    ErrCode = "INVALID_CODEC"
)

// Error is the surfaced error kind for every codec in this package.
type Error struct {
	Code      ErrCode
	Codec     string
	Operation string
	Size      int
	Limit     int
	Cause     error
}

func (e *Error) Error() string {
	switch e.Code {
	case PayloadTooLarge:
		return fmt.Sprintf("codec %s: %s: payload too large (%d > %d)", e.Codec, e.Operation, e.Size, e.Limit)
	default:
		if e.Cause != nil {
			return fmt.Sprintf("codec %s: %s: %s: %v", e.Codec, e.Operation, e.Code, e.Cause)
		}
		return fmt.Sprintf("codec %s: %s: %s", e.Codec, e.Operation, e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

func encodeErr(codecName string, cause error) error {
	return &Error{Code: EncodeFailed, Codec: codecName, Operation: "encode", Cause: cause}
}

func decodeErr(codecName string, cause error) error {
	return &Error{Code: DecodeFailed, Codec: codecName, Operation: "decode", Cause: cause}
}
