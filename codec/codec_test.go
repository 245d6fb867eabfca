package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func roundTripCases() []any {
	return []any{
		nil,
		true,
		false,
		int64(42),
		3.14,
		"hello",
		[]any{"a", int64(1), true},
		map[string]any{"id": int64(1), "name": "A"},
	}
}

func TestJSONRoundTrip(t *testing.T) {
	c := NewJSON()
	for _, v := range roundTripCases() {
		b, err := c.Encode(v)
		require.NoError(t, err)
		var out any
		require.NoError(t, c.Decode(b, &out))
	}
}

func TestMsgPackRoundTrip(t *testing.T) {
	c := NewMsgPack()
	for _, v := range roundTripCases() {
		b, err := c.Encode(v)
		require.NoError(t, err)
		var out any
		require.NoError(t, c.Decode(b, &out))
	}
}

func TestBase64RoundTrip(t *testing.T) {
	c := NewBase64(NewJSON())
	m := map[string]any{"id": int64(1), "name": "A"}
	b, err := c.Encode(m)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, c.Decode(b, &out))
	require.EqualValues(t, 1, out["id"])
	require.Equal(t, "A", out["name"])
}

func TestUndefinedErasure(t *testing.T) {
	c := NewJSON()
	m := map[string]any{"keep": "v", "drop": Undefined{}}
	b, err := c.Encode(m)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, c.Decode(b, &out))
	_, hasDrop := out["drop"]
	require.False(t, hasDrop)
	require.Equal(t, "v", out["keep"])
}

func TestJSONEncodeRejectsCyclicMap(t *testing.T) {
	c := NewJSON()
	m := map[string]any{"id": int64(1)}
	m["self"] = m

	_, err := c.Encode(m)
	require.Error(t, err)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, EncodeFailed, cerr.Code)
}

func TestMsgPackEncodeRejectsCyclicMap(t *testing.T) {
	c := NewMsgPack()
	m := map[string]any{"id": int64(1)}
	m["self"] = m

	_, err := c.Encode(m)
	require.Error(t, err)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, EncodeFailed, cerr.Code)
}

func TestJSONEncodeRejectsCyclicSlice(t *testing.T) {
	c := NewJSON()
	s := make([]any, 1)
	s[0] = s

	_, err := c.Encode(s)
	require.Error(t, err)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, EncodeFailed, cerr.Code)
}

func TestJSONEncodeAllowsSharedNonCyclicReference(t *testing.T) {
	c := NewJSON()
	shared := map[string]any{"v": int64(1)}
	m := map[string]any{"a": shared, "b": shared}

	_, err := c.Encode(m)
	require.NoError(t, err, "the same map reachable via two distinct paths is not a cycle")
}

func TestSizeValidatingRejectsOversizedEncode(t *testing.T) {
	c := NewSizeValidating(NewJSON(), 4)
	_, err := c.Encode("this is way too long")
	require.Error(t, err)

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, PayloadTooLarge, cerr.Code)
}

func TestSizeValidatingDisabledOptOut(t *testing.T) {
	c := NewSizeValidating(NewJSON(), 0)
	_, err := c.Encode("this is way too long but the cap is disabled")
	require.NoError(t, err)
}
