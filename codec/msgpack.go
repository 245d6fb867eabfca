package codec

import "github.com/vmihailenco/msgpack/v5"

// MsgPack is the binary codec, built on github.com/vmihailenco/msgpack/v5.
type MsgPack struct{}

// NewMsgPack constructs the MessagePack codec.
func NewMsgPack() *MsgPack { return &MsgPack{} }

func (MsgPack) Name() string { return "msgpack" }

func (c MsgPack) Encode(v any) ([]byte, error) {
	stripped, err := stripUndefined(v)
	if err != nil {
		return nil, encodeErr(c.Name(), err)
	}
	b, err := msgpack.Marshal(stripped)
	if err != nil {
		return nil, encodeErr(c.Name(), err)
	}
	return b, nil
}

func (c MsgPack) Decode(data []byte, out any) error {
	if len(data) == 0 {
		return nil
	}
	if err := msgpack.Unmarshal(data, out); err != nil {
		return decodeErr(c.Name(), err)
	}
	return nil
}
