package codec

import "encoding/json"

// JSON is the canonical text codec. It round-trips any serializable value
// losslessly except for the documented Undefined erasure.
type JSON struct{}

// NewJSON constructs the JSON codec.
func NewJSON() *JSON { return &JSON{} }

func (JSON) Name() string { return "json" }

func (c JSON) Encode(v any) ([]byte, error) {
	stripped, err := stripUndefined(v)
	if err != nil {
		return nil, encodeErr(c.Name(), err)
	}
	b, err := json.Marshal(stripped)
	if err != nil {
		return nil, encodeErr(c.Name(), err)
	}
	return b, nil
}

func (c JSON) Decode(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return decodeErr(c.Name(), err)
	}
	return nil
}
