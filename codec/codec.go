// Package codec encodes and decodes the restricted serializable value set
// (nil, bool, numbers, strings, slices and string-keyed maps of the same) to
// and from byte buffers exchanged between the bus and its transports.
package codec

import (
	"errors"
	"reflect"
)

// Undefined is a sentinel that, when found as a value in a map passed to
// Encode, is elided from the encoded output rather than serialized as null.
// It mirrors the source system's "explicit undefined" map value, which has
// no native Go equivalent.
type Undefined struct{}

// Codec converts between a serializable value and its wire representation.
// Decode targets a pointer, mirroring encoding/json's Unmarshal contract,
// since Go has no single dynamic "any serializable" decode target that
// preserves static types for callers.
type Codec interface {
	Name() string
	Encode(v any) ([]byte, error)
	Decode(data []byte, out any) error
}

// errCyclicValue is returned by stripUndefined when a map or slice reappears
// on its own ancestor path, i.e. v contains a reference cycle.
var errCyclicValue = errors.New("value contains a cycle")

// stripUndefined recursively removes map entries whose value is Undefined{}
// so that every codec honours the same erasure rule on encode. It also
// walks the value tracking the reference-identity of every map/slice on the
// current path, so a cyclic value is rejected with errCyclicValue instead of
// recursing until the stack overflows.
func stripUndefined(v any) (any, error) {
	return stripUndefinedVisiting(v, make(map[uintptr]bool))
}

func stripUndefinedVisiting(v any, seen map[uintptr]bool) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		if ptr := reflect.ValueOf(val).Pointer(); ptr != 0 {
			if seen[ptr] {
				return nil, errCyclicValue
			}
			seen[ptr] = true
			defer delete(seen, ptr)
		}
		out := make(map[string]any, len(val))
		for k, mv := range val {
			if _, isUndefined := mv.(Undefined); isUndefined {
				continue
			}
			sv, err := stripUndefinedVisiting(mv, seen)
			if err != nil {
				return nil, err
			}
			out[k] = sv
		}
		return out, nil
	case []any:
		if len(val) > 0 {
			if ptr := reflect.ValueOf(val).Pointer(); ptr != 0 {
				if seen[ptr] {
					return nil, errCyclicValue
				}
				seen[ptr] = true
				defer delete(seen, ptr)
			}
		}
		out := make([]any, len(val))
		for i, item := range val {
			sv, err := stripUndefinedVisiting(item, seen)
			if err != nil {
				return nil, err
			}
			out[i] = sv
		}
		return out, nil
	default:
		return v, nil
	}
}
