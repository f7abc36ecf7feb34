package crypto

import (
	"github.com/ugorji/go/codec"
)

/*
Every byte sequence that is hashed or signed in a gateway goes through the same
JSON handle. Canonical mode sorts map keys and lays struct fields out in a fixed
order, so two processes encoding the same value obtain the same bytes. Protocol
types carry strings, booleans and integers, and the proof bytes which travel
as base64. Timestamps are unix milliseconds.
*/

var jsonHandle = newJSONHandle()

func newJSONHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	jh.HTMLCharsAsIs = true
	return jh
}

// CanonicalJSON encodes v in canonical JSON.
func CanonicalJSON(v interface{}) ([]byte, error) {
	var b []byte
	enc := codec.NewEncoderBytes(&b, jsonHandle)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return b, nil
}

// DecodeJSON decodes data produced by CanonicalJSON, or any other JSON
// encoder, into v.
func DecodeJSON(data []byte, v interface{}) error {
	dec := codec.NewDecoderBytes(data, jsonHandle)
	return dec.Decode(v)
}

// WireHandle returns the JSON handle shared by the hashing functions. The TCP
// transport encodes messages with it so that what travels on the wire is what
// was signed.
func WireHandle() *codec.JsonHandle {
	return jsonHandle
}
