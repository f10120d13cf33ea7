// Package codec provides encoding and decoding functionality for different data formats.
package codec

import (
	jsoniter "github.com/json-iterator/go"
)

// JSONCodec is a codec that uses JSON for marshaling and unmarshaling.
// It is backed by json-iterator configured to behave like encoding/json.
type JSONCodec struct {
	api jsoniter.API
}

// NewJSONCodec creates a new JSONCodec instance.
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{api: jsoniter.ConfigCompatibleWithStandardLibrary}
}

// ContentType returns the media type produced by Marshal.
func (c *JSONCodec) ContentType() string {
	return "application/json; charset=utf-8"
}

// Marshal encodes v as JSON.
func (c *JSONCodec) Marshal(v any) ([]byte, error) {
	return c.api.Marshal(v)
}

// Unmarshal decodes JSON data into v.
func (c *JSONCodec) Unmarshal(data []byte, v any) error {
	return c.api.Unmarshal(data, v)
}
