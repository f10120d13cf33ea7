package codec

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// ProtoCodec is a codec that uses the Protocol Buffers binary format.
// Values passed to Marshal and Unmarshal must implement proto.Message.
type ProtoCodec struct{}

// NewProtoCodec creates a new ProtoCodec instance.
func NewProtoCodec() *ProtoCodec {
	return &ProtoCodec{}
}

// ContentType returns the media type produced by Marshal.
func (c *ProtoCodec) ContentType() string {
	return "application/x-protobuf"
}

// Marshal encodes v in the protobuf wire format.
func (c *ProtoCodec) Marshal(v any) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("codec: %T does not implement proto.Message", v)
	}
	return proto.Marshal(msg)
}

// Unmarshal decodes protobuf wire data into v.
func (c *ProtoCodec) Unmarshal(data []byte, v any) error {
	msg, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("codec: %T does not implement proto.Message", v)
	}
	return proto.Unmarshal(data, msg)
}

// ProtoJSONCodec encodes protobuf messages using the canonical JSON mapping.
type ProtoJSONCodec struct {
	MarshalOptions   protojson.MarshalOptions
	UnmarshalOptions protojson.UnmarshalOptions
}

// NewProtoJSONCodec creates a new ProtoJSONCodec that ignores unknown fields on decode.
func NewProtoJSONCodec() *ProtoJSONCodec {
	return &ProtoJSONCodec{
		UnmarshalOptions: protojson.UnmarshalOptions{DiscardUnknown: true},
	}
}

// ContentType returns the media type produced by Marshal.
func (c *ProtoJSONCodec) ContentType() string {
	return "application/json; charset=utf-8"
}

// Marshal encodes v as protobuf JSON.
func (c *ProtoJSONCodec) Marshal(v any) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("codec: %T does not implement proto.Message", v)
	}
	return c.MarshalOptions.Marshal(msg)
}

// Unmarshal decodes protobuf JSON into v.
func (c *ProtoJSONCodec) Unmarshal(data []byte, v any) error {
	msg, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("codec: %T does not implement proto.Message", v)
	}
	return c.UnmarshalOptions.Unmarshal(data, msg)
}
