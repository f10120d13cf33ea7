package codec

import (
	"io"
	"mime"
	"net/http"

	"google.golang.org/protobuf/proto"
)

// Codec defines an interface for marshaling and unmarshaling body data.
// The framework includes implementations for JSON and Protocol Buffers.
type Codec interface {
	// ContentType returns the Content-Type header value for encoded data.
	ContentType() string

	// Marshal serializes v into the wire format.
	Marshal(v any) ([]byte, error)

	// Unmarshal deserializes data into v, which must be a pointer.
	Unmarshal(data []byte, v any) error
}

var (
	jsonCodec      = NewJSONCodec()
	protoCodec     = NewProtoCodec()
	protoJSONCodec = NewProtoJSONCodec()
)

// ForBody returns the codec used to serialize a structured response body.
// Protobuf messages use the protobuf JSON mapping; everything else uses JSON.
func ForBody(v any) Codec {
	if _, ok := v.(proto.Message); ok {
		return protoJSONCodec
	}
	return jsonCodec
}

// ForContentType returns the codec matching a Content-Type header value.
// Unknown or missing types fall back to JSON.
func ForContentType(contentType string, v any) Codec {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ForBody(v)
	}
	switch mediaType {
	case "application/x-protobuf", "application/protobuf":
		return protoCodec
	default:
		return ForBody(v)
	}
}

// Decode reads the request body and decodes it into v using the codec selected
// by the request's Content-Type.
func Decode(r *http.Request, v any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	defer r.Body.Close()

	return ForContentType(r.Header.Get("Content-Type"), v).Unmarshal(body, v)
}
