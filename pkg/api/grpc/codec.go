package grpc

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// gobCodecName is the name this codec is registered under and the content
// subtype negotiated on the wire (content-type "application/grpc+gob",
// selected client-side with grpc.CallContentSubtype), replacing the usual
// "proto" codec since this service has no .proto-generated stubs.
const gobCodecName = "gob"

// gobCodec implements encoding.Codec on top of encoding/gob so the hand
// written service methods in service.go can exchange plain Go structs
// without a protoc pass.
type gobCodec struct{}

func (gobCodec) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("gob marshal: %w", err)
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("gob unmarshal: %w", err)
	}
	return nil
}

func (gobCodec) Name() string { return gobCodecName }

func init() {
	encoding.RegisterCodec(gobCodec{})
}
