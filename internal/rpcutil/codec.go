package rpcutil

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodecName is negotiated as the gRPC content-subtype so that hand
// written grpc.ServiceDesc methods (see internal/signer) can move plain Go
// structs over the wire without a protoc-generated proto.Message type.
const jsonCodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// CodecName is the content-subtype callers pass via grpc.CallContentSubtype
// to opt into the JSON codec instead of protobuf.
const CodecName = jsonCodecName
