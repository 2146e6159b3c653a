// Package grpcapi implements the internal UoPool/Bundler gRPC
// services (spec §6) that let a separate RPC-facade process or a P2P
// node talk to the pool/bundler without going through JSON-RPC. No
// .proto toolchain runs in this environment, so the wire codec is a
// hand-rolled JSON encoding registered under the "json" content
// subtype instead of protobuf binary — the service contract (methods,
// streaming shape) is real gRPC, only the codec is simplified.
package grpcapi

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName is registered with google.golang.org/grpc/encoding so any
// grpc.Dial using grpc.CallContentSubtype(codecName) picks this codec.
const codecName = "json"

// jsonCodec implements encoding.Codec (formerly encoding.Codec) over
// encoding/json, standing in for the protobuf wire format this
// service would use with a real .proto toolchain.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("grpcapi: marshal: %w", err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("grpcapi: unmarshal: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
