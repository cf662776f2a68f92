package grpc

import "encoding/json"

// jsonCodec lets this package speak gRPC (the real transport/framing/
// connection-management machinery from google.golang.org/grpc) against
// tool servers that were never compiled from a .proto contract — there is
// no protoc-generated client to adapt here (the teacher's own
// internal/integration/grpc references a pb package that isn't part of
// the retrieved sources either). Registering a codec is a documented
// grpc-go extension point; this keeps the wire payload as plain JSON
// instead of requiring protobuf-generated message types.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return codecName }

const codecName = "json"
