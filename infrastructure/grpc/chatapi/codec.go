package chatapi

import (
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	_ "google.golang.org/grpc/encoding/proto"
	"google.golang.org/grpc/mem"
)

// CodecName is the gRPC content subtype of the chat service ("application/grpc+proto").
// Chat messages are encoded following chat.proto, any other message goes to the stock protobuf codec.
const CodecName = "proto"

// wireMessage is implemented by every chat message, see wire.go.
type wireMessage interface {
	appendWire(b []byte) ([]byte, error)
	unmarshalWire(b []byte) error
}

type codec struct {
	fallback encoding.CodecV2
}

func (c codec) Marshal(v any) (mem.BufferSlice, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return c.fallback.Marshal(v)
	}
	b, err := m.appendWire(nil)
	if err != nil {
		return nil, fmt.Errorf("chatapi: failed to marshal %T: %w", v, err)
	}
	return mem.BufferSlice{mem.SliceBuffer(b)}, nil
}

func (c codec) Unmarshal(data mem.BufferSlice, v any) error {
	m, ok := v.(wireMessage)
	if !ok {
		return c.fallback.Unmarshal(data, v)
	}
	if err := m.unmarshalWire(data.Materialize()); err != nil {
		return fmt.Errorf("chatapi: failed to unmarshal %T: %w", v, err)
	}
	return nil
}

func (codec) Name() string {
	return CodecName
}

func init() {
	fallback := encoding.GetCodecV2(CodecName)
	if fallback == nil {
		panic("chatapi: protobuf codec is not registered")
	}
	encoding.RegisterCodecV2(codec{fallback: fallback})
}

// CallOption pins the content subtype on client connections talking to the chat service.
func CallOption() grpc.DialOption {
	return grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName))
}
