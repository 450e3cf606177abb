// Package codec provides protobuf serializers for typed outbox messages.
package codec

import (
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	outbox "github.com/velmie/txoutbox"
)

// Proto encodes payloads in the protobuf binary format with deterministic map ordering.
func Proto[T proto.Message]() outbox.Serializer[T] {
	opts := proto.MarshalOptions{Deterministic: true}

	return outbox.SerializerFunc[T](func(payload T) ([]byte, error) {
		return opts.Marshal(payload)
	})
}

// ProtoJSON encodes payloads with the canonical protobuf JSON mapping.
func ProtoJSON[T proto.Message]() outbox.Serializer[T] {
	opts := protojson.MarshalOptions{UseProtoNames: true}

	return outbox.SerializerFunc[T](func(payload T) ([]byte, error) {
		return opts.Marshal(payload)
	})
}

// TypeName returns the fully qualified message name, e.g. "google.protobuf.StringValue".
func TypeName(m proto.Message) string {
	return string(m.ProtoReflect().Descriptor().FullName())
}

// Message builds a typed message whose payload type is the protobuf full name.
func Message[T proto.Message](source, sourceID, channel string, payload T) outbox.Message[T] {
	msg := outbox.Message[T]{
		Source:   source,
		SourceID: sourceID,
		Channel:  channel,
		Payload:  payload,
	}
	if any(payload) != nil && payload.ProtoReflect().IsValid() {
		msg.PayloadType = TypeName(payload)
	}

	return msg
}
