package outbox

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Serializer turns a typed payload into bytes.
type Serializer[T any] interface {
	// Serialize encodes the payload.
	Serialize(payload T) ([]byte, error)
}

// SerializerFunc adapts a function to Serializer.
type SerializerFunc[T any] func(payload T) ([]byte, error)

// Serialize implements Serializer.
func (fn SerializerFunc[T]) Serialize(payload T) ([]byte, error) {
	return fn(payload)
}

// JSON returns a Serializer that encodes payloads with encoding/json.
func JSON[T any]() Serializer[T] {
	return SerializerFunc[T](func(payload T) ([]byte, error) {
		return json.Marshal(payload)
	})
}

// TypeNamer is implemented by payloads that know their schema name.
type TypeNamer interface {
	PayloadType() string
}

// Message is a typed emit request.
type Message[T any] struct {
	Source   string
	SourceID string
	Channel  string
	// PayloadType names the payload schema. When empty, a payload implementing
	// TypeNamer supplies it.
	PayloadType string
	Payload     T
}

// Encode serializes a typed message into an Event. Blank source, source id or channel
// are reported before the payload is serialized.
func Encode[T any](msg Message[T], serializer Serializer[T]) (Event, error) {
	if err := validateRoute(msg.Source, msg.SourceID, msg.Channel); err != nil {
		return Event{}, err
	}
	if isNilPayload(msg.Payload) {
		return Event{}, &ValidationError{Field: "payload", Err: ErrPayloadRequired}
	}
	if serializer == nil {
		serializer = JSON[T]()
	}

	payload, err := serializer.Serialize(msg.Payload)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	if len(payload) == 0 {
		return Event{}, &ValidationError{Field: "payload", Err: ErrPayloadRequired}
	}

	payloadType := msg.PayloadType
	if namer, ok := any(msg.Payload).(TypeNamer); ok && isBlank(payloadType) {
		payloadType = namer.PayloadType()
	}

	return Event{
		Source:      msg.Source,
		SourceID:    msg.SourceID,
		Channel:     msg.Channel,
		Payload:     payload,
		PayloadType: payloadType,
	}, nil
}

func isNilPayload(payload any) bool {
	if payload == nil {
		return true
	}

	value := reflect.ValueOf(payload)
	switch value.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func:
		return value.IsNil()
	default:
		return false
	}
}
