package outbox

import "strings"

// Event describes a message to be recorded in the outbox.
type Event struct {
	// ID is optional, if zero, the emitter assigns a UUID v7. A non-zero ID must not
	// belong to an existing record.
	ID ID
	// Source names the kind of entity that produced the event (e.g., "order").
	Source string
	// SourceID identifies the entity instance. Sinks use it as the partition key.
	SourceID string
	// Channel is the logical destination name resolved by the Sink.
	Channel string
	// Payload is the serialized message body.
	Payload []byte
	// PayloadType names the payload schema (e.g., "order.created").
	PayloadType string
}

// ValidateEvent checks the required fields of an emit request.
// Whitespace-only strings count as blank.
func ValidateEvent(ev Event) error {
	if err := validateRoute(ev.Source, ev.SourceID, ev.Channel); err != nil {
		return err
	}
	if len(ev.Payload) == 0 {
		return &ValidationError{Field: "payload", Err: ErrPayloadRequired}
	}

	return nil
}

func validateRoute(source, sourceID, channel string) error {
	if isBlank(source) {
		return &ValidationError{Field: "source", Err: ErrSourceRequired}
	}
	if isBlank(sourceID) {
		return &ValidationError{Field: "sourceId", Err: ErrSourceIDRequired}
	}
	if isBlank(channel) {
		return &ValidationError{Field: "channel", Err: ErrChannelRequired}
	}

	return nil
}

func isBlank(value string) bool {
	return strings.TrimSpace(value) == ""
}
