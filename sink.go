package outbox

import "context"

// Header names set on every delivered envelope.
const (
	// HeaderMessageID carries the record ID so consumers can report failures back.
	HeaderMessageID = "outbox-message-id"
	// HeaderException carries a consumer-side failure description.
	HeaderException = "outbox-message-exception"
	// HeaderSource carries Record.Source.
	HeaderSource = "outbox-source"
	// HeaderSourceID carries Record.SourceID.
	HeaderSourceID = "outbox-source-id"
	// HeaderPayloadType carries Record.PayloadType.
	HeaderPayloadType = "outbox-payload-type"
)

// Envelope is the broker-facing form of a record.
type Envelope struct {
	Key     string
	Payload []byte
	Headers map[string]string
}

// NewEnvelope builds the envelope delivered for a record.
func NewEnvelope(record Record) Envelope {
	return Envelope{
		Key:     record.SourceID,
		Payload: record.Payload,
		Headers: map[string]string{
			HeaderMessageID:   record.ID.String(),
			HeaderSource:      record.Source,
			HeaderSourceID:    record.SourceID,
			HeaderPayloadType: record.PayloadType,
		},
	}
}

// Sink resolves logical channel names to deliverable channels.
type Sink interface {
	// Resolve returns the channel for name or an error wrapping ErrChannelResolution.
	Resolve(ctx context.Context, name string) (Channel, error)
}

// Channel delivers envelopes to a single destination.
type Channel interface {
	// Send delivers the envelope. A returned error means delivery is not confirmed.
	Send(ctx context.Context, env Envelope) error
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc func(ctx context.Context, env Envelope) error

// Send implements Channel.
func (fn ChannelFunc) Send(ctx context.Context, env Envelope) error {
	return fn(ctx, env)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, name string) (Channel, error)

// Resolve implements Sink.
func (fn SinkFunc) Resolve(ctx context.Context, name string) (Channel, error) {
	return fn(ctx, name)
}
