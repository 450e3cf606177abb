// Package rabbitmq delivers outbox records to a RabbitMQ exchange with amqp091-go.
//
// The channel name is used as the routing key. When the AMQP channel is in confirm
// mode each send waits for the broker acknowledgement.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	outbox "github.com/velmie/txoutbox"
)

var (
	// ErrNacked is returned when the broker negatively acknowledges a message.
	ErrNacked = errors.New("outbox rabbitmq: message nacked by broker")
	// ErrInvalidRoutingKey is returned for an empty routing key.
	ErrInvalidRoutingKey = errors.New("outbox rabbitmq: invalid routing key")
)

// Publisher is the subset of *amqp.Channel used by the sink.
type Publisher interface {
	PublishWithDeferredConfirmWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) (*amqp.DeferredConfirmation, error)
}

// Config defines RabbitMQ sink behavior.
type Config struct {
	Exchange    string
	ContentType string
	Mandatory   bool
}

// Option configures the RabbitMQ sink.
type Option func(*Config)

// WithExchange sets the exchange messages are published to.
func WithExchange(name string) Option {
	return func(c *Config) {
		c.Exchange = name
	}
}

// WithContentType sets the content type of published messages.
func WithContentType(contentType string) Option {
	return func(c *Config) {
		c.ContentType = contentType
	}
}

// WithMandatory requests returns for unroutable messages.
func WithMandatory(mandatory bool) Option {
	return func(c *Config) {
		c.Mandatory = mandatory
	}
}

// Sink publishes envelopes through one AMQP channel.
type Sink struct {
	pub Publisher
	cfg Config
}

var _ outbox.Sink = (*Sink)(nil)

// NewSink returns a sink publishing with pub.
func NewSink(pub Publisher, opts ...Option) *Sink {
	cfg := Config{ContentType: "application/json"}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Sink{pub: pub, cfg: cfg}
}

// Resolve returns a channel publishing with name as the routing key.
func (s *Sink) Resolve(_ context.Context, name string) (outbox.Channel, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrInvalidRoutingKey
	}

	return &route{sink: s, key: name}, nil
}

type route struct {
	sink *Sink
	key  string
}

func (r *route) Send(ctx context.Context, env outbox.Envelope) error {
	table := make(amqp.Table, len(env.Headers)+1)
	for k, v := range env.Headers {
		table[k] = v
	}
	table["outbox-key"] = env.Key

	msg := amqp.Publishing{
		ContentType:  r.sink.cfg.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    env.Headers[outbox.HeaderMessageID],
		Type:         env.Headers[outbox.HeaderPayloadType],
		Headers:      table,
		Body:         env.Payload,
	}

	confirm, err := r.sink.pub.PublishWithDeferredConfirmWithContext(
		ctx, r.sink.cfg.Exchange, r.key, r.sink.cfg.Mandatory, false, msg,
	)
	if err != nil {
		return fmt.Errorf("outbox rabbitmq: publish to %s failed: %w", r.key, err)
	}
	if confirm == nil {
		return nil
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("outbox rabbitmq: confirm for %s failed: %w", r.key, err)
	}
	if !acked {
		return fmt.Errorf("%w: %s", ErrNacked, r.key)
	}

	return nil
}
