// Package redis delivers outbox records to Redis Streams with go-redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	outbox "github.com/velmie/txoutbox"
)

const (
	// FieldKey holds the envelope key.
	FieldKey = "key"
	// FieldPayload holds the serialized payload.
	FieldPayload = "payload"
)

// ErrInvalidStream is returned for an empty or whitespace stream name.
var ErrInvalidStream = errors.New("outbox redis: invalid stream")

// Config defines Redis stream sink behavior.
type Config struct {
	// StreamPrefix is prepended to every channel name.
	StreamPrefix string
	// MaxLen trims each stream approximately to this length. Zero disables trimming.
	MaxLen int64
}

// Option configures the Redis sink.
type Option func(*Config)

// WithStreamPrefix sets the stream name prefix.
func WithStreamPrefix(prefix string) Option {
	return func(c *Config) {
		c.StreamPrefix = prefix
	}
}

// WithMaxLen sets approximate stream trimming.
func WithMaxLen(n int64) Option {
	return func(c *Config) {
		c.MaxLen = n
	}
}

// Sink appends envelopes to one stream per channel.
type Sink struct {
	client redis.Cmdable
	cfg    Config
}

var _ outbox.Sink = (*Sink)(nil)

// NewSink returns a sink writing through client.
func NewSink(client redis.Cmdable, opts ...Option) *Sink {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Sink{client: client, cfg: cfg}
}

// Resolve returns a channel appending to the stream for name.
func (s *Sink) Resolve(_ context.Context, name string) (outbox.Channel, error) {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, " \t\r\n") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStream, name)
	}

	return &stream{sink: s, name: s.cfg.StreamPrefix + name}, nil
}

type stream struct {
	sink *Sink
	name string
}

func (c *stream) Send(ctx context.Context, env outbox.Envelope) error {
	values := make(map[string]any, len(env.Headers)+2)
	for k, v := range env.Headers {
		values[k] = v
	}
	values[FieldKey] = env.Key
	values[FieldPayload] = env.Payload

	args := &redis.XAddArgs{Stream: c.name, Values: values}
	if c.sink.cfg.MaxLen > 0 {
		args.MaxLen = c.sink.cfg.MaxLen
		args.Approx = true
	}
	if err := c.sink.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("outbox redis: xadd to %s failed: %w", c.name, err)
	}

	return nil
}
