// Package kafka delivers outbox records to Kafka topics with segmentio/kafka-go.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	outbox "github.com/velmie/txoutbox"
)

const maxTopicLen = 249

// ErrInvalidTopic is returned when a channel name does not map to a legal topic.
var ErrInvalidTopic = errors.New("outbox kafka: invalid topic")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config defines Kafka sink behavior.
type Config struct {
	// TopicPrefix is prepended to channel names without an explicit mapping.
	TopicPrefix string
	// Topics maps channel names to topics.
	Topics map[string]string
	// WriteTimeout bounds a single produce request.
	WriteTimeout time.Duration
	Logger       outbox.Logger
}

// Option configures the Kafka sink.
type Option func(*Config)

// WithTopicPrefix sets the prefix used for unmapped channels.
func WithTopicPrefix(prefix string) Option {
	return func(c *Config) {
		c.TopicPrefix = prefix
	}
}

// WithTopic maps a channel name to a topic.
func WithTopic(channel, topic string) Option {
	return func(c *Config) {
		if c.Topics == nil {
			c.Topics = make(map[string]string)
		}
		c.Topics[channel] = topic
	}
}

// WithWriteTimeout sets the produce timeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.WriteTimeout = d
	}
}

// WithLogger routes kafka-go logs to the logger.
func WithLogger(logger outbox.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

func (c Config) withDefaults() Config {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = outbox.NopLogger{}
	}

	return c
}

// Sink resolves channel names to Kafka topics sharing one writer.
type Sink struct {
	writer messageWriter
	cfg    Config
}

var _ outbox.Sink = (*Sink)(nil)

// NewSink builds a sink producing to brokers. Records with the same source id share a partition.
func NewSink(brokers []string, opts ...Option) *Sink {
	cfg := newConfig(opts)
	logger := cfg.Logger
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.WriteTimeout,
		Logger: kafka.LoggerFunc(func(msg string, args ...any) {
			logger.Debug(fmt.Sprintf(msg, args...), "component", "kafka")
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			logger.Warn(fmt.Sprintf(msg, args...), "component", "kafka")
		}),
	}

	return &Sink{writer: writer, cfg: cfg}
}

func newSink(writer messageWriter, opts ...Option) *Sink {
	return &Sink{writer: writer, cfg: newConfig(opts)}
}

func newConfig(opts []Option) Config {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg.withDefaults()
}

// Resolve returns a channel producing to the topic for name.
func (s *Sink) Resolve(_ context.Context, name string) (outbox.Channel, error) {
	topic, ok := s.cfg.Topics[name]
	if !ok {
		topic = s.cfg.TopicPrefix + name
	}
	if err := validateTopic(topic); err != nil {
		return nil, err
	}

	return &channel{writer: s.writer, topic: topic}, nil
}

// Close flushes and closes the writer.
func (s *Sink) Close() error {
	return s.writer.Close()
}

type channel struct {
	writer messageWriter
	topic  string
}

func (c *channel) Send(ctx context.Context, env outbox.Envelope) error {
	msg := kafka.Message{
		Topic:   c.topic,
		Key:     []byte(env.Key),
		Value:   env.Payload,
		Headers: headers(env.Headers),
	}
	if err := c.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("outbox kafka: produce to %s failed: %w", c.topic, err)
	}

	return nil
}

func headers(values map[string]string) []kafka.Header {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]kafka.Header, 0, len(keys))
	for _, k := range keys {
		out = append(out, kafka.Header{Key: k, Value: []byte(values[k])})
	}

	return out
}

func validateTopic(topic string) error {
	if topic == "" || topic == "." || topic == ".." || len(topic) > maxTopicLen {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	if i := strings.IndexFunc(topic, func(r rune) bool {
		return r != '.' && r != '_' && r != '-' &&
			(r < '0' || r > '9') && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z')
	}); i >= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}

	return nil
}
