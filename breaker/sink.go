// Package breaker wraps an outbox sink with one circuit breaker per channel.
//
// While a channel's breaker is open, sends fail fast with gobreaker.ErrOpenState
// and the records stay in storage for recovery.
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	outbox "github.com/velmie/txoutbox"
)

// Config defines breaker behavior shared by every channel.
type Config struct {
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of trial requests allowed while half-open.
	HalfOpenRequests uint32
	// Interval resets closed-state counts. Zero keeps counts until a state change.
	Interval time.Duration
	Logger   outbox.Logger
}

func (c Config) withDefaults() Config {
	if c.ConsecutiveFailures == 0 {
		c.ConsecutiveFailures = 5
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.HalfOpenRequests == 0 {
		c.HalfOpenRequests = 1
	}
	if c.Logger == nil {
		c.Logger = outbox.NopLogger{}
	}

	return c
}

// Sink guards the channels of an inner sink.
type Sink struct {
	inner outbox.Sink
	cfg   Config

	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker
}

var _ outbox.Sink = (*Sink)(nil)

// New wraps inner.
func New(inner outbox.Sink, cfg Config) *Sink {
	return &Sink{
		inner:    inner,
		cfg:      cfg.withDefaults(),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Resolve resolves name on the inner sink and guards the channel.
func (s *Sink) Resolve(ctx context.Context, name string) (outbox.Channel, error) {
	ch, err := s.inner.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}

	return &guarded{inner: ch, cb: s.breaker(name)}, nil
}

// State reports the breaker state for a channel. Unknown channels are closed.
func (s *Sink) State(name string) gobreaker.State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cb, ok := s.breakers[name]; ok {
		return cb.State()
	}

	return gobreaker.StateClosed
}

func (s *Sink) breaker(name string) *gobreaker.CircuitBreaker {
	s.mu.RLock()
	cb, ok := s.breakers[name]
	s.mu.RUnlock()
	if ok {
		return cb
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cb, ok = s.breakers[name]; ok {
		return cb
	}

	logger := s.cfg.Logger
	threshold := s.cfg.ConsecutiveFailures
	cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "outbox-" + name,
		MaxRequests: s.cfg.HalfOpenRequests,
		Interval:    s.cfg.Interval,
		Timeout:     s.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			logger.Warn("outbox channel breaker state changed", "channel", name, "from", from.String(), "to", to.String())
		},
	})
	s.breakers[name] = cb

	return cb
}

type guarded struct {
	inner outbox.Channel
	cb    *gobreaker.CircuitBreaker
}

func (g *guarded) Send(ctx context.Context, env outbox.Envelope) error {
	_, err := g.cb.Execute(func() (any, error) {
		return nil, g.inner.Send(ctx, env)
	})

	return err
}
