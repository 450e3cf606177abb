package memory

import (
	"context"
	"fmt"
	"sync"

	outbox "github.com/velmie/txoutbox"
)

// Sink records every delivered envelope per channel. Failures can be injected per channel.
type Sink struct {
	mu         sync.Mutex
	sent       map[string][]outbox.Envelope
	sendErr    map[string]error
	resolveErr map[string]error
	failNext   map[string]int
	attempts   map[string]int
}

var _ outbox.Sink = (*Sink)(nil)

// NewSink constructs an empty sink.
func NewSink() *Sink {
	return &Sink{
		sent:       make(map[string][]outbox.Envelope),
		sendErr:    make(map[string]error),
		resolveErr: make(map[string]error),
		failNext:   make(map[string]int),
		attempts:   make(map[string]int),
	}
}

// Resolve implements outbox.Sink.
func (s *Sink) Resolve(_ context.Context, name string) (outbox.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.resolveErr[name]; err != nil {
		return nil, fmt.Errorf("%w: %s: %w", outbox.ErrChannelResolution, name, err)
	}

	return channel{sink: s, name: name}, nil
}

// SetSendError makes every send to the channel fail with err. A nil err clears it.
func (s *Sink) SetSendError(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		delete(s.sendErr, name)

		return
	}
	s.sendErr[name] = err
}

// SetResolveError makes resolution of the channel fail with err. A nil err clears it.
func (s *Sink) SetResolveError(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		delete(s.resolveErr, name)

		return
	}
	s.resolveErr[name] = err
}

// FailNext makes the next n sends to the channel fail.
func (s *Sink) FailNext(name string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failNext[name] = n
}

// Sent returns the envelopes delivered to the channel.
func (s *Sink) Sent(name string) []outbox.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]outbox.Envelope(nil), s.sent[name]...)
}

// Attempts returns how many sends were attempted on the channel, failed ones included.
func (s *Sink) Attempts(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.attempts[name]
}

// Total returns the number of delivered envelopes across channels.
func (s *Sink) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int
	for _, envs := range s.sent {
		total += len(envs)
	}

	return total
}

type channel struct {
	sink *Sink
	name string
}

func (c channel) Send(ctx context.Context, env outbox.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s := c.sink
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts[c.name]++
	if n := s.failNext[c.name]; n > 0 {
		s.failNext[c.name] = n - 1

		return fmt.Errorf("%w: %s: injected failure", outbox.ErrSend, c.name)
	}
	if err := s.sendErr[c.name]; err != nil {
		return fmt.Errorf("%w: %s: %w", outbox.ErrSend, c.name, err)
	}

	headers := make(map[string]string, len(env.Headers))
	for k, v := range env.Headers {
		headers[k] = v
	}
	env.Headers = headers
	env.Payload = append([]byte(nil), env.Payload...)
	s.sent[c.name] = append(s.sent[c.name], env)

	return nil
}
