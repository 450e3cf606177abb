package kafka

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"

	outbox "github.com/velmie/txoutbox"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestSinkSendsEnvelope(t *testing.T) {
	writer := &fakeWriter{}
	sink := newSink(writer, WithTopicPrefix("app."))

	ch, err := sink.Resolve(context.Background(), "orders")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	env := outbox.Envelope{
		Key:     "o-1",
		Payload: []byte(`{"id":"o-1"}`),
		Headers: map[string]string{
			outbox.HeaderSource:    "order",
			outbox.HeaderMessageID: "id-1",
		},
	}
	if err := ch.Send(context.Background(), env); err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(writer.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(writer.messages))
	}
	msg := writer.messages[0]
	if msg.Topic != "app.orders" || string(msg.Key) != "o-1" || string(msg.Value) != `{"id":"o-1"}` {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if len(msg.Headers) != 2 || msg.Headers[0].Key != outbox.HeaderMessageID {
		t.Fatalf("expected sorted headers, got %+v", msg.Headers)
	}
}

func TestSinkTopicMapping(t *testing.T) {
	writer := &fakeWriter{}
	sink := newSink(writer, WithTopicPrefix("app."), WithTopic("billing", "payments.v1"))

	ch, err := sink.Resolve(context.Background(), "billing")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := ch.Send(context.Background(), outbox.Envelope{Payload: []byte("x")}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if writer.messages[0].Topic != "payments.v1" {
		t.Fatalf("unexpected topic %q", writer.messages[0].Topic)
	}
}

func TestSinkRejectsInvalidTopic(t *testing.T) {
	sink := newSink(&fakeWriter{})

	for _, name := range []string{"", "orders/created", "..", strings.Repeat("a", maxTopicLen+1)} {
		if _, err := sink.Resolve(context.Background(), name); !errors.Is(err, ErrInvalidTopic) {
			t.Fatalf("resolve %q: expected ErrInvalidTopic, got %v", name, err)
		}
	}
}

func TestSinkSendError(t *testing.T) {
	boom := errors.New("leader not available")
	sink := newSink(&fakeWriter{err: boom})

	ch, err := sink.Resolve(context.Background(), "orders")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := ch.Send(context.Background(), outbox.Envelope{}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestSinkClose(t *testing.T) {
	writer := &fakeWriter{}
	if err := newSink(writer).Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !writer.closed {
		t.Fatal("expected writer to be closed")
	}
}
