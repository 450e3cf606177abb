package rabbitmq

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	outbox "github.com/velmie/txoutbox"
)

type published struct {
	exchange  string
	key       string
	mandatory bool
	msg       amqp.Publishing
}

type fakePublisher struct {
	calls []published
	err   error
}

func (p *fakePublisher) PublishWithDeferredConfirmWithContext(
	_ context.Context,
	exchange, key string,
	mandatory, _ bool,
	msg amqp.Publishing,
) (*amqp.DeferredConfirmation, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.calls = append(p.calls, published{exchange: exchange, key: key, mandatory: mandatory, msg: msg})
	return nil, nil
}

func TestSinkPublishes(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewSink(pub, WithExchange("events"), WithMandatory(true))

	ch, err := sink.Resolve(context.Background(), "orders.created")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	err = ch.Send(context.Background(), outbox.Envelope{
		Key:     "o-1",
		Payload: []byte(`{"id":"o-1"}`),
		Headers: map[string]string{
			outbox.HeaderMessageID:   "id-1",
			outbox.HeaderPayloadType: "order.placed",
		},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(pub.calls) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(pub.calls))
	}
	call := pub.calls[0]
	if call.exchange != "events" || call.key != "orders.created" || !call.mandatory {
		t.Fatalf("unexpected routing: %+v", call)
	}
	if call.msg.MessageId != "id-1" || call.msg.Type != "order.placed" {
		t.Fatalf("unexpected properties: %+v", call.msg)
	}
	if call.msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("expected persistent delivery, got %d", call.msg.DeliveryMode)
	}
	if call.msg.ContentType != "application/json" {
		t.Fatalf("unexpected content type %q", call.msg.ContentType)
	}
	if call.msg.Headers["outbox-key"] != "o-1" || call.msg.Headers[outbox.HeaderMessageID] != "id-1" {
		t.Fatalf("unexpected headers: %+v", call.msg.Headers)
	}
}

func TestSinkPublishError(t *testing.T) {
	boom := errors.New("channel closed")
	sink := NewSink(&fakePublisher{err: boom})

	ch, err := sink.Resolve(context.Background(), "orders")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := ch.Send(context.Background(), outbox.Envelope{}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestSinkRejectsEmptyRoutingKey(t *testing.T) {
	sink := NewSink(&fakePublisher{})
	if _, err := sink.Resolve(context.Background(), " "); !errors.Is(err, ErrInvalidRoutingKey) {
		t.Fatalf("expected ErrInvalidRoutingKey, got %v", err)
	}
}
