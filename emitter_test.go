package outbox_test

import (
	"context"
	"errors"
	"testing"
	"time"

	outbox "github.com/velmie/txoutbox"
	"github.com/velmie/txoutbox/memory"
)

func TestEmitCreatesNewRecord(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	clock := newManualClock()
	emitter := outbox.NewEmitter(nil, outbox.WithClock(clock))

	var id outbox.ID
	err := repo.Transaction(ctx, func(ctx context.Context, tx *memory.Tx) error {
		var err error
		id, err = outbox.Emit(ctx, emitter, tx, outbox.Message[orderPlaced]{
			Source:   "order",
			SourceID: "o-1",
			Channel:  "orders",
			Payload:  orderPlaced{OrderID: "o-1", Amount: 100},
		})

		return err
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	records := repo.Records()
	if len(records) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(records))
	}
	record := records[0]
	if record.ID != id {
		t.Fatalf("expected emitted id %s, got %s", id, record.ID)
	}
	if record.Status != outbox.StatusNew || record.RetryCount != 0 || record.SentAt != nil {
		t.Fatalf("unexpected initial state %+v", record)
	}
	if !record.CreatedAt.Equal(clock.Now()) {
		t.Fatalf("expected createdAt %v, got %v", clock.Now(), record.CreatedAt)
	}
	if record.PayloadType != "order.placed" || string(record.Payload) != `{"orderId":"o-1","amount":100}` {
		t.Fatalf("unexpected payload %s (%s)", record.Payload, record.PayloadType)
	}
}

func TestEmitValidationFailsAndAbortsTransaction(t *testing.T) {
	cases := []struct {
		name string
		ev   outbox.Event
		err  error
	}{
		{"blank source", outbox.Event{Source: " ", SourceID: "1", Channel: "orders", Payload: []byte("x")}, outbox.ErrSourceRequired},
		{"blank source id", outbox.Event{Source: "order", Channel: "orders", Payload: []byte("x")}, outbox.ErrSourceIDRequired},
		{"blank channel", outbox.Event{Source: "order", SourceID: "1", Payload: []byte("x")}, outbox.ErrChannelRequired},
		{"nil payload", outbox.Event{Source: "order", SourceID: "1", Channel: "orders"}, outbox.ErrPayloadRequired},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			repo := memory.NewRepository()
			sink := memory.NewSink()
			emitter := outbox.NewEmitter(outbox.NewPublisher(repo, sink))

			err := repo.Transaction(ctx, func(ctx context.Context, tx *memory.Tx) error {
				_, err := emitter.EmitEvent(ctx, tx, tc.ev)

				return err
			})

			var verr *outbox.ValidationError
			if !errors.As(err, &verr) || !errors.Is(err, tc.err) {
				t.Fatalf("expected validation error %v, got %v", tc.err, err)
			}
			if n := len(repo.Records()); n != 0 {
				t.Fatalf("expected no records, got %d", n)
			}
			if sink.Total() != 0 {
				t.Fatalf("expected no sends")
			}
		})
	}
}

func TestEmitNilTypedPayload(t *testing.T) {
	repo := memory.NewRepository()
	emitter := outbox.NewEmitter(nil)

	err := repo.Transaction(context.Background(), func(ctx context.Context, tx *memory.Tx) error {
		_, err := outbox.Emit(ctx, emitter, tx, outbox.Message[*orderPlaced]{Source: "order", SourceID: "1", Channel: "orders"})

		return err
	})
	if !errors.Is(err, outbox.ErrPayloadRequired) {
		t.Fatalf("expected ErrPayloadRequired, got %v", err)
	}
	if len(repo.Records()) != 0 {
		t.Fatalf("expected no records")
	}
}

func TestEmitSerializationFailure(t *testing.T) {
	repo := memory.NewRepository()
	emitter := outbox.NewEmitter(nil)
	failing := outbox.SerializerFunc[orderPlaced](func(orderPlaced) ([]byte, error) {
		return nil, errors.New("unsupported")
	})

	err := repo.Transaction(context.Background(), func(ctx context.Context, tx *memory.Tx) error {
		_, err := outbox.EmitWith(ctx, emitter, tx, outbox.Message[orderPlaced]{
			Source: "order", SourceID: "1", Channel: "orders", Payload: orderPlaced{OrderID: "1"},
		}, failing)

		return err
	})
	if !errors.Is(err, outbox.ErrSerialization) {
		t.Fatalf("expected ErrSerialization, got %v", err)
	}
	if len(repo.Records()) != 0 {
		t.Fatalf("expected no records")
	}
}

func TestEmitWithoutTx(t *testing.T) {
	emitter := outbox.NewEmitter(nil)
	_, err := emitter.EmitEvent(context.Background(), nil, outbox.Event{Source: "a", SourceID: "b", Channel: "c", Payload: []byte("d")})
	if !errors.Is(err, outbox.ErrTxRequired) {
		t.Fatalf("expected ErrTxRequired, got %v", err)
	}
}

// Emit with a valid request and a healthy sink: the record ends SENT and the
// consumer sees the record id in the correlation header.
func TestEmitDirectPublishAfterCommit(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	sink := memory.NewSink()
	clock := newManualClock()
	publisher := outbox.NewPublisher(repo, sink, outbox.WithClock(clock))
	emitter := outbox.NewEmitter(publisher, outbox.WithClock(clock))

	var id outbox.ID
	err := repo.Transaction(ctx, func(ctx context.Context, tx *memory.Tx) error {
		var err error
		id, err = outbox.Emit(ctx, emitter, tx, outbox.Message[orderPlaced]{
			Source: "order", SourceID: "o-7", Channel: "orders", Payload: orderPlaced{OrderID: "o-7"},
		})
		if err != nil {
			return err
		}
		if sink.Total() != 0 {
			t.Fatalf("message must not be sent before commit")
		}

		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	record := mustFind(t, repo, id)
	if record.Status != outbox.StatusSent || record.SentAt == nil || record.RetryCount != 1 {
		t.Fatalf("unexpected record after direct publish %+v", record)
	}
	if !record.SentAt.Equal(clock.Now()) {
		t.Fatalf("expected sentAt %v, got %v", clock.Now(), record.SentAt)
	}

	sent := sink.Sent("orders")
	if len(sent) != 1 {
		t.Fatalf("expected one message, got %d", len(sent))
	}
	if sent[0].Headers[outbox.HeaderMessageID] != id.String() {
		t.Fatalf("expected correlation header %s, got %q", id, sent[0].Headers[outbox.HeaderMessageID])
	}
	if sent[0].Key != "o-7" || sent[0].Headers[outbox.HeaderPayloadType] != "order.placed" {
		t.Fatalf("unexpected envelope %+v", sent[0])
	}
}

func TestEmitRolledBackTransactionSendsNothing(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	sink := memory.NewSink()
	emitter := outbox.NewEmitter(outbox.NewPublisher(repo, sink))
	businessErr := errors.New("insufficient funds")

	err := repo.Transaction(ctx, func(ctx context.Context, tx *memory.Tx) error {
		if _, err := emitter.EmitEvent(ctx, tx, outbox.Event{
			Source: "order", SourceID: "o-1", Channel: "orders", Payload: []byte(`{}`),
		}); err != nil {
			return err
		}

		return businessErr
	})
	if !errors.Is(err, businessErr) {
		t.Fatalf("expected business error, got %v", err)
	}
	if len(repo.Records()) != 0 {
		t.Fatalf("expected no record after rollback")
	}
	if sink.Total() != 0 {
		t.Fatalf("expected no send after rollback")
	}
}

// Sink fails on the direct attempt: the record stays NEW until it is old enough
// for the stuck sweep, which then delivers it.
func TestEmitDirectFailureRecoveredAfterStuckDelay(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	sink := memory.NewSink()
	clock := newManualClock()
	publisher := outbox.NewPublisher(repo, sink, outbox.WithClock(clock))
	emitter := outbox.NewEmitter(publisher, outbox.WithClock(clock))
	recovery := outbox.NewRecovery(repo, sink, outbox.WithClock(clock), outbox.WithStuckDelay(30*time.Second))

	sink.FailNext("orders", 1)

	var id outbox.ID
	err := repo.Transaction(ctx, func(ctx context.Context, tx *memory.Tx) error {
		var err error
		id, err = emitter.EmitEvent(ctx, tx, outbox.Event{Source: "order", SourceID: "o-1", Channel: "orders", Payload: []byte(`{}`)})

		return err
	})
	if err != nil {
		t.Fatalf("direct publish failure must not reach the caller: %v", err)
	}

	record := mustFind(t, repo, id)
	if record.Status != outbox.StatusNew || record.RetryCount != 0 || record.StatusMessage == "" {
		t.Fatalf("expected NEW record with diagnostic, got %+v", record)
	}

	clock.Advance(29 * time.Second)
	if _, err := recovery.RunOnce(ctx); err != nil {
		t.Fatalf("recovery: %v", err)
	}
	if got := mustFind(t, repo, id); got.Status != outbox.StatusNew {
		t.Fatalf("young NEW record must be left alone, got %s", got.Status)
	}

	clock.Advance(2 * time.Second)
	result, err := recovery.RunOnce(ctx)
	if err != nil {
		t.Fatalf("recovery: %v", err)
	}
	if result.Sent != 1 {
		t.Fatalf("expected one redelivery, got %+v", result)
	}

	record = mustFind(t, repo, id)
	if record.Status != outbox.StatusSent || record.RetryCount != 1 || record.SentAt == nil {
		t.Fatalf("unexpected record after recovery %+v", record)
	}
	if len(sink.Sent("orders")) != 1 {
		t.Fatalf("expected one delivered message")
	}
}

type failingStoreTx struct {
	outbox.CommitHooks
	store outbox.Store
}

func (tx *failingStoreTx) Outbox() outbox.Store { return tx.store }

type rejectingStore struct {
	outbox.Store
	err error
}

func (s rejectingStore) Create(context.Context, outbox.Record) error { return s.err }

func (s rejectingStore) Save(context.Context, outbox.Record) error { return s.err }

func TestEmitWriteFailureAbortsCommit(t *testing.T) {
	ctx := context.Background()
	diskFull := errors.New("disk full")
	tx := &failingStoreTx{store: rejectingStore{Store: memory.NewRepository(), err: diskFull}}
	sink := memory.NewSink()
	emitter := outbox.NewEmitter(outbox.NewPublisher(memory.NewRepository(), sink))

	if _, err := emitter.EmitEvent(ctx, tx, outbox.Event{Source: "a", SourceID: "b", Channel: "c", Payload: []byte("d")}); err != nil {
		t.Fatalf("emit: %v", err)
	}

	err := tx.RunBeforeCommit(ctx)
	if !errors.Is(err, diskFull) {
		t.Fatalf("expected write failure to abort commit, got %v", err)
	}
	if sink.Total() != 0 {
		t.Fatalf("expected no send")
	}
}
