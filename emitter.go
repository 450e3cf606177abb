package outbox

import (
	"context"
	"fmt"
)

// Emitter records events inside business transactions and publishes them once the
// transaction commits.
type Emitter struct {
	writer    *Writer
	publisher *Publisher
	cfg       Config
}

// NewEmitter constructs an Emitter. A nil publisher disables the post-commit
// delivery and leaves every record to Recovery.
func NewEmitter(publisher *Publisher, opts ...Option) *Emitter {
	cfg := newConfig(opts)

	return &Emitter{
		writer:    &Writer{cfg: cfg},
		publisher: publisher,
		cfg:       cfg,
	}
}

// EmitEvent validates ev and schedules it on tx. The record is written right before
// tx commits and delivered right after. Validation errors are returned immediately
// and nothing is scheduled.
func (e *Emitter) EmitEvent(ctx context.Context, tx Tx, ev Event) (ID, error) {
	if tx == nil {
		return ID{}, ErrTxRequired
	}
	if err := ValidateEvent(ev); err != nil {
		return ID{}, err
	}
	if ev.ID.IsZero() {
		id, err := e.cfg.Generator.New()
		if err != nil {
			return ID{}, fmt.Errorf("outbox: generate id failed: %w", err)
		}
		ev.ID = id
	}

	tx.BeforeCommit(func(ctx context.Context) error {
		record, err := e.writer.Write(ctx, tx.Outbox(), ev)
		if err != nil {
			return err
		}
		if e.publisher != nil {
			tx.AfterCommit(func(ctx context.Context) {
				e.publisher.PublishAfterCommit(ctx, record.ID)
			})
		}

		return nil
	})

	return ev.ID, nil
}

// Emit serializes msg as JSON and schedules it on tx.
func Emit[T any](ctx context.Context, e *Emitter, tx Tx, msg Message[T]) (ID, error) {
	return EmitWith(ctx, e, tx, msg, JSON[T]())
}

// EmitWith serializes msg with serializer and schedules it on tx.
func EmitWith[T any](ctx context.Context, e *Emitter, tx Tx, msg Message[T], serializer Serializer[T]) (ID, error) {
	ev, err := Encode(msg, serializer)
	if err != nil {
		return ID{}, err
	}

	return e.EmitEvent(ctx, tx, ev)
}
