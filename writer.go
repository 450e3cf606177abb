package outbox

import (
	"context"
	"fmt"
)

// Writer persists new records.
type Writer struct {
	cfg Config
}

// NewWriter constructs a Writer. It reads Clock and Generator from the options.
func NewWriter(opts ...Option) *Writer {
	return &Writer{cfg: newConfig(opts)}
}

// Write validates the event and inserts it as a NEW record with no retries.
// Call it inside the business transaction, before commit. An event reusing the id
// of an existing record fails with ErrDuplicateID.
func (w *Writer) Write(ctx context.Context, store Store, ev Event) (Record, error) {
	if store == nil {
		return Record{}, ErrTxRequired
	}
	if err := ValidateEvent(ev); err != nil {
		return Record{}, err
	}

	id := ev.ID
	if id.IsZero() {
		var err error
		id, err = w.cfg.Generator.New()
		if err != nil {
			return Record{}, fmt.Errorf("outbox: generate id failed: %w", err)
		}
	}

	record := Record{
		ID:          id,
		Source:      ev.Source,
		SourceID:    ev.SourceID,
		Channel:     ev.Channel,
		Payload:     ev.Payload,
		PayloadType: ev.PayloadType,
		Status:      StatusNew,
		CreatedAt:   w.cfg.Clock.Now(),
		RetryCount:  0,
	}
	if err := store.Create(ctx, record); err != nil {
		return Record{}, fmt.Errorf("outbox: create record failed: %w", err)
	}

	return record, nil
}
