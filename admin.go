package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Admin exposes operator and consumer-feedback operations on records.
type Admin struct {
	repo Repository
	cfg  Config
}

// NewAdmin constructs an Admin.
func NewAdmin(repo Repository, opts ...Option) *Admin {
	if repo == nil {
		panic("outbox: nil Repository")
	}

	return &Admin{repo: repo, cfg: newConfig(opts)}
}

// GetByID returns the record with the textual id. Unparsable ids are reported as ErrNotFound.
func (a *Admin) GetByID(ctx context.Context, id string) (Record, error) {
	parsed, err := ParseID(id)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	return a.repo.FindByID(ctx, parsed)
}

// MarkFailed moves a NEW or FAILED record to FAILED with reason as its status message.
// A blank id is ignored. A SENT record is left unchanged.
func (a *Admin) MarkFailed(ctx context.Context, id, reason string) error {
	if isBlank(id) {
		return nil
	}
	parsed, err := ParseID(id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var marked bool
	err = a.repo.InTx(ctx, func(ctx context.Context, store Store) error {
		record, err := store.LockByID(ctx, parsed)
		if err != nil {
			return err
		}
		if record.Status == StatusSent {
			a.cfg.Logger.Warn("outbox mark failed ignored for sent record", "id", parsed)

			return nil
		}
		if err := record.MarkFailed(reason); err != nil {
			return err
		}
		if err := store.Save(ctx, record); err != nil {
			return err
		}
		marked = true

		return nil
	})
	if err != nil {
		return err
	}
	if marked {
		a.cfg.Metrics.AddMarkedFailed(1)
	}

	return nil
}

// MarkFailedFromHeaders marks the record named by HeaderMessageID as failed, using
// HeaderException as the reason. Headers without a message id are ignored.
func (a *Admin) MarkFailedFromHeaders(ctx context.Context, headers map[string]string) error {
	id := headers[HeaderMessageID]
	if isBlank(id) {
		a.cfg.Logger.Debug("outbox failure report without message id")

		return nil
	}

	err := a.MarkFailed(ctx, id, headers[HeaderException])
	if errors.Is(err, ErrNotFound) {
		a.cfg.Logger.Warn("outbox failure report for unknown record", "id", id)
	}

	return err
}

// DeleteOlderThan removes every record created before the cutoff.
func (a *Admin) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	if before.IsZero() {
		return 0, ErrInvalidRetention
	}

	deleted, err := a.repo.DeleteOlderThan(ctx, before)
	if err != nil {
		return deleted, err
	}
	a.cfg.Metrics.AddPurged(deleted)

	return deleted, nil
}
