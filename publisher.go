package outbox

import (
	"context"
	"errors"
	"fmt"
)

// Publisher delivers single records right after the transaction that wrote them commits.
type Publisher struct {
	repo     Repository
	delivery deliverer
	cfg      Config
}

// NewPublisher constructs a Publisher with defaults and optional settings.
func NewPublisher(repo Repository, sink Sink, opts ...Option) *Publisher {
	if repo == nil {
		panic("outbox: nil Repository")
	}
	if sink == nil {
		panic("outbox: nil Sink")
	}

	cfg := newConfig(opts)

	return &Publisher{
		repo:     repo,
		delivery: deliverer{sink: sink, cfg: cfg},
		cfg:      cfg,
	}
}

// PublishAfterCommit attempts one delivery of the record in a new transaction.
// It never returns an error or panics: failures are logged and left to Recovery.
func (p *Publisher) PublishAfterCommit(ctx context.Context, id ID) {
	defer func() {
		if rec := recover(); rec != nil {
			p.cfg.Logger.Error("outbox direct publish panic", "id", id, "panic", rec)
		}
	}()

	err := p.publish(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		p.cfg.Logger.Debug("outbox record vanished before direct publish", "id", id)
	default:
		p.cfg.Logger.Warn("outbox direct publish failed", "id", id, "err", err)
	}
}

// PublishByID delivers the record now unless it was already sent.
// It returns ErrNotFound for unknown ids and the delivery error when sending fails.
func (p *Publisher) PublishByID(ctx context.Context, id ID) error {
	return p.publish(ctx, id)
}

func (p *Publisher) publish(ctx context.Context, id ID) error {
	var (
		sendErr error
		sent    bool
	)
	err := p.repo.InTx(ctx, func(ctx context.Context, store Store) error {
		record, err := store.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if record.Status == StatusSent {
			p.cfg.Logger.Debug("outbox record already sent", "id", id)

			return nil
		}

		if err := p.delivery.deliver(ctx, record, PathDirect); err != nil {
			sendErr = err
			p.cfg.Metrics.AddSendErrors(PathDirect, 1)
			// The record stays in its status; the direct attempt does not consume the retry budget.
			record.StatusMessage = failureMessage(err)

			return store.Save(ctx, record)
		}

		if err := record.MarkSent(p.cfg.Clock.Now()); err != nil {
			return err
		}
		if err := store.Save(ctx, record); err != nil {
			return fmt.Errorf("outbox: save sent record failed: %w", err)
		}
		sent = true

		return nil
	})
	if err != nil {
		return err
	}
	if sent {
		p.cfg.Metrics.AddSent(PathDirect, 1)
	}

	return sendErr
}
