package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RecoveryResult summarizes one recovery run.
type RecoveryResult struct {
	Scanned int
	Sent    int
	Failed  int
	Skipped int
}

func (r *RecoveryResult) add(other RecoveryResult) {
	r.Scanned += other.Scanned
	r.Sent += other.Sent
	r.Failed += other.Failed
	r.Skipped += other.Skipped
}

// Recovery periodically redelivers FAILED records within the retry budget and NEW
// records that the direct publisher never completed.
type Recovery struct {
	repo     Repository
	delivery deliverer
	cfg      Config
}

type pageLoader func(ctx context.Context, store Store, page Page) ([]Record, error)

// NewRecovery constructs a Recovery with defaults and optional settings.
func NewRecovery(repo Repository, sink Sink, opts ...Option) *Recovery {
	if repo == nil {
		panic("outbox: nil Repository")
	}
	if sink == nil {
		panic("outbox: nil Sink")
	}

	cfg := newConfig(opts)

	return &Recovery{
		repo:     repo,
		delivery: deliverer{sink: sink, cfg: cfg},
		cfg:      cfg,
	}
}

// Run executes RunOnce immediately and then every RecoveryInterval until ctx is canceled.
func (r *Recovery) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.RecoveryInterval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.cfg.Logger.Warn("outbox recovery failed", "err", err)
		}
		r.recordBacklog(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce sweeps FAILED records with RetryCount <= RetryThreshold, then NEW records
// at least StuckDelay old. A failed redelivery leaves a NEW record NEW with the error
// as its status message, and counts an attempt on a FAILED record. Both sweeps go oldest first, one transaction per page.
func (r *Recovery) RunOnce(ctx context.Context) (RecoveryResult, error) {
	var result RecoveryResult

	failed, failedErr := r.sweep(ctx, SweepFailed, func(ctx context.Context, store Store, page Page) ([]Record, error) {
		return store.FindByStatus(ctx, StatusQuery{
			Status:        StatusFailed,
			MaxRetryCount: r.cfg.RetryThreshold,
			Page:          page,
		})
	})
	result.add(failed)
	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	olderThan := r.cfg.Clock.Now().Add(-r.cfg.StuckDelay)
	stuck, stuckErr := r.sweep(ctx, SweepStuck, func(ctx context.Context, store Store, page Page) ([]Record, error) {
		return store.FindStuckNew(ctx, olderThan, page)
	})
	result.add(stuck)

	return result, errors.Join(failedErr, stuckErr)
}

func (r *Recovery) sweep(ctx context.Context, name string, load pageLoader) (RecoveryResult, error) {
	start := time.Now()
	defer func() {
		r.cfg.Metrics.ObserveSweep(name, time.Since(start))
	}()

	var (
		total  RecoveryResult
		cursor *Cursor
	)
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		var (
			pageResult RecoveryResult
			last       *Cursor
		)
		err := r.repo.InTx(ctx, func(ctx context.Context, store Store) error {
			pageResult = RecoveryResult{}
			records, err := load(ctx, store, Page{Size: r.cfg.PageSize, After: cursor})
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return nil
			}
			next := records[len(records)-1].Cursor()
			last = &next

			for i := range records {
				r.redeliver(ctx, store, records[i], &pageResult)
			}

			return nil
		})
		if err != nil {
			return total, fmt.Errorf("outbox recovery %s sweep: %w", name, err)
		}

		total.add(pageResult)
		r.cfg.Metrics.AddSent(PathRecovery, pageResult.Sent)
		r.cfg.Metrics.AddSendErrors(PathRecovery, pageResult.Failed)
		if last == nil {
			return total, nil
		}
		cursor = last
	}
}

func (r *Recovery) redeliver(ctx context.Context, store Store, record Record, result *RecoveryResult) {
	result.Scanned++
	defer func() {
		if rec := recover(); rec != nil {
			result.Failed++
			r.cfg.Logger.Error("outbox recovery panic", "id", record.ID, "panic", rec)
		}
	}()

	if !r.eligible(record) {
		result.Skipped++

		return
	}

	if err := r.delivery.deliver(ctx, record, PathRecovery); err != nil {
		result.Failed++
		// A stuck NEW record stays NEW; only FAILED records spend the retry budget.
		if record.Status == StatusNew {
			record.StatusMessage = failureMessage(err)
		} else if markErr := record.RecordFailure(failureMessage(err)); markErr != nil {
			r.cfg.Logger.Error("outbox recovery transition failed", "id", record.ID, "err", markErr)

			return
		}
		if saveErr := store.Save(ctx, record); saveErr != nil {
			r.cfg.Logger.Error("outbox recovery save failed", "id", record.ID, "err", saveErr)

			return
		}
		r.cfg.Logger.Debug("outbox redelivery failed", "id", record.ID, "retry_count", record.RetryCount, "err", err)

		return
	}

	if err := record.MarkSent(r.cfg.Clock.Now()); err != nil {
		r.cfg.Logger.Error("outbox recovery transition failed", "id", record.ID, "err", err)

		return
	}
	if err := store.Save(ctx, record); err != nil {
		r.cfg.Logger.Error("outbox recovery save failed", "id", record.ID, "err", err)

		return
	}
	result.Sent++
}

func (r *Recovery) eligible(record Record) bool {
	switch record.Status {
	case StatusFailed:
		return record.RetryCount <= r.cfg.RetryThreshold
	case StatusNew:
		return true
	default:
		return false
	}
}

func (r *Recovery) recordBacklog(ctx context.Context) {
	counter, ok := r.repo.(StatusCounter)
	if !ok || ctx.Err() != nil {
		return
	}

	for _, status := range []Status{StatusNew, StatusFailed} {
		count, err := counter.CountByStatus(ctx, status)
		if err != nil {
			r.cfg.Logger.Warn("outbox backlog count failed", "status", status, "err", err)

			return
		}
		r.cfg.Metrics.SetBacklog(status, count)
	}
}
