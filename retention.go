package outbox

import (
	"context"
	"fmt"
	"time"
)

// Retention removes records older than the configured lifetime, whatever their status.
type Retention struct {
	store Store
	cfg   Config
}

// NewRetention constructs a Retention with defaults and optional settings.
func NewRetention(store Store, opts ...Option) *Retention {
	if store == nil {
		panic("outbox: nil Store")
	}

	return &Retention{store: store, cfg: newConfig(opts)}
}

// Purge removes records older than the configured Lifetime.
func (r *Retention) Purge(ctx context.Context) (int64, error) {
	return r.PurgeOlderThan(ctx, r.cfg.Lifetime)
}

// PurgeOlderThan removes records created before now-age. When the store implements
// Locker only one instance purges at a time, the others return 0.
func (r *Retention) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	if age <= 0 {
		return 0, ErrInvalidRetention
	}

	if locker, ok := r.store.(Locker); ok {
		unlock, acquired, err := locker.TryLock(ctx, r.cfg.LockName)
		if err != nil {
			return 0, fmt.Errorf("outbox retention lock failed: %w", err)
		}
		if !acquired {
			r.cfg.Logger.Debug("outbox retention lock held by another instance", "lock", r.cfg.LockName)

			return 0, nil
		}
		defer unlock()
	}

	before := r.cfg.Clock.Now().Add(-age)
	deleted, err := r.store.DeleteOlderThan(ctx, before)
	if err != nil {
		return deleted, fmt.Errorf("outbox retention delete failed: %w", err)
	}
	r.cfg.Metrics.AddPurged(deleted)
	if deleted > 0 {
		r.cfg.Logger.Info("outbox retention purged records", "count", deleted, "before", before)
	}

	return deleted, nil
}

// Run purges immediately and then every RetentionInterval until ctx is canceled.
func (r *Retention) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.RetentionInterval)
	defer ticker.Stop()

	for {
		if _, err := r.Purge(ctx); err != nil && ctx.Err() == nil {
			r.cfg.Logger.Warn("outbox retention failed", "err", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
