package outbox

import (
	"context"
	"errors"
	"time"
)

// Maintenance runs recovery followed by retention as one scheduled job.
// Embedders can run it in place of separate Recovery and Retention workers;
// outbox-relay does so when retention.combined is set.
type Maintenance struct {
	recovery  *Recovery
	retention *Retention
	cfg       Config
}

// MaintenanceResult summarizes one maintenance cycle.
type MaintenanceResult struct {
	Recovery RecoveryResult
	Purged   int64
}

// NewMaintenance combines a Recovery and a Retention. The cycle interval is RecoveryInterval.
func NewMaintenance(recovery *Recovery, retention *Retention, opts ...Option) *Maintenance {
	if recovery == nil {
		panic("outbox: nil Recovery")
	}
	if retention == nil {
		panic("outbox: nil Retention")
	}

	return &Maintenance{recovery: recovery, retention: retention, cfg: newConfig(opts)}
}

// RunOnce redelivers what recovery selects, then purges expired records.
// A recovery error does not prevent the purge.
func (m *Maintenance) RunOnce(ctx context.Context) (MaintenanceResult, error) {
	var result MaintenanceResult

	recovered, recoveryErr := m.recovery.RunOnce(ctx)
	result.Recovery = recovered
	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	purged, purgeErr := m.retention.Purge(ctx)
	result.Purged = purged

	return result, errors.Join(recoveryErr, purgeErr)
}

// Run executes RunOnce on every tick until ctx is canceled.
func (m *Maintenance) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.RecoveryInterval)
	defer ticker.Stop()

	for {
		result, err := m.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			m.cfg.Logger.Warn("outbox maintenance failed", "err", err)
		}
		if result.Recovery.Scanned > 0 || result.Purged > 0 {
			m.cfg.Logger.Info("outbox maintenance done",
				"scanned", result.Recovery.Scanned,
				"sent", result.Recovery.Sent,
				"failed", result.Recovery.Failed,
				"purged", result.Purged,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
