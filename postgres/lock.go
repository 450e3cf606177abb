package postgres

import (
	"context"
	"fmt"
)

// TryLock acquires a session-level pg_try_advisory_lock keyed by hashtext(name).
// The connection is held until unlock is called.
func (s *Store) TryLock(ctx context.Context, name string) (func(), bool, error) {
	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, false, fmt.Errorf("outbox postgres: sql db handle failed: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("outbox postgres: lock conn failed: %w", err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock(hashtext($1))", name).Scan(&acquired); err != nil {
		_ = conn.Close()

		return nil, false, fmt.Errorf("outbox postgres: advisory lock failed: %w", err)
	}
	if !acquired {
		_ = conn.Close()

		return nil, false, nil
	}

	unlock := func() {
		var released bool
		err := conn.QueryRowContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock(hashtext($1))", name).Scan(&released)
		if err != nil {
			s.cfg.Logger.Warn("outbox postgres: advisory unlock failed", "lock", name, "error", err)
		}
		if err := conn.Close(); err != nil {
			s.cfg.Logger.Warn("outbox postgres: lock conn close failed", "lock", name, "error", err)
		}
	}

	return unlock, true, nil
}
