package mysql

import (
	"context"
	"database/sql"
	"fmt"
)

// TryLock acquires a GET_LOCK advisory lock on a dedicated connection without waiting.
// The connection is held until unlock is called.
func (s *Store) TryLock(ctx context.Context, name string) (func(), bool, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("outbox mysql: lock conn failed: %w", err)
	}

	var acquired sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", name).Scan(&acquired); err != nil {
		_ = conn.Close()

		return nil, false, fmt.Errorf("outbox mysql: get lock failed: %w", err)
	}
	if !acquired.Valid || acquired.Int64 != 1 {
		_ = conn.Close()

		return nil, false, nil
	}

	unlock := func() {
		releaseCtx := context.WithoutCancel(ctx)
		var released sql.NullInt64
		if err := conn.QueryRowContext(releaseCtx, "SELECT RELEASE_LOCK(?)", name).Scan(&released); err != nil {
			s.cfg.Logger.Warn("outbox mysql: release lock failed", "lock", name, "error", err)
		}
		if err := conn.Close(); err != nil {
			s.cfg.Logger.Warn("outbox mysql: lock conn close failed", "lock", name, "error", err)
		}
	}

	return unlock, true, nil
}
