package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"gorm.io/gorm"

	outbox "github.com/velmie/txoutbox"
)

// Tx is a GORM business transaction that runs outbox commit hooks. It implements outbox.Tx.
type Tx struct {
	outbox.CommitHooks

	db    *gorm.DB
	store *Store

	mu   sync.Mutex
	done bool
}

var _ outbox.Tx = (*Tx)(nil)

// Begin starts a business transaction. Nil opts use READ COMMITTED.
func (s *Store) Begin(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	if opts == nil {
		opts = &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	}
	db := s.db.WithContext(ctx).Begin(opts)
	if db.Error != nil {
		return nil, fmt.Errorf("outbox postgres: begin tx failed: %w", db.Error)
	}

	return &Tx{db: db, store: s.bind(db)}, nil
}

// Transaction runs fn in a business transaction and commits when fn returns nil.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	tx, err := s.Begin(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()

		return err
	}

	return tx.Commit(ctx)
}

// DB returns the GORM handle bound to the transaction for business writes.
func (t *Tx) DB() *gorm.DB {
	return t.db
}

// Outbox implements outbox.Tx.
func (t *Tx) Outbox() outbox.Store {
	return t.store
}

// Commit runs before-commit hooks, commits, then runs after-commit hooks.
func (t *Tx) Commit(ctx context.Context) error {
	if !t.finish() {
		return ErrTxDone
	}

	if err := t.RunBeforeCommit(ctx); err != nil {
		t.Reset()
		_ = t.db.Rollback()

		return err
	}
	if err := t.db.Commit().Error; err != nil {
		t.Reset()

		return fmt.Errorf("outbox postgres: commit failed: %w", err)
	}
	t.RunAfterCommit(ctx, t.store.cfg.Logger)

	return nil
}

// Rollback aborts the transaction and drops every registered hook.
func (t *Tx) Rollback() error {
	if !t.finish() {
		return ErrTxDone
	}
	t.Reset()

	if err := t.db.Rollback().Error; err != nil {
		return fmt.Errorf("outbox postgres: rollback failed: %w", err)
	}

	return nil
}

func (t *Tx) finish() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return false
	}
	t.done = true

	return true
}
