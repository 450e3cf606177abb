package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	outbox "github.com/velmie/txoutbox"
)

// Tx is a business transaction that runs outbox commit hooks. It implements outbox.Tx.
//
// Business statements go through ExecContext, QueryContext and QueryRowContext so
// they share the transaction with the outbox record.
type Tx struct {
	outbox.CommitHooks

	tx    *sql.Tx
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
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("outbox mysql: begin tx failed: %w", err)
	}

	return &Tx{tx: tx, store: s.bind(tx)}, nil
}

// Transaction runs fn in a business transaction and commits when fn returns nil.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) (err error) {
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
		if rbErr := tx.Rollback(); rbErr != nil {
			return rollbackErr(err, rbErr)
		}

		return err
	}

	return tx.Commit(ctx)
}

// Outbox implements outbox.Tx.
func (t *Tx) Outbox() outbox.Store {
	return t.store
}

// ExecContext executes a statement inside the transaction.
func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

// QueryContext runs a query inside the transaction.
func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query inside the transaction.
func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

// Commit runs before-commit hooks, commits, then runs after-commit hooks.
// A failing hook or commit rolls back and discards the after-commit hooks.
func (t *Tx) Commit(ctx context.Context) error {
	if !t.finish() {
		return ErrTxDone
	}

	if err := t.RunBeforeCommit(ctx); err != nil {
		t.Reset()
		if rbErr := t.tx.Rollback(); rbErr != nil {
			return rollbackErr(err, rbErr)
		}

		return err
	}
	if err := t.tx.Commit(); err != nil {
		t.Reset()

		return fmt.Errorf("outbox mysql: commit failed: %w", err)
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

	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("outbox mysql: rollback failed: %w", err)
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

func rollbackErr(cause, rbErr error) error {
	return fmt.Errorf("%w (rollback: %v)", cause, rbErr)
}
