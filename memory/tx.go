package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	outbox "github.com/velmie/txoutbox"
)

// Tx is a business transaction over the repository. It implements outbox.Tx.
type Tx struct {
	outbox.CommitHooks

	repo  *Repository
	store *txStore

	mu   sync.Mutex
	done bool
}

var _ outbox.Tx = (*Tx)(nil)

// Begin starts a business transaction.
func (r *Repository) Begin() *Tx {
	return &Tx{repo: r, store: newTxStore(r)}
}

// Transaction runs fn in a business transaction. It commits when fn returns nil.
func (r *Repository) Transaction(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	tx := r.Begin()
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()

		return err
	}

	return tx.Commit(ctx)
}

// Outbox implements outbox.Tx.
func (t *Tx) Outbox() outbox.Store {
	return t.store
}

// Commit runs before-commit hooks, applies the writes, then runs after-commit hooks.
// A failing before-commit hook rolls the transaction back.
func (t *Tx) Commit(ctx context.Context) error {
	if !t.finish() {
		return ErrTxDone
	}

	if err := t.RunBeforeCommit(ctx); err != nil {
		t.Reset()

		return err
	}
	t.repo.apply(t.store)
	t.RunAfterCommit(ctx, t.repo.logger)

	return nil
}

// Rollback discards the writes and every registered hook.
func (t *Tx) Rollback() error {
	if !t.finish() {
		return ErrTxDone
	}
	t.Reset()

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

// txStore buffers writes until the transaction commits. Reads see the buffered writes.
type txStore struct {
	repo *Repository

	mu      sync.Mutex
	writes  map[outbox.ID]outbox.Record
	deleted map[outbox.ID]struct{}
}

func newTxStore(repo *Repository) *txStore {
	return &txStore{
		repo:    repo,
		writes:  make(map[outbox.ID]outbox.Record),
		deleted: make(map[outbox.ID]struct{}),
	}
}

func (s *txStore) Create(ctx context.Context, record outbox.Record) error {
	if _, err := s.FindByID(ctx, record.ID); err == nil {
		return fmt.Errorf("%w: %s", outbox.ErrDuplicateID, record.ID)
	}

	return s.Save(ctx, record)
}

func (s *txStore) Save(_ context.Context, record outbox.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.deleted, record.ID)
	s.writes[record.ID] = record.Clone()

	return nil
}

func (s *txStore) FindByID(_ context.Context, id outbox.ID) (outbox.Record, error) {
	for _, record := range s.view() {
		if record.ID == id {
			return record, nil
		}
	}

	return outbox.Record{}, outbox.ErrNotFound
}

func (s *txStore) LockByID(ctx context.Context, id outbox.ID) (outbox.Record, error) {
	return s.FindByID(ctx, id)
}

func (s *txStore) FindByStatus(_ context.Context, query outbox.StatusQuery) ([]outbox.Record, error) {
	if err := outbox.ValidatePage(query.Page); err != nil {
		return nil, err
	}

	return selectPage(s.view(), query.Page, matchStatus(query)), nil
}

func (s *txStore) FindStuckNew(_ context.Context, olderThan time.Time, page outbox.Page) ([]outbox.Record, error) {
	if err := outbox.ValidatePage(page); err != nil {
		return nil, err
	}

	return selectPage(s.view(), page, matchStuck(olderThan)), nil
}

func (s *txStore) DeleteOlderThan(_ context.Context, before time.Time) (int64, error) {
	records := s.view()

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for _, record := range records {
		if record.CreatedAt.Before(before) {
			delete(s.writes, record.ID)
			s.deleted[record.ID] = struct{}{}
			deleted++
		}
	}

	return deleted, nil
}

func (s *txStore) view() []outbox.Record {
	committed := s.repo.snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]outbox.Record, 0, len(committed)+len(s.writes))
	for _, record := range committed {
		if _, gone := s.deleted[record.ID]; gone {
			continue
		}
		if _, shadowed := s.writes[record.ID]; shadowed {
			continue
		}
		out = append(out, record)
	}
	for _, record := range s.writes {
		out = append(out, record.Clone())
	}

	return out
}
