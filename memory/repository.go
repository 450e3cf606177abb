package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	outbox "github.com/velmie/txoutbox"
)

// ErrTxDone is returned when a finished transaction is committed again.
var ErrTxDone = errors.New("outbox memory: transaction already finished")

// Repository is an in-memory outbox.Repository.
type Repository struct {
	mu      sync.Mutex
	records map[outbox.ID]outbox.Record
	locks   map[string]struct{}

	// txMu serializes InTx transactions, standing in for row locks.
	txMu   sync.Mutex
	logger outbox.Logger
}

var (
	_ outbox.Repository    = (*Repository)(nil)
	_ outbox.StatusCounter = (*Repository)(nil)
	_ outbox.Locker        = (*Repository)(nil)
)

// Option configures the repository.
type Option func(*Repository)

// WithLogger sets the logger used for after-commit hook failures.
func WithLogger(logger outbox.Logger) Option {
	return func(r *Repository) {
		r.logger = logger
	}
}

// NewRepository constructs an empty repository.
func NewRepository(opts ...Option) *Repository {
	r := &Repository{
		records: make(map[outbox.ID]outbox.Record),
		locks:   make(map[string]struct{}),
		logger:  outbox.NopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Create implements outbox.Store.
func (r *Repository) Create(_ context.Context, record outbox.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[record.ID]; ok {
		return fmt.Errorf("%w: %s", outbox.ErrDuplicateID, record.ID)
	}
	r.records[record.ID] = record.Clone()

	return nil
}

// Save implements outbox.Store.
func (r *Repository) Save(_ context.Context, record outbox.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[record.ID] = record.Clone()

	return nil
}

// FindByID implements outbox.Store.
func (r *Repository) FindByID(_ context.Context, id outbox.ID) (outbox.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return outbox.Record{}, outbox.ErrNotFound
	}

	return record.Clone(), nil
}

// LockByID implements outbox.Store. Outside a transaction it is FindByID.
func (r *Repository) LockByID(ctx context.Context, id outbox.ID) (outbox.Record, error) {
	return r.FindByID(ctx, id)
}

// FindByStatus implements outbox.Store.
func (r *Repository) FindByStatus(_ context.Context, query outbox.StatusQuery) ([]outbox.Record, error) {
	if err := outbox.ValidatePage(query.Page); err != nil {
		return nil, err
	}

	return selectPage(r.snapshot(), query.Page, matchStatus(query)), nil
}

// FindStuckNew implements outbox.Store.
func (r *Repository) FindStuckNew(_ context.Context, olderThan time.Time, page outbox.Page) ([]outbox.Record, error) {
	if err := outbox.ValidatePage(page); err != nil {
		return nil, err
	}

	return selectPage(r.snapshot(), page, matchStuck(olderThan)), nil
}

// DeleteOlderThan implements outbox.Store.
func (r *Repository) DeleteOlderThan(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, record := range r.records {
		if record.CreatedAt.Before(before) {
			delete(r.records, id)
			deleted++
		}
	}

	return deleted, nil
}

// CountByStatus implements outbox.StatusCounter.
func (r *Repository) CountByStatus(_ context.Context, status outbox.Status) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int
	for _, record := range r.records {
		if record.Status == status {
			count++
		}
	}

	return count, nil
}

// TryLock implements outbox.Locker.
func (r *Repository) TryLock(_ context.Context, name string) (func(), bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, held := r.locks[name]; held {
		return nil, false, nil
	}
	r.locks[name] = struct{}{}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.locks, name)
			r.mu.Unlock()
		})
	}

	return unlock, true, nil
}

// InTx implements outbox.Transactor.
func (r *Repository) InTx(ctx context.Context, fn func(ctx context.Context, store outbox.Store) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	store := newTxStore(r)
	if err := fn(ctx, store); err != nil {
		return err
	}
	r.apply(store)

	return nil
}

// Records returns every stored record ordered by creation time.
func (r *Repository) Records() []outbox.Record {
	records := r.snapshot()
	sortRecords(records)

	return records
}

func (r *Repository) snapshot() []outbox.Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]outbox.Record, 0, len(r.records))
	for _, record := range r.records {
		out = append(out, record.Clone())
	}

	return out
}

func (r *Repository) apply(store *txStore) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range store.deleted {
		delete(r.records, id)
	}
	for id, record := range store.writes {
		r.records[id] = record
	}
}

func matchStatus(query outbox.StatusQuery) func(outbox.Record) bool {
	return func(record outbox.Record) bool {
		if record.Status != query.Status {
			return false
		}

		return query.MaxRetryCount < 0 || record.RetryCount <= query.MaxRetryCount
	}
}

func matchStuck(olderThan time.Time) func(outbox.Record) bool {
	return func(record outbox.Record) bool {
		return record.Status == outbox.StatusNew && !record.CreatedAt.After(olderThan)
	}
}

func selectPage(records []outbox.Record, page outbox.Page, match func(outbox.Record) bool) []outbox.Record {
	sortRecords(records)

	out := make([]outbox.Record, 0, page.Size)
	for _, record := range records {
		if page.After != nil && !page.After.Precedes(record) {
			continue
		}
		if !match(record) {
			continue
		}
		out = append(out, record)
		if len(out) == page.Size {
			break
		}
	}

	return out
}

func sortRecords(records []outbox.Record) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID.Compare(records[j].ID) < 0
		}

		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}
