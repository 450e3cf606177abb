package outbox

import (
	"context"
	"time"
)

// Cursor is a keyset position in (CreatedAt, ID) order.
type Cursor struct {
	CreatedAt time.Time
	ID        ID
}

// Precedes reports whether the cursor sorts strictly before the record.
func (c Cursor) Precedes(r Record) bool {
	if r.CreatedAt.Equal(c.CreatedAt) {
		return c.ID.Compare(r.ID) < 0
	}

	return c.CreatedAt.Before(r.CreatedAt)
}

// Page selects a slice of records ordered by CreatedAt ascending.
type Page struct {
	// Size is the maximum number of records returned.
	Size int
	// After continues from the last record of the previous page, nil starts from the oldest.
	After *Cursor
}

// StatusQuery selects records in a status with a retry count bound.
type StatusQuery struct {
	Status Status
	// MaxRetryCount is inclusive. A negative value disables the bound.
	MaxRetryCount int
	Page          Page
}

// Store persists outbox records.
//
// Stores bound to a transaction lock the rows they return from LockByID,
// FindByStatus and FindStuckNew until the transaction ends. Page queries skip rows
// locked by other transactions.
type Store interface {
	// Create inserts a new record. It returns ErrDuplicateID when the id is taken and
	// never modifies an existing record.
	Create(ctx context.Context, record Record) error
	// Save inserts the record or updates its mutable fields.
	Save(ctx context.Context, record Record) error
	// FindByID returns the record or ErrNotFound.
	FindByID(ctx context.Context, id ID) (Record, error)
	// LockByID returns the record and holds its row lock, or ErrNotFound.
	LockByID(ctx context.Context, id ID) (Record, error)
	// FindByStatus returns records matching the query, oldest first.
	FindByStatus(ctx context.Context, query StatusQuery) ([]Record, error)
	// FindStuckNew returns NEW records created at or before olderThan, oldest first.
	FindStuckNew(ctx context.Context, olderThan time.Time, page Page) ([]Record, error)
	// DeleteOlderThan removes every record created before the cutoff and returns the count.
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// Transactor runs work in a new transaction independent of any caller transaction.
type Transactor interface {
	// InTx commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

// Repository is a Store that can open its own transactions.
type Repository interface {
	Store
	Transactor
}

// StatusCounter reports the number of records per status.
type StatusCounter interface {
	// CountByStatus returns the current number of records in the status.
	CountByStatus(ctx context.Context, status Status) (int, error)
}

// Locker provides a named lock shared by every instance using the same storage.
type Locker interface {
	// TryLock acquires the lock without waiting. When ok is false the lock is held elsewhere.
	TryLock(ctx context.Context, name string) (unlock func(), ok bool, err error)
}

// ValidatePage checks that the page size is positive.
func ValidatePage(page Page) error {
	if page.Size <= 0 {
		return ErrInvalidPageSize
	}

	return nil
}
