package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	outbox "github.com/velmie/txoutbox"
)

// Store implements a PostgreSQL-backed outbox repository on GORM.
type Store struct {
	db      *gorm.DB
	locking bool
	cfg     Config
	table   string
}

var (
	_ outbox.Repository    = (*Store)(nil)
	_ outbox.StatusCounter = (*Store)(nil)
	_ outbox.Locker        = (*Store)(nil)
)

// NewStore constructs a PostgreSQL store.
func NewStore(db *gorm.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	table, err := sanitizeTableName(cfg.Table)
	if err != nil {
		return nil, err
	}

	return &Store{db: db, cfg: cfg, table: table}, nil
}

func (s *Store) bind(tx *gorm.DB) *Store {
	bound := *s
	bound.db = tx
	bound.locking = true

	return &bound
}

func (s *Store) scoped(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table(s.table)
}

// Create inserts a new record. A taken id yields outbox.ErrDuplicateID.
func (s *Store) Create(ctx context.Context, record outbox.Record) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	m := toModel(record)
	res := insertNew(s.scoped(ctx), &m)
	if res.Error != nil {
		return fmt.Errorf("outbox postgres: insert failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", outbox.ErrDuplicateID, record.ID)
	}

	return nil
}

// Save inserts the record or updates its status, retry count, status message and sent time.
func (s *Store) Save(ctx context.Context, record outbox.Record) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	m := toModel(record)
	err := s.scoped(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "retry_count", "status_message", "sent_at"}),
	}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("outbox postgres: save failed: %w", err)
	}

	return nil
}

// FindByID returns the record or outbox.ErrNotFound.
func (s *Store) FindByID(ctx context.Context, id outbox.ID) (outbox.Record, error) {
	return s.take(s.scoped(ctx), id)
}

// LockByID returns the record holding its row lock until the transaction ends.
func (s *Store) LockByID(ctx context.Context, id outbox.ID) (outbox.Record, error) {
	db := s.scoped(ctx)
	if s.locking {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	return s.take(db, id)
}

func insertNew(db *gorm.DB, m *message) *gorm.DB {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(m)
}

func validateRecord(record outbox.Record) error {
	if record.ID.IsZero() {
		return outbox.ErrInvalidID
	}
	if !record.Status.IsValid() {
		return fmt.Errorf("%w: %q", outbox.ErrInvalidStatus, record.Status)
	}

	return nil
}

func (s *Store) take(db *gorm.DB, id outbox.ID) (outbox.Record, error) {
	var m message
	err := db.Where("id = ?", id.UUID()).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return outbox.Record{}, fmt.Errorf("%w: %s", outbox.ErrNotFound, id)
	}
	if err != nil {
		return outbox.Record{}, fmt.Errorf("outbox postgres: select failed: %w", err)
	}

	return m.record()
}

// FindByStatus returns one page of records in the status with retry_count <= MaxRetryCount.
func (s *Store) FindByStatus(ctx context.Context, query outbox.StatusQuery) ([]outbox.Record, error) {
	if err := outbox.ValidatePage(query.Page); err != nil {
		return nil, err
	}

	return s.find(s.statusPage(s.scoped(ctx), query))
}

// FindStuckNew returns one page of NEW records created at or before olderThan.
func (s *Store) FindStuckNew(ctx context.Context, olderThan time.Time, page outbox.Page) ([]outbox.Record, error) {
	if err := outbox.ValidatePage(page); err != nil {
		return nil, err
	}

	return s.find(s.stuckPage(s.scoped(ctx), olderThan, page))
}

func (s *Store) statusPage(db *gorm.DB, query outbox.StatusQuery) *gorm.DB {
	maxRetry := query.MaxRetryCount
	if maxRetry < 0 {
		maxRetry = math.MaxInt32
	}

	db = db.Where("status = ? AND retry_count <= ?", query.Status.String(), maxRetry)

	return s.keyset(db, query.Page)
}

func (s *Store) stuckPage(db *gorm.DB, olderThan time.Time, page outbox.Page) *gorm.DB {
	db = db.Where("status = ? AND created_at <= ?", outbox.StatusNew.String(), olderThan)

	return s.keyset(db, page)
}

func (s *Store) keyset(db *gorm.DB, page outbox.Page) *gorm.DB {
	if page.After != nil {
		db = db.Where("(created_at, id) > (?, ?)", page.After.CreatedAt, page.After.ID.UUID())
	}
	db = db.Order("created_at ASC, id ASC").Limit(page.Size)
	if s.locking {
		db = db.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}

	return db
}

func (s *Store) find(db *gorm.DB) ([]outbox.Record, error) {
	var models []message
	if err := db.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("outbox postgres: page query failed: %w", err)
	}

	return toRecords(models)
}

// DeleteOlderThan removes records created before the cutoff in chunks of DeleteBatch rows.
func (s *Store) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	query := fmt.Sprintf(
		"DELETE FROM %[1]s WHERE id IN (SELECT id FROM %[1]s WHERE created_at < ? ORDER BY created_at ASC LIMIT ?)",
		s.table,
	)

	var total int64
	for {
		res := s.db.WithContext(ctx).Exec(query, before, s.cfg.DeleteBatch)
		if res.Error != nil {
			return total, fmt.Errorf("outbox postgres: delete failed: %w", res.Error)
		}
		total += res.RowsAffected
		if res.RowsAffected < int64(s.cfg.DeleteBatch) {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

// CountByStatus returns the number of records in the status.
func (s *Store) CountByStatus(ctx context.Context, status outbox.Status) (int, error) {
	var count int64
	if err := s.scoped(ctx).Where("status = ?", status.String()).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("outbox postgres: count failed: %w", err)
	}

	return int(count), nil
}

// InTx runs fn in a new READ COMMITTED transaction with a Store bound to it.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, store outbox.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, s.bind(tx))
	}, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
}
