package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	mysqldriver "github.com/go-sql-driver/mysql"

	outbox "github.com/velmie/txoutbox"
)

const (
	maxStatusMessageLen = 1024
	errDuplicateEntry   = 1062
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Store implements a MySQL-backed outbox repository.
//
// A Store created by NewStore runs statements directly on the pool. Stores handed
// out by InTx or Tx.Outbox are bound to a transaction and lock the rows they read.
type Store struct {
	db      *sql.DB
	q       querier
	locking bool
	cfg     Config
	queries queries
	table   string
}

var (
	_ outbox.Repository    = (*Store)(nil)
	_ outbox.StatusCounter = (*Store)(nil)
	_ outbox.Locker        = (*Store)(nil)
)

// NewStore constructs a MySQL store with validated configuration.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()
	if cfg.DeleteBatch < 0 {
		return nil, ErrDeleteBatchInvalid
	}

	table, err := sanitizeTableName(cfg.Table)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:      db,
		q:       db,
		cfg:     cfg,
		queries: newQueries(table),
		table:   table,
	}, nil
}

// MustNewStore constructs a MySQL store or panics on error.
func MustNewStore(db *sql.DB, opts ...Option) *Store {
	store, err := NewStore(db, opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// Table returns the sanitized table name.
func (s *Store) Table() string {
	return s.table
}

func (s *Store) bind(tx *sql.Tx) *Store {
	bound := *s
	bound.q = tx
	bound.locking = true

	return &bound
}

// Create inserts a new record. A taken id yields outbox.ErrDuplicateID.
func (s *Store) Create(ctx context.Context, record outbox.Record) error {
	err := s.write(ctx, s.queries.insert, record)
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) && myErr.Number == errDuplicateEntry {
		return fmt.Errorf("%w: %s", outbox.ErrDuplicateID, record.ID)
	}
	if err != nil {
		return fmt.Errorf("outbox mysql: insert failed: %w", err)
	}

	return nil
}

// Save inserts the record or updates its status, retry count, status message and sent time.
func (s *Store) Save(ctx context.Context, record outbox.Record) error {
	if err := s.write(ctx, s.queries.upsert, record); err != nil {
		return fmt.Errorf("outbox mysql: save failed: %w", err)
	}

	return nil
}

func (s *Store) write(ctx context.Context, query string, record outbox.Record) error {
	if record.ID.IsZero() {
		return outbox.ErrInvalidID
	}
	if !record.Status.IsValid() {
		return fmt.Errorf("%w: %q", outbox.ErrInvalidStatus, record.Status)
	}

	_, err := s.q.ExecContext(
		ctx,
		query,
		record.ID.Bytes(),
		record.Source,
		record.SourceID,
		record.Channel,
		record.Payload,
		record.PayloadType,
		record.Status.String(),
		record.RetryCount,
		nullString(truncateMessage(record.StatusMessage)),
		record.CreatedAt,
		nullTime(record.SentAt),
	)

	return err
}

// FindByID returns the record or outbox.ErrNotFound.
func (s *Store) FindByID(ctx context.Context, id outbox.ID) (outbox.Record, error) {
	return s.selectOne(ctx, s.queries.selectByID, id)
}

// LockByID returns the record holding its row lock until the transaction ends.
// Outside a transaction it behaves like FindByID.
func (s *Store) LockByID(ctx context.Context, id outbox.ID) (outbox.Record, error) {
	query := s.queries.selectByID
	if s.locking {
		query += lockRow
	}

	return s.selectOne(ctx, query, id)
}

func (s *Store) selectOne(ctx context.Context, query string, id outbox.ID) (outbox.Record, error) {
	record, err := scanRecord(s.q.QueryRowContext(ctx, query, id.Bytes()))
	if errors.Is(err, sql.ErrNoRows) {
		return outbox.Record{}, fmt.Errorf("%w: %s", outbox.ErrNotFound, id)
	}
	if err != nil {
		return outbox.Record{}, fmt.Errorf("outbox mysql: select failed: %w", err)
	}

	return record, nil
}

// FindByStatus returns one page of records in the status with retry_count <= MaxRetryCount.
func (s *Store) FindByStatus(ctx context.Context, query outbox.StatusQuery) ([]outbox.Record, error) {
	if err := outbox.ValidatePage(query.Page); err != nil {
		return nil, err
	}
	maxRetry := query.MaxRetryCount
	if maxRetry < 0 {
		maxRetry = math.MaxInt32
	}

	args := []any{query.Status.String(), maxRetry}
	sqlText := s.queries.byStatus
	if after := query.Page.After; after != nil {
		sqlText = s.queries.byStatusAfter
		args = append(args, after.CreatedAt, after.CreatedAt, after.ID.Bytes())
	}
	args = append(args, query.Page.Size)

	return s.selectPage(ctx, sqlText, args)
}

// FindStuckNew returns one page of NEW records created at or before olderThan.
func (s *Store) FindStuckNew(ctx context.Context, olderThan time.Time, page outbox.Page) ([]outbox.Record, error) {
	if err := outbox.ValidatePage(page); err != nil {
		return nil, err
	}

	args := []any{outbox.StatusNew.String(), olderThan}
	sqlText := s.queries.stuck
	if page.After != nil {
		sqlText = s.queries.stuckAfter
		args = append(args, page.After.CreatedAt, page.After.CreatedAt, page.After.ID.Bytes())
	}
	args = append(args, page.Size)

	return s.selectPage(ctx, sqlText, args)
}

func (s *Store) selectPage(ctx context.Context, query string, args []any) ([]outbox.Record, error) {
	if s.locking {
		query += skipLocked
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("outbox mysql: page query failed: %w", err)
	}
	defer rows.Close()

	records := make([]outbox.Record, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("outbox mysql: scan failed: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox mysql: rows failed: %w", err)
	}

	return records, nil
}

// DeleteOlderThan removes records created before the cutoff in chunks of DeleteBatch rows.
func (s *Store) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for {
		res, err := s.q.ExecContext(ctx, s.queries.deleteOlder, before, s.cfg.DeleteBatch)
		if err != nil {
			return total, fmt.Errorf("outbox mysql: delete failed: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("outbox mysql: rows affected failed: %w", err)
		}
		total += affected
		if affected < int64(s.cfg.DeleteBatch) {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

// CountByStatus returns the number of records in the status.
func (s *Store) CountByStatus(ctx context.Context, status outbox.Status) (int, error) {
	var count int
	if err := s.q.QueryRowContext(ctx, s.queries.countByStatus, status.String()).Scan(&count); err != nil {
		return 0, fmt.Errorf("outbox mysql: count failed: %w", err)
	}

	return count, nil
}

// InTx runs fn in a new READ COMMITTED transaction with a Store bound to it.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, store outbox.Store) error) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("outbox mysql: begin tx failed: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(ctx, s.bind(tx)); err != nil {
		return rollback(tx, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("outbox mysql: commit failed: %w", err)
	}

	return nil
}

func rollback(tx *sql.Tx, cause error) error {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return errors.Join(cause, fmt.Errorf("outbox mysql: rollback failed: %w", err))
	}

	return cause
}

func scanRecord(row rowScanner) (outbox.Record, error) {
	var (
		record  outbox.Record
		status  string
		message sql.NullString
		sentAt  sql.NullTime
	)
	err := row.Scan(
		&record.ID,
		&record.Source,
		&record.SourceID,
		&record.Channel,
		&record.Payload,
		&record.PayloadType,
		&status,
		&record.RetryCount,
		&message,
		&record.CreatedAt,
		&sentAt,
	)
	if err != nil {
		return outbox.Record{}, err
	}

	parsed, err := outbox.ParseStatus(status)
	if err != nil {
		return outbox.Record{}, err
	}
	record.Status = parsed
	record.StatusMessage = message.String
	record.CreatedAt = record.CreatedAt.UTC()
	if sentAt.Valid {
		t := sentAt.Time.UTC()
		record.SentAt = &t
	}

	return record, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: *t, Valid: true}
}

func truncateMessage(msg string) string {
	if utf8.RuneCountInString(msg) <= maxStatusMessageLen {
		return msg
	}

	return string([]rune(msg)[:maxStatusMessageLen])
}
