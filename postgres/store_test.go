package postgres

import (
	"errors"
	"strings"
	"testing"
	"time"

	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	outbox "github.com/velmie/txoutbox"
)

func newDryRunStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(gormpostgres.New(gormpostgres.Config{
		DSN: "host=localhost user=outbox dbname=outbox sslmode=disable",
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	if err != nil {
		t.Fatalf("open dry run db: %v", err)
	}

	store, err := NewStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	return store
}

func TestStatusPageSQL(t *testing.T) {
	store := newDryRunStore(t)
	cursor := outbox.Cursor{CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	query := outbox.StatusQuery{
		Status:        outbox.StatusFailed,
		MaxRetryCount: 3,
		Page:          outbox.Page{Size: 20, After: &cursor},
	}

	unlocked := store.db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return store.statusPage(tx.Table(store.table), query).Find(&[]message{})
	})
	for _, fragment := range []string{
		"FROM \"outbox_message\"",
		"status = 'FAILED' AND retry_count <= 3",
		"(created_at, id) >",
		"ORDER BY created_at ASC, id ASC",
		"LIMIT 20",
	} {
		if !strings.Contains(unlocked, fragment) {
			t.Fatalf("expected %q in %s", fragment, unlocked)
		}
	}
	if strings.Contains(unlocked, "FOR UPDATE") {
		t.Fatalf("unbound store must not lock rows: %s", unlocked)
	}

	bound := store.bind(store.db)
	locked := bound.db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return bound.stuckPage(tx.Table(bound.table), cursor.CreatedAt, outbox.Page{Size: 5}).Find(&[]message{})
	})
	if !strings.Contains(locked, "FOR UPDATE SKIP LOCKED") {
		t.Fatalf("bound store must skip locked rows: %s", locked)
	}
	if !strings.Contains(locked, "status = 'NEW' AND created_at <= ") {
		t.Fatalf("unexpected stuck predicate: %s", locked)
	}
}

func TestUnboundedRetryCount(t *testing.T) {
	store := newDryRunStore(t)
	query := outbox.StatusQuery{Status: outbox.StatusFailed, MaxRetryCount: -1, Page: outbox.Page{Size: 1}}

	sql := store.db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return store.statusPage(tx.Table(store.table), query).Find(&[]message{})
	})
	if !strings.Contains(sql, "retry_count <= 2147483647") {
		t.Fatalf("expected unbounded retry count: %s", sql)
	}
}

func TestCreateSQLNeverUpdates(t *testing.T) {
	store := newDryRunStore(t)
	id, err := outbox.NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	m := toModel(outbox.Record{ID: id, Status: outbox.StatusNew, CreatedAt: time.Now().UTC()})

	sql := store.db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return insertNew(tx.Table(store.table), &m)
	})
	if !strings.Contains(sql, `ON CONFLICT ("id") DO NOTHING`) {
		t.Fatalf("insert must ignore existing ids: %s", sql)
	}
	if strings.Contains(sql, "DO UPDATE") {
		t.Fatalf("insert must not update existing rows: %s", sql)
	}
}

func TestModelRoundTrip(t *testing.T) {
	id, err := outbox.NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	sentAt := time.Date(2025, 6, 1, 12, 0, 1, 0, time.UTC)
	record := outbox.Record{
		ID:            id,
		Source:        "order",
		SourceID:      "o-1",
		Channel:       "orders",
		Payload:       []byte(`{"id":"o-1"}`),
		PayloadType:   "order.placed",
		Status:        outbox.StatusSent,
		CreatedAt:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		SentAt:        &sentAt,
		RetryCount:    2,
		StatusMessage: strings.Repeat("x", maxStatusMessageLen+5),
	}

	got, err := toModel(record).record()
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if got.ID != record.ID || got.Status != outbox.StatusSent || got.RetryCount != 2 {
		t.Fatalf("unexpected record: %+v", got)
	}
	if len(got.StatusMessage) != maxStatusMessageLen {
		t.Fatalf("expected truncated status message, got %d chars", len(got.StatusMessage))
	}
	if got.SentAt == nil || !got.SentAt.Equal(sentAt) {
		t.Fatalf("unexpected sent at: %v", got.SentAt)
	}

	if _, err := (message{Status: "DONE"}).record(); !errors.Is(err, outbox.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestNewStoreValidation(t *testing.T) {
	if _, err := NewStore(nil); !errors.Is(err, ErrDBRequired) {
		t.Fatalf("expected ErrDBRequired, got %v", err)
	}

	store := newDryRunStore(t)
	if _, err := NewStore(store.db, WithTable("outbox;drop")); !errors.Is(err, ErrInvalidTableName) {
		t.Fatalf("expected ErrInvalidTableName, got %v", err)
	}
}
