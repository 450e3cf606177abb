package outbox_test

import (
	"context"
	"errors"
	"testing"
	"time"

	outbox "github.com/velmie/txoutbox"
	"github.com/velmie/txoutbox/memory"
)

func TestAdminMarkFailedUnknownID(t *testing.T) {
	admin := outbox.NewAdmin(memory.NewRepository())

	if err := admin.MarkFailed(context.Background(), "missing-id", "x"); !errors.Is(err, outbox.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unparsable id, got %v", err)
	}

	id, err := outbox.NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if err := admin.MarkFailed(context.Background(), id.String(), "x"); !errors.Is(err, outbox.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestAdminMarkFailedBlankIDIsNoop(t *testing.T) {
	repo := newSpyRepository()
	admin := outbox.NewAdmin(repo)

	for _, id := range []string{"", "   "} {
		if err := admin.MarkFailed(context.Background(), id, "x"); err != nil {
			t.Fatalf("expected no-op for %q, got %v", id, err)
		}
	}
	if calls := repo.calls.Load(); calls != 0 {
		t.Fatalf("expected no store interaction, got %d calls", calls)
	}
}

func TestAdminMarkFailed(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	metrics := newCaptureMetrics()
	admin := outbox.NewAdmin(repo, outbox.WithMetrics(metrics))

	record := seedRecord(t, repo, outbox.Record{CreatedAt: time.Now()})

	if err := admin.MarkFailed(ctx, record.ID.String(), "consumer rejected schema"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	got := mustFind(t, repo, record.ID)
	if got.Status != outbox.StatusFailed || got.StatusMessage != "consumer rejected schema" || got.RetryCount != 0 {
		t.Fatalf("unexpected record %+v", got)
	}
	if metrics.markFailed != 1 {
		t.Fatalf("expected mark failed metric")
	}
}

func TestAdminMarkFailedLeavesSentRecord(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	admin := outbox.NewAdmin(repo)

	sentAt := time.Now()
	record := seedRecord(t, repo, outbox.Record{Status: outbox.StatusSent, SentAt: &sentAt, RetryCount: 1, CreatedAt: sentAt})

	if err := admin.MarkFailed(ctx, record.ID.String(), "late nack"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if got := mustFind(t, repo, record.ID); got.Status != outbox.StatusSent || got.StatusMessage != "" {
		t.Fatalf("sent record must stay unchanged, got %+v", got)
	}
}

func TestAdminMarkFailedFromHeaders(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	sink := memory.NewSink()
	admin := outbox.NewAdmin(repo)

	record := seedRecord(t, repo, outbox.Record{Status: outbox.StatusFailed, RetryCount: 2, CreatedAt: time.Now()})

	env := outbox.NewEnvelope(record)
	env.Headers[outbox.HeaderException] = "deserialization failed"
	if err := admin.MarkFailedFromHeaders(ctx, env.Headers); err != nil {
		t.Fatalf("mark failed from headers: %v", err)
	}
	got := mustFind(t, repo, record.ID)
	if got.Status != outbox.StatusFailed || got.StatusMessage != "deserialization failed" || got.RetryCount != 2 {
		t.Fatalf("unexpected record %+v", got)
	}

	if err := admin.MarkFailedFromHeaders(ctx, map[string]string{outbox.HeaderException: "x"}); err != nil {
		t.Fatalf("expected headers without id to be ignored, got %v", err)
	}
	if sink.Total() != 0 {
		t.Fatalf("marking failed must not send")
	}
}

func TestAdminGetByIDAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	admin := outbox.NewAdmin(repo)

	now := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	old := seedRecord(t, repo, outbox.Record{CreatedAt: now.Add(-48 * time.Hour)})
	fresh := seedRecord(t, repo, outbox.Record{CreatedAt: now})

	got, err := admin.GetByID(ctx, fresh.ID.String())
	if err != nil || got.ID != fresh.ID {
		t.Fatalf("get by id: %v", err)
	}
	if _, err := admin.GetByID(ctx, "nope"); !errors.Is(err, outbox.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	deleted, err := admin.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
	if err != nil || deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d %v", deleted, err)
	}
	if _, err := admin.GetByID(ctx, old.ID.String()); !errors.Is(err, outbox.ErrNotFound) {
		t.Fatalf("expected old record gone")
	}
	if _, err := admin.DeleteOlderThan(ctx, time.Time{}); !errors.Is(err, outbox.ErrInvalidRetention) {
		t.Fatalf("expected ErrInvalidRetention for zero cutoff, got %v", err)
	}
}
