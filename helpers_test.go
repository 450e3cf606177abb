package outbox_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	outbox "github.com/velmie/txoutbox"
	"github.com/velmie/txoutbox/memory"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// spyRepository counts store interactions on top of a memory repository.
type spyRepository struct {
	*memory.Repository
	calls atomic.Int32
	saves atomic.Int32
}

func newSpyRepository() *spyRepository {
	return &spyRepository{Repository: memory.NewRepository()}
}

func (s *spyRepository) Save(ctx context.Context, record outbox.Record) error {
	s.calls.Add(1)
	s.saves.Add(1)

	return s.Repository.Save(ctx, record)
}

func (s *spyRepository) FindByID(ctx context.Context, id outbox.ID) (outbox.Record, error) {
	s.calls.Add(1)

	return s.Repository.FindByID(ctx, id)
}

func (s *spyRepository) LockByID(ctx context.Context, id outbox.ID) (outbox.Record, error) {
	s.calls.Add(1)

	return s.Repository.LockByID(ctx, id)
}

func (s *spyRepository) InTx(ctx context.Context, fn func(ctx context.Context, store outbox.Store) error) error {
	s.calls.Add(1)

	return s.Repository.InTx(ctx, func(ctx context.Context, store outbox.Store) error {
		return fn(ctx, &spyStore{Store: store, spy: s})
	})
}

type spyStore struct {
	outbox.Store
	spy *spyRepository
}

func (s *spyStore) Save(ctx context.Context, record outbox.Record) error {
	s.spy.saves.Add(1)

	return s.Store.Save(ctx, record)
}

type captureMetrics struct {
	mu          sync.Mutex
	sent        map[string]int
	sendErrors  map[string]int
	markFailed  int
	purged      int64
	backlog     map[outbox.Status]int
	sweepCounts map[string]int
}

func newCaptureMetrics() *captureMetrics {
	return &captureMetrics{
		sent:        make(map[string]int),
		sendErrors:  make(map[string]int),
		backlog:     make(map[outbox.Status]int),
		sweepCounts: make(map[string]int),
	}
}

func (m *captureMetrics) ObserveSweep(sweep string, _ time.Duration) {
	m.mu.Lock()
	m.sweepCounts[sweep]++
	m.mu.Unlock()
}

func (m *captureMetrics) AddSent(path string, count int) {
	m.mu.Lock()
	m.sent[path] += count
	m.mu.Unlock()
}

func (m *captureMetrics) AddSendErrors(path string, count int) {
	m.mu.Lock()
	m.sendErrors[path] += count
	m.mu.Unlock()
}

func (m *captureMetrics) AddMarkedFailed(count int) {
	m.mu.Lock()
	m.markFailed += count
	m.mu.Unlock()
}

func (m *captureMetrics) AddPurged(count int64) {
	m.mu.Lock()
	m.purged += count
	m.mu.Unlock()
}

func (m *captureMetrics) SetBacklog(status outbox.Status, count int) {
	m.mu.Lock()
	m.backlog[status] = count
	m.mu.Unlock()
}

func (m *captureMetrics) backlogOf(status outbox.Status) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count, ok := m.backlog[status]

	return count, ok
}

type orderPlaced struct {
	OrderID string `json:"orderId"`
	Amount  int    `json:"amount"`
}

func (orderPlaced) PayloadType() string { return "order.placed" }

func seedRecord(t *testing.T, store outbox.Store, record outbox.Record) outbox.Record {
	t.Helper()

	if record.ID.IsZero() {
		id, err := outbox.NewID()
		if err != nil {
			t.Fatalf("new id: %v", err)
		}
		record.ID = id
	}
	if record.Source == "" {
		record.Source = "order"
	}
	if record.SourceID == "" {
		record.SourceID = "o-" + record.ID.String()[:8]
	}
	if record.Channel == "" {
		record.Channel = "orders"
	}
	if record.Payload == nil {
		record.Payload = []byte(`{"orderId":"1"}`)
	}
	if record.Status == "" {
		record.Status = outbox.StatusNew
	}
	if err := store.Save(context.Background(), record); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	return record
}

func mustFind(t *testing.T, store outbox.Store, id outbox.ID) outbox.Record {
	t.Helper()

	record, err := store.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("find %s: %v", id, err)
	}

	return record
}
