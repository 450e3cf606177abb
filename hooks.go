package outbox

import (
	"context"
	"fmt"
	"sync"
)

// Tx is a business transaction that accepts commit-ordered callbacks.
type Tx interface {
	// BeforeCommit registers fn to run inside the transaction just before commit.
	// An error aborts the commit.
	BeforeCommit(fn func(ctx context.Context) error)
	// AfterCommit registers fn to run after a successful commit.
	AfterCommit(fn func(ctx context.Context))
	// Outbox returns a Store bound to this transaction.
	Outbox() Store
}

// CommitHooks holds the callbacks of one transaction. Store adapters embed it to implement Tx.
type CommitHooks struct {
	mu     sync.Mutex
	before []func(ctx context.Context) error
	after  []func(ctx context.Context)
}

// BeforeCommit registers a pre-commit callback.
func (h *CommitHooks) BeforeCommit(fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.before = append(h.before, fn)
	h.mu.Unlock()
}

// AfterCommit registers a post-commit callback.
func (h *CommitHooks) AfterCommit(fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.after = append(h.after, fn)
	h.mu.Unlock()
}

// RunBeforeCommit runs pre-commit callbacks in registration order, including
// callbacks registered while running. It stops at the first error.
func (h *CommitHooks) RunBeforeCommit(ctx context.Context) error {
	for i := 0; ; i++ {
		h.mu.Lock()
		if i >= len(h.before) {
			h.mu.Unlock()

			return nil
		}
		fn := h.before[i]
		h.mu.Unlock()

		if err := fn(ctx); err != nil {
			return fmt.Errorf("outbox before commit: %w", err)
		}
	}
}

// RunAfterCommit runs post-commit callbacks once. Panics are recovered and logged
// so a committed transaction is never reported as failed. The callbacks get a
// context that is not canceled together with ctx.
func (h *CommitHooks) RunAfterCommit(ctx context.Context, logger Logger) {
	if logger == nil {
		logger = NopLogger{}
	}
	ctx = context.WithoutCancel(ctx)

	for i := 0; ; i++ {
		h.mu.Lock()
		if i >= len(h.after) {
			h.after = nil
			h.mu.Unlock()

			return
		}
		fn := h.after[i]
		h.mu.Unlock()

		runAfterCommit(ctx, fn, logger)
	}
}

// Reset drops every registered callback, used on rollback.
func (h *CommitHooks) Reset() {
	h.mu.Lock()
	h.before = nil
	h.after = nil
	h.mu.Unlock()
}

func runAfterCommit(ctx context.Context, fn func(ctx context.Context), logger Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("outbox after commit hook panic", "panic", rec)
		}
	}()
	fn(ctx)
}
