package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Worker is a long-running background job such as Recovery or Retention.
type Worker interface {
	// Run blocks until ctx is canceled or the worker fails.
	Run(ctx context.Context) error
}

// WorkerFunc adapts a function to Worker.
type WorkerFunc func(ctx context.Context) error

// Run implements Worker.
func (fn WorkerFunc) Run(ctx context.Context) error {
	return fn(ctx)
}

// RunWorkers runs every worker in its own goroutine. The first failure or panic
// cancels the others and is returned. Cancellation of ctx is not an error.
func RunWorkers(ctx context.Context, logger Logger, workers ...Worker) error {
	if logger == nil {
		logger = NopLogger{}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(workers))
	var wg sync.WaitGroup

	for i, worker := range workers {
		wg.Add(1)
		workerID := i
		go func() {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					err := fmt.Errorf("%w: %v", ErrWorkerPanic, rec)
					logger.Error("outbox worker panic", "worker", workerID, "panic", rec)
					errCh <- err
					cancel()
				}
			}()

			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("outbox worker error", "worker", workerID, "err", err)
				errCh <- err
				cancel()
			}
		}()
	}

	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		return err
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}
