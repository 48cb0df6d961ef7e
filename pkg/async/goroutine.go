package async

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/platinummonkey/mediahub/pkg/observability"
)

// Runner executes fire-and-forget tasks with:
// - Panic recovery
// - Timeout enforcement
// - Error logging
//
// Use this instead of bare `go func()` for anything whose failure must not reach the caller.
type Runner struct {
	logger  *observability.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewRunner creates a Runner. A zero timeout defaults to five seconds.
func NewRunner(logger *observability.Logger, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Runner{logger: logger, timeout: timeout}
}

// Go runs fn in a goroutine. Values from parentCtx (request ID, trace) are kept but its
// cancellation is not, so the task outlives the request that scheduled it.
func (r *Runner) Go(parentCtx context.Context, taskName string, fn func(context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(parentCtx), r.timeout)
		defer cancel()

		defer func() {
			if rec := recover(); rec != nil {
				r.logger.WithFields(map[string]interface{}{
					"task":  taskName,
					"panic": rec,
					"stack": string(debug.Stack()),
				}).Error("PANIC in background task")
			}
		}()

		if err := fn(ctx); err != nil {
			r.logger.WithError(err).WithField("task", taskName).Warn("Background task failed")
		}
	}()
}

// Wait blocks until every task started so far has returned
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown waits for in-flight tasks or gives up when ctx is done
func (r *Runner) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
