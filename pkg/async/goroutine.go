package async

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrPoolClosed is returned by Submit after Shutdown
var ErrPoolClosed = errors.New("worker pool shut down")

// SafeGo executes fn in a goroutine with a timeout, panic recovery and
// error logging. Use it instead of a bare `go func()` for fire-and-forget
// work.
//
// Example:
//
//	SafeGo(ctx, logger, 5*time.Second, "db stats", func(ctx context.Context) error {
//	    metrics.UpdateDBStats(db.Stats())
//	    return nil
//	})
func SafeGo(parentCtx context.Context, logger logrus.FieldLogger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	log := logger.WithField("task", taskName)

	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				log.WithField("panic", r).WithField("stack", string(debug.Stack())).Error("Panic in background task")
			}
		}()

		if err := fn(ctx); err != nil {
			log.WithError(err).Warn("Background task failed")
		}
	}()
}

// Option configures a WorkerPool
type Option func(*WorkerPool)

// WithLogger sets the logger used for panics and unhandled task errors
func WithLogger(logger logrus.FieldLogger) Option {
	return func(p *WorkerPool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithQueueSize sets the number of tasks buffered ahead of the workers
func WithQueueSize(n int) Option {
	return func(p *WorkerPool) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithErrorHandler routes every task error (including recovered panics) to fn.
// fn may be called concurrently from several workers.
func WithErrorHandler(fn func(error)) Option {
	return func(p *WorkerPool) {
		p.onError = fn
	}
}

// WorkerPool runs submitted tasks on a fixed number of goroutines, each with
// its own timeout. Submit blocks while the queue is full.
type WorkerPool struct {
	workers   int
	queueSize int
	taskName  string
	timeout   time.Duration
	logger    logrus.FieldLogger
	onError   func(error)

	workCh chan func(context.Context) error
	doneCh chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool creates and starts a worker pool.
//
// Example:
//
//	pool := NewWorkerPool(ctx, 8, "cache warm", 10*time.Second, WithLogger(logger))
//	defer pool.Shutdown(5 * time.Second)
//
//	pool.Submit(ctx, func(ctx context.Context) error {
//	    return warmer.Warm(ctx, event)
//	})
func NewWorkerPool(ctx context.Context, workers int, taskName string, timeout time.Duration, opts ...Option) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)

	pool := &WorkerPool{
		workers:   workers,
		queueSize: workers * 2,
		taskName:  taskName,
		timeout:   timeout,
		logger:    logrus.StandardLogger(),
		doneCh:    make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(pool)
	}
	pool.logger = pool.logger.WithField("pool", taskName)
	pool.workCh = make(chan func(context.Context) error, pool.queueSize)

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				pool.worker()
			}()
		}
		wg.Wait()
		close(pool.doneCh)
	}()

	return pool
}

// Submit queues fn. It blocks until there is room, ctx is done or the pool
// shuts down.
func (p *WorkerPool) Submit(ctx context.Context, fn func(context.Context) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.workCh <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolClosed
	}
}

// Shutdown stops accepting tasks and waits up to timeout for queued tasks
// to drain. Running tasks are cancelled when the timeout expires.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.workCh)
	}
	p.mu.Unlock()

	select {
	case <-p.doneCh:
		p.cancel()
		return nil
	case <-time.After(timeout):
		p.cancel()
		return fmt.Errorf("worker pool %s shutdown timed out after %v", p.taskName, timeout)
	}
}

// Done is closed once every worker has exited
func (p *WorkerPool) Done() <-chan struct{} {
	return p.doneCh
}

func (p *WorkerPool) worker() {
	for fn := range p.workCh {
		p.run(fn)
	}
}

func (p *WorkerPool) run(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.logger.WithField("panic", r).WithField("stack", string(debug.Stack())).Error("Panic in pooled task")
			p.report(fmt.Errorf("panic: %v", r))
		}
	}()

	if err := fn(ctx); err != nil {
		p.report(err)
	}
}

func (p *WorkerPool) report(err error) {
	if p.onError != nil {
		p.onError(err)
		return
	}
	p.logger.WithError(err).Warn("Pooled task failed")
}

// Batch processes items concurrently on a temporary worker pool and returns
// every error encountered. If ctx is cancelled before all items are queued,
// the cancellation error is included and the remaining items are skipped.
//
// Example:
//
//	errs := Batch(ctx, entries, 4, "backfill", 10*time.Second, func(ctx context.Context, e analytics.RankedEntry) error {
//	    return warmer.WarmEntry(ctx, e)
//	})
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	var (
		mu   sync.Mutex
		errs []error
	)
	collect := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	pool := NewWorkerPool(ctx, workers, taskName, timeout, WithErrorHandler(collect))

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			collect(err)
			break
		}
		item := item
		if err := pool.Submit(ctx, func(ctx context.Context) error {
			return fn(ctx, item)
		}); err != nil {
			collect(err)
			break
		}
	}

	// Wait for queued work without a deadline; each task has its own timeout
	pool.mu.Lock()
	if !pool.closed {
		pool.closed = true
		close(pool.workCh)
	}
	pool.mu.Unlock()
	<-pool.doneCh
	pool.cancel()

	mu.Lock()
	defer mu.Unlock()
	return errs
}
