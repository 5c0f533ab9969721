// Package async provides safe concurrent execution primitives for background tasks.
//
// # Overview
//
// Goroutines started here recover panics, enforce a per-task timeout and log
// failures through logrus instead of crashing the process.
//
// # Key Functions
//
// SafeGo: fire-and-forget task
//
//	async.SafeGo(ctx, logger, 5*time.Second, "db stats", func(ctx context.Context) error {
//		metrics.UpdateDBStats(db.Stats())
//		return nil
//	})
//
// WorkerPool: bounded pool fed by the cache warmer's event loop
//
//	pool := async.NewWorkerPool(ctx, 8, "cache warm", 10*time.Second, async.WithLogger(logger))
//	defer pool.Shutdown(5 * time.Second)
//
//	pool.Submit(ctx, func(ctx context.Context) error {
//		return w.Warm(ctx, event)
//	})
//
// Batch: run a slice through a temporary pool and collect errors
//
//	errs := async.Batch(ctx, entries, 4, "backfill", 10*time.Second, warmEntry)
//
// # Related Packages
//
//   - pkg/warmer: uses WorkerPool and Batch
//   - cmd/snapflow-aggregator: uses SafeGo for pool stats
package async
