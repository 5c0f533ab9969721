package warmer

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Reainz/Snapflow-sub001/pkg/analytics"
	"github.com/Reainz/Snapflow-sub001/pkg/async"
)

// EventSource delivers ranked entry events until ctx is done.
// *postgres.RedisClient implements it.
type EventSource interface {
	ConsumeRankedEntries(ctx context.Context,
		handle func(context.Context, analytics.RankedEntryCreated),
		onBadMessage func(payload string, err error)) error
}

// EntrySource lists ranked entries that have no warm result yet
type EntrySource interface {
	ListUnwarmedEntries(ctx context.Context) ([]analytics.RankedEntry, error)
}

// Run consumes events and warms each one on a bounded worker pool until ctx
// is cancelled. Queued work is given DrainTimeout to finish afterwards.
func (w *Warmer) Run(ctx context.Context, events EventSource) error {
	// Queued tasks must outlive the consumer so they can drain on shutdown
	pool := async.NewWorkerPool(context.WithoutCancel(ctx), w.cfg.Workers, "cache-warm", w.cfg.TaskTimeout,
		async.WithLogger(w.logger),
		async.WithQueueSize(w.cfg.QueueSize),
		async.WithErrorHandler(func(err error) {
			w.logger.WithError(err).Warn("Cache warm failed")
		}),
	)

	w.logger.WithFields(logrus.Fields{
		"workers": w.cfg.Workers,
		"queue":   w.cfg.QueueSize,
	}).Info("Cache warmer started")

	consumeErr := events.ConsumeRankedEntries(ctx,
		func(ctx context.Context, ev analytics.RankedEntryCreated) {
			if err := pool.Submit(ctx, func(taskCtx context.Context) error {
				return w.Warm(taskCtx, ev)
			}); err != nil {
				w.logger.WithError(err).WithField("entry_id", ev.EntryID).Warn("Dropped ranked entry event")
			}
		},
		func(payload string, err error) {
			w.logger.WithError(err).WithField("payload", payload).Warn("Skipping undecodable ranked entry event")
		},
	)

	if err := pool.Shutdown(w.cfg.DrainTimeout); err != nil {
		w.logger.WithError(err).Warn("Cache warm queue did not drain")
	}
	w.logger.Info("Cache warmer stopped")

	if consumeErr != nil {
		return fmt.Errorf("consume ranked entries: %w", consumeErr)
	}
	return nil
}

// Backfill warms every entry in the current ranking that has neither been
// warmed nor marked failed, e.g. after the warmer was down while a ranking
// was published. It returns how many entries were attempted.
func (w *Warmer) Backfill(ctx context.Context, src EntrySource) (int, error) {
	entries, err := src.ListUnwarmedEntries(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unwarmed entries: %w", err)
	}
	if len(entries) == 0 {
		w.logger.Info("No unwarmed entries to backfill")
		return 0, nil
	}

	errs := async.Batch(ctx, entries, w.cfg.Workers, "cache-warm-backfill", w.cfg.TaskTimeout,
		func(ctx context.Context, e analytics.RankedEntry) error {
			return w.Warm(ctx, analytics.RankedEntryCreated{
				EntryID:    e.ID,
				Generation: e.Generation,
				VideoID:    e.VideoID,
				Rank:       e.Rank,
			})
		})

	w.logger.WithFields(logrus.Fields{
		"entries": len(entries),
		"failed":  len(errs),
	}).Info("Backfill complete")
	return len(entries), errors.Join(errs...)
}
