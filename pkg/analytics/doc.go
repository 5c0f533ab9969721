// Package analytics implements Snapflow's scheduled aggregation and alerting jobs.
//
// # Overview
//
// Every job is a single-shot, timer-triggered unit of work that reads raw
// event and document sources and appends derived outputs:
//
//   - LatencyAggregator (hourly): per-function mean, p95 and error rate over
//     the trailing hour, written as an api_metrics snapshot.
//   - CohortAggregator (daily): DAU/WAU/MAU, one-day retention of yesterday's
//     signup cohort and the geographic breakdown.
//   - EngagementAggregator (daily): uploads, 7-day top engagement and
//     watch-time statistics for the previous UTC day.
//   - TrendingRanker (every 30 minutes): decay-scored top 50, replacing the
//     ranked entries collection in one transaction.
//   - HealthSnapshotter and Alerter (every 15 minutes): processing success
//     rate and threshold alerts over videos updated in the last hour.
//
// Snapshots and alerts are append-only. The current value of a metric is the
// newest snapshot of its kind; see Service.LatestSnapshot.
//
// # Timestamps
//
// User documents written by older clients store activity timestamps as epoch
// numbers or {seconds, nanoseconds} pairs. Every cutoff comparison over such
// values goes through CoerceEpochMillis / ActiveSince.
//
// # Usage Example
//
//	store := postgres.NewStore(db)
//	ranker := analytics.NewTrendingRanker(store, store, bus,
//		analytics.WithLogger(logger),
//		analytics.WithRecorder(metrics),
//	)
//	if err := ranker.Run(ctx); err != nil {
//		logger.WithError(err).Error("trending run failed")
//	}
//
// # Related Packages
//
//   - pkg/storage/postgres: sources and sinks
//   - pkg/warmer: consumes RankedEntryCreated events
//   - pkg/observability: logging and metrics
package analytics
