// Package observability provides structured logging, Prometheus metrics,
// health checks and OpenTelemetry tracing for the Snapflow processes.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.ParseLogLevel(cfg.LogLevel), os.Stdout)
//	logger.WithField("job", "trending").Info("Trending ranking replaced")
//
// Job-scoped logging:
//
//	ctx = observability.WithRunID(observability.WithJob(ctx, name), runID)
//	observability.FromContext(ctx).Warn("Raw object count unavailable")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(registry)
//	metrics.ObserveJob("alerts", observability.JobStatusSuccess, time.Since(start))
//
// *Metrics also satisfies analytics.Recorder, so jobs report snapshots,
// alerts and ranking sizes directly.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, s3Client)
//	observability.RegisterHealthRoutes(router, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "snapflow-aggregator",
//		Insecure:    true,
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// # Related Packages
//
//   - pkg/config: observability configuration
//   - pkg/analytics: job outputs recorded through Metrics
package observability
