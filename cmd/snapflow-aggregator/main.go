package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Reainz/Snapflow-sub001/pkg/analytics"
	"github.com/Reainz/Snapflow-sub001/pkg/config"
	"github.com/Reainz/Snapflow-sub001/pkg/observability"
	"github.com/Reainz/Snapflow-sub001/pkg/storage/postgres"
)

var (
	runOnce      = flag.Bool("run-once", false, "Run jobs immediately and exit (backfill/testing)")
	jobName      = flag.String("job", "all", "Job to run with -run-once: all, api-latency, user-cohort, video-engagement, trending, health-snapshot, alerts")
	printLatest  = flag.String("print-latest", "", "Print the latest snapshot of a kind as JSON and exit")
	printRanking = flag.Bool("print-ranking", false, "Print the current trending ranking as JSON and exit")
	printAlerts  = flag.Int("print-alerts", 0, "Print the N most recent alerts as JSON and exit")
	migrate      = flag.Bool("migrate", false, "Apply schema migrations and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", "snapflow-aggregator")

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.WithError(err).Error("Aggregator exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	cm, err := postgres.Connect(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}

	if *migrate {
		defer cm.Close()
		if err := postgres.Migrate(ctx, cm.Primary()); err != nil {
			return err
		}
		logger.Info("Migrations applied")
		return nil
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	redisClient, err := postgres.NewRedisClient(ctx, cfg.Storage)
	if err != nil {
		cm.Close()
		return err
	}

	storeOpts := []postgres.StoreOption{
		postgres.WithReplicas(cm),
		postgres.WithObserver(metrics),
	}
	var cache analytics.SnapshotCache
	if cfg.Storage.CacheEnabled {
		storeOpts = append(storeOpts, postgres.WithSnapshotInvalidator(redisClient))
		cache = redisClient
	}
	store := postgres.NewStore(cm.Primary(), storeOpts...)

	var (
		objects  analytics.ObjectCounter
		s3Health observability.ObjectStoreChecker
	)
	if cfg.Storage.S3Bucket != "" {
		s3Client, err := postgres.NewS3Client(ctx, cfg.Storage)
		if err != nil {
			redisClient.Close()
			cm.Close()
			return err
		}
		s3Client.SetObserver(metrics)
		objects, s3Health = s3Client, s3Client
	} else {
		logger.Warn("No S3 bucket configured, raw object counts will be reported as unavailable")
	}

	// One-shot read modes
	if *printLatest != "" || *printRanking || *printAlerts > 0 {
		defer cm.Close()
		defer redisClient.Close()
		svc := analytics.NewService(store, store, store, cache)
		return printQuery(ctx, os.Stdout, svc)
	}

	jobOpts := []analytics.Option{
		analytics.WithLogger(logger),
		analytics.WithRecorder(metrics),
	}
	jobs := []analytics.Job{
		analytics.NewLatencyAggregator(store, store, jobOpts...),
		analytics.NewCohortAggregator(store, store, jobOpts...).
			WithRetentionSampleLimit(cfg.Jobs.RetentionSampleLimit),
		analytics.NewEngagementAggregator(store, store, store, jobOpts...),
		analytics.NewTrendingRanker(store, store, redisClient, jobOpts...),
		analytics.NewHealthSnapshotter(store, objects, cfg.Storage.S3RawPrefix, store, jobOpts...),
		analytics.NewAlerter(store, objects, cfg.Storage.S3RawPrefix, store, cfg.Jobs.Thresholds(), jobOpts...),
	}

	runner := &jobRunner{logger: logger, observer: metrics, timeout: cfg.Jobs.Timeout}

	if *runOnce {
		defer cm.Close()
		defer redisClient.Close()
		defer observability.ShutdownOTel(context.Background(), providers, logger)

		selected, err := selectJobs(jobs, *jobName)
		if err != nil {
			return err
		}
		logger.WithField("jobs", len(selected)).Info("Running jobs once")
		return runner.runOnce(ctx, selected)
	}

	// Health and metrics side server
	router := mux.NewRouter()
	router.Use(mux.MiddlewareFunc(observability.HTTPMetricsMiddleware(metrics)))
	observability.RegisterHealthRoutes(router, observability.NewHealthChecker(cm.Primary(), redisClient.Client(), s3Health))
	if cfg.Observability.MetricsEnabled {
		router.Handle("/metrics", observability.MetricsHandler(registry)).Methods(http.MethodGet)
	}
	server := &http.Server{
		Addr:              ":" + cfg.Server.HealthPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc("database", func(context.Context) error { return cm.Close() })
	shutdown.RegisterShutdownFunc("redis", func(context.Context) error { return redisClient.Close() })
	shutdown.RegisterShutdownFunc("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	go func() {
		defer observability.RecoverPanic(logger, "health server")
		logger.WithField("addr", server.Addr).Info("Health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	statsCtx, stopStats := context.WithCancel(ctx)
	shutdown.RegisterShutdownFunc("db-stats", func(context.Context) error {
		stopStats()
		return nil
	})
	go reportDBStats(statsCtx, logger, cm, metrics)

	scheduler := newScheduler(logger)
	n, err := scheduleJobs(ctx, scheduler, runner, jobs, cfg.Jobs.Schedules)
	if err != nil {
		return err
	}
	// Stopped first on shutdown; waits for running jobs
	shutdown.RegisterShutdownFunc("scheduler", func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return fmt.Errorf("running jobs did not finish: %w", ctx.Err())
		}
	})
	scheduler.Start()
	logger.WithField("jobs", n).Info("Snapflow aggregator started")

	return shutdown.WaitForShutdown(ctx)
}

// printQuery writes the requested read as indented JSON
func printQuery(ctx context.Context, w io.Writer, svc *analytics.Service) error {
	var (
		out interface{}
		err error
	)
	switch {
	case *printLatest != "":
		out, err = svc.LatestSnapshot(ctx, analytics.SnapshotKind(*printLatest))
	case *printRanking:
		out, err = svc.CurrentRanking(ctx)
	default:
		out, err = svc.RecentAlerts(ctx, *printAlerts)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// reportDBStats copies pool statistics into the metrics until ctx is done
func reportDBStats(ctx context.Context, logger *observability.Logger, cm *postgres.ConnectionManager, metrics *observability.Metrics) {
	defer observability.RecoverPanic(logger, "db stats")

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateDBStats(cm.Stats())
		}
	}
}
