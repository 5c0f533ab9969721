package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/Reainz/Snapflow-sub001/pkg/async"
	"github.com/Reainz/Snapflow-sub001/pkg/config"
	"github.com/Reainz/Snapflow-sub001/pkg/observability"
	"github.com/Reainz/Snapflow-sub001/pkg/storage/postgres"
	"github.com/Reainz/Snapflow-sub001/pkg/warmer"
)

var (
	backfill        = flag.Bool("backfill", false, "Warm every unwarmed entry of the current ranking and exit")
	startupBackfill = flag.Bool("startup-backfill", true, "Warm entries missed while the warmer was down, in the background at startup")
	backfillTimeout = flag.Duration("backfill-timeout", 5*time.Minute, "Upper bound for a backfill pass")
)

func main() {
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err == nil {
		err = cfg.ValidateWarmer()
	}
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	logger.SetLevel(logrusLevel(cfg.Observability.LogLevel))

	if err := run(cfg, logger.WithField("service", "snapflow-warmer")); err != nil {
		logger.WithError(err).Fatal("Cache warmer exited with error")
	}
}

func run(cfg *config.Config, logger *logrus.Entry) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obsLogger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).WithField("service", "snapflow-warmer")
	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel(), obsLogger)
	if err != nil {
		return err
	}
	defer observability.ShutdownOTel(context.Background(), providers, obsLogger)

	cm, err := postgres.Connect(ctx, cfg.Storage, obsLogger)
	if err != nil {
		return err
	}
	defer cm.Close()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	store := postgres.NewStore(cm.Primary(), postgres.WithObserver(metrics))

	var presigner warmer.Presigner
	if cfg.Storage.S3Bucket != "" {
		s3Client, err := postgres.NewS3Client(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		s3Client.SetObserver(metrics)
		presigner = s3Client
	} else {
		logger.Warn("No S3 bucket configured, restricted videos cannot be warmed")
	}

	w, err := warmer.New(cfg.Warmer, store, presigner, store,
		warmer.WithLogger(logger),
		warmer.WithObserver(metrics),
	)
	if err != nil {
		return err
	}

	if *backfill {
		bctx, cancel := context.WithTimeout(ctx, *backfillTimeout)
		defer cancel()
		n, err := w.Backfill(bctx, store)
		logger.WithField("attempted", n).Info("Backfill finished")
		return err
	}

	redisClient, err := postgres.NewRedisClient(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	router := mux.NewRouter()
	observability.RegisterHealthRoutes(router, observability.NewHealthChecker(cm.Primary(), redisClient.Client(), nil))
	if cfg.Observability.MetricsEnabled {
		router.Handle("/metrics", observability.MetricsHandler(registry)).Methods(http.MethodGet)
	}
	server := &http.Server{
		Addr:              ":" + cfg.Server.HealthPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.WithField("addr", server.Addr).Info("Health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Health server failed")
		}
	}()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(sctx); err != nil {
			logger.WithError(err).Warn("Health server shutdown error")
		}
	}()

	if *startupBackfill {
		async.SafeGo(ctx, logger, *backfillTimeout, "startup backfill", func(ctx context.Context) error {
			_, err := w.Backfill(ctx, store)
			return err
		})
	}

	return w.Run(ctx, redisClient)
}

func logrusLevel(level observability.LogLevel) logrus.Level {
	switch level {
	case observability.DebugLevel:
		return logrus.DebugLevel
	case observability.WarnLevel:
		return logrus.WarnLevel
	case observability.ErrorLevel:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
