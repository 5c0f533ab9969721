// Package config loads Snapflow configuration from defaults, an optional YAML
// file and environment variables.
//
// # Precedence
//
// Default() values are overlaid by the file named in SNAPFLOW_CONFIG_FILE
// (if set), then by SNAPFLOW_* environment variables. The result is validated.
//
// # Environment
//
// Storage:
//
//	SNAPFLOW_POSTGRES_URL="postgres://localhost/snapflow"
//	SNAPFLOW_POSTGRES_REPLICA_URLS="postgres://r1/snapflow,postgres://r2/snapflow"
//	SNAPFLOW_REDIS_URL="redis://localhost:6379/0"
//	SNAPFLOW_REDIS_CHANNEL="snapflow:ranked-entries"
//	SNAPFLOW_S3_BUCKET="snapflow-media"
//	SNAPFLOW_S3_RAW_PREFIX="raw/"
//	SNAPFLOW_S3_MAX_OBJECT_SCAN="25000"
//
// Jobs:
//
//	SNAPFLOW_SCHEDULE_TRENDING="*/30 * * * *"  # one per job, 5-field cron, UTC
//	SNAPFLOW_JOB_TIMEOUT="10m"
//	SNAPFLOW_FAILURE_RATE_THRESHOLD="0.10"
//	SNAPFLOW_RAW_OBJECT_THRESHOLD="10000"
//	SNAPFLOW_RETENTION_SAMPLE_LIMIT="0"        # 0 checks the whole cohort
//
// Cache warmer:
//
//	SNAPFLOW_CDN_BASE_URL="https://cdn.example.com"
//	SNAPFLOW_WARM_TIMEOUT="5s"
//	SNAPFLOW_SIGNED_URL_TTL="300s"
//	SNAPFLOW_WARM_WORKERS="8"
//
// Observability:
//
//	SNAPFLOW_HEALTH_PORT="9090"
//	SNAPFLOW_LOG_LEVEL="info"  # debug, info, warn, error
//	SNAPFLOW_METRICS_ENABLED="true"
//	SNAPFLOW_OTEL_ENABLED="true"
//	SNAPFLOW_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	thresholds := cfg.Jobs.Thresholds()
//
// # Related Packages
//
//   - pkg/storage: storage settings
//   - pkg/warmer: warmer settings
//   - pkg/observability: log level and OTel settings
package config
