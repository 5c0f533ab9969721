package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Reainz/Snapflow-sub001/pkg/analytics"
	"github.com/Reainz/Snapflow-sub001/pkg/observability"
)

// TestGetEnvHelpers tests the typed environment helpers
func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STR", "custom")
	t.Setenv("TEST_BOOL_ONE", "1")
	t.Setenv("TEST_BOOL_FALSE", "false")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_INT_BAD", "forty")
	t.Setenv("TEST_INT64", "9000000000")
	t.Setenv("TEST_FLOAT", "0.25")
	t.Setenv("TEST_DURATION", "90s")
	t.Setenv("TEST_DURATION_BAD", "soon")

	if got := getEnv("TEST_STR", "default"); got != "custom" {
		t.Errorf("getEnv() = %v, want custom", got)
	}
	if got := getEnv("TEST_STR_NOT_SET", "default"); got != "default" {
		t.Errorf("getEnv() = %v, want default", got)
	}
	if !getEnvBool("TEST_BOOL_ONE", false) {
		t.Error("getEnvBool() should accept 1")
	}
	if getEnvBool("TEST_BOOL_FALSE", true) {
		t.Error("getEnvBool() should parse false")
	}
	if got := getEnvInt("TEST_INT", 0); got != 42 {
		t.Errorf("getEnvInt() = %v, want 42", got)
	}
	if got := getEnvInt("TEST_INT_BAD", 7); got != 7 {
		t.Errorf("getEnvInt() with bad value = %v, want default 7", got)
	}
	if got := getEnvInt64("TEST_INT64", 0); got != 9000000000 {
		t.Errorf("getEnvInt64() = %v", got)
	}
	if got := getEnvFloat("TEST_FLOAT", 0); got != 0.25 {
		t.Errorf("getEnvFloat() = %v, want 0.25", got)
	}
	if got := getEnvDuration("TEST_DURATION", 0); got != 90*time.Second {
		t.Errorf("getEnvDuration() = %v, want 90s", got)
	}
	if got := getEnvDuration("TEST_DURATION_BAD", time.Second); got != time.Second {
		t.Errorf("getEnvDuration() with bad value = %v, want default", got)
	}
}

func TestScheduleEnvKey(t *testing.T) {
	tests := map[string]string{
		analytics.JobAPILatency:      "SNAPFLOW_SCHEDULE_API_LATENCY",
		analytics.JobTrending:        "SNAPFLOW_SCHEDULE_TRENDING",
		analytics.JobVideoEngagement: "SNAPFLOW_SCHEDULE_VIDEO_ENGAGEMENT",
	}
	for job, want := range tests {
		if got := scheduleEnvKey(job); got != want {
			t.Errorf("scheduleEnvKey(%q) = %q, want %q", job, got, want)
		}
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if len(cfg.Jobs.Schedules) != 6 {
		t.Errorf("expected a schedule per job, got %v", cfg.Jobs.Schedules)
	}
	if cfg.Jobs.Schedules[analytics.JobTrending] != "*/30 * * * *" {
		t.Errorf("trending schedule = %q", cfg.Jobs.Schedules[analytics.JobTrending])
	}
	if cfg.Jobs.Schedules[analytics.JobHealthSnapshot] != cfg.Jobs.Schedules[analytics.JobAlerts] {
		t.Error("health and alerts share a cadence")
	}
	th := cfg.Jobs.Thresholds()
	if th.FailureRate != 0.10 || th.RawObjects != 10000 {
		t.Errorf("thresholds = %+v", th)
	}
	if cfg.Warmer.SignedURLTTL != 300*time.Second || cfg.Warmer.RequestTimeout != 5*time.Second {
		t.Errorf("warmer defaults = %+v", cfg.Warmer)
	}
	if cfg.Storage.CacheTTL["snapshot"] != time.Minute {
		t.Errorf("snapshot cache TTL = %v", cfg.Storage.CacheTTL["snapshot"])
	}
}

// TestLoadStorageConfig tests storage overrides from environment
func TestLoadStorageConfig(t *testing.T) {
	t.Setenv("SNAPFLOW_POSTGRES_URL", "postgres://db:5432/snapflow")
	t.Setenv("SNAPFLOW_POSTGRES_REPLICA_URLS", "postgres://r1/snapflow, ,postgres://r2/snapflow")
	t.Setenv("SNAPFLOW_POSTGRES_MAX_CONNS", "25")
	t.Setenv("SNAPFLOW_S3_BUCKET", "snapflow-media")
	t.Setenv("SNAPFLOW_S3_USE_PATH_STYLE", "true")
	t.Setenv("SNAPFLOW_S3_RAW_PREFIX", "uploads/raw/")
	t.Setenv("SNAPFLOW_S3_MAX_OBJECT_SCAN", "5000")
	t.Setenv("SNAPFLOW_REDIS_URL", "redis://cache:6379/0")
	t.Setenv("SNAPFLOW_REDIS_DB", "-1")
	t.Setenv("SNAPFLOW_REDIS_CHANNEL", "events:ranked")
	t.Setenv("SNAPFLOW_SNAPSHOT_CACHE_TTL", "2m")

	cfg := Default()
	cfg.loadStorageConfig()
	s := cfg.Storage

	if s.PostgresURL != "postgres://db:5432/snapflow" {
		t.Errorf("PostgresURL = %v", s.PostgresURL)
	}
	if len(s.PostgresReplicaURLs) != 2 || s.PostgresReplicaURLs[1] != "postgres://r2/snapflow" {
		t.Errorf("PostgresReplicaURLs = %v", s.PostgresReplicaURLs)
	}
	if s.PostgresMaxConns != 25 {
		t.Errorf("PostgresMaxConns = %v", s.PostgresMaxConns)
	}
	if s.S3Bucket != "snapflow-media" || !s.S3UsePathStyle || s.S3RawPrefix != "uploads/raw/" {
		t.Errorf("S3 = %+v", s)
	}
	if s.S3MaxObjectScan != 5000 {
		t.Errorf("S3MaxObjectScan = %v", s.S3MaxObjectScan)
	}
	if s.RedisDB != 0 {
		t.Errorf("RedisDB = %v, want 0 (default kept for negative value)", s.RedisDB)
	}
	if s.RedisChannel != "events:ranked" {
		t.Errorf("RedisChannel = %v", s.RedisChannel)
	}
	if s.CacheTTL["snapshot"] != 2*time.Minute {
		t.Errorf("snapshot TTL = %v", s.CacheTTL["snapshot"])
	}
}

func TestLoadJobsConfig(t *testing.T) {
	t.Setenv("SNAPFLOW_SCHEDULE_TRENDING", "*/5 * * * *")
	t.Setenv("SNAPFLOW_JOB_TIMEOUT", "2m")
	t.Setenv("SNAPFLOW_FAILURE_RATE_THRESHOLD", "0.2")
	t.Setenv("SNAPFLOW_RAW_OBJECT_THRESHOLD", "500")
	t.Setenv("SNAPFLOW_RETENTION_SAMPLE_LIMIT", "1000")

	cfg := Default()
	cfg.loadJobsConfig()

	if cfg.Jobs.Schedules[analytics.JobTrending] != "*/5 * * * *" {
		t.Errorf("trending schedule = %q", cfg.Jobs.Schedules[analytics.JobTrending])
	}
	if cfg.Jobs.Schedules[analytics.JobAPILatency] != "0 * * * *" {
		t.Errorf("untouched schedule changed: %q", cfg.Jobs.Schedules[analytics.JobAPILatency])
	}
	if cfg.Jobs.Timeout != 2*time.Minute {
		t.Errorf("Timeout = %v", cfg.Jobs.Timeout)
	}
	if cfg.Jobs.FailureRateThreshold != 0.2 || cfg.Jobs.RawObjectThreshold != 500 {
		t.Errorf("thresholds = %v / %v", cfg.Jobs.FailureRateThreshold, cfg.Jobs.RawObjectThreshold)
	}
	if cfg.Jobs.RetentionSampleLimit != 1000 {
		t.Errorf("RetentionSampleLimit = %v", cfg.Jobs.RetentionSampleLimit)
	}
}

func TestLoadWarmerConfig(t *testing.T) {
	t.Setenv("SNAPFLOW_CDN_BASE_URL", "https://cdn.snapflow.test")
	t.Setenv("SNAPFLOW_WARM_TIMEOUT", "3s")
	t.Setenv("SNAPFLOW_WARM_WORKERS", "16")

	cfg := Default()
	cfg.loadWarmerConfig()

	if cfg.Warmer.CDNBaseURL != "https://cdn.snapflow.test" {
		t.Errorf("CDNBaseURL = %v", cfg.Warmer.CDNBaseURL)
	}
	if cfg.Warmer.RequestTimeout != 3*time.Second || cfg.Warmer.Workers != 16 {
		t.Errorf("warmer = %+v", cfg.Warmer)
	}
	if cfg.Warmer.SignedURLTTL != 300*time.Second {
		t.Errorf("SignedURLTTL should keep its default, got %v", cfg.Warmer.SignedURLTTL)
	}
	if err := cfg.ValidateWarmer(); err != nil {
		t.Errorf("ValidateWarmer: %v", err)
	}
	if err := Default().ValidateWarmer(); err == nil {
		t.Error("ValidateWarmer should require a CDN base URL")
	}
}

// TestLoadObservabilityConfig tests the observability overrides
func TestLoadObservabilityConfig(t *testing.T) {
	t.Setenv("SNAPFLOW_LOG_LEVEL", "debug")
	t.Setenv("SNAPFLOW_METRICS_ENABLED", "false")
	t.Setenv("SNAPFLOW_OTEL_ENABLED", "true")
	t.Setenv("SNAPFLOW_OTEL_ENDPOINT", "otel-collector:4317")
	t.Setenv("SNAPFLOW_OTEL_SAMPLE_RATIO", "0.1")

	cfg := Default()
	cfg.loadObservabilityConfig()
	o := cfg.Observability

	if o.LogLevel != observability.DebugLevel {
		t.Errorf("LogLevel = %v", o.LogLevel)
	}
	if o.MetricsEnabled {
		t.Error("MetricsEnabled should be false")
	}
	otel := o.OTel()
	if !otel.Enabled || otel.Endpoint != "otel-collector:4317" || otel.SampleRatio != 0.1 {
		t.Errorf("OTel() = %+v", otel)
	}
	if otel.ServiceName != "snapflow" {
		t.Errorf("ServiceName = %v", otel.ServiceName)
	}
}

// TestConfigValidate tests the Validate method
func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "missing health port",
			mutate:  func(c *Config) { c.Server.HealthPort = "" },
			wantErr: "health port",
		},
		{
			name:    "missing postgres URL",
			mutate:  func(c *Config) { c.Storage.PostgresURL = "" },
			wantErr: "postgres URL",
		},
		{
			name:    "missing redis URL",
			mutate:  func(c *Config) { c.Storage.RedisURL = "" },
			wantErr: "redis URL",
		},
		{
			name: "bucket without region",
			mutate: func(c *Config) {
				c.Storage.S3Bucket = "media"
				c.Storage.S3Region = ""
			},
			wantErr: "S3 region",
		},
		{
			name:    "bad schedule",
			mutate:  func(c *Config) { c.Jobs.Schedules[analytics.JobTrending] = "every half hour" },
			wantErr: "invalid schedule",
		},
		{
			name:    "six field schedule is rejected",
			mutate:  func(c *Config) { c.Jobs.Schedules[analytics.JobAlerts] = "0 */15 * * * *" },
			wantErr: "invalid schedule",
		},
		{
			name:    "zero job timeout",
			mutate:  func(c *Config) { c.Jobs.Timeout = 0 },
			wantErr: "job timeout",
		},
		{
			name:    "failure rate above one",
			mutate:  func(c *Config) { c.Jobs.FailureRateThreshold = 1.5 },
			wantErr: "failure rate",
		},
		{
			name:    "negative raw threshold",
			mutate:  func(c *Config) { c.Jobs.RawObjectThreshold = -1 },
			wantErr: "raw object threshold",
		},
		{
			name:    "negative sample limit",
			mutate:  func(c *Config) { c.Jobs.RetentionSampleLimit = -1 },
			wantErr: "retention sample limit",
		},
		{
			name: "otel without endpoint",
			mutate: func(c *Config) {
				c.Observability.OTelEnabled = true
				c.Observability.OTelEndpoint = ""
			},
			wantErr: "OpenTelemetry endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

const sampleFile = `
server:
  health_port: "9191"
postgres:
  url: postgres://file/snapflow
  replica_urls: [postgres://replica/snapflow]
  timeout: 20s
redis:
  url: redis://file:6379
  cache_enabled: false
s3:
  bucket: snapflow-raw
  use_path_style: true
jobs:
  schedules:
    alerts: "*/5 * * * *"
  timeout: 5m
  failure_rate_threshold: 0.25
warmer:
  cdn_base_url: https://cdn.file.test
  workers: 4
observability:
  log_level: warn
  metrics_enabled: false
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapflow.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	cfg := Default()
	if err := cfg.LoadFile(writeFile(t, sampleFile)); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Server.HealthPort != "9191" {
		t.Errorf("HealthPort = %v", cfg.Server.HealthPort)
	}
	if cfg.Storage.PostgresURL != "postgres://file/snapflow" || cfg.Storage.PostgresTimeout != 20*time.Second {
		t.Errorf("postgres = %v / %v", cfg.Storage.PostgresURL, cfg.Storage.PostgresTimeout)
	}
	if len(cfg.Storage.PostgresReplicaURLs) != 1 {
		t.Errorf("replicas = %v", cfg.Storage.PostgresReplicaURLs)
	}
	if cfg.Storage.CacheEnabled {
		t.Error("cache_enabled: false should disable the cache")
	}
	if !cfg.Storage.S3UsePathStyle || cfg.Storage.S3Bucket != "snapflow-raw" {
		t.Errorf("s3 = %+v", cfg.Storage)
	}
	if cfg.Jobs.Schedules[analytics.JobAlerts] != "*/5 * * * *" {
		t.Errorf("alerts schedule = %q", cfg.Jobs.Schedules[analytics.JobAlerts])
	}
	if cfg.Jobs.Schedules[analytics.JobUserCohort] != "0 2 * * *" {
		t.Error("schedules missing from the file keep their defaults")
	}
	if cfg.Jobs.Timeout != 5*time.Minute || cfg.Jobs.FailureRateThreshold != 0.25 {
		t.Errorf("jobs = %+v", cfg.Jobs)
	}
	if cfg.Jobs.RawObjectThreshold != 10000 {
		t.Errorf("RawObjectThreshold = %v, want default", cfg.Jobs.RawObjectThreshold)
	}
	if cfg.Warmer.CDNBaseURL != "https://cdn.file.test" || cfg.Warmer.Workers != 4 {
		t.Errorf("warmer = %+v", cfg.Warmer)
	}
	if cfg.Observability.LogLevel != observability.WarnLevel || cfg.Observability.MetricsEnabled {
		t.Errorf("observability = %+v", cfg.Observability)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if err := Default().LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
	if err := Default().LoadFile(writeFile(t, "jobs: [not, a, map]")); err == nil {
		t.Error("expected parse error")
	}
}

// TestLoadConfig tests the full load path
func TestLoadConfig(t *testing.T) {
	t.Run("env wins over file", func(t *testing.T) {
		t.Setenv("SNAPFLOW_CONFIG_FILE", writeFile(t, sampleFile))
		t.Setenv("SNAPFLOW_POSTGRES_URL", "postgres://env/snapflow")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig: %v", err)
		}
		if cfg.Storage.PostgresURL != "postgres://env/snapflow" {
			t.Errorf("PostgresURL = %v, want env value", cfg.Storage.PostgresURL)
		}
		if cfg.Storage.RedisURL != "redis://file:6379" {
			t.Errorf("RedisURL = %v, want file value", cfg.Storage.RedisURL)
		}
	})

	t.Run("invalid result is rejected", func(t *testing.T) {
		t.Setenv("SNAPFLOW_CONFIG_FILE", "")
		t.Setenv("SNAPFLOW_SCHEDULE_ALERTS", "not a cron")

		if _, err := LoadConfig(); err == nil {
			t.Fatal("expected validation error")
		}
	})

	t.Run("unreadable file", func(t *testing.T) {
		t.Setenv("SNAPFLOW_CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))

		if _, err := LoadConfig(); err == nil {
			t.Fatal("expected error")
		}
	})
}
