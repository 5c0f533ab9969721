package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Reainz/Snapflow-sub001/pkg/analytics"
	"github.com/Reainz/Snapflow-sub001/pkg/observability"
	"github.com/Reainz/Snapflow-sub001/pkg/storage"
	"github.com/Reainz/Snapflow-sub001/pkg/warmer"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Jobs configuration
	Jobs JobsConfig

	// Cache warmer configuration
	Warmer warmer.Config

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds the side HTTP server configuration
type ServerConfig struct {
	// Health/metrics server (k8s probes and Prometheus scrape)
	HealthPort      string
	ShutdownTimeout time.Duration
}

// JobsConfig holds scheduler and rule settings
type JobsConfig struct {
	// Schedules maps job name to a standard 5-field cron spec, evaluated in UTC
	Schedules map[string]string
	// Timeout bounds a single job run
	Timeout time.Duration

	FailureRateThreshold float64
	RawObjectThreshold   int64
	// RetentionSampleLimit caps cohort members checked for retention; 0 checks all
	RetentionSampleLimit int
}

// Thresholds returns the alert thresholds
func (j JobsConfig) Thresholds() analytics.Thresholds {
	return analytics.Thresholds{
		FailureRate: j.FailureRateThreshold,
		RawObjects:  j.RawObjectThreshold,
	}
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// OTel returns the tracing settings for observability.InitOTel
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// DefaultSchedules returns the production job cadences
func DefaultSchedules() map[string]string {
	return map[string]string{
		analytics.JobAPILatency:      "0 * * * *",
		analytics.JobUserCohort:      "0 2 * * *",
		analytics.JobVideoEngagement: "0 3 * * *",
		analytics.JobTrending:        "*/30 * * * *",
		analytics.JobHealthSnapshot:  "*/15 * * * *",
		analytics.JobAlerts:          "*/15 * * * *",
	}
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HealthPort:      "9090",
			ShutdownTimeout: 30 * time.Second,
		},
		Storage: storage.DefaultConfig(),
		Jobs: JobsConfig{
			Schedules:            DefaultSchedules(),
			Timeout:              10 * time.Minute,
			FailureRateThreshold: analytics.DefaultFailureRateThreshold,
			RawObjectThreshold:   analytics.DefaultRawObjectThreshold,
		},
		Warmer: warmer.DefaultConfig(),
		Observability: ObservabilityConfig{
			LogLevel:           observability.InfoLevel,
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "snapflow",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// named by SNAPFLOW_CONFIG_FILE, then SNAPFLOW_* environment variables, and
// validates the result. Environment variables win over the file.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := getEnv("SNAPFLOW_CONFIG_FILE", ""); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.loadServerConfig()
	cfg.loadStorageConfig()
	cfg.loadJobsConfig()
	cfg.loadWarmerConfig()
	cfg.loadObservabilityConfig()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func (c *Config) loadServerConfig() {
	c.Server.HealthPort = getEnv("SNAPFLOW_HEALTH_PORT", c.Server.HealthPort)
	c.Server.ShutdownTimeout = getEnvDuration("SNAPFLOW_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
}

// loadStorageConfig loads storage configuration from environment
func (c *Config) loadStorageConfig() {
	cfg := &c.Storage

	// PostgreSQL config
	if pgURL := getEnv("SNAPFLOW_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if replicaURLs := getEnv("SNAPFLOW_POSTGRES_REPLICA_URLS", ""); replicaURLs != "" {
		cfg.PostgresReplicaURLs = splitList(replicaURLs)
	}
	if maxConns := getEnvInt("SNAPFLOW_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("SNAPFLOW_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("SNAPFLOW_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	// S3 config
	cfg.S3Endpoint = getEnv("SNAPFLOW_S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3Region = getEnv("SNAPFLOW_S3_REGION", cfg.S3Region)
	cfg.S3Bucket = getEnv("SNAPFLOW_S3_BUCKET", cfg.S3Bucket)
	cfg.S3AccessKey = getEnv("SNAPFLOW_S3_ACCESS_KEY", cfg.S3AccessKey)
	cfg.S3SecretKey = getEnv("SNAPFLOW_S3_SECRET_KEY", cfg.S3SecretKey)
	cfg.S3UsePathStyle = getEnvBool("SNAPFLOW_S3_USE_PATH_STYLE", cfg.S3UsePathStyle)
	cfg.S3RawPrefix = getEnv("SNAPFLOW_S3_RAW_PREFIX", cfg.S3RawPrefix)
	if scan := getEnvInt64("SNAPFLOW_S3_MAX_OBJECT_SCAN", 0); scan > 0 {
		cfg.S3MaxObjectScan = scan
	}

	// Redis config
	cfg.RedisURL = getEnv("SNAPFLOW_REDIS_URL", cfg.RedisURL)
	cfg.RedisPassword = getEnv("SNAPFLOW_REDIS_PASSWORD", cfg.RedisPassword)
	if redisDB := getEnvInt("SNAPFLOW_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisPoolSize := getEnvInt("SNAPFLOW_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}
	cfg.RedisChannel = getEnv("SNAPFLOW_REDIS_CHANNEL", cfg.RedisChannel)

	// Cache config
	cfg.CacheEnabled = getEnvBool("SNAPFLOW_CACHE_ENABLED", cfg.CacheEnabled)
	if ttl := getEnvDuration("SNAPFLOW_SNAPSHOT_CACHE_TTL", 0); ttl > 0 {
		cfg.CacheTTL["snapshot"] = ttl
	}
}

// loadJobsConfig loads job settings from environment. Schedules are
// overridden per job with SNAPFLOW_SCHEDULE_<JOB>, e.g. SNAPFLOW_SCHEDULE_API_LATENCY.
func (c *Config) loadJobsConfig() {
	for job, spec := range c.Jobs.Schedules {
		c.Jobs.Schedules[job] = getEnv(scheduleEnvKey(job), spec)
	}
	if timeout := getEnvDuration("SNAPFLOW_JOB_TIMEOUT", 0); timeout > 0 {
		c.Jobs.Timeout = timeout
	}
	c.Jobs.FailureRateThreshold = getEnvFloat("SNAPFLOW_FAILURE_RATE_THRESHOLD", c.Jobs.FailureRateThreshold)
	c.Jobs.RawObjectThreshold = getEnvInt64("SNAPFLOW_RAW_OBJECT_THRESHOLD", c.Jobs.RawObjectThreshold)
	c.Jobs.RetentionSampleLimit = getEnvInt("SNAPFLOW_RETENTION_SAMPLE_LIMIT", c.Jobs.RetentionSampleLimit)
}

// loadWarmerConfig loads cache warmer settings from environment
func (c *Config) loadWarmerConfig() {
	w := &c.Warmer
	w.CDNBaseURL = getEnv("SNAPFLOW_CDN_BASE_URL", w.CDNBaseURL)
	w.RequestTimeout = getEnvDuration("SNAPFLOW_WARM_TIMEOUT", w.RequestTimeout)
	w.SignedURLTTL = getEnvDuration("SNAPFLOW_SIGNED_URL_TTL", w.SignedURLTTL)
	w.Workers = getEnvInt("SNAPFLOW_WARM_WORKERS", w.Workers)
	w.QueueSize = getEnvInt("SNAPFLOW_WARM_QUEUE_SIZE", w.QueueSize)
}

// loadObservabilityConfig loads observability configuration from environment
func (c *Config) loadObservabilityConfig() {
	o := &c.Observability
	if level := getEnv("SNAPFLOW_LOG_LEVEL", ""); level != "" {
		o.LogLevel = observability.ParseLogLevel(level)
	}
	o.MetricsEnabled = getEnvBool("SNAPFLOW_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("SNAPFLOW_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("SNAPFLOW_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("SNAPFLOW_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("SNAPFLOW_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("SNAPFLOW_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("SNAPFLOW_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}

	// Validate storage config
	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required")
	}
	if c.Storage.S3Bucket != "" && c.Storage.S3Region == "" {
		return fmt.Errorf("S3 region is required when a bucket is configured")
	}
	if c.Storage.S3MaxObjectScan < 0 {
		return fmt.Errorf("S3 max object scan must not be negative")
	}

	// Validate jobs config
	for job, spec := range c.Jobs.Schedules {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid schedule %q for job %s: %w", spec, job, err)
		}
	}
	if c.Jobs.Timeout <= 0 {
		return fmt.Errorf("job timeout must be positive")
	}
	if c.Jobs.FailureRateThreshold <= 0 || c.Jobs.FailureRateThreshold > 1 {
		return fmt.Errorf("failure rate threshold must be in (0, 1], got %v", c.Jobs.FailureRateThreshold)
	}
	if c.Jobs.RawObjectThreshold <= 0 {
		return fmt.Errorf("raw object threshold must be positive")
	}
	if c.Jobs.RetentionSampleLimit < 0 {
		return fmt.Errorf("retention sample limit must not be negative")
	}

	// Validate warmer config
	if c.Warmer.Workers < 0 || c.Warmer.QueueSize < 0 {
		return fmt.Errorf("warmer workers and queue size must not be negative")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// ValidateWarmer checks the settings only the cache warmer needs
func (c *Config) ValidateWarmer() error {
	if c.Warmer.CDNBaseURL == "" {
		return fmt.Errorf("CDN base URL is required for the cache warmer")
	}
	return nil
}

// scheduleEnvKey maps a job name like "api-latency" to SNAPFLOW_SCHEDULE_API_LATENCY
func scheduleEnvKey(job string) string {
	return "SNAPFLOW_SCHEDULE_" + strings.ToUpper(strings.ReplaceAll(job, "-", "_"))
}

// splitList splits a comma-separated value, dropping blanks
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
