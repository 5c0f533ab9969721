package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Reainz/Snapflow-sub001/pkg/observability"
)

// File is the YAML layout accepted by LoadFile. Zero values leave the
// current setting untouched.
type File struct {
	Server struct {
		HealthPort      string        `yaml:"health_port"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Postgres struct {
		URL         string        `yaml:"url"`
		ReplicaURLs []string      `yaml:"replica_urls"`
		MaxConns    int           `yaml:"max_conns"`
		MinConns    int           `yaml:"min_conns"`
		Timeout     time.Duration `yaml:"timeout"`
	} `yaml:"postgres"`

	Redis struct {
		URL              string        `yaml:"url"`
		Password         string        `yaml:"password"`
		DB               *int          `yaml:"db"`
		PoolSize         int           `yaml:"pool_size"`
		Channel          string        `yaml:"channel"`
		CacheEnabled     *bool         `yaml:"cache_enabled"`
		SnapshotCacheTTL time.Duration `yaml:"snapshot_cache_ttl"`
	} `yaml:"redis"`

	S3 struct {
		Endpoint      string `yaml:"endpoint"`
		Region        string `yaml:"region"`
		Bucket        string `yaml:"bucket"`
		AccessKey     string `yaml:"access_key"`
		SecretKey     string `yaml:"secret_key"`
		UsePathStyle  *bool  `yaml:"use_path_style"`
		RawPrefix     string `yaml:"raw_prefix"`
		MaxObjectScan int64  `yaml:"max_object_scan"`
	} `yaml:"s3"`

	Jobs struct {
		Schedules            map[string]string `yaml:"schedules"`
		Timeout              time.Duration     `yaml:"timeout"`
		FailureRateThreshold float64           `yaml:"failure_rate_threshold"`
		RawObjectThreshold   int64             `yaml:"raw_object_threshold"`
		RetentionSampleLimit int               `yaml:"retention_sample_limit"`
	} `yaml:"jobs"`

	Warmer struct {
		CDNBaseURL     string        `yaml:"cdn_base_url"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
		SignedURLTTL   time.Duration `yaml:"signed_url_ttl"`
		Workers        int           `yaml:"workers"`
		QueueSize      int           `yaml:"queue_size"`
	} `yaml:"warmer"`

	Observability struct {
		LogLevel        string  `yaml:"log_level"`
		MetricsEnabled  *bool   `yaml:"metrics_enabled"`
		OTelEnabled     *bool   `yaml:"otel_enabled"`
		OTelEndpoint    string  `yaml:"otel_endpoint"`
		OTelServiceName string  `yaml:"otel_service_name"`
		OTelInsecure    *bool   `yaml:"otel_insecure"`
		OTelSampleRatio float64 `yaml:"otel_sample_ratio"`
	} `yaml:"observability"`
}

// LoadFile overlays the YAML file at path onto c
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.Apply(&f)
	return nil
}

// Apply overlays every non-zero setting of f onto c
func (c *Config) Apply(f *File) {
	set(&c.Server.HealthPort, f.Server.HealthPort)
	set(&c.Server.ShutdownTimeout, f.Server.ShutdownTimeout)

	s := &c.Storage
	set(&s.PostgresURL, f.Postgres.URL)
	if len(f.Postgres.ReplicaURLs) > 0 {
		s.PostgresReplicaURLs = f.Postgres.ReplicaURLs
	}
	set(&s.PostgresMaxConns, f.Postgres.MaxConns)
	set(&s.PostgresMinConns, f.Postgres.MinConns)
	set(&s.PostgresTimeout, f.Postgres.Timeout)

	set(&s.RedisURL, f.Redis.URL)
	set(&s.RedisPassword, f.Redis.Password)
	setPtr(&s.RedisDB, f.Redis.DB)
	set(&s.RedisPoolSize, f.Redis.PoolSize)
	set(&s.RedisChannel, f.Redis.Channel)
	setPtr(&s.CacheEnabled, f.Redis.CacheEnabled)
	if f.Redis.SnapshotCacheTTL > 0 {
		s.CacheTTL["snapshot"] = f.Redis.SnapshotCacheTTL
	}

	set(&s.S3Endpoint, f.S3.Endpoint)
	set(&s.S3Region, f.S3.Region)
	set(&s.S3Bucket, f.S3.Bucket)
	set(&s.S3AccessKey, f.S3.AccessKey)
	set(&s.S3SecretKey, f.S3.SecretKey)
	setPtr(&s.S3UsePathStyle, f.S3.UsePathStyle)
	set(&s.S3RawPrefix, f.S3.RawPrefix)
	set(&s.S3MaxObjectScan, f.S3.MaxObjectScan)

	for job, spec := range f.Jobs.Schedules {
		c.Jobs.Schedules[job] = spec
	}
	set(&c.Jobs.Timeout, f.Jobs.Timeout)
	set(&c.Jobs.FailureRateThreshold, f.Jobs.FailureRateThreshold)
	set(&c.Jobs.RawObjectThreshold, f.Jobs.RawObjectThreshold)
	set(&c.Jobs.RetentionSampleLimit, f.Jobs.RetentionSampleLimit)

	set(&c.Warmer.CDNBaseURL, f.Warmer.CDNBaseURL)
	set(&c.Warmer.RequestTimeout, f.Warmer.RequestTimeout)
	set(&c.Warmer.SignedURLTTL, f.Warmer.SignedURLTTL)
	set(&c.Warmer.Workers, f.Warmer.Workers)
	set(&c.Warmer.QueueSize, f.Warmer.QueueSize)

	o := &c.Observability
	if f.Observability.LogLevel != "" {
		o.LogLevel = observability.ParseLogLevel(f.Observability.LogLevel)
	}
	setPtr(&o.MetricsEnabled, f.Observability.MetricsEnabled)
	setPtr(&o.OTelEnabled, f.Observability.OTelEnabled)
	set(&o.OTelEndpoint, f.Observability.OTelEndpoint)
	set(&o.OTelServiceName, f.Observability.OTelServiceName)
	setPtr(&o.OTelInsecure, f.Observability.OTelInsecure)
	set(&o.OTelSampleRatio, f.Observability.OTelSampleRatio)
}

func set[T comparable](dst *T, v T) {
	var zero T
	if v != zero {
		*dst = v
	}
}

func setPtr[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
