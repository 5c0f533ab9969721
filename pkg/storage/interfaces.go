package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("storage: not found")

// Config for storage backends
type Config struct {
	// PostgreSQL config
	PostgresURL         string
	PostgresReplicaURLs []string // Optional read replicas for source scans
	PostgresMaxConns    int
	PostgresMinConns    int
	PostgresTimeout     time.Duration

	// S3 config
	S3Endpoint      string
	S3Region        string
	S3Bucket        string
	S3AccessKey     string
	S3SecretKey     string
	S3UsePathStyle  bool
	S3RawPrefix     string // Prefix holding unprocessed uploads
	S3MaxObjectScan int64  // Upper bound on objects listed per count

	// Redis config
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int
	RedisChannel    string // Pub/sub channel for ranked entry events

	// Cache config
	CacheEnabled bool
	CacheTTL     map[string]time.Duration
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		PostgresURL:      "postgres://localhost/snapflow?sslmode=disable",
		PostgresMaxConns: 10,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		S3Region:         "us-east-1",
		S3RawPrefix:      "raw/",
		S3MaxObjectScan:  25000,
		RedisURL:         "redis://localhost:6379/0",
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
		RedisChannel:     "snapflow:ranked-entries",
		CacheEnabled:     true,
		CacheTTL: map[string]time.Duration{
			"snapshot": 1 * time.Minute,
			"ranking":  30 * time.Second,
		},
	}
}
