// Package storage holds the backend configuration shared by the Snapflow jobs
// and the cache warmer.
//
// # Backends
//
// The concrete backends live in pkg/storage/postgres:
//
//   - Store: PostgreSQL access to the raw event tables (api_call_records,
//     watch_events, users, videos) and the derived, append-only output tables
//     (analytics_snapshots, ranked_entries, alerts).
//   - S3Client: approximate object counts under the raw upload prefix and
//     short-lived presigned URLs for restricted manifests.
//   - RedisClient: pub/sub fan-out of ranked entry creation and a short-TTL
//     read cache for latest snapshots.
//
// Interfaces are declared by their consumers (pkg/analytics, pkg/warmer), so
// this package only carries Config and the shared sentinel errors.
//
// # Configuration
//
//	cfg := storage.DefaultConfig()
//	cfg.PostgresURL = "postgres://snapflow@db/snapflow"
//	cfg.S3Bucket = "snapflow-media"
//	cm, err := postgres.Connect(ctx, cfg, logger)
//	store := postgres.NewStore(cm.Primary(), postgres.WithReplicas(cm))
package storage
