package postgres

import (
	"context"
	"database/sql"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Reainz/Snapflow-sub001/pkg/analytics"
)

var tracer = otel.Tracer("snapflow/storage/postgres")

// OperationObserver receives the outcome of every storage call.
// *observability.Metrics implements it.
type OperationObserver interface {
	ObserveStorage(operation, backend string, err error, duration time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveStorage(string, string, error, time.Duration) {}

// SnapshotInvalidator drops cached latest snapshots after a write
type SnapshotInvalidator interface {
	InvalidateSnapshots(ctx context.Context, written ...*analytics.Snapshot) error
}

// Store implements the analytics sources and sinks on PostgreSQL.
//
// Writes (snapshots, ranked entries, alerts, warm results) always go to the
// primary. Raw source scans go to the reader, which defaults to the primary
// and can be pointed at a replica pool.
type Store struct {
	db          *sql.DB
	reader      func() *sql.DB
	observer    OperationObserver
	invalidator SnapshotInvalidator
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithReplicas routes source scans through cm's replicas
func WithReplicas(cm *ConnectionManager) StoreOption {
	return func(s *Store) {
		s.reader = cm.Replica
	}
}

// WithObserver records every storage call
func WithObserver(o OperationObserver) StoreOption {
	return func(s *Store) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithSnapshotInvalidator evicts cached snapshots after each successful write
func WithSnapshotInvalidator(inv SnapshotInvalidator) StoreOption {
	return func(s *Store) {
		s.invalidator = inv
	}
}

// NewStore creates a store over db
func NewStore(db *sql.DB, opts ...StoreOption) *Store {
	s := &Store{
		db:       db,
		observer: nopObserver{},
	}
	s.reader = func() *sql.DB { return s.db }
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the primary connection
func (s *Store) DB() *sql.DB {
	return s.db
}

// HealthCheck verifies database connectivity
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// op starts a span for one storage call. The returned func must be called
// with the call's final error.
func (s *Store) op(ctx context.Context, name, table string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "Postgres."+name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("db.system", "postgresql"),
			attribute.String("db.sql.table", table),
		}, attrs...)...),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.observer.ObserveStorage(name, "postgres", err, time.Since(start))
	}
}

// Compile-time interface checks
var (
	_ analytics.SnapshotWriter   = (*Store)(nil)
	_ analytics.SnapshotReader   = (*Store)(nil)
	_ analytics.APICallSource    = (*Store)(nil)
	_ analytics.UserSource       = (*Store)(nil)
	_ analytics.VideoSource      = (*Store)(nil)
	_ analytics.WatchEventSource = (*Store)(nil)
	_ analytics.RankingStore     = (*Store)(nil)
	_ analytics.AlertStore       = (*Store)(nil)
)
