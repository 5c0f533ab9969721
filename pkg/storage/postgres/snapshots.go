package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Reainz/Snapflow-sub001/pkg/analytics"
	"github.com/Reainz/Snapflow-sub001/pkg/storage"
)

// InsertSnapshots appends snapshots in one transaction
func (s *Store) InsertSnapshots(ctx context.Context, snapshots ...*analytics.Snapshot) (err error) {
	if len(snapshots) == 0 {
		return nil
	}

	ctx, done := s.op(ctx, "InsertSnapshots", "analytics_snapshots", attribute.Int("snapshots", len(snapshots)))
	defer func() { done(err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO analytics_snapshots (id, kind, period, metrics, window_start, window_end, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, snap := range snapshots {
		if _, err := tx.ExecContext(ctx, query,
			snap.ID,
			string(snap.Kind),
			string(snap.Period),
			[]byte(snap.Metrics),
			snap.WindowStart,
			snap.WindowEnd,
			snap.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert %s snapshot: %w", snap.Kind, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshots: %w", err)
	}

	// Best effort; a stale cache entry expires on its own
	if s.invalidator != nil {
		_ = s.invalidator.InvalidateSnapshots(ctx, snapshots...)
	}
	return nil
}

// LatestSnapshot returns the newest snapshot of kind by creation time
func (s *Store) LatestSnapshot(ctx context.Context, kind analytics.SnapshotKind) (_ *analytics.Snapshot, err error) {
	ctx, done := s.op(ctx, "LatestSnapshot", "analytics_snapshots", attribute.String("snapshot.kind", string(kind)))
	defer func() { done(err) }()

	const query = `
		SELECT id, kind, period, metrics, window_start, window_end, created_at
		FROM analytics_snapshots
		WHERE kind = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	var (
		snap        analytics.Snapshot
		kindStr     string
		period      string
		metrics     []byte
		windowStart sql.NullTime
		windowEnd   sql.NullTime
	)
	err = s.db.QueryRowContext(ctx, query, string(kind)).Scan(
		&snap.ID, &kindStr, &period, &metrics, &windowStart, &windowEnd, &snap.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no %s snapshot: %w", kind, storage.ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get latest %s snapshot: %w", kind, err)
	}

	snap.Kind = analytics.SnapshotKind(kindStr)
	snap.Period = analytics.Period(period)
	snap.Metrics = metrics
	snap.CreatedAt = snap.CreatedAt.UTC()
	if windowStart.Valid && windowEnd.Valid {
		snap.WithWindow(windowStart.Time, windowEnd.Time)
	}
	return &snap, nil
}
