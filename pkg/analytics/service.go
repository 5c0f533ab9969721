package analytics

import (
	"context"
	"fmt"
)

// SnapshotCache is an optional read-through cache for latest snapshots.
// SetSnapshot must ignore a snapshot older than the last one written for its
// kind, so a read that raced an insert cannot re-cache the previous row.
type SnapshotCache interface {
	GetSnapshot(ctx context.Context, kind SnapshotKind) (*Snapshot, error) // nil, nil on miss
	SetSnapshot(ctx context.Context, snap *Snapshot) error
}

// RankingReader lists the current ranking
type RankingReader interface {
	ListRanking(ctx context.Context) ([]RankedEntry, error)
}

// AlertReader lists recent alerts
type AlertReader interface {
	ListRecentAlerts(ctx context.Context, limit int) ([]Alert, error)
}

// Service answers the dashboard's "what is current" questions over the
// append-only outputs
type Service struct {
	snapshots SnapshotReader
	ranking   RankingReader
	alerts    AlertReader
	cache     SnapshotCache
}

// NewService creates a new analytics read service. cache may be nil.
func NewService(snapshots SnapshotReader, ranking RankingReader, alerts AlertReader, cache SnapshotCache) *Service {
	return &Service{
		snapshots: snapshots,
		ranking:   ranking,
		alerts:    alerts,
		cache:     cache,
	}
}

// LatestSnapshot returns the newest snapshot of kind
func (s *Service) LatestSnapshot(ctx context.Context, kind SnapshotKind) (*Snapshot, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown snapshot kind %q", kind)
	}

	if s.cache != nil {
		// Cache errors fall through to the store
		if snap, err := s.cache.GetSnapshot(ctx, kind); err == nil && snap != nil {
			return snap, nil
		}
	}

	snap, err := s.snapshots.LatestSnapshot(ctx, kind)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.SetSnapshot(ctx, snap)
	}
	return snap, nil
}

// CurrentRanking returns the ranked entries of the latest trending run, by rank
func (s *Service) CurrentRanking(ctx context.Context) ([]RankedEntry, error) {
	return s.ranking.ListRanking(ctx)
}

// RecentAlerts returns up to limit alerts, newest first
func (s *Service) RecentAlerts(ctx context.Context, limit int) ([]Alert, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.alerts.ListRecentAlerts(ctx, limit)
}
