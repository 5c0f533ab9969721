package analytics

import (
	"context"
	"time"
)

// ActivityField names a user timestamp column usable as an activity signal
type ActivityField string

const (
	// ActivityLastLogin is the primary activity signal
	ActivityLastLogin ActivityField = "last_login_at"
	// ActivityUpdated substitutes for ActivityLastLogin on records that predate it
	ActivityUpdated ActivityField = "updated_at"
)

// SnapshotWriter appends snapshots. All snapshots passed in one call are
// written atomically.
type SnapshotWriter interface {
	InsertSnapshots(ctx context.Context, snapshots ...*Snapshot) error
}

// SnapshotReader returns the newest snapshot of a kind
type SnapshotReader interface {
	LatestSnapshot(ctx context.Context, kind SnapshotKind) (*Snapshot, error)
}

// APICallSource reads raw per-call records
type APICallSource interface {
	ListAPICalls(ctx context.Context, from, to time.Time) ([]APICall, error)
}

// UserSource reads user documents
type UserSource interface {
	CountActiveUsers(ctx context.Context, field ActivityField, since time.Time) (int, error)
	ListUserIDsCreatedBetween(ctx context.Context, from, to time.Time) ([]string, error)
	GetUserActivity(ctx context.Context, ids []string) ([]UserActivity, error)
	ListUserGeo(ctx context.Context) ([]UserGeo, error)
}

// VideoSource reads video documents
type VideoSource interface {
	CountVideosCreatedBetween(ctx context.Context, from, to time.Time) (int, error)
	ListReadyVideosCreatedSince(ctx context.Context, since time.Time, limit int) ([]Video, error)
	CountVideoStatusesUpdatedSince(ctx context.Context, since time.Time) (StatusCounts, error)
}

// WatchEventSource reads raw playback records
type WatchEventSource interface {
	ListWatchEvents(ctx context.Context, from, to time.Time) ([]WatchEvent, error)
}

// RankingStore owns the ranked entries collection
type RankingStore interface {
	// ReplaceRanking deletes every stored entry and inserts entries in one transaction
	ReplaceRanking(ctx context.Context, entries []RankedEntry) error
	ListRanking(ctx context.Context) ([]RankedEntry, error)
}

// AlertStore appends and lists alerts
type AlertStore interface {
	InsertAlerts(ctx context.Context, alerts []Alert) error
	ListRecentAlerts(ctx context.Context, limit int) ([]Alert, error)
}

// ObjectCounter approximates the number of objects under a prefix
type ObjectCounter interface {
	CountObjects(ctx context.Context, prefix string) (int64, error)
}

// EventPublisher fans out ranked entry creation
type EventPublisher interface {
	PublishRankedEntries(ctx context.Context, events []RankedEntryCreated) error
}
