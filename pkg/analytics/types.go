package analytics

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnapshotKind identifies the payload carried by a Snapshot
type SnapshotKind string

const (
	KindAPIMetrics             SnapshotKind = "api_metrics"
	KindUserMetrics            SnapshotKind = "user_metrics"
	KindVideoMetrics           SnapshotKind = "video_metrics"
	KindGeographicDistribution SnapshotKind = "geographic_distribution"
	KindSystemHealth           SnapshotKind = "system_health"
)

// Valid reports whether k is one of the known snapshot kinds
func (k SnapshotKind) Valid() bool {
	switch k {
	case KindAPIMetrics, KindUserMetrics, KindVideoMetrics, KindGeographicDistribution, KindSystemHealth:
		return true
	}
	return false
}

// Period is the cadence a snapshot was computed on
type Period string

const (
	PeriodHourly      Period = "hourly"
	PeriodDaily       Period = "daily"
	PeriodQuarterHour Period = "quarter-hour"
)

// Snapshot is an immutable record of one aggregation run.
// Snapshots are never updated; the newest one per kind (by CreatedAt) is current.
type Snapshot struct {
	ID          string          `json:"id"`
	Kind        SnapshotKind    `json:"kind"`
	Period      Period          `json:"period"`
	Metrics     json.RawMessage `json:"metrics"`
	WindowStart *time.Time      `json:"windowStart,omitempty"`
	WindowEnd   *time.Time      `json:"windowEnd,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// NewSnapshot encodes metrics and stamps a fresh snapshot at createdAt
func NewSnapshot(kind SnapshotKind, period Period, metrics interface{}, createdAt time.Time) (*Snapshot, error) {
	payload, err := json.Marshal(metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s metrics: %w", kind, err)
	}
	return &Snapshot{
		ID:        uuid.NewString(),
		Kind:      kind,
		Period:    period,
		Metrics:   payload,
		CreatedAt: createdAt.UTC(),
	}, nil
}

// WithWindow records the event-time range the computation covered
func (s *Snapshot) WithWindow(start, end time.Time) *Snapshot {
	start, end = start.UTC(), end.UTC()
	s.WindowStart = &start
	s.WindowEnd = &end
	return s
}

// Decode unmarshals the metrics payload into v
func (s *Snapshot) Decode(v interface{}) error {
	return json.Unmarshal(s.Metrics, v)
}

// FunctionLatency is the per-endpoint entry of an api_metrics snapshot
type FunctionLatency struct {
	Name              string  `json:"name"`
	AvgResponseTimeMs float64 `json:"avgResponseTimeMs"`
	ErrorRate         float64 `json:"errorRate"`
	TotalCalls        int     `json:"totalCalls"`
	P95ResponseTimeMs float64 `json:"p95ResponseTimeMs"`
	Errors            int     `json:"errors"`
}

// APIMetrics is the payload of an api_metrics snapshot
type APIMetrics struct {
	Functions              []FunctionLatency `json:"functions"`
	OverallAvgResponseTime float64           `json:"overallAvgResponseTime"`
	OverallErrorRate       float64           `json:"overallErrorRate"`
	TotalCalls             int               `json:"totalCalls"`
	TotalErrors            int               `json:"totalErrors"`
}

// UserMetrics is the payload of a user_metrics snapshot
type UserMetrics struct {
	DAU             int     `json:"dau"`
	WAU             int     `json:"wau"`
	MAU             int     `json:"mau"`
	D1RetentionRate float64 `json:"d1RetentionRate"`
	NewUsers        int     `json:"newUsers"`
}

// CountryCount is one row of the country breakdown
type CountryCount struct {
	CountryCode string `json:"countryCode"`
	Count       int    `json:"count"`
}

// RegionCount is one row of the region breakdown
type RegionCount struct {
	Region string `json:"region"`
	Count  int    `json:"count"`
}

// GeoDistribution is the payload of a geographic_distribution snapshot
type GeoDistribution struct {
	Countries             []CountryCount `json:"countries"`
	Regions               []RegionCount  `json:"regions"`
	TotalUsersWithGeoData int            `json:"totalUsersWithGeoData"`
}

// TopVideo is one entry of the 7-day engagement list
type TopVideo struct {
	ID       string `json:"id"`
	Score    int64  `json:"score"`
	Likes    int64  `json:"likes"`
	Comments int64  `json:"comments"`
}

// VideoWatchTime is the per-video watch summary
type VideoWatchTime struct {
	VideoID      string  `json:"videoId"`
	AvgWatchTime float64 `json:"avgWatchTime"`
	TotalViews   int     `json:"totalViews"`
}

// VideoMetrics is the payload of a video_metrics snapshot
type VideoMetrics struct {
	DailyUploads             int              `json:"dailyUploads"`
	TopVideos                []TopVideo       `json:"topVideos"`
	AverageWatchTimeSeconds  float64          `json:"averageWatchTimeSeconds"`
	AverageWatchTimePerVideo []VideoWatchTime `json:"averageWatchTimePerVideo"`
	CompletionRate           float64          `json:"completionRate"`
	TotalWatchEvents         int              `json:"totalWatchEvents"`
}

// SystemHealth is the payload of a system_health snapshot.
// StorageRawFilesCount is nil when the object store could not be read.
type SystemHealth struct {
	ProcessingSuccessRate float64 `json:"processingSuccessRate"`
	ProcessingErrors      int     `json:"processingErrors"`
	ProcessingInFlight    int     `json:"processingInFlight"`
	VideosUpdatedLastHour int     `json:"videosUpdatedLastHour"`
	StorageRawFilesCount  *int64  `json:"storageRawFilesCount"`
}

// RankedEntry is one row of the current trending ranking
type RankedEntry struct {
	ID           string     `json:"id"`
	Generation   string     `json:"generation"`
	VideoID      string     `json:"videoId"`
	Score        float64    `json:"score"`
	Rank         int        `json:"rank"`
	CalculatedAt time.Time  `json:"calculatedAt"`
	WarmedAt     *time.Time `json:"warmedAt,omitempty"`
	WarmFailed   bool       `json:"warmFailed,omitempty"`
	WarmError    string     `json:"warmError,omitempty"`
}

// RankedEntryCreated is published once per inserted ranked entry
type RankedEntryCreated struct {
	EntryID    string `json:"entryId"`
	Generation string `json:"generation"`
	VideoID    string `json:"videoId"`
	Rank       int    `json:"rank"`
}

// Severity of an alert
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// AlertType names the rule that produced an alert
type AlertType string

const (
	AlertProcessingFailure AlertType = "processing_failure"
	AlertStorageWarning    AlertType = "storage_warning"
)

// Alert is an append-only notification for one threshold violation
type Alert struct {
	ID           string    `json:"id"`
	Type         AlertType `json:"type"`
	Severity     Severity  `json:"severity"`
	Message      string    `json:"message"`
	Threshold    float64   `json:"threshold"`
	CurrentValue float64   `json:"currentValue"`
	Acknowledged bool      `json:"acknowledged"`
	CreatedAt    time.Time `json:"createdAt"`
}

// APICall is one raw per-call latency record
type APICall struct {
	FunctionName string
	DurationMs   float64
	IsError      bool
	CreatedAt    time.Time
}

// WatchEvent is one raw playback record
type WatchEvent struct {
	VideoID              string
	UserID               string
	WatchDurationSeconds float64
	Completed            bool
	CreatedAt            time.Time
}

// Video statuses
const (
	StatusReady      = "ready"
	StatusFailed     = "failed"
	StatusProcessing = "processing"
)

// Video is the subset of a video document the jobs read
type Video struct {
	ID           string
	Status       string
	Likes        int64
	Comments     int64
	Shares       int64
	Visibility   string
	ManifestPath string
	AssetKey     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserActivity carries a user's activity timestamps as stored.
// Values may be time.Time, epoch numbers or {seconds, nanoseconds} pairs
// depending on which client wrote the record; see CoerceEpochMillis.
type UserActivity struct {
	ID          string
	LastLoginAt interface{}
	UpdatedAt   interface{}
}

// UserGeo is the location portion of a user document
type UserGeo struct {
	CountryCode string
	Region      string
}

// StatusCounts tallies videos by processing status
type StatusCounts struct {
	Ready      int
	Failed     int
	Processing int
	Total      int // every scanned video, including statuses not listed above
}
