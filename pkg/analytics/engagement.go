package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"
)

const (
	// EngagementSampleLimit bounds the 7-day video scan
	EngagementSampleLimit = 200
	// TopVideosLimit is the length of the engagement and per-video watch lists
	TopVideosLimit = 20
)

// EngagementAggregator computes uploads, top engagement and watch-time statistics once a day
type EngagementAggregator struct {
	jobBase
	videos  VideoSource
	watches WatchEventSource
	out     SnapshotWriter
}

// NewEngagementAggregator creates a new engagement aggregator
func NewEngagementAggregator(videos VideoSource, watches WatchEventSource, out SnapshotWriter, opts ...Option) *EngagementAggregator {
	return &EngagementAggregator{
		jobBase: newJobBase(JobVideoEngagement, opts),
		videos:  videos,
		watches: watches,
		out:     out,
	}
}

// Name implements Job
func (e *EngagementAggregator) Name() string { return JobVideoEngagement }

// Run writes one video_metrics snapshot covering the previous UTC day
func (e *EngagementAggregator) Run(ctx context.Context) error {
	now := e.clock()
	dayStart, dayEnd := PreviousUTCDay(now)

	uploads, err := e.videos.CountVideosCreatedBetween(ctx, dayStart, dayEnd)
	if err != nil {
		return fmt.Errorf("failed to count daily uploads: %w", err)
	}

	recent, err := e.videos.ListReadyVideosCreatedSince(ctx, Trailing(now, 7*24*time.Hour), EngagementSampleLimit)
	if err != nil {
		return fmt.Errorf("failed to list recent videos: %w", err)
	}

	events, err := e.watches.ListWatchEvents(ctx, dayStart, dayEnd)
	if err != nil {
		return fmt.Errorf("failed to list watch events: %w", err)
	}

	metrics := ComputeWatchStats(events)
	metrics.DailyUploads = uploads
	metrics.TopVideos = TopEngagement(recent, TopVideosLimit)

	snap, err := NewSnapshot(KindVideoMetrics, PeriodDaily, metrics, now)
	if err != nil {
		return err
	}
	snap.WithWindow(dayStart, dayEnd)
	if err := e.out.InsertSnapshots(ctx, snap); err != nil {
		return fmt.Errorf("failed to write video metrics snapshot: %w", err)
	}
	e.recorder.SnapshotWritten(string(KindVideoMetrics))

	e.logger.WithFields(map[string]interface{}{
		"uploads":      uploads,
		"watch_events": metrics.TotalWatchEvents,
	}).Info("Video engagement snapshot written")
	return nil
}

// EngagementScore is likes + 2*comments
func EngagementScore(v Video) int64 {
	return v.Likes + 2*v.Comments
}

// TopEngagement ranks videos by EngagementScore and keeps the first limit
func TopEngagement(videos []Video, limit int) []TopVideo {
	top := make([]TopVideo, 0, len(videos))
	for _, v := range videos {
		top = append(top, TopVideo{
			ID:       v.ID,
			Score:    EngagementScore(v),
			Likes:    v.Likes,
			Comments: v.Comments,
		})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Score != top[j].Score {
			return top[i].Score > top[j].Score
		}
		return top[i].ID < top[j].ID
	})
	if len(top) > limit {
		top = top[:limit]
	}
	return top
}

// ComputeWatchStats summarises watch events overall and per video.
// DailyUploads and TopVideos are left for the caller.
func ComputeWatchStats(events []WatchEvent) VideoMetrics {
	metrics := VideoMetrics{
		TopVideos:                []TopVideo{},
		AverageWatchTimePerVideo: []VideoWatchTime{},
		TotalWatchEvents:         len(events),
	}
	if len(events) == 0 {
		return metrics
	}

	type acc struct {
		total float64
		views int
	}
	perVideo := make(map[string]*acc)

	var total float64
	completed := 0
	for _, ev := range events {
		total += ev.WatchDurationSeconds
		if ev.Completed {
			completed++
		}
		a, ok := perVideo[ev.VideoID]
		if !ok {
			a = &acc{}
			perVideo[ev.VideoID] = a
		}
		a.total += ev.WatchDurationSeconds
		a.views++
	}

	metrics.AverageWatchTimeSeconds = round(total/float64(len(events)), 2)
	metrics.CompletionRate = round(ratio(completed, len(events)), 4)

	for id, a := range perVideo {
		metrics.AverageWatchTimePerVideo = append(metrics.AverageWatchTimePerVideo, VideoWatchTime{
			VideoID:      id,
			AvgWatchTime: round(a.total/float64(a.views), 2),
			TotalViews:   a.views,
		})
	}
	sort.Slice(metrics.AverageWatchTimePerVideo, func(i, j int) bool {
		a, b := metrics.AverageWatchTimePerVideo[i], metrics.AverageWatchTimePerVideo[j]
		if a.TotalViews != b.TotalViews {
			return a.TotalViews > b.TotalViews
		}
		return a.VideoID < b.VideoID
	})
	if len(metrics.AverageWatchTimePerVideo) > TopVideosLimit {
		metrics.AverageWatchTimePerVideo = metrics.AverageWatchTimePerVideo[:TopVideosLimit]
	}
	return metrics
}
