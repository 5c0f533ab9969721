package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

const (
	// TrendingSampleLimit bounds the 7-day candidate scan
	TrendingSampleLimit = 500
	// TrendingSize is the number of ranked entries kept per cycle
	TrendingSize = 50
	// TrendingWindow is how far back candidates may have been created
	TrendingWindow = 7 * 24 * time.Hour
)

// TrendingRanker rescores recent videos and replaces the ranking every cycle
type TrendingRanker struct {
	jobBase
	videos    VideoSource
	ranking   RankingStore
	publisher EventPublisher
}

// NewTrendingRanker creates a new ranker. publisher may be nil when nothing
// consumes ranked entry events.
func NewTrendingRanker(videos VideoSource, ranking RankingStore, publisher EventPublisher, opts ...Option) *TrendingRanker {
	return &TrendingRanker{
		jobBase:   newJobBase(JobTrending, opts),
		videos:    videos,
		ranking:   ranking,
		publisher: publisher,
	}
}

// Name implements Job
func (t *TrendingRanker) Name() string { return JobTrending }

// Run scores candidates and swaps in the new ranking as one transaction
func (t *TrendingRanker) Run(ctx context.Context) error {
	now := t.clock()

	candidates, err := t.videos.ListReadyVideosCreatedSince(ctx, Trailing(now, TrendingWindow), TrendingSampleLimit)
	if err != nil {
		return fmt.Errorf("failed to list trending candidates: %w", err)
	}

	entries := RankVideos(candidates, now, TrendingSize)
	generation := uuid.NewString()
	for i := range entries {
		entries[i].ID = uuid.NewString()
		entries[i].Generation = generation
	}

	if err := t.ranking.ReplaceRanking(ctx, entries); err != nil {
		return fmt.Errorf("failed to replace ranking: %w", err)
	}
	t.recorder.RankingReplaced(len(entries))

	logger := t.logger.WithFields(map[string]interface{}{
		"generation": generation,
		"candidates": len(candidates),
		"entries":    len(entries),
	})
	logger.Info("Trending ranking replaced")

	if t.publisher == nil || len(entries) == 0 {
		return nil
	}

	// The ranking is committed; a failed fan-out only delays warming.
	events := make([]RankedEntryCreated, 0, len(entries))
	for _, e := range entries {
		events = append(events, RankedEntryCreated{
			EntryID:    e.ID,
			Generation: e.Generation,
			VideoID:    e.VideoID,
			Rank:       e.Rank,
		})
	}
	if err := t.publisher.PublishRankedEntries(ctx, events); err != nil {
		t.recorder.EventPublishFailed(len(events))
		logger.WithError(err).Warn("Failed to publish ranked entry events")
	}
	return nil
}

// TrendingScore is (likes + 2*comments + 3*shares) / sqrt(max(1, hours since creation))
func TrendingScore(v Video, now time.Time) float64 {
	base := float64(v.Likes + 2*v.Comments + 3*v.Shares)
	hours := math.Max(1, HoursSince(v.CreatedAt, now))
	return base / math.Sqrt(hours)
}

// RankVideos scores videos, sorts them descending (ties by video id) and
// returns the first limit as ranked entries with 1-based ranks
func RankVideos(videos []Video, now time.Time, limit int) []RankedEntry {
	entries := make([]RankedEntry, 0, len(videos))
	for _, v := range videos {
		entries = append(entries, RankedEntry{
			VideoID:      v.ID,
			Score:        TrendingScore(v, now),
			CalculatedAt: now,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].VideoID < entries[j].VideoID
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
