package analytics

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestTopEngagement(t *testing.T) {
	videos := []Video{
		{ID: "b", Likes: 10, Comments: 0},
		{ID: "a", Likes: 0, Comments: 5},
		{ID: "c", Likes: 1, Comments: 10},
		{ID: "d", Likes: 2},
	}

	top := TopEngagement(videos, 3)
	if len(top) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(top))
	}
	wantIDs := []string{"c", "a", "b"}
	for i, id := range wantIDs {
		if top[i].ID != id {
			t.Errorf("top[%d] = %s, want %s", i, top[i].ID, id)
		}
	}
	if top[0].Score != 21 {
		t.Errorf("score = %d, want 21", top[0].Score)
	}
	// a and b tie at 10; id breaks the tie
	if top[1].Score != top[2].Score {
		t.Errorf("expected tie, got %d and %d", top[1].Score, top[2].Score)
	}
}

func TestComputeWatchStats(t *testing.T) {
	m := ComputeWatchStats([]WatchEvent{
		{VideoID: "v1", WatchDurationSeconds: 30, Completed: true},
		{VideoID: "v1", WatchDurationSeconds: 60},
		{VideoID: "v2", WatchDurationSeconds: 90, Completed: true},
	})

	if m.TotalWatchEvents != 3 {
		t.Errorf("total events = %d", m.TotalWatchEvents)
	}
	if m.AverageWatchTimeSeconds != 60 {
		t.Errorf("avg watch time = %v, want 60", m.AverageWatchTimeSeconds)
	}
	if m.CompletionRate != 0.6667 {
		t.Errorf("completion rate = %v, want 0.6667", m.CompletionRate)
	}
	if len(m.AverageWatchTimePerVideo) != 2 {
		t.Fatalf("per video = %+v", m.AverageWatchTimePerVideo)
	}
	if got := m.AverageWatchTimePerVideo[0]; got != (VideoWatchTime{VideoID: "v1", AvgWatchTime: 45, TotalViews: 2}) {
		t.Errorf("first per-video entry = %+v", got)
	}
}

func TestComputeWatchStats_Empty(t *testing.T) {
	m := ComputeWatchStats(nil)
	if m.TotalWatchEvents != 0 || m.AverageWatchTimeSeconds != 0 || m.CompletionRate != 0 {
		t.Errorf("empty stats = %+v", m)
	}
	if m.AverageWatchTimePerVideo == nil || m.TopVideos == nil {
		t.Error("lists should be empty, not nil")
	}
}

func TestComputeWatchStats_PerVideoLimit(t *testing.T) {
	var events []WatchEvent
	for i := 0; i < TopVideosLimit+5; i++ {
		events = append(events, WatchEvent{VideoID: fmt.Sprintf("v%02d", i), WatchDurationSeconds: 10})
	}
	if got := len(ComputeWatchStats(events).AverageWatchTimePerVideo); got != TopVideosLimit {
		t.Errorf("per video entries = %d, want %d", got, TopVideosLimit)
	}
}

func TestEngagementAggregator_Run(t *testing.T) {
	store := newFakeStore()
	store.uploads = 4
	store.ready = []Video{
		{ID: "v1", Likes: 3, Comments: 1},
		{ID: "v2", Likes: 9},
	}
	store.watches = []WatchEvent{{VideoID: "v1", WatchDurationSeconds: 12, Completed: true}}

	agg := NewEngagementAggregator(store, store, store, testOpts()...)
	if agg.Name() != JobVideoEngagement {
		t.Errorf("Name() = %q", agg.Name())
	}
	if err := agg.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(store.listedLimit) != 1 || store.listedLimit[0] != EngagementSampleLimit {
		t.Errorf("sample limit = %v", store.listedLimit)
	}
	if !store.listedSince[0].Equal(testNow.Add(-7 * 24 * time.Hour)) {
		t.Errorf("candidate cutoff = %v", store.listedSince[0])
	}

	snaps := store.snapshotsOf(KindVideoMetrics)
	if len(snaps) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snaps))
	}
	dayStart := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	if snaps[0].WindowStart == nil || !snaps[0].WindowStart.Equal(dayStart) {
		t.Errorf("window start = %v, want %v", snaps[0].WindowStart, dayStart)
	}

	var m VideoMetrics
	if err := snaps[0].Decode(&m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.DailyUploads != 4 {
		t.Errorf("uploads = %d", m.DailyUploads)
	}
	if len(m.TopVideos) != 2 || m.TopVideos[0].ID != "v2" {
		t.Errorf("top videos = %+v", m.TopVideos)
	}
	if m.CompletionRate != 1 {
		t.Errorf("completion = %v", m.CompletionRate)
	}
}
