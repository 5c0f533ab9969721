package analytics

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/Reainz/Snapflow-sub001/pkg/observability"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func testOpts(extra ...Option) []Option {
	return append([]Option{
		WithLogger(observability.NewLogger(observability.ErrorLevel, io.Discard)),
		WithClock(fixedClock),
	}, extra...)
}

// fakeStore is an in-memory implementation of every source and sink
type fakeStore struct {
	mu sync.Mutex

	apiCalls    []APICall
	activeBy    map[ActivityField]int
	activeErr   map[ActivityField]error
	cohortIDs   []string
	activity    map[string]UserActivity
	activityReq [][]string
	geo         []UserGeo
	uploads     int
	ready       []Video
	statuses    StatusCounts
	statusErr   error
	watches     []WatchEvent

	snapshots  []*Snapshot
	insertErr  error
	ranking    []RankedEntry
	replaceErr error
	replaced   int
	alerts     []Alert
	alertErr   error

	listedSince []time.Time
	listedLimit []int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		activeBy:  map[ActivityField]int{},
		activeErr: map[ActivityField]error{},
		activity:  map[string]UserActivity{},
	}
}

func (f *fakeStore) ListAPICalls(_ context.Context, from, to time.Time) ([]APICall, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []APICall
	for _, c := range f.apiCalls {
		if !c.CreatedAt.Before(from) && c.CreatedAt.Before(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) CountActiveUsers(_ context.Context, field ActivityField, _ time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeBy[field], f.activeErr[field]
}

func (f *fakeStore) ListUserIDsCreatedBetween(context.Context, time.Time, time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cohortIDs...), nil
}

func (f *fakeStore) GetUserActivity(_ context.Context, ids []string) ([]UserActivity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activityReq = append(f.activityReq, append([]string(nil), ids...))
	var out []UserActivity
	for _, id := range ids {
		if u, ok := f.activity[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeStore) ListUserGeo(context.Context) ([]UserGeo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.geo, nil
}

func (f *fakeStore) CountVideosCreatedBetween(context.Context, time.Time, time.Time) (int, error) {
	return f.uploads, nil
}

func (f *fakeStore) ListReadyVideosCreatedSince(_ context.Context, since time.Time, limit int) ([]Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listedSince = append(f.listedSince, since)
	f.listedLimit = append(f.listedLimit, limit)
	out := f.ready
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) CountVideoStatusesUpdatedSince(context.Context, time.Time) (StatusCounts, error) {
	return f.statuses, f.statusErr
}

func (f *fakeStore) ListWatchEvents(context.Context, time.Time, time.Time) ([]WatchEvent, error) {
	return f.watches, nil
}

func (f *fakeStore) InsertSnapshots(_ context.Context, snapshots ...*Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.snapshots = append(f.snapshots, snapshots...)
	return nil
}

func (f *fakeStore) LatestSnapshot(_ context.Context, kind SnapshotKind) (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *Snapshot
	for _, s := range f.snapshots {
		if s.Kind == kind && (latest == nil || s.CreatedAt.After(latest.CreatedAt)) {
			latest = s
		}
	}
	if latest == nil {
		return nil, errNotFound
	}
	return latest, nil
}

func (f *fakeStore) ReplaceRanking(_ context.Context, entries []RankedEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.ranking = append([]RankedEntry(nil), entries...)
	f.replaced++
	return nil
}

func (f *fakeStore) ListRanking(context.Context) ([]RankedEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RankedEntry{}, f.ranking...), nil
}

func (f *fakeStore) InsertAlerts(_ context.Context, alerts []Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.alertErr != nil {
		return f.alertErr
	}
	f.alerts = append(f.alerts, alerts...)
	return nil
}

func (f *fakeStore) ListRecentAlerts(_ context.Context, limit int) ([]Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Alert, 0, limit)
	for i := len(f.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.alerts[i])
	}
	return out, nil
}

func (f *fakeStore) snapshotsOf(kind SnapshotKind) []*Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Snapshot
	for _, s := range f.snapshots {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

type notFoundError struct{}

func (notFoundError) Error() string { return "not found" }

var errNotFound error = notFoundError{}

type fakeObjects struct {
	count int64
	err   error
	calls int
}

func (f *fakeObjects) CountObjects(context.Context, string) (int64, error) {
	f.calls++
	return f.count, f.err
}

type fakePublisher struct {
	events []RankedEntryCreated
	err    error
}

func (f *fakePublisher) PublishRankedEntries(_ context.Context, events []RankedEntryCreated) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, events...)
	return nil
}

type fakeRecorder struct {
	mu             sync.Mutex
	snapshots      map[string]int
	alerts         map[string]int
	rankingEntries []int
	publishFailed  int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{snapshots: map[string]int{}, alerts: map[string]int{}}
}

func (r *fakeRecorder) SnapshotWritten(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[kind]++
}

func (r *fakeRecorder) AlertEmitted(alertType, severity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts[alertType+"/"+severity]++
}

func (r *fakeRecorder) RankingReplaced(entries int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rankingEntries = append(r.rankingEntries, entries)
}

func (r *fakeRecorder) EventPublishFailed(events int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishFailed += events
}
