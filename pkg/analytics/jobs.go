package analytics

import (
	"context"
	"os"
	"time"

	"github.com/Reainz/Snapflow-sub001/pkg/observability"
)

// Job names, also used as metric labels and -job flag values
const (
	JobAPILatency      = "api-latency"
	JobUserCohort      = "user-cohort"
	JobVideoEngagement = "video-engagement"
	JobTrending        = "trending"
	JobHealthSnapshot  = "health-snapshot"
	JobAlerts          = "alerts"
)

// Job is one scheduled, single-shot unit of work. Jobs keep no state between runs.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Recorder receives per-run counters. observability.Metrics implements it.
type Recorder interface {
	SnapshotWritten(kind string)
	AlertEmitted(alertType, severity string)
	RankingReplaced(entries int)
	EventPublishFailed(events int)
}

type nopRecorder struct{}

func (nopRecorder) SnapshotWritten(string)      {}
func (nopRecorder) AlertEmitted(string, string) {}
func (nopRecorder) RankingReplaced(int)         {}
func (nopRecorder) EventPublishFailed(int)      {}

// jobBase carries the collaborators every job shares
type jobBase struct {
	logger   *observability.Logger
	now      func() time.Time
	recorder Recorder
}

func newJobBase(name string, opts []Option) jobBase {
	b := jobBase{
		logger:   observability.NewLogger(observability.InfoLevel, os.Stdout),
		now:      time.Now,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(&b)
	}
	b.logger = b.logger.WithField("job", name)
	return b
}

func (b *jobBase) clock() time.Time {
	return b.now().UTC()
}

// Option configures a job
type Option func(*jobBase)

// WithLogger sets the job logger
func WithLogger(logger *observability.Logger) Option {
	return func(b *jobBase) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithClock overrides the time source (tests, backfills)
func WithClock(now func() time.Time) Option {
	return func(b *jobBase) {
		if now != nil {
			b.now = now
		}
	}
}

// WithRecorder sets the metrics sink
func WithRecorder(r Recorder) Option {
	return func(b *jobBase) {
		if r != nil {
			b.recorder = r
		}
	}
}
