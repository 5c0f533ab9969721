package analytics

import (
	"context"
	"fmt"
	"time"
)

// HealthWindow is the trailing window both quarter-hour jobs scan
const HealthWindow = time.Hour

// HealthSnapshotter records processing success and raw storage usage
type HealthSnapshotter struct {
	jobBase
	videos    VideoSource
	objects   ObjectCounter
	rawPrefix string
	out       SnapshotWriter
}

// NewHealthSnapshotter creates a new health snapshot job. objects may be nil,
// in which case the storage count is always reported as null.
func NewHealthSnapshotter(videos VideoSource, objects ObjectCounter, rawPrefix string, out SnapshotWriter, opts ...Option) *HealthSnapshotter {
	return &HealthSnapshotter{
		jobBase:   newJobBase(JobHealthSnapshot, opts),
		videos:    videos,
		objects:   objects,
		rawPrefix: rawPrefix,
		out:       out,
	}
}

// Name implements Job
func (h *HealthSnapshotter) Name() string { return JobHealthSnapshot }

// Run writes one system_health snapshot
func (h *HealthSnapshotter) Run(ctx context.Context) error {
	now := h.clock()

	counts, err := h.videos.CountVideoStatusesUpdatedSince(ctx, Trailing(now, HealthWindow))
	if err != nil {
		return fmt.Errorf("failed to count video statuses: %w", err)
	}

	metrics := ComputeSystemHealth(counts)
	metrics.StorageRawFilesCount = countRawObjects(ctx, h.objects, h.rawPrefix, h.jobBase)

	snap, err := NewSnapshot(KindSystemHealth, PeriodQuarterHour, metrics, now)
	if err != nil {
		return err
	}
	snap.WithWindow(Trailing(now, HealthWindow), now)
	if err := h.out.InsertSnapshots(ctx, snap); err != nil {
		return fmt.Errorf("failed to write system health snapshot: %w", err)
	}
	h.recorder.SnapshotWritten(string(KindSystemHealth))

	h.logger.WithFields(map[string]interface{}{
		"success_rate": metrics.ProcessingSuccessRate,
		"failed":       metrics.ProcessingErrors,
		"in_flight":    metrics.ProcessingInFlight,
	}).Info("System health snapshot written")
	return nil
}

// ComputeSystemHealth derives the success rate over ready, failed and
// processing videos. With nothing in any bucket the rate is 1.
func ComputeSystemHealth(c StatusCounts) SystemHealth {
	rate := 1.0
	if den := c.Ready + c.Failed + c.Processing; den > 0 {
		rate = round(float64(c.Ready)/float64(den), 4)
	}
	return SystemHealth{
		ProcessingSuccessRate: rate,
		ProcessingErrors:      c.Failed,
		ProcessingInFlight:    c.Processing,
		VideosUpdatedLastHour: c.Total,
	}
}

// countRawObjects is best-effort: a failed count is logged and reported as nil
func countRawObjects(ctx context.Context, objects ObjectCounter, prefix string, b jobBase) *int64 {
	if objects == nil {
		return nil
	}
	n, err := objects.CountObjects(ctx, prefix)
	if err != nil {
		b.logger.WithError(err).WithField("prefix", prefix).Warn("Raw object count unavailable")
		return nil
	}
	return &n
}
