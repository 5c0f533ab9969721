package analytics

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Default alert thresholds
const (
	DefaultFailureRateThreshold = 0.10
	DefaultRawObjectThreshold   = 10000
)

// Thresholds configures the alert rules
type Thresholds struct {
	FailureRate float64 // processing_failure fires when failed/(ready+failed) exceeds this
	RawObjects  int64   // storage_warning fires when the raw object count exceeds this
}

// DefaultThresholds returns the standard rule thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{
		FailureRate: DefaultFailureRateThreshold,
		RawObjects:  DefaultRawObjectThreshold,
	}
}

// Alerter evaluates threshold rules and appends an alert per violation.
// There is no suppression window: a persisting violation alerts every run.
type Alerter struct {
	jobBase
	videos     VideoSource
	objects    ObjectCounter
	rawPrefix  string
	alerts     AlertStore
	thresholds Thresholds
}

// NewAlerter creates a new Alerter instance
func NewAlerter(videos VideoSource, objects ObjectCounter, rawPrefix string, alerts AlertStore, thresholds Thresholds, opts ...Option) *Alerter {
	return &Alerter{
		jobBase:    newJobBase(JobAlerts, opts),
		videos:     videos,
		objects:    objects,
		rawPrefix:  rawPrefix,
		alerts:     alerts,
		thresholds: thresholds,
	}
}

// Name implements Job
func (a *Alerter) Name() string { return JobAlerts }

// Run evaluates every rule and writes the resulting alerts in one batch
func (a *Alerter) Run(ctx context.Context) error {
	now := a.clock()

	counts, err := a.videos.CountVideoStatusesUpdatedSince(ctx, Trailing(now, HealthWindow))
	if err != nil {
		return fmt.Errorf("failed to count video statuses: %w", err)
	}

	var fired []Alert
	if alert, ok := CheckProcessingFailures(counts, a.thresholds.FailureRate); ok {
		fired = append(fired, alert)
	}
	if raw := countRawObjects(ctx, a.objects, a.rawPrefix, a.jobBase); raw != nil {
		if alert, ok := CheckRawStorage(*raw, a.thresholds.RawObjects); ok {
			fired = append(fired, alert)
		}
	}

	if len(fired) == 0 {
		a.logger.Info("No alerts")
		return nil
	}

	for i := range fired {
		fired[i].ID = uuid.NewString()
		fired[i].CreatedAt = now
	}
	if err := a.alerts.InsertAlerts(ctx, fired); err != nil {
		return fmt.Errorf("failed to write alerts: %w", err)
	}

	for _, alert := range fired {
		a.recorder.AlertEmitted(string(alert.Type), string(alert.Severity))
		a.logger.WithFields(map[string]interface{}{
			"type":          alert.Type,
			"severity":      alert.Severity,
			"current_value": alert.CurrentValue,
			"threshold":     alert.Threshold,
		}).Warn(alert.Message)
	}
	return nil
}

// CheckProcessingFailures fires a critical alert when failed/(ready+failed)
// exceeds threshold. No finished videos means no alert.
func CheckProcessingFailures(c StatusCounts, threshold float64) (Alert, bool) {
	finished := c.Ready + c.Failed
	if finished == 0 {
		return Alert{}, false
	}
	raw := float64(c.Failed) / float64(finished)
	if raw <= threshold {
		return Alert{}, false
	}
	rate := round(raw, 4)
	return Alert{
		Type:         AlertProcessingFailure,
		Severity:     SeverityCritical,
		Message:      fmt.Sprintf("Video processing failure rate %.1f%% exceeds %.1f%% (%d of %d in the last hour)", rate*100, threshold*100, c.Failed, finished),
		Threshold:    threshold,
		CurrentValue: rate,
	}, true
}

// CheckRawStorage fires a warning when the raw object count exceeds threshold
func CheckRawStorage(count, threshold int64) (Alert, bool) {
	if count <= threshold {
		return Alert{}, false
	}
	return Alert{
		Type:         AlertStorageWarning,
		Severity:     SeverityWarning,
		Message:      fmt.Sprintf("Raw upload storage holds %d objects, above the %d object threshold", count, threshold),
		Threshold:    float64(threshold),
		CurrentValue: float64(count),
	}, true
}
