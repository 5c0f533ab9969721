package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
)

// LatencyWindow is the trailing window scanned by the hourly aggregator
const LatencyWindow = time.Hour

// LatencyAggregator summarises per-call latency and error rates every hour
type LatencyAggregator struct {
	jobBase
	calls APICallSource
	out   SnapshotWriter
}

// NewLatencyAggregator creates a new latency aggregator
func NewLatencyAggregator(calls APICallSource, out SnapshotWriter, opts ...Option) *LatencyAggregator {
	return &LatencyAggregator{
		jobBase: newJobBase(JobAPILatency, opts),
		calls:   calls,
		out:     out,
	}
}

// Name implements Job
func (a *LatencyAggregator) Name() string { return JobAPILatency }

// Run aggregates the trailing hour. An empty window writes nothing so that
// "no data" stays distinguishable from "zero latency".
func (a *LatencyAggregator) Run(ctx context.Context) error {
	now := a.clock()
	from := now.Add(-LatencyWindow)

	calls, err := a.calls.ListAPICalls(ctx, from, now)
	if err != nil {
		return fmt.Errorf("failed to list api calls: %w", err)
	}
	if len(calls) == 0 {
		a.logger.Info("No api calls in window, skipping snapshot")
		return nil
	}

	metrics := ComputeAPIMetrics(calls)
	snap, err := NewSnapshot(KindAPIMetrics, PeriodHourly, metrics, now)
	if err != nil {
		return err
	}
	snap.WithWindow(from, now)

	if err := a.out.InsertSnapshots(ctx, snap); err != nil {
		return fmt.Errorf("failed to write api metrics snapshot: %w", err)
	}
	a.recorder.SnapshotWritten(string(KindAPIMetrics))

	a.logger.WithFields(map[string]interface{}{
		"functions":   len(metrics.Functions),
		"total_calls": metrics.TotalCalls,
	}).Info("API latency snapshot written")
	return nil
}

// ComputeAPIMetrics groups calls by function name. Overall figures are
// computed over the union of all samples, not averaged from the groups.
func ComputeAPIMetrics(calls []APICall) APIMetrics {
	groups := make(map[string][]APICall)
	for _, c := range calls {
		groups[c.FunctionName] = append(groups[c.FunctionName], c)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	metrics := APIMetrics{Functions: make([]FunctionLatency, 0, len(names))}
	for _, name := range names {
		fl := summarizeCalls(groups[name])
		fl.Name = name
		metrics.Functions = append(metrics.Functions, fl)
	}

	overall := summarizeCalls(calls)
	metrics.OverallAvgResponseTime = overall.AvgResponseTimeMs
	metrics.OverallErrorRate = overall.ErrorRate
	metrics.TotalCalls = overall.TotalCalls
	metrics.TotalErrors = overall.Errors
	return metrics
}

func summarizeCalls(calls []APICall) FunctionLatency {
	durations := make([]float64, 0, len(calls))
	var sum float64
	var errs int
	for _, c := range calls {
		durations = append(durations, c.DurationMs)
		sum += c.DurationMs
		if c.IsError {
			errs++
		}
	}

	fl := FunctionLatency{
		TotalCalls:        len(calls),
		Errors:            errs,
		ErrorRate:         round(ratio(errs, len(calls)), 3),
		P95ResponseTimeMs: Percentile95(durations),
	}
	if len(calls) > 0 {
		fl.AvgResponseTimeMs = round(sum/float64(len(calls)), 2)
	}
	return fl
}

// Percentile95 returns the 95th percentile by nearest rank
func Percentile95(samples []float64) float64 {
	return NearestRank(samples, 0.95)
}

// NearestRank sorts a copy of samples ascending and returns the value at
// index floor(q*n), clamped to the last element. Empty input yields 0.
func NearestRank(samples []float64, q float64) float64 {
	n := len(samples)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, samples)
	sort.Float64s(sorted)

	idx := int(math.Floor(q * float64(n)))
	if idx > n-1 {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}
