package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Job run outcomes used as the status label
const (
	JobStatusSuccess = "success"
	JobStatusFailure = "failure"
	JobStatusPanic   = "panic"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics (health and metrics side server)
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Job metrics
	JobRunsTotal       *prometheus.CounterVec
	JobDuration        *prometheus.HistogramVec
	JobLastSuccessTime *prometheus.GaugeVec

	// Output metrics
	SnapshotsWrittenTotal     *prometheus.CounterVec
	AlertsEmittedTotal        *prometheus.CounterVec
	RankedEntries             prometheus.Gauge
	EventPublishFailuresTotal prometheus.Counter

	// Cache warming metrics
	WarmRequestsTotal   *prometheus.CounterVec
	WarmRequestDuration prometheus.Histogram

	// Storage metrics
	StorageOperationsTotal   *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec

	// Database metrics
	DBConnectionsActive       prometheus.Gauge
	DBConnectionsIdle         prometheus.Gauge
	DBConnectionsWaitCount    prometheus.Gauge
	DBConnectionsWaitDuration prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapflow_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "snapflow_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		JobRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapflow_job_runs_total",
				Help: "Total number of scheduled job runs",
			},
			[]string{"job", "status"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "snapflow_job_duration_seconds",
				Help:    "Scheduled job duration in seconds",
				Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"job"},
		),
		JobLastSuccessTime: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "snapflow_job_last_success_timestamp_seconds",
				Help: "Unix time of the last successful run per job",
			},
			[]string{"job"},
		),

		SnapshotsWrittenTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapflow_snapshots_written_total",
				Help: "Total number of analytics snapshots written",
			},
			[]string{"kind"},
		),
		AlertsEmittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapflow_alerts_emitted_total",
				Help: "Total number of alerts emitted",
			},
			[]string{"type", "severity"},
		),
		RankedEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "snapflow_ranked_entries",
				Help: "Number of entries in the current trending ranking",
			},
		),
		EventPublishFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "snapflow_event_publish_failures_total",
				Help: "Ranked entry events that could not be published",
			},
		),

		WarmRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapflow_warm_requests_total",
				Help: "Total number of cache priming requests",
			},
			[]string{"outcome"},
		),
		WarmRequestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "snapflow_warm_request_duration_seconds",
				Help:    "Cache priming request duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5},
			},
		),

		StorageOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapflow_storage_operations_total",
				Help: "Total number of storage operations",
			},
			[]string{"operation", "backend", "status"},
		),
		StorageOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "snapflow_storage_operation_duration_seconds",
				Help:    "Storage operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "backend"},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "snapflow_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "snapflow_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "snapflow_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
		DBConnectionsWaitDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "snapflow_db_connections_wait_duration_seconds",
				Help: "Total time blocked waiting for a new connection",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.JobRunsTotal,
		m.JobDuration,
		m.JobLastSuccessTime,
		m.SnapshotsWrittenTotal,
		m.AlertsEmittedTotal,
		m.RankedEntries,
		m.EventPublishFailuresTotal,
		m.WarmRequestsTotal,
		m.WarmRequestDuration,
		m.StorageOperationsTotal,
		m.StorageOperationDuration,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
		m.DBConnectionsWaitDuration,
	)

	return m
}

// ObserveJob records the outcome and duration of one job run
func (m *Metrics) ObserveJob(job, status string, duration time.Duration) {
	m.JobRunsTotal.WithLabelValues(job, status).Inc()
	m.JobDuration.WithLabelValues(job).Observe(duration.Seconds())
	if status == JobStatusSuccess {
		m.JobLastSuccessTime.WithLabelValues(job).SetToCurrentTime()
	}
}

// SnapshotWritten counts one snapshot of kind
func (m *Metrics) SnapshotWritten(kind string) {
	m.SnapshotsWrittenTotal.WithLabelValues(kind).Inc()
}

// AlertEmitted counts one alert
func (m *Metrics) AlertEmitted(alertType, severity string) {
	m.AlertsEmittedTotal.WithLabelValues(alertType, severity).Inc()
}

// RankingReplaced sets the ranked entries gauge
func (m *Metrics) RankingReplaced(entries int) {
	m.RankedEntries.Set(float64(entries))
}

// EventPublishFailed counts events that were not published
func (m *Metrics) EventPublishFailed(events int) {
	m.EventPublishFailuresTotal.Add(float64(events))
}

// ObserveWarm records one cache priming request
func (m *Metrics) ObserveWarm(outcome string, duration time.Duration) {
	m.WarmRequestsTotal.WithLabelValues(outcome).Inc()
	m.WarmRequestDuration.Observe(duration.Seconds())
}

// ObserveStorage records one storage operation
func (m *Metrics) ObserveStorage(operation, backend string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.StorageOperationsTotal.WithLabelValues(operation, backend, status).Inc()
	m.StorageOperationDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
}

// UpdateDBStats copies connection pool statistics into the DB gauges
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
	m.DBConnectionsWaitDuration.Set(stats.WaitDuration.Seconds())
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
