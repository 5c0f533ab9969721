package observability

import (
	"database/sql"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	t.Run("creates and registers all metrics", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewMetrics(registry)

		if metrics == nil {
			t.Fatal("NewMetrics returned nil")
		}
		if metrics.JobRunsTotal == nil || metrics.JobDuration == nil || metrics.JobLastSuccessTime == nil {
			t.Error("job metrics not initialized")
		}
		if metrics.SnapshotsWrittenTotal == nil || metrics.AlertsEmittedTotal == nil {
			t.Error("output metrics not initialized")
		}
		if metrics.WarmRequestsTotal == nil || metrics.WarmRequestDuration == nil {
			t.Error("warm metrics not initialized")
		}
	})

	t.Run("double registration panics", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		NewMetrics(registry)

		defer func() {
			if recover() == nil {
				t.Error("Expected panic on duplicate registration")
			}
		}()
		NewMetrics(registry)
	})
}

func TestMetrics_ObserveJob(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.ObserveJob("trending", JobStatusSuccess, 2*time.Second)
	metrics.ObserveJob("trending", JobStatusFailure, time.Second)
	metrics.ObserveJob("alerts", JobStatusSuccess, time.Second)

	expected := `
# HELP snapflow_job_runs_total Total number of scheduled job runs
# TYPE snapflow_job_runs_total counter
snapflow_job_runs_total{job="alerts",status="success"} 1
snapflow_job_runs_total{job="trending",status="failure"} 1
snapflow_job_runs_total{job="trending",status="success"} 1
`
	if err := testutil.CollectAndCompare(metrics.JobRunsTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected counter value: %v", err)
	}
	if count := testutil.CollectAndCount(metrics.JobLastSuccessTime); count != 2 {
		t.Errorf("Expected 2 last-success series, got %d", count)
	}
}

func TestMetrics_Recorder(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.SnapshotWritten("api_metrics")
	metrics.SnapshotWritten("api_metrics")
	metrics.AlertEmitted("processing_failure", "critical")
	metrics.RankingReplaced(50)
	metrics.EventPublishFailed(3)

	if got := testutil.ToFloat64(metrics.SnapshotsWrittenTotal.WithLabelValues("api_metrics")); got != 2 {
		t.Errorf("Expected 2 snapshots, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.AlertsEmittedTotal.WithLabelValues("processing_failure", "critical")); got != 1 {
		t.Errorf("Expected 1 alert, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.RankedEntries); got != 50 {
		t.Errorf("Expected ranked entries gauge 50, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.EventPublishFailuresTotal); got != 3 {
		t.Errorf("Expected 3 publish failures, got %v", got)
	}
}

func TestMetrics_StorageAndWarm(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.ObserveStorage("list_objects", "s3", nil, 10*time.Millisecond)
	metrics.ObserveStorage("list_objects", "s3", errors.New("denied"), 10*time.Millisecond)
	metrics.ObserveWarm("success", 100*time.Millisecond)

	if got := testutil.ToFloat64(metrics.StorageOperationsTotal.WithLabelValues("list_objects", "s3", "error")); got != 1 {
		t.Errorf("Expected 1 failed storage op, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.WarmRequestsTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("Expected 1 warm request, got %v", got)
	}
}

func TestMetrics_UpdateDBStats(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.UpdateDBStats(sql.DBStats{InUse: 4, Idle: 2, WaitCount: 7, WaitDuration: 3 * time.Second})

	if got := testutil.ToFloat64(metrics.DBConnectionsActive); got != 4 {
		t.Errorf("Expected 4 active, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.DBConnectionsIdle); got != 2 {
		t.Errorf("Expected 2 idle, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.DBConnectionsWaitDuration); got != 3 {
		t.Errorf("Expected 3s wait, got %v", got)
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	handler := HTTPMetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	req := httptest.NewRequest("GET", "/health/ready", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	expected := `
# HELP snapflow_http_requests_total Total number of HTTP requests
# TYPE snapflow_http_requests_total counter
snapflow_http_requests_total{method="GET",path="/health/ready",status="503"} 1
`
	if err := testutil.CollectAndCompare(metrics.HTTPRequestsTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected counter value: %v", err)
	}
}

func TestMetricsHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.SnapshotWritten("system_health")

	server := httptest.NewServer(MetricsHandler(registry))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `snapflow_snapshots_written_total{kind="system_health"} 1`) {
		t.Errorf("Expected snapshot counter in exposition, got:\n%s", body)
	}
}
