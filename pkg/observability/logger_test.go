package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to unmarshal log entry: %v", err)
	}
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("debug not logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug message")
		if buf.Len() > 0 {
			t.Error("Debug message should not be logged at Info level")
		}
	})

	t.Run("info logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Info("info message")
		entry := decodeEntry(t, &buf)

		if entry["level"] != "INFO" {
			t.Errorf("Expected level INFO, got %v", entry["level"])
		}
		if entry["msg"] != "info message" {
			t.Errorf("Expected message 'info message', got %v", entry["msg"])
		}
	})

	t.Run("warn and error logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Warn("warn message")
		if buf.Len() == 0 {
			t.Error("Warn message should be logged at Info level")
		}
		buf.Reset()
		logger.Error("error message")
		if buf.Len() == 0 {
			t.Error("Error message should be logged at Info level")
		}
	})
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithField("job", "trending").WithFields(map[string]interface{}{
		"entries": 50,
	}).Info("Trending ranking replaced")

	entry := decodeEntry(t, &buf)
	if entry["job"] != "trending" {
		t.Errorf("Expected job=trending, got %v", entry["job"])
	}
	if entry["entries"] != float64(50) {
		t.Errorf("Expected entries=50, got %v", entry["entries"])
	}
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithError(errors.New("bucket unreachable")).Warn("Raw object count unavailable")

	entry := decodeEntry(t, &buf)
	if entry["error"] != "bucket unreachable" {
		t.Errorf("Expected error field, got %v", entry["error"])
	}

	if logger.WithError(nil) != logger {
		t.Error("WithError(nil) should return the same logger")
	}
}

func TestContextHelpers(t *testing.T) {
	t.Run("RunID and Job", func(t *testing.T) {
		ctx := WithJob(WithRunID(context.Background(), "run-123"), "alerts")
		if GetRunID(ctx) != "run-123" {
			t.Errorf("Expected run ID 'run-123', got %s", GetRunID(ctx))
		}
		if GetJob(ctx) != "alerts" {
			t.Errorf("Expected job 'alerts', got %s", GetJob(ctx))
		}
	})

	t.Run("missing values", func(t *testing.T) {
		ctx := context.Background()
		if GetRunID(ctx) != "" || GetJob(ctx) != "" {
			t.Error("Expected empty values on bare context")
		}
		if GetLogger(ctx) == nil {
			t.Error("Expected default logger")
		}
	})

	t.Run("FromContext", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := WithLogger(context.Background(), NewLogger(InfoLevel, &buf))
		ctx = WithJob(ctx, "user-cohort")
		ctx = WithRunID(ctx, "run-456")

		FromContext(ctx).Info("test message")

		entry := decodeEntry(t, &buf)
		if entry["job"] != "user-cohort" {
			t.Errorf("Expected job 'user-cohort', got %v", entry["job"])
		}
		if entry["run_id"] != "run-456" {
			t.Errorf("Expected run_id 'run-456', got %v", entry["run_id"])
		}
	})
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"warning": WarnLevel,
		"warn":    WarnLevel,
		" error ": ErrorLevel,
		"bogus":   InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("LogLevel.String() = %v, want %v", got, tt.want)
			}
		})
	}
}
