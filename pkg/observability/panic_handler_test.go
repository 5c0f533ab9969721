package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestRecoverToError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	run := func() (err error) {
		defer RecoverToError(&err, logger, "trending")
		panic("nil ranking store")
	}

	err := run()
	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("Expected *PanicError, got %v", err)
	}
	if panicErr.Value != "nil ranking store" {
		t.Errorf("Unexpected panic value: %v", panicErr.Value)
	}
	if panicErr.Stack == "" {
		t.Error("Expected a stack trace")
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to decode log entry: %v", err)
	}
	if entry["component"] != "trending" || entry["msg"] != "PANIC recovered" {
		t.Errorf("Unexpected log entry: %v", entry)
	}
}

func TestRecoverToError_NoPanic(t *testing.T) {
	run := func() (err error) {
		defer RecoverToError(&err, nil, "alerts")
		return errors.New("store down")
	}
	if err := run(); err == nil || err.Error() != "store down" {
		t.Errorf("Expected original error to pass through, got %v", err)
	}
}

func TestRecoverPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	func() {
		defer RecoverPanic(logger, "health server")
		panic("listener closed")
	}()

	if buf.Len() == 0 {
		t.Error("Expected the panic to be logged")
	}
}
