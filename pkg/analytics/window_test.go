package analytics

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"
)

func TestCoerceEpochMillis(t *testing.T) {
	ref := time.Date(2023, 11, 14, 22, 13, 20, 500*int(time.Millisecond), time.UTC)
	refMillis := ref.UnixMilli()

	tests := []struct {
		name   string
		in     interface{}
		want   int64
		wantOK bool
	}{
		{"nil", nil, 0, false},
		{"int64 millis", int64(1700000000000), 1700000000000, true},
		{"int millis", 42, 42, true},
		{"float millis", float64(1700000000000), 1700000000000, true},
		{"NaN", math.NaN(), 0, false},
		{"json number", json.Number("1700000000000"), 1700000000000, true},
		{"json float number", json.Number("1.7e12"), 1700000000000, true},
		{"json garbage", json.Number("abc"), 0, false},
		{"time", ref, refMillis, true},
		{"zero time", time.Time{}, 0, false},
		{"time pointer", &ref, refMillis, true},
		{"epoch pair", EpochPair{Seconds: 1700000000, Nanoseconds: 500000000}, 1700000000500, true},
		{"decoded pair", map[string]interface{}{"seconds": float64(1700000000), "nanoseconds": float64(0)}, 1700000000000, true},
		{"underscore pair", map[string]interface{}{"_seconds": json.Number("1700000000"), "_nanoseconds": json.Number("1000000")}, 1700000000001, true},
		{"pair without seconds", map[string]interface{}{"nanoseconds": float64(5)}, 0, false},
		{"protobuf timestamp", timestamppb.New(ref), refMillis, true},
		{"nil protobuf timestamp", (*timestamppb.Timestamp)(nil), 0, false},
		{"string", "2023-11-14", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CoerceEpochMillis(tt.in)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("CoerceEpochMillis(%v) = (%d, %v), want (%d, %v)", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestActiveSince(t *testing.T) {
	cutoff := testNow.Add(-24 * time.Hour)

	if !ActiveSince(cutoff, cutoff) {
		t.Error("a value equal to the cutoff is active")
	}
	if !ActiveSince(testNow.UnixMilli(), cutoff) {
		t.Error("recent epoch millis should be active")
	}
	if ActiveSince(cutoff.Add(-time.Millisecond), cutoff) {
		t.Error("older value should be inactive")
	}
	if ActiveSince("yesterday", cutoff) {
		t.Error("uncoercible values are inactive")
	}
}

func TestUTCDayBounds(t *testing.T) {
	now := time.Date(2024, 3, 10, 0, 30, 0, 0, time.FixedZone("UTC+2", 2*3600))

	if got := StartOfUTCDay(now); !got.Equal(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("StartOfUTCDay = %v", got)
	}

	start, end := PreviousUTCDay(testNow)
	if !start.Equal(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)) || !end.Equal(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("PreviousUTCDay = [%v, %v)", start, end)
	}
}

func TestHoursSince(t *testing.T) {
	if got := HoursSince(testNow.Add(-90*time.Minute), testNow); got != 1.5 {
		t.Errorf("HoursSince = %v, want 1.5", got)
	}
	if got := HoursSince(testNow.Add(time.Hour), testNow); got != 0 {
		t.Errorf("future timestamps should clamp to 0, got %v", got)
	}
}

func TestRound(t *testing.T) {
	if got := round(2.0/3.0, 4); got != 0.6667 {
		t.Errorf("round = %v", got)
	}
	if got := ratio(1, 0); got != 0 {
		t.Errorf("ratio with zero denominator = %v", got)
	}
}
