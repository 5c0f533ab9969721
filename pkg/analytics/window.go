package analytics

import (
	"encoding/json"
	"math"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"
)

// StartOfUTCDay truncates t to midnight UTC
func StartOfUTCDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// PreviousUTCDay returns the bounds of the UTC day that ended at the last midnight before now
func PreviousUTCDay(now time.Time) (start, end time.Time) {
	end = StartOfUTCDay(now)
	return end.AddDate(0, 0, -1), end
}

// Trailing returns the cutoff d before now
func Trailing(now time.Time, d time.Duration) time.Time {
	return now.UTC().Add(-d)
}

// HoursSince returns elapsed hours between t and now, never below zero
func HoursSince(t, now time.Time) float64 {
	h := now.Sub(t).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// EpochPair is the {seconds, nanoseconds} timestamp shape written by some clients
type EpochPair struct {
	Seconds     int64 `json:"seconds"`
	Nanoseconds int64 `json:"nanoseconds"`
}

// Millis converts the pair to epoch milliseconds
func (p EpochPair) Millis() int64 {
	return p.Seconds*1000 + p.Nanoseconds/int64(time.Millisecond)
}

type timeConverter interface {
	AsTime() time.Time
}

// CoerceEpochMillis converts a timestamp-like value into epoch milliseconds.
// Accepted: numeric epoch millis, json.Number, time.Time, anything with an
// AsTime() method (protobuf timestamps), EpochPair, and decoded JSON maps with
// seconds/nanoseconds keys. The second return value is false for anything else.
func CoerceEpochMillis(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case int64:
		return t, true
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case uint32:
		return int64(t), true
	case float64:
		return floatMillis(t)
	case float32:
		return floatMillis(float64(t))
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, true
		}
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return floatMillis(f)
	case time.Time:
		if t.IsZero() {
			return 0, false
		}
		return t.UnixMilli(), true
	case *time.Time:
		if t == nil {
			return 0, false
		}
		return CoerceEpochMillis(*t)
	case EpochPair:
		return t.Millis(), true
	case *EpochPair:
		if t == nil {
			return 0, false
		}
		return t.Millis(), true
	case map[string]interface{}:
		return pairFromMap(t)
	case *timestamppb.Timestamp:
		if t == nil || !t.IsValid() {
			return 0, false
		}
		return t.AsTime().UnixMilli(), true
	case timeConverter:
		return coerceConverter(t)
	}
	return 0, false
}

// coerceConverter guards against typed nil pointers hiding behind the interface
func coerceConverter(c timeConverter) (ms int64, ok bool) {
	defer func() {
		if recover() != nil {
			ms, ok = 0, false
		}
	}()
	return c.AsTime().UnixMilli(), true
}

func floatMillis(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

func pairFromMap(m map[string]interface{}) (int64, bool) {
	secs, ok := mapNumber(m, "seconds", "_seconds")
	if !ok {
		return 0, false
	}
	nanos, _ := mapNumber(m, "nanoseconds", "_nanoseconds")
	return EpochPair{Seconds: secs, Nanoseconds: nanos}.Millis(), true
}

func mapNumber(m map[string]interface{}, keys ...string) (int64, bool) {
	for _, k := range keys {
		raw, present := m[k]
		if !present {
			continue
		}
		switch n := raw.(type) {
		case float64:
			if math.IsNaN(n) || math.IsInf(n, 0) {
				return 0, false
			}
			return int64(n), true
		case int64:
			return n, true
		case int:
			return int64(n), true
		case json.Number:
			i, err := n.Int64()
			if err != nil {
				return 0, false
			}
			return i, true
		default:
			return 0, false
		}
	}
	return 0, false
}

// ActiveSince reports whether a timestamp-like value is at or after cutoff.
// Values that cannot be coerced are treated as inactive.
func ActiveSince(v interface{}, cutoff time.Time) bool {
	ms, ok := CoerceEpochMillis(v)
	if !ok {
		return false
	}
	return ms >= cutoff.UnixMilli()
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
