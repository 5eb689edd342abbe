// Package instant normalizes the timestamp shapes that arrive from the billing
// provider and from stored documents into time.Time values.
package instant

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Layout is the fixed-width UTC encoding used for every instant this service
// writes. Lexical order of encoded values matches chronological order.
const Layout = "2006-01-02T15:04:05.000000000Z07:00"

const (
	minUnixSeconds = -62135596800 // 0001-01-01T00:00:00Z
	maxUnixSeconds = 253402300799 // 9999-12-31T23:59:59Z

	// Epoch values at or above this magnitude are treated as milliseconds.
	millisecondThreshold = 1e12
)

var stringLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Format encodes t with Layout in UTC.
func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Parse converts a loosely typed timestamp into a time.Time. It accepts
// time values, RFC 3339 style strings, epoch seconds (or milliseconds) as
// numbers or numeric strings, and store-native {seconds, nanoseconds} maps.
// Absent, malformed, non-finite and out-of-range inputs report false.
func Parse(value any) (time.Time, bool) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return nonZero(v)
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return nonZero(*v)
	case Time:
		return nonZero(v.Time)
	case *Time:
		if v == nil {
			return time.Time{}, false
		}
		return nonZero(v.Time)
	case string:
		return parseString(v)
	case json.Number:
		return parseString(v.String())
	case float64:
		return fromEpoch(v)
	case float32:
		return fromEpoch(float64(v))
	case int:
		return fromEpoch(float64(v))
	case int32:
		return fromEpoch(float64(v))
	case int64:
		return fromEpoch(float64(v))
	case uint32:
		return fromEpoch(float64(v))
	case uint64:
		return fromEpoch(float64(v))
	case map[string]any:
		return parseTimestampMap(v)
	default:
		return time.Time{}, false
	}
}

// FromUnixSeconds converts provider epoch seconds, rejecting NaN and infinities.
func FromUnixSeconds(seconds float64) (time.Time, bool) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return time.Time{}, false
	}
	if seconds < minUnixSeconds || seconds > maxUnixSeconds {
		return time.Time{}, false
	}
	whole, frac := math.Modf(seconds)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC(), true
}

func parseString(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range stringLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(f)
	}
	return time.Time{}, false
}

func fromEpoch(v float64) (time.Time, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return time.Time{}, false
	}
	if math.Abs(v) >= millisecondThreshold {
		v = v / 1000
	}
	return FromUnixSeconds(v)
}

func parseTimestampMap(m map[string]any) (time.Time, bool) {
	secRaw, ok := m["seconds"]
	if !ok {
		secRaw, ok = m["_seconds"]
	}
	if !ok {
		return time.Time{}, false
	}
	seconds, ok := toFloat(secRaw)
	if !ok {
		return time.Time{}, false
	}
	t, ok := FromUnixSeconds(math.Trunc(seconds))
	if !ok {
		return time.Time{}, false
	}
	nanosRaw, has := m["nanoseconds"]
	if !has {
		nanosRaw, has = m["_nanoseconds"]
	}
	if has {
		if nanos, ok := toFloat(nanosRaw); ok && nanos > 0 && nanos < 1e9 {
			t = t.Add(time.Duration(nanos))
		}
	}
	return t, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func nonZero(t time.Time) (time.Time, bool) {
	if t.IsZero() {
		return time.Time{}, false
	}
	return t.UTC(), true
}
