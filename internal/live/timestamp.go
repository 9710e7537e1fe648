package live

import (
	"encoding/json"
	"math"
	"time"

	"github.com/Veraticus/shopcompare/internal/model"
	"github.com/Veraticus/shopcompare/internal/service"
)

// NormalizeTimestamp converts the representations a store may use for a
// server timestamp into a UTC instant. Strings are RFC 3339; bare numbers are
// milliseconds since the Unix epoch; maps carry "seconds" and "nanoseconds"
// (with or without a leading underscore).
func NormalizeTimestamp(v any) (time.Time, bool) {
	switch ts := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return ts.UTC(), !ts.IsZero()
	case *time.Time:
		if ts == nil {
			return time.Time{}, false
		}
		return ts.UTC(), !ts.IsZero()
	case model.Timestamp:
		return ts.Time(), !ts.IsZero()
	case *model.Timestamp:
		if ts == nil {
			return time.Time{}, false
		}
		return ts.Time(), !ts.IsZero()
	case string:
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	case float64:
		return fromMillis(ts)
	case float32:
		return fromMillis(float64(ts))
	case int64:
		return time.UnixMilli(ts).UTC(), true
	case int:
		return time.UnixMilli(int64(ts)).UTC(), true
	case json.Number:
		f, err := ts.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return fromMillis(f)
	case map[string]any:
		return fromSecondsMap(ts)
	default:
		return time.Time{}, false
	}
}

func fromMillis(ms float64) (time.Time, bool) {
	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		return time.Time{}, false
	}
	whole := math.Floor(ms)
	nanos := int64(math.Round((ms - whole) * 1e6))
	return time.UnixMilli(int64(whole)).Add(time.Duration(nanos)).UTC(), true
}

func fromSecondsMap(m map[string]any) (time.Time, bool) {
	secRaw, ok := m["seconds"]
	if !ok {
		secRaw, ok = m["_seconds"]
	}
	if !ok {
		return time.Time{}, false
	}
	nanoRaw, ok := m["nanoseconds"]
	if !ok {
		nanoRaw = m["_nanoseconds"]
	}

	doc := service.Document{Fields: map[string]any{"s": secRaw, "n": nanoRaw}}
	seconds := int64(doc.Float("s"))
	nanos := int32(doc.Float("n")) //nolint:gosec // nanoseconds are < 1e9
	return model.Timestamp{Seconds: seconds, Nanos: nanos}.Time(), true
}

// normalizeDocument returns a copy of doc whose created-at field holds a
// time.Time. Documents without a usable timestamp sort last.
func normalizeDocument(doc service.Document) service.Document {
	out := doc.Clone()
	if t, ok := NormalizeTimestamp(out.Fields[service.FieldCreatedAt]); ok {
		out.Fields[service.FieldCreatedAt] = t
	} else {
		out.Fields[service.FieldCreatedAt] = time.Time{}
	}
	return out
}
