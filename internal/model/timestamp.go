package model

import "time"

// Timestamp is the document store's native server timestamp.
type Timestamp struct {
	Seconds int64
	Nanos   int32
}

// NewTimestamp converts t to a store timestamp.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())} //nolint:gosec // Nanosecond is < 1e9
}

// Time converts the timestamp to a UTC instant.
func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.Seconds, int64(ts.Nanos)).UTC()
}

// IsZero reports whether the timestamp is unset.
func (ts Timestamp) IsZero() bool {
	return ts.Seconds == 0 && ts.Nanos == 0
}
