package service

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/Veraticus/shopcompare/internal/model"
)

// String returns the field as a string, or "" when absent.
func (d Document) String(key string) string {
	switch v := d.Fields[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Float returns the field as a float64, or 0 when absent or not numeric.
func (d Document) Float(key string) float64 {
	switch v := d.Fields[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// Int returns the field rounded to an int, or 0 when absent.
func (d Document) Int(key string) int {
	return int(math.Round(d.Float(key)))
}

// Time returns the field when it already holds a resolved instant.
func (d Document) Time(key string) time.Time {
	switch v := d.Fields[key].(type) {
	case time.Time:
		return v
	case *time.Time:
		if v != nil {
			return *v
		}
	case model.Timestamp:
		return v.Time()
	case *model.Timestamp:
		if v != nil {
			return v.Time()
		}
	}
	return time.Time{}
}

// Clone returns a copy whose Fields map can be modified independently.
func (d Document) Clone() Document {
	fields := make(map[string]any, len(d.Fields))
	for k, v := range d.Fields {
		fields[k] = v
	}
	return Document{ID: d.ID, Collection: d.Collection, Fields: fields}
}
