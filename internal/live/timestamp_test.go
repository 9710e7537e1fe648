package live

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/shopcompare/internal/model"
	"github.com/Veraticus/shopcompare/internal/service"
)

func TestNormalizeTimestamp(t *testing.T) {
	want := time.Date(2025, 4, 5, 6, 7, 8, 0, time.UTC)
	local := want.In(time.FixedZone("X", 3600))

	tests := []struct {
		input  any
		want   time.Time
		name   string
		wantOK bool
	}{
		{name: "time", input: local, want: want, wantOK: true},
		{name: "time pointer", input: &local, want: want, wantOK: true},
		{name: "store timestamp", input: model.NewTimestamp(want), want: want, wantOK: true},
		{name: "store timestamp pointer", input: &model.Timestamp{Seconds: want.Unix()}, want: want, wantOK: true},
		{name: "rfc3339", input: "2025-04-05T07:07:08+01:00", want: want, wantOK: true},
		{name: "millis float", input: float64(want.UnixMilli()), want: want, wantOK: true},
		{name: "millis int64", input: want.UnixMilli(), want: want, wantOK: true},
		{name: "millis json number", input: json.Number("1743833228000"), want: want, wantOK: true},
		{name: "seconds map", input: map[string]any{"seconds": float64(want.Unix()), "nanoseconds": float64(0)}, want: want, wantOK: true},
		{name: "underscore map", input: map[string]any{"_seconds": float64(want.Unix())}, want: want, wantOK: true},
		{name: "nil", input: nil, wantOK: false},
		{name: "garbage string", input: "yesterday", wantOK: false},
		{name: "map without seconds", input: map[string]any{"nanos": 1}, wantOK: false},
		{name: "nan", input: math.NaN(), wantOK: false},
		{name: "bool", input: true, wantOK: false},
		{name: "zero time", input: time.Time{}, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeTimestamp(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.True(t, tt.want.Equal(got), "got %v", got)
				assert.Equal(t, time.UTC, got.Location())
			}
		})
	}
}

func TestNormalizeDocument_DoesNotMutateInput(t *testing.T) {
	doc := service.Document{ID: "a", Fields: map[string]any{service.FieldCreatedAt: "2025-01-01T00:00:00Z"}}
	out := normalizeDocument(doc)

	assert.Equal(t, "2025-01-01T00:00:00Z", doc.Fields[service.FieldCreatedAt])
	assert.IsType(t, time.Time{}, out.Fields[service.FieldCreatedAt])
}

func TestPreviewFromDocument(t *testing.T) {
	doc := service.Document{Fields: map[string]any{"displayName": "Tea", "imageUrl": "u"}}
	assert.Equal(t, model.LinkedPreview{DisplayName: "Tea", ImageURL: "u"}, PreviewFromDocument(doc))
}
