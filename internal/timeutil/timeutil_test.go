package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{
			name:  "aware UTC passes through",
			input: "2026-07-15T10:00:00Z",
			want:  time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC),
		},
		{
			name:  "aware offset converts to UTC",
			input: "2026-07-15T19:00:00+09:00",
			want:  time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC),
		},
		{
			name:  "naive reads as JST",
			input: "2026-07-15T19:00:00",
			want:  time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC),
		},
		{
			name:  "naive with space separator",
			input: "2026-07-15 19:00:00",
			want:  time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC),
		},
		{
			name:  "naive without seconds",
			input: "2026-07-15T19:00",
			want:  time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC),
		},
		{
			name:  "naive with fractional seconds",
			input: "2026-07-15T19:00:00.500000000",
			want:  time.Date(2026, 7, 15, 10, 0, 0, 500000000, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("next tuesday")
	assert.Error(t, err)
}

func TestFormat(t *testing.T) {
	instant := time.Date(2026, 7, 15, 19, 0, 0, 0, JST)
	assert.Equal(t, "2026-07-15T10:00:00Z", Format(instant))
}

func TestMinuteKey(t *testing.T) {
	// 23:59 JST and 00:00 JST the next day sit on opposite sides of a UTC
	// calendar day boundary only in JST terms.
	late := time.Date(2026, 7, 15, 14, 59, 30, 0, time.UTC)
	assert.Equal(t, "2026-07-15T23:59", MinuteKey(late))
	assert.Equal(t, "2026-07-16T00:00", MinuteKey(late.Add(time.Minute)))

	// Seconds within the minute do not change the key.
	assert.Equal(t, MinuteKey(late), MinuteKey(late.Add(29*time.Second)))
}
