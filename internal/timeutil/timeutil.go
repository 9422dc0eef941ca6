// Package timeutil centralizes the timezone rules of the offkai bot: JST is
// the display timezone and the interpretation for naive timestamps, UTC is
// the storage timezone.
package timeutil

import (
	"time"
)

// JST is UTC+09:00. Naive on-disk timestamps are interpreted in JST; the
// alert scheduler keys its buckets by JST calendar minutes.
var JST = time.FixedZone("JST", 9*60*60)

// naiveLayouts are accepted formats for timestamps without a UTC offset.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// Parse reads an ISO-8601-ish timestamp. An aware timestamp is converted to
// UTC; a naive one is interpreted as JST and then converted to UTC.
func Parse(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	var lastErr error
	for _, layout := range naiveLayouts {
		t, err := time.ParseInLocation(layout, value, JST)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// Format renders a UTC instant as ISO-8601 with an explicit UTC offset.
func Format(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z07:00")
}

// MinuteKey formats an instant as its JST calendar minute, the bucket key of
// the alert scheduler. Seconds within the minute are ignored.
func MinuteKey(t time.Time) string {
	return t.In(JST).Format("2006-01-02T15:04")
}
