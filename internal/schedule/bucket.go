package schedule

import (
	"fmt"
	"time"
)

// BucketLayout is the time layout of a bucket key: 8-digit date, dash, 4-digit hour-minute.
const BucketLayout = "20060102-1504"

// BucketKey returns the minute bucket for t, evaluated in t's location.
// Two instants share a key iff they fall in the same calendar minute.
func BucketKey(t time.Time) string {
	return t.Format(BucketLayout)
}

// ParseBucketKey parses a bucket key back to the first instant of its minute in loc.
func ParseBucketKey(key string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(BucketLayout, key, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid bucket key %q: %w", key, err)
	}
	return t, nil
}
