package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     SpecKind
		source   string
		duration time.Duration
	}{
		{name: "every minute", raw: "* * * * *", kind: SpecCron, source: "cron"},
		{name: "with seconds", raw: "0 * * * * *", kind: SpecCron, source: "cron"},
		{name: "descriptor", raw: "@every 1m", kind: SpecCron, source: "cron"},
		{name: "prefixed cron", raw: "cron:*/5 * * * *", kind: SpecCron, source: "cron"},
		{name: "duration", raw: "1m", kind: SpecInterval, source: "duration", duration: time.Minute},
		{name: "prefixed interval", raw: "interval:30s", kind: SpecInterval, source: "duration", duration: 30 * time.Second},
		{name: "every prefix", raw: "EVERY:2m", kind: SpecInterval, source: "duration", duration: 2 * time.Minute},
		{name: "hhmm", raw: "01:30", kind: SpecInterval, source: "hhmm", duration: 90 * time.Minute},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSchedule(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.source, got.Source)
			if tt.kind == SpecInterval {
				assert.Equal(t, tt.duration, got.Every)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "   ", "not-a-schedule", "cron:", "interval:", "-5m", "00:00", "01:75"} {
		_, err := ParseSchedule(raw)
		assert.Error(t, err, "raw=%q", raw)
	}
}

func TestParseHHMMDuration(t *testing.T) {
	t.Parallel()
	d, err := parseHHMMDuration("23:15")
	require.NoError(t, err)
	assert.Equal(t, 23*time.Hour+15*time.Minute, d)

	d, err = parseHHMMDuration("100:00")
	require.NoError(t, err)
	assert.Equal(t, 100*time.Hour, d)

	_, err = parseHHMMDuration("1:5")
	assert.Error(t, err)
}
