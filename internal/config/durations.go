package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDurationField reads a duration setting at path. Empty is zero and a
// bare integer counts as seconds ("30" == "30s").
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	var (
		d   time.Duration
		err error
	)
	if n, convErr := strconv.ParseInt(s, 10, 64); convErr == nil {
		d = time.Duration(n) * time.Second
	} else {
		d, err = time.ParseDuration(s)
	}
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", path, raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", path)
	}
	return d, nil
}

func durationOr(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}

// PollTimeoutOr returns telegram.poll_timeout, or def when unset.
func (t TelegramConfig) PollTimeoutOr(def time.Duration) (time.Duration, error) {
	return durationOr("telegram.poll_timeout", t.PollTimeout, def)
}

// BusyTimeoutOr returns storage.busy_timeout, or def when unset.
func (s StorageConfig) BusyTimeoutOr(def time.Duration) (time.Duration, error) {
	return durationOr("storage.busy_timeout", s.BusyTimeout, def)
}

// TickTimeoutDuration bounds one tick. Zero means no bound.
func (s SchedulerConfig) TickTimeoutDuration() (time.Duration, error) {
	return ParseDurationField("scheduler.tick_timeout", s.TickTimeout)
}
