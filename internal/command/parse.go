package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"schedbot/internal/schedule"
)

// token is one word of a command line; end is the byte offset just past it
// in the source text so callers can take the untouched remainder.
type token struct {
	text string
	end  int
}

// tokenize splits a command line on whitespace while honoring '…' and "…"
// quoting and backslash escapes.
//
//	/schedule "2024-01-15 09:30" hello world
func tokenize(s string) []token {
	var (
		out   []token
		buf   strings.Builder
		inTok bool
		inQ   bool
		qChar byte
		esc   bool
	)
	flush := func(end int) {
		if inTok {
			out = append(out, token{text: buf.String(), end: end})
			buf.Reset()
			inTok = false
		}
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case esc:
			buf.WriteByte(ch)
			esc = false
		case ch == '\\':
			inTok, esc = true, true
		case inQ:
			if ch == qChar {
				inQ = false
			} else {
				buf.WriteByte(ch)
			}
		case ch == '"' || ch == '\'':
			inTok, inQ, qChar = true, true, ch
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			flush(i)
		default:
			inTok = true
			buf.WriteByte(ch)
		}
	}
	flush(len(s))
	return out
}

// Accepted absolute layouts for a reservation time, besides the bucket key.
var whenLayouts = []string{
	schedule.BucketLayout,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

var ErrPastTime = errors.New("time is not in the future")

// ParseWhen resolves a reservation time. raw is a bucket key (20240115-0930),
// an ISO-like local time (2024-01-15T09:30 or "2024-01-15 09:30") read in loc,
// or a relative offset from now (+90m, +2h).
func ParseWhen(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, errors.New("time required")
	}
	if loc == nil {
		loc = time.Local
	}
	if strings.HasPrefix(s, "+") {
		d, err := time.ParseDuration(s[1:])
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid offset %q: %w", s, err)
		}
		if d <= 0 {
			return time.Time{}, fmt.Errorf("offset must be > 0")
		}
		return now.In(loc).Add(d), nil
	}
	for _, layout := range whenLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q (use 20060102-1504, 2006-01-02T15:04 or +30m)", s)
}

// NotPast requires at to fall in a later minute than now. The tick for the
// current minute has already fired, and no bucket is visited twice.
func NotPast(at, now time.Time) error {
	if !at.Truncate(time.Minute).After(now.Truncate(time.Minute)) {
		return fmt.Errorf("%w: %s", ErrPastTime, schedule.BucketKey(at))
	}
	return nil
}

func parseID(raw string) (schedule.ReservationID, error) {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "#")
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid reservation id %q", raw)
	}
	return schedule.ReservationID(n), nil
}
