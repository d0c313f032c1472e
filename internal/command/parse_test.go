package command

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func texts(toks []token) []string {
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		out = append(out, t.text)
	}
	return out
}

func TestTokenize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want []string
	}{
		{in: "", want: []string{}},
		{in: "/schedules", want: []string{"/schedules"}},
		{in: `/schedule "2024-01-15 09:30" hi there`, want: []string{"/schedule", "2024-01-15 09:30", "hi", "there"}},
		{in: `/x 'a b'  c\ d`, want: []string{"/x", "a b", "c d"}},
		{in: `/x ""`, want: []string{"/x", ""}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, texts(tokenize(tt.in)), "in=%q", tt.in)
	}
}

func TestTokenizeOffsetsKeepMessageText(t *testing.T) {
	t.Parallel()
	s := `/schedule +5m   spaced   "quoted" text`
	toks := tokenize(s)
	require.GreaterOrEqual(t, len(toks), 2)
	assert.Equal(t, `spaced   "quoted" text`, s[toks[1].end+3:])
	req := &Request{Text: s, Args: toks[1:]}
	assert.Equal(t, `spaced   "quoted" text`, req.rest(0))
	assert.Equal(t, "", req.rest(10))
}

func TestParseWhen(t *testing.T) {
	t.Parallel()
	tokyo := time.FixedZone("JST", 9*3600)
	now := time.Date(2024, 1, 15, 0, 0, 30, 0, time.UTC) // 09:00:30 JST

	tests := []struct {
		raw  string
		want string
	}{
		{raw: "20240115-0930", want: "20240115-0930"},
		{raw: "2024-01-15T09:30", want: "20240115-0930"},
		{raw: "2024-01-15 09:30", want: "20240115-0930"},
		{raw: "+90m", want: "20240115-1030"},
		{raw: " +1h ", want: "20240115-1000"},
	}
	for _, tt := range tests {
		got, err := ParseWhen(tt.raw, now, tokyo)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got.In(tokyo).Format("20060102-1504"), tt.raw)
	}

	for _, bad := range []string{"", "tomorrow", "+0s", "+-5m", "+abc", "2024-13-01T00:00"} {
		_, err := ParseWhen(bad, now, tokyo)
		assert.Error(t, err, "raw=%q", bad)
	}
}

func TestNotPast(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 15, 9, 30, 45, 0, time.UTC)
	assert.NoError(t, NotPast(now.Add(time.Hour), now))
	assert.NoError(t, NotPast(now.Add(15*time.Second), now), "09:31 is the next tick")
	assert.ErrorIs(t, NotPast(now.Add(-time.Minute), now), ErrPastTime)
	assert.ErrorIs(t, NotPast(now.Add(-30*time.Second), now), ErrPastTime, "current minute already ticked")
	assert.ErrorIs(t, NotPast(now.Add(10*time.Second), now), ErrPastTime, "+10s stays in 09:30")

	at, err := ParseWhen("20240115-0930", now, time.UTC)
	require.NoError(t, err)
	assert.ErrorIs(t, NotPast(at, now), ErrPastTime)
}

func TestParseID(t *testing.T) {
	t.Parallel()
	id, err := parseID("#3")
	require.NoError(t, err)
	assert.EqualValues(t, 3, id)
	for _, bad := range []string{"0", "-1", "x"} {
		_, err := parseID(bad)
		assert.Error(t, err, bad)
	}
}
