package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedbot/internal/schedule"
	"schedbot/internal/storage"
	kit "schedbot/internal/transport"
	logx "schedbot/pkg/logx"
)

type chatLog struct {
	mu      sync.Mutex
	replies []string
}

func (c *chatLog) Start(context.Context, chan<- kit.Update) error { return nil }
func (c *chatLog) Stop(context.Context) error { return nil }

func (c *chatLog) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(c.replies)}, nil
}

func (c *chatLog) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.replies) == 0 {
		return ""
	}
	return c.replies[len(c.replies)-1]
}

func (c *chatLog) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.replies)
}

var fixedNow = time.Date(2024, 1, 15, 9, 0, 10, 0, time.UTC)

const aliceChat = int64(-1001)

type fixture struct {
	m     *Manager
	store *schedule.Store
	chat  *chatLog
}

func newFixture(t *testing.T, owners ...int64) *fixture {
	t.Helper()
	st, err := schedule.NewStore(storage.NewMemory(), "tweetScheduler", logx.Nop())
	require.NoError(t, err)
	chat := &chatLog{}
	router := kit.NewRouter(chat, []kit.Route{{AccountID: "alice", Target: kit.ChatTarget{ChatID: aliceChat}}}, nil)
	m := NewManager(st, router, chat, Options{
		Owners:   owners,
		Location: time.UTC,
		Now:      func() time.Time { return fixedNow },
	}, logx.Nop())
	return &fixture{m: m, store: st, chat: chat}
}

func (f *fixture) say(text string, from int64) string {
	f.m.Handle(context.Background(), &kit.Message{ChatID: aliceChat, ThreadID: 3, FromID: from, Text: text})
	return f.chat.last()
}

func TestScheduleCreatesReservation(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "reserved #1 for 20240115-0930", f.say("/schedule 20240115-0930 hello  world", 1))
	assert.Equal(t, "reserved #2 for 20240115-0930", f.say(`/schedule@schedbot "2024-01-15 09:30" second`, 1))
	assert.Equal(t, "reserved #1 for 20240115-0905", f.say("/schedule +5m soon", 1))

	doc, err := f.store.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, schedule.Bucket{1: "hello  world", 2: "second"}, doc["20240115-0930"])
}

func TestScheduleRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	assert.Contains(t, f.say("/schedule", 1), "usage")
	assert.Contains(t, f.say("/schedule 20240115-0930", 1), "usage")
	assert.Contains(t, f.say("/schedule whenever hi", 1), "invalid time")
	assert.Contains(t, f.say("/schedule 20240115-0859 too late", 1), "not in the future")
	assert.Contains(t, f.say("/schedule 20240115-0900 this minute", 1), "not in the future")
	assert.Contains(t, f.say("/schedule +10s too soon", 1), "not in the future")

	doc, err := f.store.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, doc)
}

func TestUnschedule(t *testing.T) {
	f := newFixture(t)
	f.say("/schedule 20240115-0930 a", 1)
	f.say("/schedule 20240115-0930 b", 1)
	f.say("/schedule 20240115-0945 c", 1)

	assert.Equal(t, "removed #1 in 20240115-0930", f.say("/unschedule 20240115-0930 1", 1))
	assert.Equal(t, "nothing to remove at #1 in 20240115-0930", f.say("/unschedule 20240115-0930 #1", 1))
	assert.Equal(t, "removed 20240115-0945", f.say("/unschedule 2024-01-15T09:45", 1))
	assert.Equal(t, "nothing to remove at 20240115-0945", f.say("/unschedule 2024-01-15T09:45", 1))
	assert.Contains(t, f.say("/unschedule 20240115-0930 zero", 1), "invalid reservation id")

	assert.Equal(t, "20240115-0930 #2 b", f.say("/schedules", 1))
}

func TestListEmpty(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "no reservations", f.say("/schedules", 1))
}

func TestOwnerAllowlist(t *testing.T) {
	f := newFixture(t, 42)
	assert.Equal(t, "unauthorized", f.say("/schedules", 7))
	assert.Equal(t, "no reservations", f.say("/schedules", 42))

	f.m.SetOwners(nil)
	assert.Equal(t, "no reservations", f.say("/schedules", 7))
}

func TestIgnoresUnboundChatsAndPlainText(t *testing.T) {
	f := newFixture(t)
	f.m.Handle(context.Background(), &kit.Message{ChatID: 999, FromID: 1, Text: "/schedules"})
	f.say("just chatting", 1)
	f.say("/unknown", 1)
	assert.Zero(t, f.chat.count())
}

func TestDispatchLoop(t *testing.T) {
	f := newFixture(t)
	updates := make(chan kit.Update, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.m.DispatchLoop(ctx, updates) }()

	updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: aliceChat, FromID: 1, Text: "/schedule +1h later"}}
	require.Eventually(t, func() bool { return f.chat.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "reserved #1 for 20240115-1000", f.chat.last())

	close(updates)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch loop did not stop")
	}
}

func TestFormatList(t *testing.T) {
	got := FormatList([]schedule.Reservation{
		{Bucket: "20240115-0930", ID: 1, Message: "a"},
		{Bucket: "20240115-0931", ID: 2, Message: "b"},
	})
	assert.Equal(t, "20240115-0930 #1 a\n20240115-0931 #2 b", got)
}
