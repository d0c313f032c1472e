// Package command serves the chat-side reservation API: /schedule, /unschedule
// and /schedules, answered in the chat bound to the caller's account.
package command

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"schedbot/internal/schedule"
	kit "schedbot/internal/transport"
	logx "schedbot/pkg/logx"
)

// Replier sends a reply into a chat.
type Replier interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

// AccountResolver maps an inbound chat to the account it is bound to.
type AccountResolver interface {
	AccountFor(chat kit.ChatTarget) (string, bool)
}

type Request struct {
	Chat    kit.ChatTarget
	FromID  int64
	Account schedule.Account
	Command string
	Text    string  // full message text
	Args    []token // tokens after the command word
	Log     logx.Logger
}

// rest returns the untouched text after argument i.
func (r *Request) rest(i int) string {
	if i >= len(r.Args) {
		return ""
	}
	return strings.TrimSpace(r.Text[r.Args[i].end:])
}

type Options struct {
	Owners   []int64
	Location *time.Location
	Timeout  time.Duration // per command; <= 0 means 15s
	Workers  int           // <= 0 means NumCPU (min 2)
	Now      func() time.Time
}

type Manager struct {
	store    *schedule.Store
	resolver AccountResolver
	reply    Replier
	log      logx.Logger

	now     func() time.Time
	timeout time.Duration
	workers int

	mu     sync.RWMutex
	owners []int64
	loc    *time.Location

	handlers map[string]HandlerFunc
	jobs     chan func()
	seq      uint64
}

func NewManager(store *schedule.Store, resolver AccountResolver, reply Replier, opt Options, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 15 * time.Second
	}
	if opt.Workers <= 0 {
		opt.Workers = runtime.NumCPU()
		if opt.Workers < 2 {
			opt.Workers = 2
		}
	}
	if opt.Location == nil {
		opt.Location = time.Local
	}
	m := &Manager{
		store:    store,
		resolver: resolver,
		reply:    reply,
		log:      log.With(logx.String("comp", "command")),
		now:      opt.Now,
		timeout:  opt.Timeout,
		workers:  opt.Workers,
		owners:   append([]int64(nil), opt.Owners...),
		loc:      opt.Location,
		jobs:     make(chan func(), 64),
	}
	m.handlers = map[string]HandlerFunc{
		"schedule":   m.cmdSchedule,
		"unschedule": m.cmdUnschedule,
		"schedules":  m.cmdList,
		"help":       m.cmdHelp,
		"start":      m.cmdHelp,
	}
	return m
}

// SetOwners swaps the owner allowlist (config reload). An empty list lets
// anyone in a bound chat manage that account's reservations.
func (m *Manager) SetOwners(owners []int64) {
	m.mu.Lock()
	m.owners = append([]int64(nil), owners...)
	m.mu.Unlock()
}

func (m *Manager) SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	m.mu.Lock()
	m.loc = loc
	m.mu.Unlock()
}

func (m *Manager) location() *time.Location {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loc
}

func (m *Manager) allowed(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.owners) == 0 {
		return true
	}
	for _, o := range m.owners {
		if o == id {
			return true
		}
	}
	return false
}

// DispatchLoop consumes updates until ctx is done or updates is closed,
// running commands on a bounded worker pool.
func (m *Manager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	var wg sync.WaitGroup
	wg.Add(m.workers)
	for i := 0; i < m.workers; i++ {
		idx := i
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					m.log.Error("panic in command worker", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				}
			}()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-m.jobs:
					if !ok {
						return
					}
					job()
				}
			}
		}()
	}
	m.log.Info("command dispatcher started", logx.Int("workers", m.workers))
	defer func() {
		close(m.jobs)
		wg.Wait()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Kind != kit.UpdateMessage || up.Message == nil {
				continue
			}
			msg := up.Message
			run, ok := m.prepare(ctx, msg)
			if !ok {
				continue
			}
			select {
			case m.jobs <- run:
			default:
				m.send(ctx, kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}, "busy, try again")
			}
		}
	}
}

// Handle runs one message synchronously.
func (m *Manager) Handle(ctx context.Context, msg *kit.Message) {
	if run, ok := m.prepare(ctx, msg); ok {
		run()
	}
}

// prepare routes msg to a handler. It returns false for messages that are not
// commands, unknown commands, and chats bound to no account.
func (m *Manager) prepare(ctx context.Context, msg *kit.Message) (func(), bool) {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return nil, false
	}
	toks := tokenize(text)
	if len(toks) == 0 {
		return nil, false
	}
	word := strings.TrimPrefix(toks[0].text, "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(word)
	h, ok := m.handlers[word]
	if !ok {
		return nil, false
	}

	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	acctID, bound := m.resolver.AccountFor(chat)
	if !bound {
		m.log.Debug("command from unbound chat ignored", logx.Int64("chat_id", msg.ChatID), logx.String("cmd", word))
		return nil, false
	}
	if !m.allowed(msg.FromID) {
		m.send(ctx, chat, "unauthorized")
		return nil, false
	}

	rid := atomic.AddUint64(&m.seq, 1)
	req := &Request{
		Chat:    chat,
		FromID:  msg.FromID,
		Account: schedule.Account{ID: acctID},
		Command: word,
		Text:    text,
		Args:    toks[1:],
		Log: m.log.With(
			logx.Int64("rid", int64(rid)),
			logx.String("account", acctID),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", word),
		),
	}
	final := Chain(h, MWPanicRecover(), MWRequestLog(), MWTimeout(m.timeout))
	return func() { _ = final(ctx, req) }, true
}

func (m *Manager) send(ctx context.Context, to kit.ChatTarget, text string) {
	if _, err := m.reply.SendText(ctx, to, text, &kit.SendOptions{DisablePreview: true}); err != nil {
		m.log.Warn("reply failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}

func (m *Manager) cmdSchedule(ctx context.Context, req *Request) error {
	if len(req.Args) < 2 {
		m.send(ctx, req.Chat, "usage: /schedule <when> <message>")
		return nil
	}
	now := m.now()
	loc := m.location()
	at, err := ParseWhen(req.Args[0].text, now, loc)
	if err == nil {
		err = NotPast(at, now)
	}
	if err != nil {
		m.send(ctx, req.Chat, err.Error())
		return nil
	}
	message := req.rest(0)
	id, err := m.store.Create(ctx, req.Account.ID, at.In(loc), message)
	if err != nil {
		m.send(ctx, req.Chat, "failed to reserve")
		return err
	}
	m.send(ctx, req.Chat, fmt.Sprintf("reserved #%d for %s", id, schedule.BucketKey(at.In(loc))))
	return nil
}

func (m *Manager) cmdUnschedule(ctx context.Context, req *Request) error {
	if len(req.Args) < 1 || len(req.Args) > 2 {
		m.send(ctx, req.Chat, "usage: /unschedule <when> [id]")
		return nil
	}
	loc := m.location()
	at, err := ParseWhen(req.Args[0].text, m.now(), loc)
	if err != nil {
		m.send(ctx, req.Chat, err.Error())
		return nil
	}
	at = at.In(loc)
	key := schedule.BucketKey(at)

	var removed bool
	if len(req.Args) == 2 {
		id, perr := parseID(req.Args[1].text)
		if perr != nil {
			m.send(ctx, req.Chat, perr.Error())
			return nil
		}
		removed, err = m.store.Delete(ctx, req.Account.ID, at, id)
		key = fmt.Sprintf("#%d in %s", id, key)
	} else {
		removed, err = m.store.DeleteBucket(ctx, req.Account.ID, at)
	}
	if err != nil {
		m.send(ctx, req.Chat, "failed to remove")
		return err
	}
	if !removed {
		m.send(ctx, req.Chat, "nothing to remove at "+key)
		return nil
	}
	m.send(ctx, req.Chat, "removed "+key)
	return nil
}

func (m *Manager) cmdList(ctx context.Context, req *Request) error {
	list, err := m.store.List(ctx, req.Account.ID)
	if err != nil {
		m.send(ctx, req.Chat, "failed to list")
		return err
	}
	m.send(ctx, req.Chat, FormatList(list))
	return nil
}

func (m *Manager) cmdHelp(ctx context.Context, req *Request) error {
	m.send(ctx, req.Chat, helpText)
	return nil
}

const helpText = `/schedule <when> <message> - reserve a message
/unschedule <when> [id] - remove one reservation or the whole minute
/schedules - list pending reservations

<when>: 20240115-0930, 2024-01-15T09:30, "2024-01-15 09:30" or +30m`

// FormatList renders reservations one per line.
func FormatList(list []schedule.Reservation) string {
	if len(list) == 0 {
		return "no reservations"
	}
	var b strings.Builder
	for i, r := range list {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s #%d %s", r.Bucket, r.ID, r.Message)
	}
	return b.String()
}
