package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"schedbot/internal/schedule"
)

// Route binds an account to the chat its reservations are delivered to.
type Route struct {
	AccountID string
	Target    ChatTarget
}

// Router delivers account messages through an Adapter. It implements schedule.Sender
// and resolves inbound chats back to accounts for the command layer.
type Router struct {
	adapter Adapter
	opt     *SendOptions

	mu      sync.RWMutex
	targets map[string]ChatTarget
	byChat  map[ChatTarget]string
}

func NewRouter(adapter Adapter, routes []Route, opt *SendOptions) *Router {
	r := &Router{adapter: adapter, opt: opt}
	r.SetRoutes(routes)
	return r
}

// SetRoutes swaps the routing table (config reload).
func (r *Router) SetRoutes(routes []Route) {
	targets := make(map[string]ChatTarget, len(routes))
	byChat := make(map[ChatTarget]string, len(routes))
	for _, rt := range routes {
		targets[rt.AccountID] = rt.Target
		byChat[rt.Target] = rt.AccountID
	}
	r.mu.Lock()
	r.targets = targets
	r.byChat = byChat
	r.mu.Unlock()
}

func (r *Router) Target(accountID string) (ChatTarget, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[accountID]
	return t, ok
}

// AccountFor returns the account bound to chat. A route without a thread ID
// matches every thread of its chat.
func (r *Router) AccountFor(chat ChatTarget) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.byChat[chat]; ok {
		return id, true
	}
	id, ok := r.byChat[ChatTarget{ChatID: chat.ChatID}]
	return id, ok
}

func (r *Router) Send(ctx context.Context, acct schedule.Account, text string) (schedule.Receipt, error) {
	to, ok := r.Target(acct.ID)
	if !ok {
		return schedule.Receipt{}, fmt.Errorf("%w: %s", ErrUnknownAccount, acct.ID)
	}
	ref, err := r.adapter.SendText(ctx, to, text, r.opt)
	if err != nil {
		return schedule.Receipt{}, err
	}
	return schedule.Receipt{MessageID: ref.MessageID, SentAt: time.Now()}, nil
}
