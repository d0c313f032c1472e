// Package console is a transport adapter that prints outbound messages instead of
// delivering them. It has no inbound side. Used for dry runs and tests.
package console

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	kit "schedbot/internal/transport"
	logx "schedbot/pkg/logx"
)

type Adapter struct {
	w   io.Writer
	log logx.Logger

	mu  sync.Mutex
	seq atomic.Int64
}

func New(w io.Writer, log logx.Logger) *Adapter {
	if w == nil {
		w = logx.Stdout()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{w: w, log: log.With(logx.String("comp", "console.adapter"))}
}

func (a *Adapter) Start(context.Context, chan<- kit.Update) error {
	a.log.Info("console transport active; messages are printed, not delivered")
	return nil
}

func (a *Adapter) Stop(context.Context) error { return nil }

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	id := int(a.seq.Add(1))
	a.mu.Lock()
	_, err := fmt.Fprintf(a.w, "[chat %d/%d #%d] %s\n", to.ChatID, to.ThreadID, id, text)
	a.mu.Unlock()
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: id}, nil
}
