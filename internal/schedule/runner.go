package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"schedbot/internal/metrics"
	logx "schedbot/pkg/logx"
)

var ErrRunInProgress = errors.New("schedule run already in progress for account")

// Receipt is the transport's acknowledgement of a delivered message.
type Receipt struct {
	MessageID int
	SentAt    time.Time
}

// Sender delivers one message for an account. A nil error means the message was delivered.
type Sender interface {
	Send(ctx context.Context, acct Account, text string) (Receipt, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, acct Account, text string) (Receipt, error)

func (f SenderFunc) Send(ctx context.Context, acct Account, text string) (Receipt, error) {
	return f(ctx, acct, text)
}

// RunnerConfig tunes dispatch within one tick.
type RunnerConfig struct {
	// Concurrency bounds in-flight sends per Run. <= 0 means 4.
	Concurrency int
}

// Report summarizes one Run.
type Report struct {
	Account      string
	Bucket       string
	Due          int
	Dispatched   int
	Failed       int
	DeleteErrors int
	Took         time.Duration
}

// Runner dispatches the reservations due in the current minute.
type Runner struct {
	store  *Store
	sender Sender
	cfg    RunnerConfig
	log    logx.Logger

	mu      sync.Mutex
	running map[string]struct{}
}

func NewRunner(store *Store, sender Sender, cfg RunnerConfig, log logx.Logger) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{
		store:   store,
		sender:  sender,
		cfg:     cfg,
		log:     log.With(logx.String("comp", "schedule.runner")),
		running: map[string]struct{}{},
	}
}

// Ready reports whether Run should be invoked for acct at now.
// Ticks are minute-exact, so every tick is eligible; the cadence belongs to the host scheduler.
func (r *Runner) Ready(Account, time.Time) bool {
	return true
}

func (r *Runner) enter(accountID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.running[accountID]; busy {
		return false
	}
	r.running[accountID] = struct{}{}
	return true
}

func (r *Runner) leave(accountID string) {
	r.mu.Lock()
	delete(r.running, accountID)
	r.mu.Unlock()
}

// Run dispatches every reservation in acct's bucket for now and deletes each one
// whose send succeeded. Failed sends are logged and stay in the store; they are
// not retried. Run returns after all dispatches finished.
func (r *Runner) Run(ctx context.Context, acct Account, now time.Time) (Report, error) {
	key := BucketKey(now)
	rep := Report{Account: acct.ID, Bucket: key}
	start := time.Now()
	defer func() {
		metrics.ObserveTick(time.Since(start).Seconds())
	}()

	if !r.enter(acct.ID) {
		return rep, ErrRunInProgress
	}
	defer r.leave(acct.ID)

	doc, err := r.store.Get(ctx, acct.ID)
	if err != nil {
		return rep, err
	}
	bucket := doc[key]
	if len(bucket) == 0 {
		return rep, nil
	}
	rep.Due = len(bucket)

	log := r.log.With(logx.String("account", acct.ID), logx.String("bucket", key))
	log.Debug("dispatching", logx.Int("due", rep.Due))

	// A confirmed send must be removed even if shutdown cancels ctx meanwhile.
	delCtx := context.WithoutCancel(ctx)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(r.cfg.Concurrency)
	for _, id := range bucket.IDs() {
		id, msg := id, bucket[id]
		g.Go(func() error {
			ok, delErr := r.dispatch(ctx, delCtx, acct, now, id, msg, log)
			mu.Lock()
			if ok {
				rep.Dispatched++
			} else {
				rep.Failed++
			}
			if delErr {
				rep.DeleteErrors++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	rep.Took = time.Since(start)
	if rep.Failed > 0 {
		log.Warn("tick finished with failures",
			logx.Int("dispatched", rep.Dispatched), logx.Int("failed", rep.Failed), logx.Duration("took", rep.Took))
	} else {
		log.Info("tick finished", logx.Int("dispatched", rep.Dispatched), logx.Duration("took", rep.Took))
	}
	return rep, nil
}

func (r *Runner) dispatch(ctx, delCtx context.Context, acct Account, now time.Time, id ReservationID, msg string, log logx.Logger) (sent, deleteFailed bool) {
	rc, err := r.sender.Send(ctx, acct, msg)
	if err != nil {
		metrics.IncDispatch(acct.ID, "failed")
		log.Warn("send failed; reservation left in place", logx.Int("id", int(id)), logx.Err(err))
		return false, false
	}
	metrics.IncDispatch(acct.ID, "sent")
	log.Debug("sent", logx.Int("id", int(id)), logx.Int("message_id", rc.MessageID))

	if _, err := r.store.Delete(delCtx, acct.ID, now, id); err != nil {
		log.Error("delete after send failed", logx.Int("id", int(id)), logx.Err(err))
		return true, true
	}
	return true, false
}
