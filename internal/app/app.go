// Package app wires configuration, storage, transport, the schedule store and
// runner, the cron trigger and the command loop into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"schedbot/internal/command"
	"schedbot/internal/config"
	"schedbot/internal/eventbus"
	"schedbot/internal/metrics"
	rtsup "schedbot/internal/runtime/supervisor"
	"schedbot/internal/schedule"
	"schedbot/internal/storage"
	"schedbot/internal/task/scheduler"
	kit "schedbot/internal/transport"
	logx "schedbot/pkg/logx"
)

const tickJobName = "tick"

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	blobs   storage.BlobStore
	adapter kit.Adapter
	router  *kit.Router
	store   *schedule.Store
	runner  *schedule.Runner
	sched   *scheduler.Service
	cmdm    *command.Manager
	metrics *metrics.Server
	loc     *time.Location

	accMu    sync.RWMutex
	accounts []schedule.Account

	updates chan kit.Update
	now     func() time.Time
}

type options struct {
	adapter    kit.Adapter
	consoleOut io.Writer
	now        func() time.Time
}

type Option func(*options)

// WithAdapter replaces the configured transport.
func WithAdapter(a kit.Adapter) Option { return func(o *options) { o.adapter = a } }

// WithConsoleOutput sets where the console transport prints. Default stdout.
func WithConsoleOutput(w io.Writer) Option { return func(o *options) { o.consoleOut = w } }

// WithClock overrides time.Now for ticks and command parsing.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// New loads cfgPath and builds every component without starting anything.
func New(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.consoleOut == nil {
		o.consoleOut = logx.Stdout()
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	cfgm.SetLogger(log)

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	blobs, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	closeOnErr := func(err error) (*App, error) {
		_ = blobs.Close()
		_ = logSvc.Close()
		return nil, err
	}

	ad := o.adapter
	if ad == nil {
		ad, err = newAdapter(cfg, o.consoleOut, log.With(logx.String("comp", "transport")))
		if err != nil {
			return closeOnErr(fmt.Errorf("transport: %w", err))
		}
	}
	router := kit.NewRouter(ad, mapRoutes(cfg), &kit.SendOptions{DisablePreview: true})

	store, err := schedule.NewStore(blobs, cfg.PluginID, log)
	if err != nil {
		return closeOnErr(err)
	}
	runner := schedule.NewRunner(store, router, schedule.RunnerConfig{Concurrency: cfg.Dispatch.Concurrency}, log)

	loc := loadLocation(cfg.Scheduler.Timezone)
	sched := scheduler.New(scheduler.Config{Timezone: cfg.Scheduler.Timezone}, log)
	cmdm := command.NewManager(store, router, ad, command.Options{
		Owners:   cfg.Telegram.OwnerUserIDs,
		Location: loc,
		Now:      o.now,
	}, log)

	var msrv *metrics.Server
	if addr := strings.TrimSpace(cfg.Metrics.Addr); addr != "" {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return closeOnErr(fmt.Errorf("register metrics: %w", err))
		}
		msrv = metrics.NewServer(addr, log)
	}

	a := &App{
		cfgm:     cfgm,
		log:      log.With(logx.String("comp", "app")),
		logs:     logSvc,
		bus:      eventbus.New(),
		blobs:    blobs,
		adapter:  ad,
		router:   router,
		store:    store,
		runner:   runner,
		sched:    sched,
		cmdm:     cmdm,
		metrics:  msrv,
		loc:      loc,
		accounts: mapAccounts(cfg),
		updates:  make(chan kit.Update, 256),
		now:      o.now,
	}
	if err := a.addTickJob(cfg); err != nil {
		return closeOnErr(err)
	}
	return a, nil
}

func (a *App) Store() *schedule.Store        { return a.store }
func (a *App) Location() *time.Location      { return a.loc }
func (a *App) Config() *config.Config        { return a.cfgm.Get() }
func (a *App) Logger() logx.Logger           { return a.log }
func (a *App) Scheduler() *scheduler.Service { return a.sched }
func (a *App) Events() eventbus.Bus          { return a.bus }

func (a *App) Accounts() []schedule.Account {
	a.accMu.RLock()
	defer a.accMu.RUnlock()
	return append([]schedule.Account(nil), a.accounts...)
}

// Account looks up a configured account by id.
func (a *App) Account(id string) (schedule.Account, bool) {
	for _, acc := range a.Accounts() {
		if acc.ID == id {
			return acc, true
		}
	}
	return schedule.Account{}, false
}

func (a *App) addTickJob(cfg *config.Config) error {
	timeout, err := cfg.Scheduler.TickTimeoutDuration()
	if err != nil {
		return err
	}
	return a.sched.AddSchedule(tickJobName, cfg.Scheduler.TickSpec, timeout, func(ctx context.Context) error {
		_, err := a.Tick(ctx, a.now())
		return err
	})
}

// Tick runs the dispatcher once for every configured account, in parallel.
// Accounts with a run still in flight are skipped. Errors from individual
// accounts are joined.
func (a *App) Tick(ctx context.Context, now time.Time) ([]schedule.Report, error) {
	now = now.In(a.loc)
	accts := a.Accounts()
	reports := make([]schedule.Report, len(accts))
	errs := make([]error, len(accts))

	var g errgroup.Group
	for i, acct := range accts {
		i, acct := i, acct
		if !a.runner.Ready(acct, now) {
			continue
		}
		g.Go(func() error {
			rep, err := a.runner.Run(ctx, acct, now)
			reports[i] = rep
			switch {
			case errors.Is(err, schedule.ErrRunInProgress):
				a.log.Debug("previous run still active; skipping", logx.String("account", acct.ID))
			case err != nil:
				a.log.Warn("account tick failed", logx.String("account", acct.ID), logx.Err(err))
				errs[i] = fmt.Errorf("%s: %w", acct.ID, err)
				a.bus.Publish(eventbus.Event{Type: eventbus.TypeTickError, Account: acct.ID, Data: err.Error()})
			case rep.Due > 0:
				a.bus.Publish(eventbus.Event{Type: eventbus.TypeTickReport, Account: acct.ID, Data: rep})
			}
			return nil
		})
	}
	_ = g.Wait()
	return reports, errors.Join(errs...)
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start runs the daemon: transport, command loop, trigger, metrics and config watch.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := scheduler.ParseSchedule(cfg.Scheduler.TickSpec); err != nil {
			return fmt.Errorf("scheduler.tick_spec: %w", err)
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})
	a.sched.Start(a.sup.Context())
	if a.metrics != nil {
		a.metrics.Start(a.sup.Context())
	}

	events, unsub := a.bus.Subscribe(64)
	a.sup.Go0("events.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				if rep, ok := e.Data.(schedule.Report); ok {
					a.log.Debug("event", logx.String("type", e.Type), logx.String("account", e.Account),
						logx.String("bucket", rep.Bucket), logx.Int("sent", rep.Dispatched), logx.Int("failed", rep.Failed))
					continue
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.String("account", e.Account), logx.Any("data", e.Data))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started",
		logx.Int("accounts", len(a.Accounts())),
		logx.String("tz", a.loc.String()),
		logx.String("plugin_id", a.store.PluginID()),
	)
	return nil
}

// applyConfig applies the live-reloadable parts of next.
func (a *App) applyConfig(prev, next *config.Config) {
	ch := config.SummarizeConfigChange(prev, next)
	if ch.Empty() {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if ch.Has("logging") {
		a.logs.Apply(mapLoggingConfig(next))
	}
	if ch.Has("owners") {
		a.cmdm.SetOwners(next.Telegram.OwnerUserIDs)
	}
	if ch.Has("accounts") {
		a.router.SetRoutes(mapRoutes(next))
		a.accMu.Lock()
		a.accounts = mapAccounts(next)
		a.accMu.Unlock()
	}
	if ch.Has("scheduler") {
		if prev.Scheduler.Timezone != next.Scheduler.Timezone {
			a.log.Warn("scheduler.timezone changed; restart required for it to take effect")
		}
		if err := a.addTickJob(next); err != nil {
			a.log.Warn("tick schedule not updated", logx.Err(err))
		}
	}
	if len(ch.RestartRequired) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.String("sections", strings.Join(ch.RestartRequired, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop shuts components down in reverse dependency order. Each step is bounded.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	// The trigger goes first so no new tick starts; running ticks finish their sends.
	step("scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("metrics", time.Second, func(c context.Context) error {
		if a.metrics != nil {
			a.metrics.Stop(c)
		}
		return nil
	})
	step("adapter", 3*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	return a.Close()
}

// Close releases storage and log files. One-shot CLI commands call it directly.
func (a *App) Close() error {
	var err error
	if a.blobs != nil {
		err = a.blobs.Close()
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}
