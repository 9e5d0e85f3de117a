package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"hwbot/internal/config"
	"hwbot/internal/homework"
	"hwbot/internal/notifier"
	"hwbot/internal/poller"
	"hwbot/internal/runtime/supervisor"
	telegram "hwbot/internal/transport/telegram/adapter"
	logx "hwbot/pkg/logx"
	"hwbot/pkg/systemd"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	adapter *telegram.Adapter
	notif   *notifier.Service
	fetcher *homework.Fetcher
	loop    *poller.Loop

	now func() time.Time
}

type Option func(*options)

type options struct {
	lookupEnv func(string) (string, bool)
	clock     poller.Clock
}

// WithLookupEnv replaces os.LookupEnv for credential overrides.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(o *options) { o.lookupEnv = fn }
}

// WithClock replaces the poll loop's clock.
func WithClock(c poller.Clock) Option { return func(o *options) { o.clock = c } }

// New loads and validates the configuration and builds every component.
// Missing credentials are reported as config.ErrMissingRequired; the caller
// must treat any error as fatal.
func New(cfgPath string, opts ...Option) (*App, error) {
	o := options{lookupEnv: os.LookupEnv}
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetLookupEnv(o.lookupEnv)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	if cfgm.FromFile() {
		log.Info("config loaded", logx.String("path", cfgm.Path()))
	} else {
		log.Info("config file not found; using defaults and environment", logx.String("path", cfgm.Path()))
	}

	acfg, err := mapAdapterConfig(cfg)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(acfg, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notifSvc := notifier.New(ncfg, ad, log.With(logx.String("comp", "notifier")))

	fcfg, err := mapFetcherConfig(cfg)
	if err != nil {
		return nil, err
	}
	fetcher, err := homework.NewFetcher(fcfg)
	if err != nil {
		return nil, err
	}

	pcfg, err := mapPollConfig(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		adapter: ad,
		notif:   notifSvc,
		fetcher: fetcher,
		now:     time.Now,
	}
	loop, err := poller.New(pcfg, fetcher, notifSvc,
		poller.WithClock(o.clock),
		poller.WithLogger(log.With(logx.String("comp", "poller"))),
		poller.WithCycleHook(a.onCycle),
	)
	if err != nil {
		return nil, err
	}
	a.loop = loop
	return a, nil
}

func (a *App) Loop() *poller.Loop { return a.loop }

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

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.ValidateRuntime(cfg)
	})

	// A panicking cycle restarts the same Loop, so the cursor survives.
	a.sup.GoRestart("poll.loop", a.loop.Run,
		supervisor.WithRestartBackoff(time.Second, time.Minute),
	)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("systemd.watchdog", a.runWatchdog)
	a.sup.Go0("logs.rotate", a.rotateOnHangup)

	if sent, err := systemd.Ready(); err != nil {
		a.log.Warn("systemd ready notification failed", logx.Err(err))
	} else if sent {
		a.log.Debug("systemd notified ready")
	}
	a.log.Info("app started", logx.Int64("cursor", a.loop.Cursor()))
	return nil
}

func (a *App) reloadLoop(c context.Context, sub chan *config.Config) {
	// Track last applied config to generate a safe diff summary.
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// applyConfig applies the hot-reloadable parts of newCfg: logging and
// notifier delivery settings. Everything else is reported as needing a restart.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	a.logs.Apply(mapLogConfig(newCfg))

	ncfg, err := mapNotifierConfig(newCfg)
	if err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		// Destination changes need a restart like the rest of the telegram section.
		ncfg.Target = a.notif.Config().Target
		a.notif.Apply(ncfg)
	}

	if len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}
	a.log.Info("config reloaded", logx.String("changed", strings.Join(sections, ",")))
}

// rotateOnHangup starts a fresh log file on SIGHUP (logrotate postrotate).
func (a *App) rotateOnHangup(c context.Context) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-c.Done():
			return
		case <-hup:
			if err := a.logs.Rotate(); err != nil {
				a.log.Warn("log rotation failed", logx.Err(err))
				continue
			}
			a.log.Info("log file rotated")
		}
	}
}

// runWatchdog keeps the systemd watchdog fed. Its failures are logged only:
// after startup nothing but a signal stops the process.
func (a *App) runWatchdog(c context.Context) {
	err := systemd.Watchdog(c, func(err error) {
		a.log.Warn("systemd watchdog ping failed", logx.Err(err))
	})
	if err != nil {
		a.log.Warn("systemd watchdog disabled", logx.Err(err))
	}
}

func (a *App) onCycle(out poller.Outcome) {
	var lastSent time.Time
	if it, ok := a.notif.LastDelivered(); ok {
		lastSent = it.At
	}
	if _, err := systemd.Status(formatStatus(out, lastSent, a.now())); err != nil {
		a.log.Debug("systemd status notification failed", logx.Err(err))
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)), logx.Int64("cursor", a.loop.Cursor()))
	if _, err := systemd.Stopping(); err != nil {
		a.log.Debug("systemd stopping notification failed", logx.Err(err))
	}

	// Cancel first so the loop's sleep and any in-flight request unwind immediately.
	a.sup.Cancel()

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	start := time.Now()
	err := a.sup.Wait(waitCtx)
	if err != nil {
		a.log.Warn("supervised goroutines did not stop cleanly", logx.Err(err), logx.Duration("took", time.Since(start)))
	}

	for _, st := range a.sup.Snapshot() {
		if st.Restarts > 0 || st.Panics > 0 {
			a.log.Warn("goroutine was restarted during this run",
				logx.String("name", st.Name),
				logx.Uint64("restarts", st.Restarts),
				logx.Uint64("panics", st.Panics),
				logx.String("last_err", st.LastErr),
			)
		}
	}
	if failed := a.notif.Failures(); len(failed) > 0 {
		last := failed[len(failed)-1]
		a.log.Warn("notifications failed during this run",
			logx.Int("count", len(failed)),
			logx.Time("last_at", last.At),
			logx.String("last_err", last.Err),
		)
	}
	a.log.Info("stopped", logx.Duration("took", time.Since(start)))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}
