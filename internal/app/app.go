package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reportd/internal/config"
	"reportd/internal/dispatch"
	"reportd/internal/eventbus"
	"reportd/internal/notifier"
	"reportd/internal/ops"
	"reportd/internal/runtime/supervisor"
	"reportd/internal/store"
	logx "reportd/pkg/logx"

	"github.com/coreos/go-systemd/v22/daemon"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store store.Store
	notif *notifier.Service
	disp  *dispatch.Service
	ops   *ops.Service
}

// NewApp loads the config at cfgPath and wires every component. Nothing is
// started; the store is open and its schema applied.
func NewApp(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateReload(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, sc, log.With(logx.String("comp", "store")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	log.Info("storage enabled", logx.String("driver", sc.Driver))

	a, err := build(cfg, log, bus, st)
	if err != nil {
		_ = st.Close()
		_ = logSvc.Close()
		return nil, err
	}
	a.cfgm = cfgm
	a.logs = logSvc
	return a, nil
}

// build wires services around an open store.
func build(cfg *config.Config, log logx.Logger, bus eventbus.Bus, st store.Store) (*App, error) {
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	nlog := log.With(logx.String("comp", "notifier"))
	transports, err := buildTransports(cfg, nlog)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, transports, nlog, bus)

	dcfg, err := mapDispatchConfig(cfg)
	if err != nil {
		return nil, err
	}
	disp := dispatch.New(dcfg, dispatch.Deps{Store: st, Sender: notif}, log.With(logx.String("comp", "dispatch")), bus)

	a := &App{
		log:   log.With(logx.String("comp", "app")),
		bus:   bus,
		store: st,
		notif: notif,
		disp:  disp,
	}

	ocfg, err := mapOpsConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.ops = ops.New(ocfg, ops.Deps{
		Dispatcher: disp,
		Store:      st,
		Deliveries: notif.Snapshot,
		Runtime:    a.runtimeSnapshot,
	}, log.With(logx.String("comp", "ops")))
	return a, nil
}

func (a *App) Dispatcher() *dispatch.Service { return a.disp }

func (a *App) Store() store.Store { return a.store }

func (a *App) Logger() logx.Logger { return a.log }

// Done is closed when the app context is canceled (fatal error or Stop()).
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

func (a *App) runtimeSnapshot() supervisor.Snapshot {
	if a.sup == nil {
		return supervisor.Snapshot{Loops: []supervisor.LoopStats{}}
	}
	return a.sup.Snapshot()
}

// Start bootstraps the registry, starts triggering and brings up the ops
// server and the config watcher. A failed bootstrap is retried in the
// background; the dispatcher runs meanwhile and arms schedules as they load.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, a.log.With(logx.String("comp", "supervisor")))
	c := a.sup.Context()

	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
		a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
			return validateReload(cfg)
		})
	}

	a.disp.Start(c)
	a.sup.GoRestart("dispatch.bootstrap", time.Second, 30*time.Second, func(ctx context.Context) error {
		rep, err := a.disp.Bootstrap(ctx)
		if errors.Is(err, dispatch.ErrAlreadyBootstrapped) {
			return nil
		}
		if err != nil {
			return err
		}
		if len(rep.Failures) > 0 {
			a.log.Warn("some schedules were not registered", logx.Int("failed", len(rep.Failures)), logx.Int("total", rep.Total))
		}
		return nil
	})

	if err := a.ops.Start(c); err != nil {
		a.sup.Cancel()
		return err
	}

	events, unsub := a.bus.Subscribe(128, "report.", "schedule.", "notifier.")
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				// Components log their own failures; this is a debug trail.
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	if a.cfgm != nil {
		sub := a.cfgm.Subscribe(8)
		a.sup.Go0("config.reload", func(c context.Context) {
			defer a.cfgm.Unsubscribe(sub)
			a.reloadLoop(c, sub)
		})
		a.sup.Go("config.watch", a.cfgm.Watch)
	}

	a.startWatchdog()
	a.sdNotify(daemon.SdNotifyReady)
	a.log.Info("app started")
	return nil
}

// Execute runs one schedule immediately, without starting triggers.
func (a *App) Execute(ctx context.Context, id string) error {
	return a.disp.Execute(ctx, id)
}

// Stop shuts components down in dependency order. Each step is bounded so
// one component cannot stall the rest; the caller's deadline is never
// extended.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sdNotify(daemon.SdNotifyStopping)
	if a.sup != nil {
		a.sup.Cancel()
	}

	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	}

	step("ops", 2*time.Second, a.ops.Stop)
	// In-flight runs get the longest grace: they may be mid-send.
	step("dispatch", 30*time.Second, a.disp.Stop)
	if a.sup != nil {
		step("supervisor", 2*time.Second, func(c context.Context) error {
			err := a.sup.Wait(c)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	step("store", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// Close releases the store and log outputs of an app that was never started.
func (a *App) Close() error {
	err := a.store.Close()
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}
