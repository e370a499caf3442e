// Package app wires configuration, storage, the MTProto gateway, the
// broadcast scheduler and the operator panel, and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"relaybot/internal/broadcast"
	"relaybot/internal/config"
	"relaybot/internal/gateway"
	"relaybot/internal/gateway/mtproto"
	"relaybot/internal/observability/debugserver"
	"relaybot/internal/observability/metrics"
	"relaybot/internal/panel"
	"relaybot/internal/runtime/supervisor"
	"relaybot/internal/storage"
	kit "relaybot/internal/transport"
	telegram "relaybot/internal/transport/telegram/adapter"
	"relaybot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	store storage.Store

	adapter *telegram.Adapter
	gw      *mtproto.Client

	settings *broadcast.SettingsStore
	stats    *broadcast.Aggregator
	sched    *broadcast.Scheduler
	panel    *panel.Panel
	debug    *debugserver.Service

	updates chan kit.Update
}

// New loads and validates the config and builds every component. A missing
// credential or session file is a startup error.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := checkSession(cfg.MTProto.SessionPath); err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole(cfg.Logging.Level)
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: config.DurationOr(cfg.Telegram.PollTimeout, 10*time.Second),
	}, bootLog.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	// Telegram logging is enabled only after the target chat is known, so
	// Apply does not warn about a missing target.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, root := logx.New(bootCfg, ad)
	if cfg.Telegram.LogChatID != 0 {
		logSvc.SetTelegramTarget(cfg.Telegram.LogChatID, cfg.Logging.Telegram.ThreadID)
	}
	logSvc.Apply(logCfg)
	log := root.With(logx.String("comp", "app"))

	store, err := openStore(cfg, root.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	gw, err := mtproto.New(mapMTProtoConfig(cfg), root)
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	settings := broadcast.NewSettingsStore(store, cfg.Broadcast.DefaultIntervalMinutes)
	stats := broadcast.NewAggregator(store, root.With(logx.String("comp", "stats")))
	engine := broadcast.NewEngine(gw, settings, stats, root.With(logx.String("comp", "engine")))
	sched := broadcast.NewScheduler(settings, engine, stats, root.With(logx.String("comp", "scheduler")))

	p := panel.New(panel.Deps{
		Adapter:  ad,
		Gateway:  gw,
		Settings: settings,
		Stats:    stats,
		Runner:   sched,
		Audit:    store,
		Ring:     logSvc.Ring(),
		Session:  panel.NewSession(),
		Owners:   cfg.Telegram.OwnerUserIDs,
		Log:      root,
	})

	a := &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		store:    store,
		adapter:  ad,
		gw:       gw,
		settings: settings,
		stats:    stats,
		sched:    sched,
		panel:    p,
		updates:  make(chan kit.Update, 256),
	}
	a.debug = debugserver.New(mapDebugConfig(cfg), root, prometheus.DefaultGatherer, a.health)
	return a, nil
}

// Done is closed when the app context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// health reports the gateway connection for /healthz.
func (a *App) health(ctx context.Context) error {
	select {
	case <-a.gw.Ready():
		return nil
	default:
		return gateway.ErrNotReady
	}
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return cfg.Validate() })

	if _, err := a.settings.Load(ctx); err != nil {
		a.log.Warn("settings document unreadable; defaults in use", logx.Err(err))
	}

	a.sup.Go("mtproto.run", a.runGateway)

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.sup.Go0("telegram.commands", func(c context.Context) {
		cctx, cancel := context.WithTimeout(c, 10*time.Second)
		defer cancel()
		if err := a.adapter.UpdateMenuCommands(cctx, panel.Commands()); err != nil {
			a.log.Warn("failed to publish bot commands", logx.Err(err))
		}
	})
	a.sup.Go("panel.dispatch", func(c context.Context) error {
		return a.panel.DispatchLoop(c, a.updates)
	})

	a.sup.Go("scheduler", func(c context.Context) error {
		if err := a.gw.WaitReady(c); err != nil {
			return nil
		}
		err := a.sched.Run(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	a.debug.Start(a.sup.Context())

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started", logx.String("config", a.cfgm.Path()))
	return nil
}

// runGateway keeps the MTProto connection up. An unauthorized session is
// fatal; other failures reconnect with backoff.
func (a *App) runGateway(ctx context.Context) error {
	backoff := time.Second
	for {
		err := a.gw.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, gateway.ErrUnauthorized) {
			return err
		}
		a.log.Warn("mtproto connection lost; reconnecting", logx.Err(err), logx.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, time.Minute)
	}
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
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
			if newCfg == nil {
				continue
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// applyConfig pushes the live-reloadable parts of newCfg into the running components.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.SetTelegramTarget(newCfg.Telegram.LogChatID, newCfg.Logging.Telegram.ThreadID)
	a.logs.Apply(mapLogConfig(newCfg))

	a.panel.SetOwners(newCfg.Telegram.OwnerUserIDs)
	a.gw.SetSendRate(newCfg.MTProto.SendRate)
	a.settings.SetDefaultInterval(newCfg.Broadcast.DefaultIntervalMinutes)
	a.debug.Reconfigure(ctx, mapDebugConfig(newCfg))

	if restart := config.RestartRequired(oldCfg, newCfg); len(restart) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.String("sections", strings.Join(restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	stopStep(ctx, a.log, "debug", time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	stopStep(ctx, a.log, "adapter", 2*time.Second, a.adapter.Stop)
	// Scheduler, panel, gateway and config loops all run under the supervisor.
	stopStep(ctx, a.log, "supervisor", 5*time.Second, a.sup.Wait)
	stopStep(ctx, a.log, "storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
