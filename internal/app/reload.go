package app

import (
	"context"
	"strings"

	"reportd/internal/config"
	logx "reportd/pkg/logx"
)

// reloadLoop applies every published config until ctx is done.
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
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	changed := map[string]bool{}
	for _, s := range sections {
		changed[s] = true
	}
	for _, s := range config.RestartRequired(sections) {
		a.log.Warn("config section changed; restart required for changes to take effect", logx.String("section", s))
	}

	if changed["logging"] && a.logs != nil {
		a.logs.Apply(mapLoggingConfig(newCfg))
	}

	if changed["dispatch"] {
		if dcfg, err := mapDispatchConfig(newCfg); err != nil {
			a.log.Warn("invalid dispatch config; keeping previous", logx.Err(err))
		} else {
			a.disp.Apply(dcfg)
		}
	}

	if changed["notifier"] {
		ncfg, err := mapNotifierConfig(newCfg)
		if err != nil {
			a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
		} else if ts, err := buildTransports(newCfg, a.log.With(logx.String("comp", "notifier"))); err != nil {
			a.log.Warn("invalid notifier channels; keeping previous", logx.Err(err))
		} else {
			a.notif.Apply(ncfg)
			a.notif.SetTransports(ts)
		}
	}

	// run_timeout defaults from dispatch, so either section can change ops.
	if changed["ops"] || changed["dispatch"] {
		if ocfg, err := mapOpsConfig(newCfg); err != nil {
			a.log.Warn("invalid ops config; keeping previous", logx.Err(err))
		} else if err := a.ops.Reconfigure(ctx, ocfg); err != nil {
			a.log.Warn("ops reconfigure failed", logx.Err(err))
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
