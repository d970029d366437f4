package config

import (
	"reflect"
	"sort"
	"strings"

	logx "reportd/pkg/logx"
)

// SummarizeConfigChange lists the changed top-level sections and returns
// log-safe attributes describing the new values. Secrets are reported only
// as "set" flags.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Dispatch, newCfg.Dispatch) {
		d := newCfg.Dispatch
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.String("dispatch.timezone", strings.TrimSpace(d.Timezone)),
			logx.String("dispatch.execution_timeout", strings.TrimSpace(d.ExecutionTimeout)),
			logx.Int("dispatch.retry_max", d.RetryMax),
			logx.Int("dispatch.history_size", d.HistorySize),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		ns := newCfg.Storage
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", ns.Driver),
			logx.Bool("storage.dsn_set", strings.TrimSpace(ns.DSN) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		n := newCfg.Notifier
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Int("notifier.rate_per_sec", n.RatePerSec),
			logx.Int("notifier.retry_max", n.RetryMax),
			logx.Bool("notifier.email", n.Email != nil),
			logx.Bool("notifier.slack", n.Slack != nil),
			logx.Bool("notifier.telegram", n.Telegram != nil),
			logx.Bool("notifier.log_only", n.LogOnly),
		)
	}

	if !reflect.DeepEqual(oldCfg.Ops, newCfg.Ops) {
		changed = append(changed, "ops")
		attrs = append(attrs,
			logx.Bool("ops.enabled", newCfg.Ops.Enabled),
			logx.String("ops.addr", newCfg.Ops.Addr),
			logx.Bool("ops.token_set", strings.TrimSpace(newCfg.Ops.Token) != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired reports sections that only take effect after a process
// restart. Everything else is applied live.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "storage":
			out = append(out, s)
		}
	}
	return out
}
