package app

import (
	"fmt"
	"strings"
	"time"

	"reportd/internal/config"
	"reportd/internal/dispatch"
	"reportd/internal/notifier"
	"reportd/internal/ops"
	"reportd/internal/store"
	logx "reportd/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	d := cfg.Dispatch
	timeout, err := config.ParseDurationOrDefault("dispatch.execution_timeout", d.ExecutionTimeout, 5*time.Minute)
	if err != nil {
		return dispatch.Config{}, err
	}
	base, err := config.ParseDurationOrDefault("dispatch.retry_base", d.RetryBase, 500*time.Millisecond)
	if err != nil {
		return dispatch.Config{}, err
	}
	maxDelay, err := config.ParseDurationOrDefault("dispatch.retry_max_delay", d.RetryMaxDelay, 15*time.Second)
	if err != nil {
		return dispatch.Config{}, err
	}
	if tz := strings.TrimSpace(d.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return dispatch.Config{}, fmt.Errorf("dispatch.timezone: invalid %q: %w", tz, err)
		}
	}

	retryMax := d.RetryMax
	if retryMax < 0 {
		retryMax = 0
	} else if retryMax == 0 {
		retryMax = 3
	}
	return dispatch.Config{
		Timezone:         strings.TrimSpace(d.Timezone),
		ExecutionTimeout: timeout,
		RetryMax:         retryMax,
		RetryBase:        base,
		RetryMaxDelay:    maxDelay,
		HistorySize:      d.HistorySize,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (store.Config, error) {
	s := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", s.BusyTimeout, 5*time.Second)
	if err != nil {
		return store.Config{}, err
	}
	return store.Config{
		Driver:       s.Driver,
		Path:         s.Path,
		DSN:          s.DSN,
		BusyTimeout:  busy,
		MaxOpenConns: s.MaxOpenConns,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.Notifier
	base, err := config.ParseDurationOrDefault("notifier.retry_base", n.RetryBase, 500*time.Millisecond)
	if err != nil {
		return notifier.Config{}, err
	}
	maxDelay, err := config.ParseDurationOrDefault("notifier.retry_max_delay", n.RetryMaxDelay, 10*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	sendTimeout, err := config.ParseDurationOrDefault("notifier.send_timeout", n.SendTimeout, 30*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}

	retryMax := n.RetryMax
	if retryMax < 0 {
		retryMax = 0
	} else if retryMax == 0 {
		retryMax = 3
	}
	return notifier.Config{
		RatePerSec:    n.RatePerSec,
		RetryMax:      retryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		SendTimeout:   sendTimeout,
		LogOnly:       n.LogOnly,
	}, nil
}

// buildTransports creates one transport per configured channel. The log
// transport is always present.
func buildTransports(cfg *config.Config, log logx.Logger) ([]notifier.Transport, error) {
	n := cfg.Notifier
	out := []notifier.Transport{notifier.NewLog(log.With(logx.String("channel", "log")))}

	if n.Email != nil {
		t, err := notifier.NewEmail(notifier.EmailConfig{
			Host:     n.Email.Host,
			Port:     n.Email.Port,
			Username: n.Email.Username,
			Password: n.Email.Password,
			From:     n.Email.From,
		})
		if err != nil {
			return nil, fmt.Errorf("notifier.email: %w", err)
		}
		out = append(out, t)
	}
	if n.Slack != nil && strings.TrimSpace(n.Slack.Token) != "" {
		t, err := notifier.NewSlack(n.Slack.Token)
		if err != nil {
			return nil, fmt.Errorf("notifier.slack: %w", err)
		}
		out = append(out, t)
	}
	if n.Telegram != nil && strings.TrimSpace(n.Telegram.Token) != "" {
		t, err := notifier.NewTelegram(n.Telegram.Token)
		if err != nil {
			return nil, fmt.Errorf("notifier.telegram: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

// mapOpsConfig maps the control API block. Manual runs default to the
// dispatcher's execution timeout.
func mapOpsConfig(cfg *config.Config) (ops.Config, error) {
	o := cfg.Ops
	read, err := config.ParseDurationOrDefault("ops.read_timeout", o.ReadTimeout, 10*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	write, err := config.ParseDurationField("ops.write_timeout", o.WriteTimeout)
	if err != nil {
		return ops.Config{}, err
	}
	execTimeout, err := config.ParseDurationOrDefault("dispatch.execution_timeout", cfg.Dispatch.ExecutionTimeout, 5*time.Minute)
	if err != nil {
		return ops.Config{}, err
	}
	run, err := config.ParseDurationOrDefault("ops.run_timeout", o.RunTimeout, execTimeout)
	if err != nil {
		return ops.Config{}, err
	}
	return ops.Config{
		Enabled:       o.Enabled,
		Addr:          o.Addr,
		Token:         strings.TrimSpace(o.Token),
		AllowInsecure: o.AllowInsecure,
		Pprof:         o.Pprof,
		RatePerSec:    float64(o.RatePerSec),
		ReadTimeout:   read,
		WriteTimeout:  write,
		RunTimeout:    run,
	}, nil
}

// validateReload rejects a reloaded config that any component would refuse.
func validateReload(cfg *config.Config) error {
	if _, err := mapDispatchConfig(cfg); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, err := buildTransports(cfg, logx.Nop()); err != nil {
		return err
	}
	_, err := mapOpsConfig(cfg)
	return err
}
