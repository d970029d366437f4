package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ParseDurationField parses an optional duration. Empty means zero.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// Validate reports every problem in cfg at once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		add(err)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		add(errors.New("logging.file.path: required when file logging is enabled"))
	}

	d := cfg.Dispatch
	if tz := strings.TrimSpace(d.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("dispatch.timezone: %w", err))
		}
	}
	dur("dispatch.execution_timeout", d.ExecutionTimeout)
	dur("dispatch.retry_base", d.RetryBase)
	dur("dispatch.retry_max_delay", d.RetryMaxDelay)
	if d.RetryMax < 0 {
		add(errors.New("dispatch.retry_max: must be >= 0"))
	}
	if d.HistorySize < 0 {
		add(errors.New("dispatch.history_size: must be >= 0"))
	}

	s := cfg.Storage
	switch strings.ToLower(strings.TrimSpace(s.Driver)) {
	case "", "sqlite":
		dur("storage.busy_timeout", s.BusyTimeout)
	case "postgres":
		if strings.TrimSpace(s.DSN) == "" {
			add(fmt.Errorf("storage.dsn: required for postgres (or set %s)", EnvPostgresDSN))
		}
		if s.MaxOpenConns < 0 {
			add(errors.New("storage.max_open_conns: must be >= 0"))
		}
	case "memory":
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", s.Driver))
	}

	n := cfg.Notifier
	if n.RatePerSec < 0 {
		add(errors.New("notifier.rate_per_sec: must be >= 0"))
	}
	if n.RetryMax < 0 {
		add(errors.New("notifier.retry_max: must be >= 0"))
	}
	dur("notifier.retry_base", n.RetryBase)
	dur("notifier.retry_max_delay", n.RetryMaxDelay)
	dur("notifier.send_timeout", n.SendTimeout)
	if e := n.Email; e != nil {
		if strings.TrimSpace(e.Host) == "" {
			add(errors.New("notifier.email.host: required"))
		}
		if e.Port <= 0 || e.Port > 65535 {
			add(fmt.Errorf("notifier.email.port: invalid port %d", e.Port))
		}
		if strings.TrimSpace(e.From) == "" {
			add(errors.New("notifier.email.from: required"))
		}
	}
	if sl := n.Slack; sl != nil && strings.TrimSpace(sl.Token) == "" {
		add(fmt.Errorf("notifier.slack.token: required (or set %s)", EnvSlackToken))
	}
	if tg := n.Telegram; tg != nil && strings.TrimSpace(tg.Token) == "" {
		add(fmt.Errorf("notifier.telegram.token: required (or set %s)", EnvTelegramToken))
	}

	o := cfg.Ops
	if o.Enabled {
		if addr := strings.TrimSpace(o.Addr); addr != "" {
			if _, _, err := net.SplitHostPort(addr); err != nil {
				add(fmt.Errorf("ops.addr: %w", err))
			}
		}
		if o.RatePerSec < 0 {
			add(errors.New("ops.rate_per_sec: must be >= 0"))
		}
		dur("ops.read_timeout", o.ReadTimeout)
		dur("ops.write_timeout", o.WriteTimeout)
		dur("ops.run_timeout", o.RunTimeout)
	}

	return errors.Join(errs...)
}
