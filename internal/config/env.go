package config

import (
	"os"
	"strings"
)

// Environment variables that override secrets in the file.
const (
	EnvSMTPPassword  = "REPORTD_SMTP_PASSWORD"
	EnvSlackToken    = "REPORTD_SLACK_TOKEN"
	EnvTelegramToken = "REPORTD_TELEGRAM_TOKEN"
	EnvPostgresDSN   = "REPORTD_POSTGRES_DSN"
	EnvOpsToken      = "REPORTD_OPS_TOKEN"
)

// ApplyEnv copies secrets from the environment into cfg. A set variable
// wins over the file; an empty one leaves the file value alone. Channel
// blocks are created on demand so a token alone enables slack or telegram.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if cfg == nil {
		return
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	get := func(k string) string { return strings.TrimSpace(getenv(k)) }

	if v := get(EnvSMTPPassword); v != "" && cfg.Notifier.Email != nil {
		cfg.Notifier.Email.Password = v
	}
	if v := get(EnvSlackToken); v != "" {
		if cfg.Notifier.Slack == nil {
			cfg.Notifier.Slack = &SlackConfig{}
		}
		cfg.Notifier.Slack.Token = v
	}
	if v := get(EnvTelegramToken); v != "" {
		if cfg.Notifier.Telegram == nil {
			cfg.Notifier.Telegram = &TelegramConfig{}
		}
		cfg.Notifier.Telegram.Token = v
	}
	if v := get(EnvPostgresDSN); v != "" {
		cfg.Storage.DSN = v
	}
	if v := get(EnvOpsToken); v != "" {
		cfg.Ops.Token = v
	}
}
