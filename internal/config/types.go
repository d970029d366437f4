package config

// Config is the reportd configuration file.
//
// All durations are Go duration strings ("500ms", "10s", "5m"). Omitted
// fields take the defaults documented on each block; the app maps them into
// typed service configs.
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Dispatch DispatchConfig `json:"dispatch"`
	Storage  StorageConfig  `json:"storage"`
	Notifier NotifierConfig `json:"notifier"`
	Ops      OpsConfig      `json:"ops"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// DispatchConfig controls the job registry and the report executor.
//
// Defaults:
//   - timezone: "" (process-local); per-schedule zones take precedence
//   - execution_timeout: "5m"
//   - retry_max: 3 (store retries per step)
//   - retry_base: "500ms", retry_max_delay: "15s"
//   - history_size: 200
type DispatchConfig struct {
	Timezone         string `json:"timezone,omitempty"`
	ExecutionTimeout string `json:"execution_timeout,omitempty"`
	RetryMax         int    `json:"retry_max,omitempty"`
	RetryBase        string `json:"retry_base,omitempty"`
	RetryMaxDelay    string `json:"retry_max_delay,omitempty"`
	HistorySize      int    `json:"history_size,omitempty"`
}

// StorageConfig selects the schedule/report store.
//
// Example:
//
//	storage:
//	  driver: sqlite
//	  path: ./data/reportd.db
type StorageConfig struct {
	Driver       string `json:"driver"`                  // sqlite | postgres | memory
	Path         string `json:"path,omitempty"`          // sqlite
	DSN          string `json:"dsn,omitempty"`           // postgres; prefer REPORTD_POSTGRES_DSN
	BusyTimeout  string `json:"busy_timeout,omitempty"`  // sqlite
	MaxOpenConns int    `json:"max_open_conns,omitempty"` // postgres
}

// NotifierConfig controls delivery. Each channel block is optional; a
// recipient whose channel is not configured fails with a permanent error.
type NotifierConfig struct {
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty"`

	Email    *EmailConfig    `json:"email,omitempty"`
	Slack    *SlackConfig    `json:"slack,omitempty"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`

	// LogOnly routes every message to the log transport. Useful for staging.
	LogOnly bool `json:"log_only,omitempty"`
}

type EmailConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"` // prefer REPORTD_SMTP_PASSWORD
	From     string `json:"from"`
}

type SlackConfig struct {
	Token string `json:"token,omitempty"` // prefer REPORTD_SLACK_TOKEN
}

type TelegramConfig struct {
	Token string `json:"token,omitempty"` // prefer REPORTD_TELEGRAM_TOKEN
}

// OpsConfig controls the HTTP control API.
//
// Security note: bind to loopback or set a token; the API can trigger and
// cancel report deliveries.
type OpsConfig struct {
	Enabled    bool   `json:"enabled"`
	Addr       string `json:"addr,omitempty"`  // default "127.0.0.1:8089"
	Token      string `json:"token,omitempty"` // bearer token, prefer REPORTD_OPS_TOKEN
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	// AllowInsecure permits a non-loopback addr without a token.
	AllowInsecure bool `json:"allow_insecure,omitempty"`
	// Pprof mounts net/http/pprof under /debug/pprof behind the token.
	Pprof bool `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	RunTimeout   string `json:"run_timeout,omitempty"` // manual run deadline, default dispatch.execution_timeout
}
