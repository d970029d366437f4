package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reportd/internal/report"
)

var (
	ErrAlreadyBootstrapped = errors.New("dispatcher already bootstrapped")
	// ErrInFlight is returned by Execute when a run for the schedule is
	// still in progress.
	ErrInFlight         = errors.New("schedule run already in flight")
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrScheduleInactive = errors.New("schedule is inactive")
	ErrStopped          = errors.New("dispatcher stopped")
)

// Config controls the dispatcher.
type Config struct {
	Timezone         string // IANA TZ for schedules without their own zone; empty = Local
	ExecutionTimeout time.Duration
	RetryMax         int // store call retries per step
	RetryBase        time.Duration
	RetryMaxDelay    time.Duration
	HistorySize      int
}

func (c Config) withDefaults() Config {
	if c.ExecutionTimeout <= 0 {
		c.ExecutionTimeout = 5 * time.Minute
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 15 * time.Second
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	return c
}

// Store is the subset of the storage layer the dispatcher needs.
type Store interface {
	report.DataSource
	ListActiveSchedules(ctx context.Context) ([]report.Schedule, error)
	// GetSchedule returns nil, nil when the schedule does not exist.
	GetSchedule(ctx context.Context, id string) (*report.Schedule, error)
	UpdateScheduleRunTimestamps(ctx context.Context, id string, lastSentAt, nextSendAt time.Time) error
	// TenantName returns "" when the tenant is unknown.
	TenantName(ctx context.Context, tenantID string) (string, error)
}

// Executor steps, used in ExecutionError and RunEvent.
const (
	StepLoad     = "load"
	StepGenerate = "generate"
	StepNotify   = "notify"
	StepPersist  = "persist"
)

// ExecutionError wraps a failed run with the step it failed at.
type ExecutionError struct {
	ScheduleID string
	RunID      string
	Step       string
	Err        error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("schedule %s run %s: %s: %v", e.ScheduleID, e.RunID, e.Step, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Run triggers.
const (
	TriggerCron   = "cron"
	TriggerManual = "manual"
)

// Skip reasons.
const (
	SkipInFlight     = "in_flight"
	SkipUnregistered = "unregistered"
	SkipMissing      = "missing"
	SkipInactive     = "inactive"
	SkipStopped      = "stopped"
)

// RunEvent is the payload of every report.* and schedule.* bus event and the
// element of the execution history.
type RunEvent struct {
	RunID      string        `json:"run_id,omitempty"`
	ScheduleID string        `json:"schedule_id"`
	TenantID   string        `json:"tenant_id,omitempty"`
	ReportType report.Type   `json:"report_type,omitempty"`
	Trigger    string        `json:"trigger,omitempty"`
	Started    time.Time     `json:"started"`
	Duration   time.Duration `json:"duration"`
	NextSendAt *time.Time    `json:"next_send_at,omitempty"`
	Step       string        `json:"step,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// BootstrapReport summarizes a Bootstrap call. Failures never abort the
// remaining registrations.
type BootstrapReport struct {
	Total      int
	Registered int
	Failures   []BootstrapFailure
}

type BootstrapFailure struct {
	ScheduleID string
	Err        error
}

type ScheduleInfo struct {
	ID         string      `json:"id"`
	TenantID   string      `json:"tenant_id"`
	Name       string      `json:"name"`
	ReportType report.Type `json:"report_type"`
	Expr       string      `json:"expr"`
	Next       time.Time   `json:"next"`
	Prev       time.Time   `json:"prev"`
	InFlight   bool        `json:"in_flight"`
}

type Snapshot struct {
	Timezone         string         `json:"timezone"`
	Started          bool           `json:"started"`
	Bootstrapped     bool           `json:"bootstrapped"`
	ExecutionTimeout time.Duration  `json:"execution_timeout"`
	InFlight         int            `json:"in_flight"`
	Schedules        []ScheduleInfo `json:"schedules"`
	History          []RunEvent     `json:"history"`
}
