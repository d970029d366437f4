package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"reportd/internal/metrics"
	"reportd/internal/notifier"
	"reportd/internal/report"
	"reportd/internal/retry"
	"reportd/internal/store"
	logx "reportd/pkg/logx"

	"github.com/google/uuid"
)

// fallbackTenantName labels reports whose tenant name cannot be resolved.
const fallbackTenantName = "your organization"

// errSkipped carries a skip reason out of run.
type errSkipped struct{ reason string }

func (e errSkipped) Error() string { return "skipped: " + e.reason }

// fire is the cron path. Errors stop here so the trigger stays armed.
func (s *Service) fire(id string) {
	if !s.Registered(id) {
		s.skip(id, TriggerCron, SkipUnregistered)
		return
	}
	_ = s.run(context.Background(), id, TriggerCron)
}

// Execute runs one schedule now through the same guard and steps as a
// trigger fire, returning the failure instead of swallowing it.
func (s *Service) Execute(ctx context.Context, id string) error {
	err := s.run(ctx, id, TriggerManual)
	var sk errSkipped
	if errors.As(err, &sk) {
		switch sk.reason {
		case SkipInFlight:
			return ErrInFlight
		case SkipMissing:
			return ErrScheduleNotFound
		case SkipInactive:
			return ErrScheduleInactive
		case SkipStopped:
			return ErrStopped
		}
	}
	return err
}

func (s *Service) run(ctx context.Context, id, trigger string) (err error) {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		s.skip(id, trigger, SkipStopped)
		return errSkipped{SkipStopped}
	}
	s.runs.Add(1)
	cfg := s.cfg
	loc := s.loc
	s.mu.Unlock()
	defer s.runs.Done()

	if !s.acquire(id) {
		s.skip(id, trigger, SkipInFlight)
		return errSkipped{SkipInFlight}
	}
	defer s.release(id)

	ev := RunEvent{RunID: uuid.NewString(), ScheduleID: id, Trigger: trigger, Started: s.now()}
	log := s.log.With(logx.String("schedule_id", id), logx.String("run_id", ev.RunID))
	log.Debug("report.fired", logx.String("trigger", trigger))
	s.publish("report.fired", ev)

	ctx, cancel := context.WithTimeout(ctx, cfg.ExecutionTimeout)
	defer cancel()

	step := StepLoad
	began := time.Now()
	// Guard against generator or transport panics: one bad run must not
	// take down the cron goroutine or the process.
	defer func() {
		if r := recover(); r != nil {
			log.Error("report.panic", logx.String("step", step), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = &ExecutionError{ScheduleID: id, RunID: ev.RunID, Step: step, Err: fmt.Errorf("panic: %v", r)}
		}
		ev.Duration = time.Since(began)
		var sk errSkipped
		switch {
		case err == nil:
			s.finish("report.sent", ev, "sent")
			log.Info("report sent", logx.String("report_type", string(ev.ReportType)), logx.Duration("took", ev.Duration))
		case errors.As(err, &sk):
			ev.Reason = sk.reason
			metrics.IncFiresSkipped(sk.reason)
			s.appendHistory(ev)
			s.publish("report.skipped", ev)
		default:
			ev.Step, ev.Error = step, err.Error()
			s.finish("report.failed", ev, "failed")
			log.Error("report failed", logx.String("step", step), logx.Err(err))
		}
	}()

	fail := func(err error) error {
		return &ExecutionError{ScheduleID: id, RunID: ev.RunID, Step: step, Err: err}
	}

	// 1. Re-read the schedule so edits since registration apply.
	var sc *report.Schedule
	if err := s.storeCall(ctx, step, func(ctx context.Context) error {
		var err error
		sc, err = s.store.GetSchedule(ctx, id)
		return err
	}); err != nil {
		return fail(err)
	}
	if sc == nil {
		log.Info("schedule no longer exists; skipping run")
		return errSkipped{SkipMissing}
	}
	ev.TenantID, ev.ReportType = sc.TenantID, sc.Type
	if !sc.Active {
		log.Info("schedule is inactive; skipping run")
		return errSkipped{SkipInactive}
	}
	if err := sc.Validate(); err != nil {
		return fail(err)
	}
	trig, err := report.BuildTrigger(*sc)
	if err != nil {
		return fail(err)
	}
	if trig.Location != nil {
		loc = trig.Location
	}

	// 2-3. Generate and summarize.
	step = StepGenerate
	var summary report.Summary
	if err := s.storeCall(ctx, step, func(ctx context.Context) error {
		var err error
		summary, err = report.Generate(ctx, s.store, sc.TenantID, sc.EffectiveFilters())
		return err
	}); err != nil {
		return fail(err)
	}

	// 4. Tenant name, best-effort.
	tenant := s.tenantName(ctx, log, sc.TenantID)

	// 5. Send.
	step = StepNotify
	now := s.now().In(loc)
	msg := notifier.Message{
		Recipients: sc.Recipients,
		Subject:    Subject(tenant, sc.Name, now),
		Body:       Body(*sc, summary),
		ScheduleID: id,
		RunID:      ev.RunID,
	}
	if s.sender == nil {
		return fail(notifier.ErrNoTransport)
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		return fail(err)
	}

	// 6. Persist timestamps.
	step = StepPersist
	next, err := report.NextRun(*sc, now)
	if err != nil {
		return fail(err)
	}
	if err := s.storeCall(ctx, step, func(ctx context.Context) error {
		return s.store.UpdateScheduleRunTimestamps(ctx, id, now, next)
	}); err != nil {
		return fail(err)
	}
	ev.NextSendAt = &next
	return nil
}

func (s *Service) finish(typ string, ev RunEvent, status string) {
	metrics.ObserveExecution(string(ev.ReportType), status, ev.Duration)
	s.appendHistory(ev)
	s.publish(typ, ev)
}

// skip records a fire that never started a run.
func (s *Service) skip(id, trigger, reason string) {
	metrics.IncFiresSkipped(reason)
	s.log.Info("report.skipped", logx.String("schedule_id", id), logx.String("trigger", trigger), logx.String("reason", reason))
	ev := RunEvent{ScheduleID: id, Trigger: trigger, Started: s.now(), Reason: reason}
	s.appendHistory(ev)
	s.publish("report.skipped", ev)
}

func (s *Service) acquire(id string) bool {
	s.rmu.Lock()
	defer s.rmu.Unlock()
	if s.inflight[id] {
		return false
	}
	s.inflight[id] = true
	return true
}

func (s *Service) release(id string) {
	s.rmu.Lock()
	delete(s.inflight, id)
	s.rmu.Unlock()
}

func (s *Service) tenantName(ctx context.Context, log logx.Logger, tenantID string) string {
	name, err := s.store.TenantName(ctx, tenantID)
	if err != nil {
		log.Warn("tenant name lookup failed; using fallback", logx.String("tenant_id", tenantID), logx.Err(err))
		return fallbackTenantName
	}
	if name = strings.TrimSpace(name); name == "" {
		return fallbackTenantName
	}
	return name
}

// storeCall retries fn while the store reports a transient failure.
func (s *Service) storeCall(ctx context.Context, step string, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	p := retry.Policy{
		MaxRetries: cfg.RetryMax,
		Base:       cfg.RetryBase,
		MaxDelay:   cfg.RetryMaxDelay,
		Retryable:  store.IsUnavailable,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			metrics.IncStoreRetry(step)
			s.log.Debug("store call retry scheduled", logx.String("step", step), logx.Int("attempt", attempt+1), logx.Duration("delay", delay), logx.Err(err))
		},
	}
	_, err := retry.Do(ctx, p, fn)
	return err
}

// Subject is the notification subject line for one run.
func Subject(tenant, name string, at time.Time) string {
	if strings.TrimSpace(tenant) == "" {
		tenant = fallbackTenantName
	}
	return fmt.Sprintf("%s: %s (%s)", tenant, name, at.Format("2006-01-02"))
}

// Body is the summary text followed by a short footer.
func Body(sc report.Schedule, summary report.Summary) string {
	return fmt.Sprintf("%s\n\n--\nThis %s %s report is sent automatically. Edit schedule %q to change recipients or cadence.",
		summary.Text(), sc.Frequency, sc.Type, sc.Name)
}
