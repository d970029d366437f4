package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"reportd/internal/metrics"
	"reportd/internal/report"
	logx "reportd/pkg/logx"

	"github.com/robfig/cron/v3"
)

// Bootstrap registers every active schedule in the store. A schedule that
// fails to decode or register is logged and reported, and the rest still
// register. Only a failure to list schedules returns an error; in that case
// Bootstrap may be called again.
func (s *Service) Bootstrap(ctx context.Context) (BootstrapReport, error) {
	s.mu.Lock()
	if s.bootstrapped {
		s.mu.Unlock()
		return BootstrapReport{}, ErrAlreadyBootstrapped
	}
	s.mu.Unlock()

	start := time.Now()
	var list []report.Schedule
	err := s.storeCall(ctx, "bootstrap", func(ctx context.Context) error {
		var err error
		list, err = s.store.ListActiveSchedules(ctx)
		return err
	})
	unreadable := report.UnreadableRows(err)
	if err != nil && unreadable == nil {
		return BootstrapReport{}, fmt.Errorf("list active schedules: %w", err)
	}

	s.mu.Lock()
	if s.bootstrapped {
		s.mu.Unlock()
		return BootstrapReport{}, ErrAlreadyBootstrapped
	}
	s.bootstrapped = true
	s.mu.Unlock()

	rep := BootstrapReport{Total: len(list) + len(unreadable)}
	for _, row := range unreadable {
		rep.Failures = append(rep.Failures, BootstrapFailure{ScheduleID: row.ScheduleID, Err: row.Err})
		metrics.BootstrapFailures.Inc()
		s.log.Warn("bootstrap: schedule unreadable", logx.String("schedule_id", row.ScheduleID), logx.String("tenant_id", row.TenantID), logx.Err(row.Err))
	}
	for _, sc := range list {
		if err := s.Register(sc); err != nil {
			rep.Failures = append(rep.Failures, BootstrapFailure{ScheduleID: sc.ID, Err: err})
			metrics.BootstrapFailures.Inc()
			s.log.Warn("bootstrap: schedule skipped", logx.String("schedule_id", sc.ID), logx.String("tenant_id", sc.TenantID), logx.Err(err))
			continue
		}
		if sc.Active {
			rep.Registered++
		}
	}
	s.log.Info("bootstrap finished",
		logx.Int("total", rep.Total),
		logx.Int("registered", rep.Registered),
		logx.Int("failed", len(rep.Failures)),
		logx.Duration("took", time.Since(start)),
	)
	return rep, nil
}

// Register arms sc, replacing any existing registration for its id. An
// inactive schedule is unregistered. An invalid schedule leaves the current
// registration untouched and returns a *report.InvalidScheduleError.
func (s *Service) Register(sc report.Schedule) error {
	if !sc.Active {
		s.Unregister(sc.ID)
		return nil
	}
	if err := sc.Validate(); err != nil {
		return err
	}
	trig, err := report.BuildTrigger(sc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	replaced := false
	if old, ok := s.entries[sc.ID]; ok {
		s.timers.Remove(old.cronID)
		replaced = true
	}
	id := s.timers.Schedule(trig, s.job(sc.ID))
	s.entries[sc.ID] = &entry{cronID: id, trigger: trig, schedule: sc}
	metrics.RegisteredSchedules.Set(float64(len(s.entries)))
	loc := s.loc
	s.mu.Unlock()

	if s.log.Enabled(logx.LevelDebug) {
		s.log.Debug("schedule registered",
			logx.String("schedule_id", sc.ID),
			logx.String("expr", trig.Expr),
			logx.Bool("replaced", replaced),
			logx.String("next", previewNextRuns(trig, s.now().In(loc), 3)),
		)
	}
	s.publish("schedule.registered", RunEvent{ScheduleID: sc.ID, TenantID: sc.TenantID, ReportType: sc.Type, Started: s.now()})
	return nil
}

// Unregister cancels the trigger for id. A run already in flight finishes.
// It reports whether a registration was removed.
func (s *Service) Unregister(id string) bool {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok {
		s.timers.Remove(e.cronID)
		delete(s.entries, id)
		metrics.RegisteredSchedules.Set(float64(len(s.entries)))
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	s.log.Debug("schedule unregistered", logx.String("schedule_id", id))
	s.publish("schedule.unregistered", RunEvent{ScheduleID: id, TenantID: e.schedule.TenantID, ReportType: e.schedule.Type, Started: s.now()})
	return true
}

// Reload re-reads id from the store and registers or unregisters it. It is
// the hook for whatever edits schedules.
func (s *Service) Reload(ctx context.Context, id string) error {
	var sc *report.Schedule
	err := s.storeCall(ctx, StepLoad, func(ctx context.Context) error {
		var err error
		sc, err = s.store.GetSchedule(ctx, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("load schedule %s: %w", id, err)
	}
	if sc == nil {
		s.Unregister(id)
		return nil
	}
	return s.Register(*sc)
}

// Registered reports whether id has a live trigger.
func (s *Service) Registered(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// job captures only the schedule id; everything else is re-read per fire.
func (s *Service) job(id string) cron.Job {
	return cron.FuncJob(func() { s.fire(id) })
}

func previewNextRuns(t *report.Trigger, from time.Time, n int) string {
	var b strings.Builder
	for i, at := range t.Preview(from, n) {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(at.Format("2006-01-02 15:04 MST"))
	}
	return b.String()
}
