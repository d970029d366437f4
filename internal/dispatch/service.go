package dispatch

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"reportd/internal/eventbus"
	"reportd/internal/notifier"
	"reportd/internal/report"
	logx "reportd/pkg/logx"

	"github.com/robfig/cron/v3"
)

// Deps are the collaborators of a Service.
type Deps struct {
	Store  Store
	Sender notifier.Sender
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

type entry struct {
	cronID   cron.EntryID
	trigger  *report.Trigger
	schedule report.Schedule
}

// Service is the job registry: one cron entry per active schedule, plus
// the executor those entries fire.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	bus    eventbus.Bus
	store  Store
	sender notifier.Sender
	now    func() time.Time

	cfg Config
	loc *time.Location

	newTimers    timerFactory
	timers       timerFacility
	entries      map[string]*entry
	started      bool
	stopping     bool
	bootstrapped bool

	// In-flight guard, keyed by schedule id. Survives re-registration.
	rmu      sync.Mutex
	inflight map[string]bool
	runs     sync.WaitGroup

	// In-memory history (for the ops snapshot)
	hmu     sync.Mutex
	history []RunEvent
}

func New(cfg Config, deps Deps, log logx.Logger, bus eventbus.Bus) *Service {
	return newService(cfg, deps, log, bus, newCron)
}

func newService(cfg Config, deps Deps, log logx.Logger, bus eventbus.Bus, timers timerFactory) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	s := &Service{
		log:       log,
		bus:       bus,
		store:     deps.Store,
		sender:    deps.Sender,
		now:       now,
		cfg:       cfg.withDefaults(),
		newTimers: timers,
		entries:   map[string]*entry{},
		inflight:  map[string]bool{},
	}
	s.loc = s.loadLocationLocked()
	s.timers = s.newTimers(s.loc, s.log)
	return s
}

// Apply swaps runtime settings. A timezone change rebuilds the cron facility
// and re-arms every registered schedule on it.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.Timezone) != oldTZ {
		s.restartLocked()
	}
}

// Start starts cron triggering. It is idempotent.
func (s *Service) Start(ctx context.Context) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.stopping = false
	s.timers.Start()
	s.log.Info("dispatcher started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.entries)))
}

// Stop stops cron triggering and waits for in-flight runs until ctx is done.
// Registrations are kept, so a later Start resumes them.
func (s *Service) Stop(ctx context.Context) error {
	start := time.Now()
	s.log.Info("stop requested")

	s.mu.Lock()
	s.stopping = true
	wasStarted := s.started
	s.started = false
	t := s.timers
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		if wasStarted {
			<-t.Stop().Done()
		}
		s.runs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("dispatcher stopped", logx.Duration("took", time.Since(start)))
		return nil
	case <-ctx.Done():
		s.log.Warn("dispatcher stop grace elapsed; in-flight runs abandoned", logx.Duration("took", time.Since(start)))
		return ctx.Err()
	}
}

// Location is the zone used for schedules without their own.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	t := s.timers
	items := make([]ScheduleInfo, 0, len(s.entries))
	for id, e := range s.entries {
		ce := t.Entry(e.cronID)
		items = append(items, ScheduleInfo{
			ID:         id,
			TenantID:   e.schedule.TenantID,
			Name:       e.schedule.Name,
			ReportType: e.schedule.Type,
			Expr:       e.trigger.Expr,
			Next:       ce.Next,
			Prev:       ce.Prev,
		})
	}
	snap := Snapshot{
		Timezone:         s.loc.String(),
		Started:          s.started,
		Bootstrapped:     s.bootstrapped,
		ExecutionTimeout: s.cfg.ExecutionTimeout,
	}
	s.mu.Unlock()

	s.rmu.Lock()
	for i := range items {
		items[i].InFlight = s.inflight[items[i].ID]
	}
	snap.InFlight = len(s.inflight)
	s.rmu.Unlock()

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	snap.Schedules = items

	s.hmu.Lock()
	snap.History = append([]RunEvent(nil), s.history...)
	s.hmu.Unlock()
	return snap
}

func (s *Service) appendHistory(ev RunEvent) {
	s.mu.Lock()
	limit := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, ev)
	if len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ string, ev RunEvent) {
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.now(), Data: ev})
}

// restartLocked moves every entry onto a fresh facility in the current zone.
// Call with s.mu held.
func (s *Service) restartLocked() {
	old := s.timers
	s.loc = s.loadLocationLocked()
	s.timers = s.newTimers(s.loc, s.log)
	for id, e := range s.entries {
		e.cronID = s.timers.Schedule(e.trigger, s.job(id))
	}
	if s.started {
		old.Stop()
		s.timers.Start()
	}
	s.log.Info("dispatcher timezone changed", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.entries)))
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
