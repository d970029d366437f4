package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"reportd/internal/eventbus"
	"reportd/internal/notifier"
	"reportd/internal/report"
	"reportd/internal/store"
	logx "reportd/pkg/logx"

	"github.com/robfig/cron/v3"
)

// fakeTimers records armed entries; tests fire them by hand.
type fakeTimers struct {
	mu      sync.Mutex
	next    cron.EntryID
	entries map[cron.EntryID]cron.Entry
	running bool
}

func newFakeTimers(*time.Location, logx.Logger) timerFacility {
	return &fakeTimers{entries: map[cron.EntryID]cron.Entry{}}
}

func (f *fakeTimers) Schedule(s cron.Schedule, j cron.Job) cron.EntryID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.entries[f.next] = cron.Entry{ID: f.next, Schedule: s, Job: j}
	return f.next
}

func (f *fakeTimers) Remove(id cron.EntryID) {
	f.mu.Lock()
	delete(f.entries, id)
	f.mu.Unlock()
}

func (f *fakeTimers) Entry(id cron.EntryID) cron.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[id]
}

func (f *fakeTimers) Start() {
	f.mu.Lock()
	f.running = true
	f.mu.Unlock()
}

func (f *fakeTimers) Stop() context.Context {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

func (f *fakeTimers) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// fireEntry runs the job registered under cron id, synchronously.
func (f *fakeTimers) fireEntry(id cron.EntryID) bool {
	f.mu.Lock()
	e, ok := f.entries[id]
	f.mu.Unlock()
	if ok {
		e.Job.Run()
	}
	return ok
}

// hookStore wraps the memory store with per-call hooks.
type hookStore struct {
	*store.Memory

	mu          sync.Mutex
	onGet       func(id string) error
	onUpdate    func(id string) error
	onOrders    func(tenantID string) error
	getCalls    int
	updateCalls int
}

func (h *hookStore) GetSchedule(ctx context.Context, id string) (*report.Schedule, error) {
	h.mu.Lock()
	h.getCalls++
	hook := h.onGet
	h.mu.Unlock()
	if hook != nil {
		if err := hook(id); err != nil {
			return nil, err
		}
	}
	return h.Memory.GetSchedule(ctx, id)
}

func (h *hookStore) UpdateScheduleRunTimestamps(ctx context.Context, id string, last, next time.Time) error {
	h.mu.Lock()
	h.updateCalls++
	hook := h.onUpdate
	h.mu.Unlock()
	if hook != nil {
		if err := hook(id); err != nil {
			return err
		}
	}
	return h.Memory.UpdateScheduleRunTimestamps(ctx, id, last, next)
}

func (h *hookStore) Orders(ctx context.Context, tenantID string, f report.OrdersFilter) ([]report.OrderRow, error) {
	h.mu.Lock()
	hook := h.onOrders
	h.mu.Unlock()
	if hook != nil {
		if err := hook(tenantID); err != nil {
			return nil, err
		}
	}
	return h.Memory.Orders(ctx, tenantID, f)
}

type sentMessage = notifier.Message

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeSender) Send(_ context.Context, m notifier.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, m)
	return f.err
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

// fixture is a dispatcher wired to fakes with a fixed clock.
type fixture struct {
	svc    *Service
	timers *fakeTimers
	store  *hookStore
	sender *fakeSender
	bus    eventbus.Bus
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  &hookStore{Memory: store.NewMemory()},
		sender: &fakeSender{},
		bus:    eventbus.New(),
		now:    time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC),
	}
	cfg := Config{Timezone: "UTC", RetryMax: 2, RetryBase: time.Millisecond, RetryMaxDelay: 2 * time.Millisecond}
	f.svc = newService(cfg, Deps{Store: f.store, Sender: f.sender, Now: func() time.Time { return f.now }}, logx.Nop(), f.bus, func(loc *time.Location, log logx.Logger) timerFacility {
		ft := newFakeTimers(loc, log).(*fakeTimers)
		f.timers = ft
		return ft
	})
	f.store.PutTenant(store.Tenant{ID: "t1", Name: "Acme"})
	return f
}

// fire triggers the armed entry for schedule id.
func (f *fixture) fire(t *testing.T, id string) {
	t.Helper()
	f.svc.mu.Lock()
	e, ok := f.svc.entries[id]
	f.svc.mu.Unlock()
	if !ok {
		t.Fatalf("schedule %s not registered", id)
	}
	if !f.timers.fireEntry(e.cronID) {
		t.Fatalf("schedule %s has no armed timer", id)
	}
}

func dailyOrders(id string) report.Schedule {
	return report.Schedule{
		ID:         id,
		TenantID:   "t1",
		Name:       "Daily orders",
		Type:       report.TypeOrders,
		Recipients: []string{"ops@acme.test"},
		Frequency:  report.Daily,
		TimeOfDay:  "09:00",
		Active:     true,
	}
}
