package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"reportd/internal/report"
)

// Memory is a goroutine-safe in-process Store. Seed it with the Put and Add
// methods; reads apply the same filters as the SQL drivers. Schedules are
// kept in their stored encoding and decoded on every read.
type Memory struct {
	mu        sync.RWMutex
	tenants   map[string]Tenant
	schedules map[string]scheduleRecord
	orders    []Order
	items     []InventoryItem
	logs      []TimeLog
	employees []Employee
	closed    bool
}

type Tenant struct {
	ID       string
	Name     string
	Timezone string
}

type Order struct {
	report.OrderRow
	TenantID   string
	CustomerID string
}

type InventoryItem struct {
	report.InventoryRow
	TenantID string
}

type TimeLog struct {
	report.TimeLogRow
	TenantID string
}

type Employee struct {
	ID         string
	TenantID   string
	Department string
	Active     bool
}

func NewMemory() *Memory {
	return &Memory{
		tenants:   map[string]Tenant{},
		schedules: map[string]scheduleRecord{},
	}
}

func (m *Memory) PutTenant(t Tenant) {
	m.mu.Lock()
	m.tenants[t.ID] = t
	m.mu.Unlock()
}

// PutSchedule inserts or replaces a schedule. The tenant's zone is applied
// on read, as the SQL drivers do.
func (m *Memory) PutSchedule(s report.Schedule) error {
	r, err := recordOf(s)
	if err != nil {
		return err
	}
	m.putRecord(r)
	return nil
}

func (m *Memory) putRecord(r scheduleRecord) {
	m.mu.Lock()
	m.schedules[r.ID] = r
	m.mu.Unlock()
}

func (m *Memory) DeleteSchedule(id string) {
	m.mu.Lock()
	delete(m.schedules, id)
	m.mu.Unlock()
}

func (m *Memory) AddOrders(rows ...Order) {
	m.mu.Lock()
	m.orders = append(m.orders, rows...)
	m.mu.Unlock()
}

func (m *Memory) AddInventory(rows ...InventoryItem) {
	m.mu.Lock()
	m.items = append(m.items, rows...)
	m.mu.Unlock()
}

func (m *Memory) AddTimeLogs(rows ...TimeLog) {
	m.mu.Lock()
	m.logs = append(m.logs, rows...)
	m.mu.Unlock()
}

func (m *Memory) AddEmployees(rows ...Employee) {
	m.mu.Lock()
	m.employees = append(m.employees, rows...)
	m.mu.Unlock()
}

func (m *Memory) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *Memory) ListActiveSchedules(ctx context.Context) ([]report.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	recs := make([]scheduleRecord, 0, len(m.schedules))
	for _, r := range m.schedules {
		if r.Active {
			recs = append(recs, m.withZone(r))
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return decodeRecords(recs)
}

func (m *Memory) GetSchedule(ctx context.Context, id string) (*report.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	r, ok := m.schedules[id]
	if !ok {
		return nil, nil
	}
	s, err := m.withZone(r).toSchedule()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *Memory) withZone(r scheduleRecord) scheduleRecord {
	if t, ok := m.tenants[r.TenantID]; ok && strings.TrimSpace(r.Timezone) == "" {
		r.Timezone = t.Timezone
	}
	return r
}

func (m *Memory) UpdateScheduleRunTimestamps(ctx context.Context, id string, lastSentAt, nextSendAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	r, ok := m.schedules[id]
	if !ok {
		return nil
	}
	r.LastSentAt, r.NextSendAt = &lastSentAt, &nextSendAt
	m.schedules[id] = r
	return nil
}

func (m *Memory) TenantName(ctx context.Context, tenantID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return "", err
	}
	return strings.TrimSpace(m.tenants[tenantID].Name), nil
}

func (m *Memory) Orders(ctx context.Context, tenantID string, f report.OrdersFilter) ([]report.OrderRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	var out []report.OrderRow
	for _, o := range m.orders {
		switch {
		case o.TenantID != tenantID:
		case f.Status != "" && o.Status != f.Status:
		case f.From != nil && o.CreatedAt.Before(*f.From):
		case f.To != nil && o.CreatedAt.After(*f.To):
		case f.CustomerID != "" && o.CustomerID != f.CustomerID:
		default:
			out = append(out, o.OrderRow)
		}
	}
	return out, nil
}

func (m *Memory) InventoryItems(ctx context.Context, tenantID string, f report.InventoryFilter) ([]report.InventoryRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	var out []report.InventoryRow
	for _, it := range m.items {
		if it.TenantID == tenantID && (f.Category == "" || it.Category == f.Category) {
			out = append(out, it.InventoryRow)
		}
	}
	return out, nil
}

func (m *Memory) TimeLogs(ctx context.Context, tenantID string, f report.TimeFilter) ([]report.TimeLogRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	var out []report.TimeLogRow
	for _, l := range m.logs {
		switch {
		case l.TenantID != tenantID:
		case l.StartedAt.Before(f.From), l.StartedAt.After(f.To):
		case f.EmployeeID != "" && l.EmployeeID != f.EmployeeID:
		default:
			out = append(out, l.TimeLogRow)
		}
	}
	return out, nil
}

func (m *Memory) CountEmployees(ctx context.Context, tenantID string, f report.ProductivityFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return 0, err
	}
	n := 0
	for _, e := range m.employees {
		if e.TenantID == tenantID && e.Active && (f.Department == "" || e.Department == f.Department) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.check(ctx)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
