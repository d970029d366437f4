package store

import (
	"strings"
	"time"

	"reportd/internal/report"
)

// Data queries are written once with "?" placeholders. The postgres store
// rebinds them; timeArg converts instants to each driver's column type.
type timeArg func(time.Time) any

type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) sql() string {
	return strings.Join(w.conds, " AND ")
}

func ordersQuery(tenantID string, f report.OrdersFilter, ts timeArg) (string, []any) {
	w := &where{}
	w.add("tenant_id = ?", tenantID)
	if s := strings.TrimSpace(f.Status); s != "" {
		w.add("status = ?", s)
	}
	if f.From != nil {
		w.add("created_at >= ?", ts(*f.From))
	}
	if f.To != nil {
		w.add("created_at <= ?", ts(*f.To))
	}
	if c := strings.TrimSpace(f.CustomerID); c != "" {
		w.add("customer_id = ?", c)
	}
	return `SELECT id, status, total, created_at FROM orders WHERE ` + w.sql() + ` ORDER BY created_at, id`, w.args
}

func inventoryQuery(tenantID string, f report.InventoryFilter) (string, []any) {
	w := &where{}
	w.add("tenant_id = ?", tenantID)
	if c := strings.TrimSpace(f.Category); c != "" {
		w.add("category = ?", c)
	}
	return `SELECT id, category, quantity, low_stock_threshold FROM inventory_items WHERE ` + w.sql() + ` ORDER BY id`, w.args
}

func timeLogsQuery(tenantID string, f report.TimeFilter, ts timeArg) (string, []any) {
	w := &where{}
	w.add("tenant_id = ?", tenantID)
	w.add("started_at >= ?", ts(f.From))
	w.add("started_at <= ?", ts(f.To))
	if e := strings.TrimSpace(f.EmployeeID); e != "" {
		w.add("employee_id = ?", e)
	}
	return `SELECT id, employee_id, started_at, ended_at, duration_minutes FROM time_logs WHERE ` + w.sql() + ` ORDER BY started_at, id`, w.args
}

func employeesQuery(tenantID string, f report.ProductivityFilter, active any) (string, []any) {
	w := &where{}
	w.add("tenant_id = ?", tenantID)
	w.add("is_active = ?", active)
	if d := strings.TrimSpace(f.Department); d != "" {
		w.add("department = ?", d)
	}
	return `SELECT COUNT(*) FROM employees WHERE ` + w.sql(), w.args
}

const scheduleColumns = `s.id, s.tenant_id, s.name, s.report_type, s.recipients, s.frequency,
	s.day_of_week, s.day_of_month, s.time_of_day, s.filters, s.is_active,
	s.last_sent_at, s.next_send_at, COALESCE(t.timezone, '') AS timezone`

const scheduleFrom = ` FROM report_schedules s LEFT JOIN tenants t ON t.id = s.tenant_id`
