package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"reportd/internal/report"
	logx "reportd/pkg/logx"
)

func newTestSQLite(t *testing.T) *sqliteStore {
	t.Helper()
	st, err := openSQLite(context.Background(), Config{Path: filepath.Join(t.TempDir(), "db", "reportd.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func mustExec(t *testing.T, st *sqliteStore, q string, args ...any) {
	t.Helper()
	_, err := st.db.Exec(q, args...)
	require.NoError(t, err)
}

func TestSQLiteSchedules(t *testing.T) {
	t.Parallel()
	st := newTestSQLite(t)
	ctx := context.Background()

	mustExec(t, st, `INSERT INTO tenants(id, name, timezone) VALUES ('t1', 'Acme Bakery', 'Europe/Berlin')`)
	mustExec(t, st, `INSERT INTO report_schedules(id, tenant_id, name, report_type, recipients, frequency, day_of_week, time_of_day, filters, is_active)
		VALUES ('s1', 't1', 'Weekly orders', 'orders', '["ops@acme.test","slack:#ops"]', 'weekly', 1, '07:30', '{"status":"completed"}', 1)`)
	mustExec(t, st, `INSERT INTO report_schedules(id, tenant_id, name, report_type, recipients, frequency, time_of_day, is_active)
		VALUES ('s2', 't1', 'Paused', 'inventory', '["ops@acme.test"]', 'daily', '09:00', 0)`)
	mustExec(t, st, `INSERT INTO report_schedules(id, tenant_id, name, report_type, recipients, frequency, time_of_day, filters, is_active)
		VALUES ('s3', 't1', 'Broken', 'inventory', '["ops@acme.test"]', 'daily', '09:00', '{"nope":1}', 1)`)
	mustExec(t, st, `INSERT INTO report_schedules(id, tenant_id, name, report_type, recipients, frequency, day_of_month, time_of_day, is_active)
		VALUES ('s4', 'ghost', 'No tenant', 'revenue', 'a@x.test, b@x.test', 'monthly', 31, '06:00', 1)`)

	list, err := st.ListActiveSchedules(ctx)
	var unreadable *report.UnreadableSchedulesError
	require.ErrorAs(t, err, &unreadable)
	require.Len(t, unreadable.Rows, 1)
	require.Equal(t, "s3", unreadable.Rows[0].ScheduleID)
	require.Contains(t, unreadable.Rows[0].Err.Error(), "decode inventory filters")
	require.Len(t, list, 2, "inactive rows are left out and undecodable rows reported apart")

	s1 := list[0]
	require.Equal(t, "s1", s1.ID)
	require.Equal(t, report.TypeOrders, s1.Type)
	require.Equal(t, report.Weekly, s1.Frequency)
	require.Equal(t, []string{"ops@acme.test", "slack:#ops"}, s1.Recipients)
	require.NotNil(t, s1.DayOfWeek)
	require.Equal(t, 1, *s1.DayOfWeek)
	require.Nil(t, s1.DayOfMonth)
	require.Equal(t, "Europe/Berlin", s1.Timezone)
	require.Equal(t, report.OrdersFilter{Status: "completed"}, s1.Filters)
	require.True(t, s1.Active)
	require.NoError(t, s1.Validate())

	s4 := list[1]
	require.Equal(t, []string{"a@x.test", "b@x.test"}, s4.Recipients)
	require.Equal(t, "", s4.Timezone)
	require.Equal(t, report.RevenueFilter{}, s4.Filters)

	got, err := st.GetSchedule(ctx, "s2")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.False(t, got.Active)

	missing, err := st.GetSchedule(ctx, "nope")
	require.NoError(t, err)
	require.Nil(t, missing)

	_, err = st.GetSchedule(ctx, "s3")
	require.Error(t, err)
	require.False(t, IsUnavailable(err))

	last := time.Date(2024, 3, 11, 6, 30, 0, 0, time.UTC)
	next := time.Date(2024, 3, 18, 6, 30, 0, 0, time.UTC)
	require.NoError(t, st.UpdateScheduleRunTimestamps(ctx, "s1", last, next))
	got, err = st.GetSchedule(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got.LastSentAt)
	require.True(t, got.LastSentAt.Equal(last))
	require.True(t, got.NextSendAt.Equal(next))

	require.NoError(t, st.UpdateScheduleRunTimestamps(ctx, "gone", last, next))

	name, err := st.TenantName(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "Acme Bakery", name)
	name, err = st.TenantName(ctx, "ghost")
	require.NoError(t, err)
	require.Empty(t, name)
}

func TestSQLiteDataQueries(t *testing.T) {
	t.Parallel()
	st := newTestSQLite(t)
	ctx := context.Background()

	day := func(d int) time.Time { return time.Date(2024, 3, d, 12, 0, 0, 0, time.UTC) }
	statuses := []string{"completed", "completed", "completed", "completed", "in_progress", "in_progress", "in_progress", "new", "new", "cancelled"}
	for i, s := range statuses {
		var total any
		if i%2 == 0 {
			total = 10.0 * float64(i+1)
		}
		cust := "c1"
		if i >= 5 {
			cust = "c2"
		}
		mustExec(t, st, `INSERT INTO orders(id, tenant_id, customer_id, status, total, created_at) VALUES (?, 't1', ?, ?, ?, ?)`,
			"o"+string(rune('a'+i)), cust, s, total, day(i+1).UnixMilli())
	}
	mustExec(t, st, `INSERT INTO orders(id, tenant_id, status, total, created_at) VALUES ('other', 't2', 'completed', 99, ?)`, day(1).UnixMilli())

	orders, err := st.Orders(ctx, "t1", report.OrdersFilter{})
	require.NoError(t, err)
	require.Len(t, orders, 10)
	sum, err := report.GenerateOrders(ctx, st, "t1", report.OrdersFilter{})
	require.NoError(t, err)
	require.Equal(t, report.OrdersSummary{TotalOrders: 10, CompletedOrders: 4, PendingOrders: 3}, sum)

	from, to := day(3), day(6)
	orders, err = st.Orders(ctx, "t1", report.OrdersFilter{From: &from, To: &to, CustomerID: "c1"})
	require.NoError(t, err)
	require.Len(t, orders, 3, "days 3-5 for c1")

	rev, err := report.GenerateRevenue(ctx, st, "t1", report.RevenueFilter{})
	require.NoError(t, err)
	require.Equal(t, 5, rev.OrderCount)
	require.InDelta(t, 10+30+50+70+90, rev.TotalRevenue, 1e-9)

	mustExec(t, st, `INSERT INTO inventory_items(id, tenant_id, category, quantity, low_stock_threshold) VALUES
		('i1','t1','flour',2,5), ('i2','t1','flour',5,5), ('i3','t1','sugar',1,10), ('i4','t2','flour',0,5)`)
	inv, err := report.GenerateInventory(ctx, st, "t1", report.InventoryFilter{Category: "flour"})
	require.NoError(t, err)
	require.Equal(t, report.InventorySummary{TotalItems: 2, LowStockItems: 1}, inv)

	start := day(4)
	mustExec(t, st, `INSERT INTO time_logs(id, tenant_id, employee_id, started_at, ended_at, duration_minutes) VALUES
		('l1','t1','e1',?,?,NULL), ('l2','t1','e2',?,NULL,NULL), ('l3','t1','e1',?,?,45)`,
		start.UnixMilli(), start.Add(2*time.Hour).UnixMilli(),
		start.UnixMilli(),
		day(20).UnixMilli(), day(20).Add(time.Hour).UnixMilli())
	ts, err := report.GenerateTime(ctx, st, "t1", report.TimeFilter{From: day(1), To: day(10)})
	require.NoError(t, err)
	require.Equal(t, report.TimeSummary{TotalHours: 2, CompletedEntries: 1, ActiveSessions: 1}, ts)

	mustExec(t, st, `INSERT INTO employees(id, tenant_id, department, is_active) VALUES
		('e1','t1','kitchen',1), ('e2','t1','kitchen',1), ('e3','t1','front',1), ('e4','t1','kitchen',0)`)
	n, err := st.CountEmployees(ctx, "t1", report.ProductivityFilter{Department: "kitchen"})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.NoError(t, st.Ping(ctx))
}

func TestOpenSelectsDriver(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st, err := Open(ctx, Config{Driver: "memory"}, logx.Logger{})
	require.NoError(t, err)
	require.IsType(t, &Memory{}, st)

	st, err = Open(ctx, Config{Driver: "", Path: filepath.Join(t.TempDir(), "x.db")}, logx.Nop())
	require.NoError(t, err)
	require.IsType(t, &sqliteStore{}, st)
	require.NoError(t, st.Close())

	_, err = Open(ctx, Config{Driver: "mongo"}, logx.Nop())
	require.Error(t, err)
	_, err = Open(ctx, Config{Driver: "sqlite"}, logx.Nop())
	require.Error(t, err)
	_, err = Open(ctx, Config{Driver: "postgres"}, logx.Nop())
	require.Error(t, err)
}
