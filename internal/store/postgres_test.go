package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"reportd/internal/report"
	logx "reportd/pkg/logx"
)

func newMockPostgres(t *testing.T) (*postgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return newPostgres(sqlx.NewDb(db, "postgres"), logx.Nop()), mock
}

var scheduleCols = []string{
	"id", "tenant_id", "name", "report_type", "recipients", "frequency",
	"day_of_week", "day_of_month", "time_of_day", "filters", "is_active",
	"last_sent_at", "next_send_at", "timezone",
}

func TestPostgresListActiveSchedules(t *testing.T) {
	st, mock := newMockPostgres(t)
	last := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT s\.id, s\.tenant_id, .+ FROM report_schedules s LEFT JOIN tenants t ON t\.id = s\.tenant_id WHERE s\.is_active ORDER BY s\.id`).
		WillReturnRows(sqlmock.NewRows(scheduleCols).
			AddRow("s1", "t1", "Monthly revenue", "revenue", []byte(`["cfo@acme.test"]`), "monthly",
				nil, int64(31), "06:00", []byte(`{"customer_id":"c9"}`), true, last, nil, "America/New_York").
			AddRow("s2", "t1", "Broken", "orders", []byte(`["x@acme.test"]`), "daily",
				nil, nil, "09:00", []byte(`{"category":"flour"}`), true, nil, nil, ""))

	list, err := st.ListActiveSchedules(context.Background())
	rows := report.UnreadableRows(err)
	require.Len(t, rows, 1, "bad filters are reported, not hidden")
	require.Equal(t, "s2", rows[0].ScheduleID)
	require.Equal(t, "t1", rows[0].TenantID)
	require.Len(t, list, 1)

	s := list[0]
	require.Equal(t, "s1", s.ID)
	require.Equal(t, report.Monthly, s.Frequency)
	require.NotNil(t, s.DayOfMonth)
	require.Equal(t, 31, *s.DayOfMonth)
	require.Equal(t, "America/New_York", s.Timezone)
	require.NotNil(t, s.LastSentAt)
	require.True(t, s.LastSentAt.Equal(last))
	require.Nil(t, s.NextSendAt)
	require.Equal(t, report.RevenueFilter{CustomerID: "c9"}, s.Filters)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetScheduleNotFound(t *testing.T) {
	st, mock := newMockPostgres(t)
	mock.ExpectQuery(`FROM report_schedules s .+ WHERE s\.id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(scheduleCols))

	got, err := st.GetSchedule(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOrdersFilterBinding(t *testing.T) {
	st, mock := newMockPostgres(t)
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	created := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, status, total, created_at FROM orders WHERE tenant_id = \$1 AND status = \$2 AND created_at >= \$3 AND customer_id = \$4 ORDER BY created_at, id`).
		WithArgs("t1", "in_progress", from, "c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "total", "created_at"}).
			AddRow("o1", "in_progress", 12.5, created).
			AddRow("o2", "in_progress", nil, created))

	rows, err := st.Orders(context.Background(), "t1", report.OrdersFilter{Status: "in_progress", From: &from, CustomerID: "c1"})
	if err != nil {
		t.Fatalf("Orders: %v", err)
	}
	if len(rows) != 2 || rows[0].Total == nil || *rows[0].Total != 12.5 || rows[1].Total != nil {
		t.Errorf("unexpected rows: %+v", rows)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestPostgresCountEmployees(t *testing.T) {
	st, mock := newMockPostgres(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM employees WHERE tenant_id = \$1 AND is_active = \$2 AND department = \$3`).
		WithArgs("t1", true, "ops").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := st.CountEmployees(context.Background(), "t1", report.ProductivityFilter{Department: "ops"})
	if err != nil || n != 7 {
		t.Fatalf("CountEmployees = %d, %v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestPostgresUpdateRunTimestamps(t *testing.T) {
	st, mock := newMockPostgres(t)
	last := time.Date(2024, 3, 11, 7, 30, 0, 0, time.UTC)
	next := last.AddDate(0, 0, 7)

	mock.ExpectExec(`UPDATE report_schedules SET last_sent_at = \$1, next_send_at = \$2, updated_at = now\(\) WHERE id = \$3`).
		WithArgs(last, next, "s1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.UpdateScheduleRunTimestamps(context.Background(), "s1", last, next); err != nil {
		t.Fatalf("UpdateScheduleRunTimestamps: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestPostgresTransientErrors(t *testing.T) {
	st, mock := newMockPostgres(t)
	mock.ExpectQuery(`SELECT name FROM tenants WHERE id = \$1`).
		WithArgs("t1").
		WillReturnError(&pq.Error{Code: "57P01", Message: "terminating connection due to administrator command"})
	mock.ExpectQuery(`SELECT name FROM tenants WHERE id = \$1`).
		WithArgs("t2").
		WillReturnError(&pq.Error{Code: "42P01", Message: "relation \"tenants\" does not exist"})

	_, err := st.TenantName(context.Background(), "t1")
	if !IsUnavailable(err) {
		t.Errorf("admin shutdown should be transient, got %v", err)
	}
	_, err = st.TenantName(context.Background(), "t2")
	if err == nil || IsUnavailable(err) {
		t.Errorf("undefined table should be permanent, got %v", err)
	}
	var perr *pq.Error
	if !errors.As(err, &perr) {
		t.Errorf("driver error lost in wrapping: %v", err)
	}
}
