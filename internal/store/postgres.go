package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"reportd/internal/report"
	logx "reportd/pkg/logx"
)

type postgresStore struct {
	db  *sqlx.DB
	log logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (*postgresStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, classify("postgres connect", err)
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen / 2)
	db.SetConnMaxLifetime(30 * time.Minute)

	st := newPostgres(db, log)
	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	log.Debug("postgres store ready", logx.Int("max_open_conns", maxOpen))
	return st, nil
}

func newPostgres(db *sqlx.DB, log logx.Logger) *postgresStore {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &postgresStore{db: db, log: log}
}

func (s *postgresStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations/postgres.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *postgresStore) Ping(ctx context.Context) error {
	return classify("ping", s.db.PingContext(ctx))
}

func (s *postgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *postgresStore) ListActiveSchedules(ctx context.Context) ([]report.Schedule, error) {
	var recs []scheduleRecord
	q := `SELECT ` + scheduleColumns + scheduleFrom + ` WHERE s.is_active ORDER BY s.id`
	if err := s.db.SelectContext(ctx, &recs, q); err != nil {
		return nil, classify("list schedules", err)
	}
	return decodeRecords(recs)
}

func (s *postgresStore) GetSchedule(ctx context.Context, id string) (*report.Schedule, error) {
	var r scheduleRecord
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT `+scheduleColumns+scheduleFrom+` WHERE s.id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get schedule", err)
	}
	sc, err := r.toSchedule()
	if err != nil {
		return nil, classify("get schedule", err)
	}
	return &sc, nil
}

func (s *postgresStore) UpdateScheduleRunTimestamps(ctx context.Context, id string, lastSentAt, nextSendAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE report_schedules SET last_sent_at = $1, next_send_at = $2, updated_at = now() WHERE id = $3`,
		lastSentAt.UTC(), nextSendAt.UTC(), id)
	if err != nil {
		return classify("update run timestamps", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.log.Warn("run timestamps not written: schedule missing", logx.String("schedule_id", id))
	}
	return nil
}

func (s *postgresStore) TenantName(ctx context.Context, tenantID string) (string, error) {
	var name string
	err := s.db.GetContext(ctx, &name, `SELECT name FROM tenants WHERE id = $1`, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", classify("tenant name", err)
	}
	return strings.TrimSpace(name), nil
}

type pgOrder struct {
	ID        string          `db:"id"`
	Status    string          `db:"status"`
	Total     sql.NullFloat64 `db:"total"`
	CreatedAt time.Time       `db:"created_at"`
}

func (s *postgresStore) Orders(ctx context.Context, tenantID string, f report.OrdersFilter) ([]report.OrderRow, error) {
	q, args := ordersQuery(tenantID, f, utc)
	var recs []pgOrder
	if err := s.db.SelectContext(ctx, &recs, s.db.Rebind(q), args...); err != nil {
		return nil, classify("orders", err)
	}
	out := make([]report.OrderRow, 0, len(recs))
	for _, r := range recs {
		row := report.OrderRow{ID: r.ID, Status: r.Status, CreatedAt: r.CreatedAt}
		if r.Total.Valid {
			v := r.Total.Float64
			row.Total = &v
		}
		out = append(out, row)
	}
	return out, nil
}

type pgInventory struct {
	ID                string `db:"id"`
	Category          string `db:"category"`
	Quantity          int    `db:"quantity"`
	LowStockThreshold int    `db:"low_stock_threshold"`
}

func (s *postgresStore) InventoryItems(ctx context.Context, tenantID string, f report.InventoryFilter) ([]report.InventoryRow, error) {
	q, args := inventoryQuery(tenantID, f)
	var recs []pgInventory
	if err := s.db.SelectContext(ctx, &recs, s.db.Rebind(q), args...); err != nil {
		return nil, classify("inventory", err)
	}
	out := make([]report.InventoryRow, 0, len(recs))
	for _, r := range recs {
		out = append(out, report.InventoryRow(r))
	}
	return out, nil
}

type pgTimeLog struct {
	ID              string        `db:"id"`
	EmployeeID      string        `db:"employee_id"`
	StartedAt       time.Time     `db:"started_at"`
	EndedAt         *time.Time    `db:"ended_at"`
	DurationMinutes sql.NullInt64 `db:"duration_minutes"`
}

func (s *postgresStore) TimeLogs(ctx context.Context, tenantID string, f report.TimeFilter) ([]report.TimeLogRow, error) {
	q, args := timeLogsQuery(tenantID, f, utc)
	var recs []pgTimeLog
	if err := s.db.SelectContext(ctx, &recs, s.db.Rebind(q), args...); err != nil {
		return nil, classify("time logs", err)
	}
	out := make([]report.TimeLogRow, 0, len(recs))
	for _, r := range recs {
		row := report.TimeLogRow{ID: r.ID, EmployeeID: r.EmployeeID, StartedAt: r.StartedAt, EndedAt: r.EndedAt}
		if r.DurationMinutes.Valid {
			d := int(r.DurationMinutes.Int64)
			row.DurationMinutes = &d
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *postgresStore) CountEmployees(ctx context.Context, tenantID string, f report.ProductivityFilter) (int, error) {
	q, args := employeesQuery(tenantID, f, true)
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(q), args...); err != nil {
		return 0, classify("employees", err)
	}
	return n, nil
}

func utc(t time.Time) any { return t.UTC() }
