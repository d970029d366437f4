package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"reportd/internal/report"
	logx "reportd/pkg/logx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// sqliteStore keeps instants as unix milliseconds.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (*sqliteStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			log.Warn("sqlite pragma failed", logx.String("pragma", pragma), logx.Err(err))
		}
	}

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite store ready", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations/sqlite.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Ping(ctx context.Context) error {
	return classify("ping", s.db.PingContext(ctx))
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) ListActiveSchedules(ctx context.Context) ([]report.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+scheduleColumns+scheduleFrom+` WHERE s.is_active = 1 ORDER BY s.id`)
	if err != nil {
		return nil, classify("list schedules", err)
	}
	defer rows.Close()

	var recs []scheduleRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, classify("list schedules", err)
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list schedules", err)
	}
	return decodeRecords(recs)
}

func (s *sqliteStore) GetSchedule(ctx context.Context, id string) (*report.Schedule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+scheduleFrom+` WHERE s.id = ?`, id)
	r, err := scanRecord(row)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (scheduleRecord, error) {
	var (
		r                  scheduleRecord
		recipients, filter string
		active             int
		lastMS, nextMS     sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.TenantID, &r.Name, &r.ReportType, &recipients, &r.Frequency,
		&r.DayOfWeek, &r.DayOfMonth, &r.TimeOfDay, &filter, &active,
		&lastMS, &nextMS, &r.Timezone); err != nil {
		return r, err
	}
	r.Recipients, r.Filters, r.Active = []byte(recipients), []byte(filter), active != 0
	r.LastSentAt, r.NextSendAt = msPtr(lastMS), msPtr(nextMS)
	return r, nil
}

func (s *sqliteStore) UpdateScheduleRunTimestamps(ctx context.Context, id string, lastSentAt, nextSendAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE report_schedules SET last_sent_at = ?, next_send_at = ?, updated_at = ? WHERE id = ?`,
		lastSentAt.UnixMilli(), nextSendAt.UnixMilli(), time.Now().UnixMilli(), id)
	if err != nil {
		return classify("update run timestamps", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.log.Warn("run timestamps not written: schedule missing", logx.String("schedule_id", id))
	}
	return nil
}

func (s *sqliteStore) TenantName(ctx context.Context, tenantID string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM tenants WHERE id = ?`, tenantID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", classify("tenant name", err)
	}
	return strings.TrimSpace(name), nil
}

func (s *sqliteStore) Orders(ctx context.Context, tenantID string, f report.OrdersFilter) ([]report.OrderRow, error) {
	q, args := ordersQuery(tenantID, f, millis)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify("orders", err)
	}
	defer rows.Close()

	var out []report.OrderRow
	for rows.Next() {
		var (
			r       report.OrderRow
			total   sql.NullFloat64
			created int64
		)
		if err := rows.Scan(&r.ID, &r.Status, &total, &created); err != nil {
			return nil, classify("orders", err)
		}
		if total.Valid {
			v := total.Float64
			r.Total = &v
		}
		r.CreatedAt = time.UnixMilli(created)
		out = append(out, r)
	}
	return out, classify("orders", rows.Err())
}

func (s *sqliteStore) InventoryItems(ctx context.Context, tenantID string, f report.InventoryFilter) ([]report.InventoryRow, error) {
	q, args := inventoryQuery(tenantID, f)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify("inventory", err)
	}
	defer rows.Close()

	var out []report.InventoryRow
	for rows.Next() {
		var r report.InventoryRow
		if err := rows.Scan(&r.ID, &r.Category, &r.Quantity, &r.LowStockThreshold); err != nil {
			return nil, classify("inventory", err)
		}
		out = append(out, r)
	}
	return out, classify("inventory", rows.Err())
}

func (s *sqliteStore) TimeLogs(ctx context.Context, tenantID string, f report.TimeFilter) ([]report.TimeLogRow, error) {
	q, args := timeLogsQuery(tenantID, f, millis)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify("time logs", err)
	}
	defer rows.Close()

	var out []report.TimeLogRow
	for rows.Next() {
		var (
			r        report.TimeLogRow
			started  int64
			ended    sql.NullInt64
			duration sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.EmployeeID, &started, &ended, &duration); err != nil {
			return nil, classify("time logs", err)
		}
		r.StartedAt = time.UnixMilli(started)
		r.EndedAt = msPtr(ended)
		if duration.Valid {
			d := int(duration.Int64)
			r.DurationMinutes = &d
		}
		out = append(out, r)
	}
	return out, classify("time logs", rows.Err())
}

func (s *sqliteStore) CountEmployees(ctx context.Context, tenantID string, f report.ProductivityFilter) (int, error) {
	q, args := employeesQuery(tenantID, f, 1)
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, classify("employees", err)
	}
	return n, nil
}

func millis(t time.Time) any { return t.UnixMilli() }

func msPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}
