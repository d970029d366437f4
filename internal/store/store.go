package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"reportd/internal/report"
	logx "reportd/pkg/logx"
)

var (
	// ErrUnavailable marks transient failures: dropped connections, a locked
	// database, a server shutting down.
	ErrUnavailable = errors.New("store unavailable")
	ErrClosed      = errors.New("store closed")
)

// Store is everything the dispatcher needs from persistence.
type Store interface {
	report.DataSource

	// ListActiveSchedules returns every active schedule that decodes. Rows
	// that do not are reported in a *report.UnreadableSchedulesError returned
	// with the rest.
	ListActiveSchedules(ctx context.Context) ([]report.Schedule, error)
	// GetSchedule returns nil, nil when the schedule does not exist.
	GetSchedule(ctx context.Context, id string) (*report.Schedule, error)
	UpdateScheduleRunTimestamps(ctx context.Context, id string, lastSentAt, nextSendAt time.Time) error
	// TenantName returns "" for an unknown tenant.
	TenantName(ctx context.Context, tenantID string) (string, error)

	Ping(ctx context.Context) error
	Close() error
}

// Config configures Open.
//
// Driver values:
//   - "sqlite" (default): Path is the database file
//   - "postgres": DSN is a lib/pq connection string or URL
//   - "memory": no settings
type Config struct {
	Driver       string
	Path         string
	DSN          string
	BusyTimeout  time.Duration // sqlite; 0 means 5s
	MaxOpenConns int           // postgres; 0 means 10
}

// Open initializes the configured store and applies its schema.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "sqlite", "sqlite3":
		st, err := openSQLite(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "postgres", "postgresql":
		st, err := openPostgres(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// IsUnavailable reports whether err is a transient store failure.
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }

// classify wraps transient driver errors with ErrUnavailable and annotates
// every error with the operation that failed.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if transient(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func transient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}

	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}

	var perr *pq.Error
	if errors.As(err, &perr) {
		code := string(perr.Code)
		// 08xxx connection exceptions, 53xxx insufficient resources,
		// 57P01-57P03 admin/crash shutdown and cannot-connect-now,
		// 40001/40P01 serialization failure and deadlock.
		switch {
		case strings.HasPrefix(code, "08"), strings.HasPrefix(code, "53"):
			return true
		case code == "57P01", code == "57P02", code == "57P03":
			return true
		case code == "40001", code == "40P01":
			return true
		}
		return false
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "bad connection")
}
