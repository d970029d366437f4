package report

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSchedule matches every *InvalidScheduleError via errors.Is.
	ErrInvalidSchedule = errors.New("invalid schedule")
	// ErrInvalidFilter is returned by generators when a filter is unusable
	// (for example a time report without a date range).
	ErrInvalidFilter = errors.New("invalid report filter")
)

// InvalidScheduleError reports a malformed cadence or a missing required field.
type InvalidScheduleError struct {
	ScheduleID string
	Field      string
	Reason     string
}

func (e *InvalidScheduleError) Error() string {
	if e.ScheduleID == "" {
		return fmt.Sprintf("invalid schedule: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid schedule %s: %s: %s", e.ScheduleID, e.Field, e.Reason)
}

func (e *InvalidScheduleError) Is(target error) bool { return target == ErrInvalidSchedule }

func invalid(s Schedule, field, format string, args ...any) error {
	return &InvalidScheduleError{ScheduleID: s.ID, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// UnreadableRow is a stored schedule that could not be decoded.
type UnreadableRow struct {
	ScheduleID string
	TenantID   string
	Err        error
}

// UnreadableSchedulesError is returned by a schedule listing alongside the
// schedules that did decode.
type UnreadableSchedulesError struct {
	Rows []UnreadableRow
}

func (e *UnreadableSchedulesError) Error() string {
	if len(e.Rows) == 1 {
		return fmt.Sprintf("unreadable schedule %s: %v", e.Rows[0].ScheduleID, e.Rows[0].Err)
	}
	return fmt.Sprintf("%d unreadable schedules", len(e.Rows))
}

// UnreadableRows returns the rows carried by an *UnreadableSchedulesError in
// err's chain, or nil.
func UnreadableRows(err error) []UnreadableRow {
	var ue *UnreadableSchedulesError
	if errors.As(err, &ue) {
		return ue.Rows
	}
	return nil
}
