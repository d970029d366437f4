package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"reportd/internal/report"
)

// scheduleRecord is a report_schedules row joined with the tenant zone.
type scheduleRecord struct {
	ID         string        `db:"id"`
	TenantID   string        `db:"tenant_id"`
	Name       string        `db:"name"`
	ReportType string        `db:"report_type"`
	Recipients []byte        `db:"recipients"`
	Frequency  string        `db:"frequency"`
	DayOfWeek  sql.NullInt64 `db:"day_of_week"`
	DayOfMonth sql.NullInt64 `db:"day_of_month"`
	TimeOfDay  string        `db:"time_of_day"`
	Filters    []byte        `db:"filters"`
	Active     bool          `db:"is_active"`
	Timezone   string        `db:"timezone"`
	LastSentAt *time.Time    `db:"last_sent_at"`
	NextSendAt *time.Time    `db:"next_send_at"`
}

func (r scheduleRecord) toSchedule() (report.Schedule, error) {
	s := report.Schedule{
		ID:         r.ID,
		TenantID:   r.TenantID,
		Name:       r.Name,
		Frequency:  report.Frequency(strings.ToLower(strings.TrimSpace(r.Frequency))),
		TimeOfDay:  strings.TrimSpace(r.TimeOfDay),
		Timezone:   strings.TrimSpace(r.Timezone),
		Active:     r.Active,
		LastSentAt: r.LastSentAt,
		NextSendAt: r.NextSendAt,
	}
	if r.DayOfWeek.Valid {
		s.DayOfWeek = report.IntPtr(int(r.DayOfWeek.Int64))
	}
	if r.DayOfMonth.Valid {
		s.DayOfMonth = report.IntPtr(int(r.DayOfMonth.Int64))
	}

	typ, err := report.ParseType(r.ReportType)
	if err != nil {
		return s, fmt.Errorf("schedule %s: %w", r.ID, err)
	}
	s.Type = typ

	recipients, err := decodeRecipients(r.Recipients)
	if err != nil {
		return s, fmt.Errorf("schedule %s: recipients: %w", r.ID, err)
	}
	s.Recipients = recipients

	f, err := report.DecodeFilters(s.Type, r.Filters)
	if err != nil {
		return s, fmt.Errorf("schedule %s: %w", r.ID, err)
	}
	s.Filters = f
	return s, nil
}

// decodeRecipients accepts a JSON array or a comma separated list.
func decodeRecipients(raw []byte) ([]string, error) {
	txt := strings.TrimSpace(string(raw))
	if txt == "" || txt == "null" {
		return nil, nil
	}
	var out []string
	if strings.HasPrefix(txt, "[") {
		if err := json.Unmarshal([]byte(txt), &out); err != nil {
			return nil, err
		}
	} else {
		out = strings.Split(txt, ",")
	}
	clean := out[:0]
	for _, r := range out {
		if r = strings.TrimSpace(r); r != "" {
			clean = append(clean, r)
		}
	}
	return clean, nil
}

func encodeRecipients(rs []string) ([]byte, error) {
	if rs == nil {
		rs = []string{}
	}
	return json.Marshal(rs)
}

// recordOf is the stored form of s.
func recordOf(s report.Schedule) (scheduleRecord, error) {
	r := scheduleRecord{
		ID:         s.ID,
		TenantID:   s.TenantID,
		Name:       s.Name,
		ReportType: string(s.Type),
		Frequency:  string(s.Frequency),
		TimeOfDay:  s.TimeOfDay,
		Timezone:   s.Timezone,
		Active:     s.Active,
		LastSentAt: s.LastSentAt,
		NextSendAt: s.NextSendAt,
	}
	if s.DayOfWeek != nil {
		r.DayOfWeek = sql.NullInt64{Int64: int64(*s.DayOfWeek), Valid: true}
	}
	if s.DayOfMonth != nil {
		r.DayOfMonth = sql.NullInt64{Int64: int64(*s.DayOfMonth), Valid: true}
	}
	var err error
	if r.Recipients, err = encodeRecipients(s.Recipients); err != nil {
		return r, fmt.Errorf("schedule %s: recipients: %w", s.ID, err)
	}
	if r.Filters, err = report.EncodeFilters(s.Filters); err != nil {
		return r, fmt.Errorf("schedule %s: %w", s.ID, err)
	}
	return r, nil
}

// decodeRecords converts listed rows. Rows that do not decode are returned
// in a *report.UnreadableSchedulesError next to the ones that do.
func decodeRecords(recs []scheduleRecord) ([]report.Schedule, error) {
	out := make([]report.Schedule, 0, len(recs))
	var bad []report.UnreadableRow
	for _, r := range recs {
		sc, err := r.toSchedule()
		if err != nil {
			bad = append(bad, report.UnreadableRow{ScheduleID: r.ID, TenantID: r.TenantID, Err: err})
			continue
		}
		out = append(out, sc)
	}
	if len(bad) > 0 {
		return out, &report.UnreadableSchedulesError{Rows: bad}
	}
	return out, nil
}
