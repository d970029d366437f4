package report

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultDayOfWeek  = 1 // Monday
	defaultDayOfMonth = 1
)

// Schedule is one tenant's configuration for a recurring report.
//
// LastSentAt and NextSendAt are written back by the dispatcher after a
// successful run; everything else is owned by the CRUD layer.
type Schedule struct {
	ID         string
	TenantID   string
	Name       string
	Type       Type
	Recipients []string
	Frequency  Frequency
	DayOfWeek  *int // 0-6, Sunday=0; weekly only
	DayOfMonth *int // 1-31; monthly only
	TimeOfDay  string
	Timezone   string // IANA name; empty means "location of the reference instant"
	Filters    Filters
	Active     bool

	LastSentAt *time.Time
	NextSendAt *time.Time
}

// cadence is the parsed, defaulted form of the timing fields.
type cadence struct {
	freq   Frequency
	hour   int
	minute int
	dow    int
	dom    int
	loc    *time.Location // nil: use the reference instant's location
}

func (s Schedule) cadence() (cadence, error) {
	c := cadence{freq: s.Frequency, dow: defaultDayOfWeek, dom: defaultDayOfMonth}
	if !s.Frequency.Valid() {
		return c, invalid(s, "frequency", "must be daily, weekly or monthly, got %q", s.Frequency)
	}
	h, m, err := parseHHMM(s.TimeOfDay)
	if err != nil {
		return c, invalid(s, "time_of_day", "%v", err)
	}
	c.hour, c.minute = h, m

	if s.Frequency == Weekly && s.DayOfWeek != nil {
		if *s.DayOfWeek < 0 || *s.DayOfWeek > 6 {
			return c, invalid(s, "day_of_week", "must be 0-6, got %d", *s.DayOfWeek)
		}
		c.dow = *s.DayOfWeek
	}
	if s.Frequency == Monthly && s.DayOfMonth != nil {
		if *s.DayOfMonth < 1 || *s.DayOfMonth > 31 {
			return c, invalid(s, "day_of_month", "must be 1-31, got %d", *s.DayOfMonth)
		}
		c.dom = *s.DayOfMonth
	}
	if tz := strings.TrimSpace(s.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return c, invalid(s, "timezone", "unknown zone %q", tz)
		}
		c.loc = loc
	}
	return c, nil
}

// Validate checks everything the dispatcher relies on: cadence, identity,
// recipients and the filter shape.
func (s Schedule) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return invalid(s, "id", "required")
	}
	if strings.TrimSpace(s.TenantID) == "" {
		return invalid(s, "tenant_id", "required")
	}
	if !s.Type.Valid() {
		return invalid(s, "report_type", "unknown type %q", s.Type)
	}
	if len(s.Recipients) == 0 {
		return invalid(s, "recipients", "at least one recipient required")
	}
	for i, r := range s.Recipients {
		if strings.TrimSpace(r) == "" {
			return invalid(s, "recipients", "recipient %d is empty", i)
		}
	}
	if s.Filters != nil && s.Filters.Type() != s.Type {
		return invalid(s, "filters", "%s filter on a %s report", s.Filters.Type(), s.Type)
	}
	_, err := s.cadence()
	return err
}

// EffectiveFilters returns the schedule's filters, or the zero filter for its type.
func (s Schedule) EffectiveFilters() Filters {
	if s.Filters != nil {
		return s.Filters
	}
	return ZeroFilters(s.Type)
}

// IntPtr is a small helper for the optional day fields.
func IntPtr(v int) *int { return &v }

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	if len(s) != len("15:04") || s[2] != ':' {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}
