package report

import "time"

// NextRun returns the first fire instant of s strictly after now.
//
// The computation happens in the schedule's timezone, or in now's location
// when the schedule has none. Calendar steps use time.Date so a DST change
// keeps the wall-clock time of day.
func NextRun(s Schedule, now time.Time) (time.Time, error) {
	c, err := s.cadence()
	if err != nil {
		return time.Time{}, err
	}
	return c.next(now), nil
}

func (c cadence) next(now time.Time) time.Time {
	if c.loc != nil {
		now = now.In(c.loc)
	}
	loc := now.Location()
	y, m, d := now.Date()

	var next time.Time
	switch c.freq {
	case Weekly:
		ahead := (c.dow - int(now.Weekday()) + 7) % 7
		next = time.Date(y, m, d+ahead, c.hour, c.minute, 0, 0, loc)
		if !next.After(now) {
			next = time.Date(y, m, d+ahead+7, c.hour, c.minute, 0, 0, loc)
		}
	case Monthly:
		next = c.monthDay(y, m, loc)
		if !next.After(now) {
			next = c.monthDay(y, m+1, loc)
		}
	default:
		next = time.Date(y, m, d, c.hour, c.minute, 0, 0, loc)
		if !next.After(now) {
			next = time.Date(y, m, d+1, c.hour, c.minute, 0, 0, loc)
		}
	}

	// A wall-clock time inside a DST gap normalizes to a neighbouring hour,
	// which can land at or before now on the transition day.
	for !next.After(now) {
		next = c.step(next)
	}
	return next
}

// monthDay is the fire instant in month m of year y, clamped to the last day
// of the month. m may be 13; time.Date normalizes it.
func (c cadence) monthDay(y int, m time.Month, loc *time.Location) time.Time {
	first := time.Date(y, m, 1, 0, 0, 0, 0, loc)
	y, m = first.Year(), first.Month()
	day := min(c.dom, daysIn(y, m))
	return time.Date(y, m, day, c.hour, c.minute, 0, 0, loc)
}

func (c cadence) step(t time.Time) time.Time {
	y, m, d := t.Date()
	switch c.freq {
	case Weekly:
		return time.Date(y, m, d+7, c.hour, c.minute, 0, 0, t.Location())
	case Monthly:
		return c.monthDay(y, m+1, t.Location())
	default:
		return time.Date(y, m, d+1, c.hour, c.minute, 0, 0, t.Location())
	}
}

func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
