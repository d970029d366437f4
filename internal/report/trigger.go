package report

import (
	"fmt"
	"time"
)

// Trigger is the recurring timer description for a schedule. It implements
// cron.Schedule so it can be armed directly on a robfig/cron scheduler; Expr
// is the equivalent standard cron expression for display and previews.
type Trigger struct {
	Expr string
	// Location is the schedule's zone, or nil when the facility's zone applies.
	Location *time.Location

	c cadence
}

// BuildTrigger validates the cadence of s and derives its trigger.
func BuildTrigger(s Schedule) (*Trigger, error) {
	c, err := s.cadence()
	if err != nil {
		return nil, err
	}

	var expr string
	switch c.freq {
	case Weekly:
		expr = fmt.Sprintf("%d %d * * %d", c.minute, c.hour, c.dow)
	case Monthly:
		expr = fmt.Sprintf("%d %d %d * *", c.minute, c.hour, c.dom)
	default:
		expr = fmt.Sprintf("%d %d * * *", c.minute, c.hour)
	}
	if c.loc != nil {
		expr = "CRON_TZ=" + c.loc.String() + " " + expr
	}
	return &Trigger{Expr: expr, Location: c.loc, c: c}, nil
}

// Next returns the first fire instant after t. It satisfies cron.Schedule.
func (t *Trigger) Next(after time.Time) time.Time {
	return t.c.next(after)
}

// Preview lists the next n fire instants after from.
func (t *Trigger) Preview(from time.Time, n int) []time.Time {
	out := make([]time.Time, 0, max(n, 0))
	cur := from
	for i := 0; i < n; i++ {
		cur = t.Next(cur)
		out = append(out, cur)
	}
	return out
}

func (t *Trigger) String() string { return t.Expr }
