package report

import (
	"testing"
	"time"

	"github.com/robfig/cron/v3"
)

func TestBuildTriggerExpr(t *testing.T) {
	t.Parallel()

	cases := []struct {
		s    Schedule
		want string
	}{
		{Schedule{Frequency: Daily, TimeOfDay: "09:05"}, "5 9 * * *"},
		{Schedule{Frequency: Weekly, TimeOfDay: "07:30"}, "30 7 * * 1"},
		{Schedule{Frequency: Weekly, DayOfWeek: IntPtr(0), TimeOfDay: "18:00"}, "0 18 * * 0"},
		{Schedule{Frequency: Monthly, DayOfMonth: IntPtr(15), TimeOfDay: "00:00"}, "0 0 15 * *"},
		{Schedule{Frequency: Monthly, TimeOfDay: "23:59", Timezone: "Europe/Berlin"}, "CRON_TZ=Europe/Berlin 59 23 1 * *"},
	}
	for _, tc := range cases {
		tr, err := BuildTrigger(tc.s)
		if err != nil {
			t.Fatalf("BuildTrigger(%+v): %v", tc.s, err)
		}
		if tr.Expr != tc.want {
			t.Fatalf("Expr = %q, want %q", tr.Expr, tc.want)
		}
		if _, err := cron.ParseStandard(tr.Expr); err != nil {
			t.Fatalf("cron rejects %q: %v", tr.Expr, err)
		}
	}
}

func TestBuildTriggerLocation(t *testing.T) {
	t.Parallel()

	tr, err := BuildTrigger(Schedule{Frequency: Daily, TimeOfDay: "09:00"})
	if err != nil {
		t.Fatalf("BuildTrigger: %v", err)
	}
	if tr.Location != nil {
		t.Fatalf("Location = %v, want nil without timezone", tr.Location)
	}

	if _, err := BuildTrigger(Schedule{Frequency: "yearly", TimeOfDay: "09:00"}); err == nil {
		t.Fatalf("expected error for unknown frequency")
	}
}

// The armed trigger and the standard cron expression agree wherever cron
// can express the schedule, that is for month days up to 28.
func TestTriggerMatchesCronExpression(t *testing.T) {
	t.Parallel()

	schedules := []Schedule{
		{Frequency: Daily, TimeOfDay: "09:00"},
		{Frequency: Daily, TimeOfDay: "00:00"},
		{Frequency: Weekly, DayOfWeek: IntPtr(3), TimeOfDay: "13:45"},
		{Frequency: Weekly, DayOfWeek: IntPtr(0), TimeOfDay: "23:59"},
		{Frequency: Monthly, DayOfMonth: IntPtr(28), TimeOfDay: "06:00"},
		{Frequency: Monthly, DayOfMonth: IntPtr(1), TimeOfDay: "00:00", Timezone: "Asia/Tokyo"},
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, s := range schedules {
		tr, err := BuildTrigger(s)
		if err != nil {
			t.Fatalf("BuildTrigger: %v", err)
		}
		oracle, err := cron.ParseStandard(tr.Expr)
		if err != nil {
			t.Fatalf("ParseStandard(%q): %v", tr.Expr, err)
		}
		for now := start; now.Before(start.AddDate(0, 14, 0)); now = now.Add(17*time.Hour + 11*time.Minute) {
			want := oracle.Next(now)
			got := tr.Next(now)
			if !got.Equal(want) {
				t.Fatalf("%q at %s: trigger %s, cron %s", tr.Expr, now, got, want)
			}
			viaNextRun, _ := NextRun(s, now)
			if !viaNextRun.Equal(got) {
				t.Fatalf("%q at %s: NextRun %s, trigger %s", tr.Expr, now, viaNextRun, got)
			}
		}
	}
}

func TestTriggerFiresOnClampedDays(t *testing.T) {
	t.Parallel()

	tr, err := BuildTrigger(Schedule{Frequency: Monthly, DayOfMonth: IntPtr(31), TimeOfDay: "08:00"})
	if err != nil {
		t.Fatalf("BuildTrigger: %v", err)
	}
	got := tr.Preview(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 4)
	want := []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30"}
	for i, w := range want {
		if d := got[i].Format("2006-01-02"); d != w {
			t.Fatalf("fire %d = %s, want %s", i, d, w)
		}
	}
}
