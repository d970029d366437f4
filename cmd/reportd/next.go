package main

import (
	"fmt"
	"strings"
	"time"

	"reportd/internal/report"

	"github.com/spf13/cobra"
)

type nextOptions struct {
	frequency string
	timeOfDay string
	dow       int
	dom       int
	tz        string
	from      string
	count     int
}

// newNextCmd previews fire instants for a cadence without touching storage.
func newNextCmd() *cobra.Command {
	o := nextOptions{dow: -1, dom: -1}
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Preview the next fire times of a cadence",
		Example: `  reportd next --frequency weekly --time 08:30 --dow 1 --tz Europe/Berlin
  reportd next --frequency monthly --time 09:00 --dom 31 -n 6`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := o.schedule()
			if err != nil {
				return err
			}
			from := time.Now()
			if strings.TrimSpace(o.from) != "" {
				if from, err = time.Parse(time.RFC3339, o.from); err != nil {
					return fmt.Errorf("--from: %w", err)
				}
			}
			trig, err := report.BuildTrigger(sc)
			if err != nil {
				return err
			}
			if trig.Location != nil {
				from = from.In(trig.Location)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cron: %s\n", trig.Expr)
			for _, at := range trig.Preview(from, o.count) {
				fmt.Fprintln(out, at.Format("Mon 2006-01-02 15:04 MST"))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.frequency, "frequency", "daily", "daily | weekly | monthly")
	f.StringVar(&o.timeOfDay, "time", "09:00", "time of day, HH:MM")
	f.IntVar(&o.dow, "dow", -1, "day of week 0-6 (Sunday=0), weekly only")
	f.IntVar(&o.dom, "dom", -1, "day of month 1-31, monthly only")
	f.StringVar(&o.tz, "tz", "", "IANA timezone (default: local)")
	f.StringVar(&o.from, "from", "", "reference instant, RFC3339 (default: now)")
	f.IntVarP(&o.count, "count", "n", 5, "number of fire times to print")
	return cmd
}

func (o nextOptions) schedule() (report.Schedule, error) {
	freq, err := report.ParseFrequency(o.frequency)
	if err != nil {
		return report.Schedule{}, err
	}
	sc := report.Schedule{
		ID:        "preview",
		Frequency: freq,
		TimeOfDay: o.timeOfDay,
		Timezone:  o.tz,
	}
	if o.dow >= 0 {
		sc.DayOfWeek = report.IntPtr(o.dow)
	}
	if o.dom >= 0 {
		sc.DayOfMonth = report.IntPtr(o.dom)
	}
	return sc, nil
}
