package main

import (
	"fmt"
	"strings"
	"time"

	"reportd/internal/app"
	"reportd/internal/report"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// newSchedulesCmd lists active schedules from the configured store with the
// fire time each would get now.
func newSchedulesCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "schedules",
		Short: "List active schedules and their next fire time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.NewApp(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.Store().ListActiveSchedules(cmd.Context())
			unreadable := report.UnreadableRows(err)
			if err != nil && unreadable == nil {
				return err
			}

			loc := a.Dispatcher().Location()
			now := time.Now().In(loc)
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"ID", "Tenant", "Name", "Type", "Cadence", "Next", "Last sent", "Recipients"})
			for _, sc := range list {
				next := "-"
				cadence := "invalid"
				if trig, err := report.BuildTrigger(sc); err != nil {
					next = err.Error()
				} else {
					cadence = trig.Expr
					next = trig.Next(now).Format("2006-01-02 15:04 MST")
				}
				last := "never"
				if sc.LastSentAt != nil {
					last = sc.LastSentAt.In(loc).Format("2006-01-02 15:04 MST")
				}
				t.AppendRow(table.Row{sc.ID, sc.TenantID, sc.Name, sc.Type, cadence, next, last, strings.Join(sc.Recipients, ", ")})
			}
			for _, row := range unreadable {
				t.AppendRow(table.Row{row.ScheduleID, row.TenantID, "", "", "unreadable", row.Err.Error(), "", ""})
			}
			t.AppendFooter(table.Row{"", "", "", "", "", "", "Total", fmt.Sprint(len(list) + len(unreadable))})
			t.Render()
			return nil
		},
	}
}
