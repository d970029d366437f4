package main

import (
	"fmt"

	"reportd/internal/app"

	"github.com/spf13/cobra"
)

// newRunCmd executes one schedule immediately, as if its trigger fired, and
// persists its timestamps on success.
func newRunCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run <schedule-id>",
		Short: "Generate and deliver one schedule now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.NewApp(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Execute(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("run %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schedule %s sent\n", args[0])
			return nil
		},
	}
}
