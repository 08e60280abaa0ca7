package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"slotbook/backend/internal/app"
)

func newSweepCmd(logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Complete ended appointments and expire stale unverified ones now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *logLevel, func(a *app.App) error {
				res, err := a.Appointments.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "completed %d, expired %d\n", res.Completed, res.Expired)
				return nil
			})
		},
	}
}
