package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun/migrate"

	"slotbook/backend/internal/app"
	"slotbook/backend/internal/store/postgres"
)

func newMigrateCmd(logLevel *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *logLevel, func(a *app.App) error {
				group, err := postgres.MigrateUp(cmd.Context(), a.DB)
				if err != nil {
					return err
				}
				printGroup(cmd.OutOrStdout(), "migrated to", group)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration group",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *logLevel, func(a *app.App) error {
				group, err := postgres.MigrateDown(cmd.Context(), a.DB)
				if err != nil {
					return err
				}
				printGroup(cmd.OutOrStdout(), "rolled back", group)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they have been applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *logLevel, func(a *app.App) error {
				ms, err := postgres.MigrationStatus(cmd.Context(), a.DB)
				if err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), ms)
				return nil
			})
		},
	})
	return cmd
}

func printGroup(w io.Writer, verb string, group *migrate.MigrationGroup) {
	if group == nil || group.IsZero() {
		fmt.Fprintln(w, "nothing to do")
		return
	}
	fmt.Fprintf(w, "%s %s\n", verb, group)
}

func printStatus(w io.Writer, ms migrate.MigrationSlice) {
	for _, m := range ms {
		state := "pending"
		if m.IsApplied() {
			state = fmt.Sprintf("applied (group %d)", m.GroupID)
		}
		fmt.Fprintf(w, "%s\t%s\n", m.Name, state)
	}
}
