package cli

import (
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"slotbook/backend/internal/app"
	"slotbook/backend/internal/service/appointments"
)

func newSlotsCmd(logLevel *string) *cobra.Command {
	var formID, from, to string

	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Print the bookable slots of a form",
		Long: `Resolve the slots a client would be offered for a form over a date range,
after rules, existing appointments and busy calendar periods are applied.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := parseSlotsQuery(formID, from, to)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), *logLevel, func(a *app.App) error {
				avail, err := a.Appointments.Availability(cmd.Context(), q)
				if err != nil {
					return err
				}
				return printSlots(cmd.OutOrStdout(), avail)
			})
		},
	}
	cmd.Flags().StringVar(&formID, "form", "", "form id")
	cmd.Flags().StringVar(&from, "from", "", "first date, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last date, YYYY-MM-DD (defaults to --from)")
	_ = cmd.MarkFlagRequired("form")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

func parseSlotsQuery(formID, from, to string) (appointments.AvailabilityQuery, error) {
	id, err := uuid.Parse(formID)
	if err != nil {
		return appointments.AvailabilityQuery{}, fmt.Errorf("--form: %w", err)
	}
	start, err := civil.ParseDate(from)
	if err != nil {
		return appointments.AvailabilityQuery{}, fmt.Errorf("--from: %w", err)
	}
	end := start
	if to != "" {
		if end, err = civil.ParseDate(to); err != nil {
			return appointments.AvailabilityQuery{}, fmt.Errorf("--to: %w", err)
		}
	}
	return appointments.AvailabilityQuery{FormID: id, From: start, To: end}, nil
}

// printSlots writes one line per slot in the host time zone, followed by any warnings.
func printSlots(w io.Writer, avail appointments.Availability) error {
	loc := time.UTC
	if avail.TimeZone != "" {
		l, err := time.LoadLocation(avail.TimeZone)
		if err != nil {
			return fmt.Errorf("load time zone %q: %w", avail.TimeZone, err)
		}
		loc = l
	}
	for _, s := range avail.Slots {
		fmt.Fprintf(w, "%s  %s-%s\n", s.Start.In(loc).Format("Mon 2006-01-02"), s.Start.In(loc).Format("15:04"), s.End.In(loc).Format("15:04"))
	}
	fmt.Fprintf(w, "%d slots (%s, timezone policy %s)\n", len(avail.Slots), loc, avail.TimezonePolicy)
	for _, warn := range avail.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	return nil
}
