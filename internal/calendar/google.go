// Package calendar connects the booking service to the host's external calendar.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"slotbook/backend/internal/availability"
	"slotbook/backend/internal/domain"
	"slotbook/backend/internal/googleauth"
)

const defaultCalendarID = "primary"

// SettingsSource yields the calendar settings saved by the admin. The calendar id there
// overrides the one the connector was built with.
type SettingsSource interface {
	Calendar(ctx context.Context) (domain.CalendarSettings, error)
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	TokenFile    string
	CalendarID   string
}

// Google reads busy periods and writes booking events through the Calendar v3 API.
type Google struct {
	svc        *gcal.Service
	calendarID string
	settings   SettingsSource
	log        *slog.Logger
}

// NewGoogle builds a connector from an OAuth client and a stored refresh token.
func NewGoogle(ctx context.Context, cfg GoogleConfig, settings SettingsSource, log *slog.Logger) (*Google, error) {
	client, err := googleauth.HTTPClient(ctx, googleauth.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenFile:    cfg.TokenFile,
	}, gcal.CalendarScope)
	if err != nil {
		return nil, err
	}

	svc, err := gcal.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return NewGoogleWithService(svc, cfg.CalendarID, settings, log), nil
}

func NewGoogleWithService(svc *gcal.Service, calendarID string, settings SettingsSource, log *slog.Logger) *Google {
	if calendarID == "" {
		calendarID = defaultCalendarID
	}
	if log == nil {
		log = slog.Default()
	}
	return &Google{
		svc:        svc,
		calendarID: calendarID,
		settings:   settings,
		log:        log.With(slog.String("component", "calendar.google")),
	}
}

func (g *Google) resolveID(ctx context.Context) string {
	if g.settings == nil {
		return g.calendarID
	}
	s, err := g.settings.Calendar(ctx)
	if err != nil {
		g.log.Warn("calendar settings unavailable; using configured calendar", slog.Any("err", err))
		return g.calendarID
	}
	if id := strings.TrimSpace(s.CalendarID); id != "" {
		return id
	}
	return g.calendarID
}

// ListBusy returns the busy periods of the calendar that intersect window.
func (g *Google) ListBusy(ctx context.Context, window availability.Interval) ([]availability.Interval, error) {
	id := g.resolveID(ctx)
	res, err := g.svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: window.Start.UTC().Format(time.RFC3339),
		TimeMax: window.End.UTC().Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: id}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("query freebusy: %w", err)
	}

	cal, ok := res.Calendars[id]
	if !ok {
		return nil, fmt.Errorf("freebusy response missing calendar %q", id)
	}
	if len(cal.Errors) > 0 {
		return nil, fmt.Errorf("freebusy calendar %q: %s", id, cal.Errors[0].Reason)
	}

	out := make([]availability.Interval, 0, len(cal.Busy))
	for _, p := range cal.Busy {
		start, err := time.Parse(time.RFC3339, p.Start)
		if err != nil {
			return nil, fmt.Errorf("parse busy start %q: %w", p.Start, err)
		}
		end, err := time.Parse(time.RFC3339, p.End)
		if err != nil {
			return nil, fmt.Errorf("parse busy end %q: %w", p.End, err)
		}
		if !start.Before(end) {
			continue
		}
		out = append(out, availability.Interval{Start: start, End: end})
	}
	return out, nil
}

func (g *Google) CreateEvent(ctx context.Context, ev domain.CalendarEvent) (string, error) {
	tz := ev.TimeZone
	if tz == "" {
		tz = "UTC"
	}
	event := &gcal.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       &gcal.EventDateTime{DateTime: ev.Start.Format(time.RFC3339), TimeZone: tz},
		End:         &gcal.EventDateTime{DateTime: ev.End.Format(time.RFC3339), TimeZone: tz},
	}
	if ev.AttendeeEmail != "" {
		event.Attendees = []*gcal.EventAttendee{{Email: ev.AttendeeEmail}}
	}

	created, err := g.svc.Events.Insert(g.resolveID(ctx), event).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert event: %w", err)
	}
	return created.Id, nil
}

// DeleteEvent removes an event. An event that is already gone counts as deleted.
func (g *Google) DeleteEvent(ctx context.Context, eventID string) error {
	err := g.svc.Events.Delete(g.resolveID(ctx), eventID).Context(ctx).Do()
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}
