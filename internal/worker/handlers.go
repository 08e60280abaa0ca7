// Package worker processes booking lifecycle tasks: notification mail, reminders and
// the periodic status sweep.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"slotbook/backend/internal/domain"
	"slotbook/backend/internal/notify"
	"slotbook/backend/internal/service/appointments"
	"slotbook/backend/internal/store"
)

type AppointmentReader interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
}

type FormReader interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Form, error)
}

type Settings interface {
	General(ctx context.Context) (domain.GeneralSettings, error)
	Notifications(ctx context.Context) (domain.NotificationSettings, error)
}

type Reminders interface {
	ScheduleReminder(ctx context.Context, appointmentID uuid.UUID, fireAt time.Time) error
}

type Sweeper interface {
	Sweep(ctx context.Context) (appointments.SweepResult, error)
}

type TaskRecorder interface {
	TaskProcessed(taskType string, err error)
}

type Deps struct {
	Appointments AppointmentReader
	Forms        FormReader
	Settings     Settings
	Mailer       notify.Mailer
	Reminders    Reminders
	Sweeper      Sweeper
	Recorder     TaskRecorder
	Log          *slog.Logger
	Now          func() time.Time

	// PublicURL is the base of the links placed in client emails.
	PublicURL    string
	ReminderLead time.Duration
}

type Handlers struct {
	d   Deps
	log *slog.Logger
}

func NewHandlers(d Deps) *Handlers {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.ReminderLead <= 0 {
		d.ReminderLead = 24 * time.Hour
	}
	return &Handlers{d: d, log: d.Log.With(slog.String("component", "worker"))}
}

func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(notify.TypeBookingEvent, h.recorded(notify.TypeBookingEvent, h.HandleEvent))
	mux.HandleFunc(notify.TypeBookingReminder, h.recorded(notify.TypeBookingReminder, h.HandleReminder))
	mux.HandleFunc(notify.TypeSweep, h.recorded(notify.TypeSweep, h.HandleSweep))
}

// RegisterSchedule adds the periodic sweep to s under the given cron spec.
func RegisterSchedule(s *asynq.Scheduler, cronSpec string) (string, error) {
	return s.Register(cronSpec, notify.NewSweepTask())
}

func (h *Handlers) recorded(taskType string, fn func(context.Context, *asynq.Task) error) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, t *asynq.Task) error {
		err := fn(ctx, t)
		if h.d.Recorder != nil {
			h.d.Recorder.TaskProcessed(taskType, err)
		}
		return err
	}
}

// mailContext is what every notification for one appointment needs.
type mailContext struct {
	appt    domain.Appointment
	form    domain.Form
	general domain.GeneralSettings
	notif   domain.NotificationSettings
}

func (h *Handlers) load(ctx context.Context, id uuid.UUID) (mailContext, error) {
	appt, err := h.d.Appointments.Get(ctx, id)
	if err != nil {
		return mailContext{}, err
	}
	form, err := h.d.Forms.Get(ctx, appt.FormID)
	if err != nil {
		return mailContext{}, fmt.Errorf("load form: %w", err)
	}
	general, err := h.d.Settings.General(ctx)
	if err != nil {
		return mailContext{}, err
	}
	notif, err := h.d.Settings.Notifications(ctx)
	if err != nil {
		return mailContext{}, err
	}
	return mailContext{appt: appt, form: form, general: general, notif: notif}, nil
}

func (h *Handlers) HandleEvent(ctx context.Context, t *asynq.Task) error {
	ev, err := notify.DecodeEvent(t)
	if err != nil {
		return fmt.Errorf("decode event: %v: %w", err, asynq.SkipRetry)
	}
	log := h.log.With(slog.String("event", string(ev.Type)), slog.String("appointment_id", ev.AppointmentID.String()))

	mc, err := h.load(ctx, ev.AppointmentID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("appointment gone; dropping event")
		return nil
	}
	if err != nil {
		return err
	}

	switch ev.Type {
	case domain.EventBookingCreated:
		if err := h.notifyAdmin(ctx, mc); err != nil {
			log.Warn("admin notification failed", slog.Any("err", err))
		}
		if ev.Status == domain.StatusPending {
			if mc.appt.Status != domain.StatusPending {
				log.Info("appointment no longer pending; skipping verification mail")
				return nil
			}
			return h.send(ctx, mc, domain.TemplateVerification)
		}
		// A booking created confirmed is followed by its own booking_confirmed event.
		return nil
	case domain.EventBookingConfirmed:
		if mc.appt.Status != domain.StatusConfirmed {
			log.Info("appointment no longer confirmed; skipping confirmation mail", slog.String("status", string(mc.appt.Status)))
			return nil
		}
		return h.confirmed(ctx, mc)
	case domain.EventBookingCancelled:
		return h.send(ctx, mc, domain.TemplateCancelled)
	default:
		log.Warn("unknown event type")
		return nil
	}
}

func (h *Handlers) confirmed(ctx context.Context, mc mailContext) error {
	if err := h.send(ctx, mc, domain.TemplateConfirmation); err != nil {
		return err
	}
	fireAt := mc.appt.StartTime.Add(-h.d.ReminderLead)
	if h.d.Reminders == nil || !fireAt.After(h.d.Now()) {
		return nil
	}
	return h.d.Reminders.ScheduleReminder(ctx, mc.appt.ID, fireAt)
}

// HandleReminder mails the client unless the appointment was cancelled or has started.
func (h *Handlers) HandleReminder(ctx context.Context, t *asynq.Task) error {
	p, err := notify.DecodeReminder(t)
	if err != nil {
		return fmt.Errorf("decode reminder: %v: %w", err, asynq.SkipRetry)
	}
	mc, err := h.load(ctx, p.AppointmentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if mc.appt.Status != domain.StatusConfirmed || !mc.appt.StartTime.After(h.d.Now()) {
		h.log.Info("reminder skipped", slog.String("appointment_id", mc.appt.ID.String()), slog.String("status", string(mc.appt.Status)))
		return nil
	}
	return h.send(ctx, mc, domain.TemplateReminder)
}

func (h *Handlers) HandleSweep(ctx context.Context, _ *asynq.Task) error {
	res, err := h.d.Sweeper.Sweep(ctx)
	if err != nil {
		return err
	}
	h.log.Debug("sweep finished", slog.Int("completed", res.Completed), slog.Int("expired", res.Expired))
	return nil
}

func (h *Handlers) send(ctx context.Context, mc mailContext, templateID string) error {
	vars := notify.Vars{
		ClientName:       mc.appt.ClientName,
		ClientEmail:      mc.appt.ClientEmail,
		Start:            mc.appt.StartTime,
		FormTitle:        mc.form.Title,
		MeetingURL:       mc.notif.MeetingURL,
		VerificationLink: h.link("confirm", mc.appt.VerificationToken),
		CancellationLink: h.link("cancel", mc.appt.VerificationToken),
		BusinessName:     mc.general.BusinessName,
	}
	msg := notify.Render(notify.Template(mc.notif, templateID), vars, mc.general)
	err := h.d.Mailer.Send(ctx, notify.Message{
		FromName:  firstNonEmpty(mc.notif.FromName, mc.general.BusinessName),
		FromEmail: mc.notif.FromEmail,
		To:        mc.appt.ClientEmail,
		Subject:   msg.Subject,
		Body:      msg.Body,
	})
	if err != nil {
		return fmt.Errorf("send %s mail: %w", templateID, err)
	}
	h.log.Info("mail sent", slog.String("template", templateID), slog.String("appointment_id", mc.appt.ID.String()))
	return nil
}

func (h *Handlers) notifyAdmin(ctx context.Context, mc mailContext) error {
	if strings.TrimSpace(mc.notif.AdminEmail) == "" {
		return nil
	}
	local := mc.appt.StartTime.In(mc.general.Location())
	body := fmt.Sprintf("New appointment for %s.\n\nClient: %s <%s>\nPhone: %s\nWhen: %s\nStatus: %s\n\n%s",
		mc.form.Title, mc.appt.ClientName, mc.appt.ClientEmail, mc.appt.ClientPhone,
		local.Format("Mon, 02 Jan 2006 15:04 MST"), mc.appt.Status, mc.appt.Notes)
	return h.d.Mailer.Send(ctx, notify.Message{
		FromName:  firstNonEmpty(mc.notif.FromName, mc.general.BusinessName),
		FromEmail: mc.notif.FromEmail,
		To:        mc.notif.AdminEmail,
		Subject:   "New booking: " + mc.form.Title,
		Body:      body,
	})
}

func (h *Handlers) link(action string, token uuid.UUID) string {
	base := strings.TrimRight(h.d.PublicURL, "/")
	q := url.Values{"token": {token.String()}}
	return base + "/appointments/" + action + "?" + q.Encode()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
