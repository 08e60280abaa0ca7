package appointments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"slotbook/backend/internal/availability"
	"slotbook/backend/internal/domain"
	"slotbook/backend/internal/store"
)

const (
	maxQueryDays    = 62
	verificationTTL = 24 * time.Hour
)

// ErrVerificationExpired is returned when a pending appointment is confirmed after its
// verification window. The sweep cancels such appointments.
var ErrVerificationExpired = errors.New("verification link has expired")

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

type Settings interface {
	General(ctx context.Context) (domain.GeneralSettings, error)
	Calendar(ctx context.Context) (domain.CalendarSettings, error)
}

type Calendar interface {
	ListBusy(ctx context.Context, window availability.Interval) ([]availability.Interval, error)
	CreateEvent(ctx context.Context, ev domain.CalendarEvent) (string, error)
	DeleteEvent(ctx context.Context, eventID string) error
}

type EventSink interface {
	Emit(ctx context.Context, ev domain.Event) error
}

// Recorder receives booking outcomes. The metrics package satisfies it.
type Recorder interface {
	BookingAttempt(outcome string)
	SlotsOffered(n int)
	CalendarFailure(op string)
}

type Deps struct {
	Forms        store.FormRepository
	Appointments store.AppointmentRepository
	Settings     Settings
	Calendar     Calendar
	Events       EventSink
	Recorder     Recorder
	Log          *slog.Logger
	Now          func() time.Time
}

type Service struct {
	forms    store.FormRepository
	repo     store.AppointmentRepository
	settings Settings
	calendar Calendar
	events   EventSink
	rec      Recorder
	log      *slog.Logger
	now      func() time.Time
}

func NewService(d Deps) *Service {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	rec := d.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Service{
		forms:    d.Forms,
		repo:     d.Appointments,
		settings: d.Settings,
		calendar: d.Calendar,
		events:   d.Events,
		rec:      rec,
		log:      log.With(slog.String("component", "service.appointments")),
		now:      now,
	}
}

type nopRecorder struct{}

func (nopRecorder) BookingAttempt(string)  {}
func (nopRecorder) SlotsOffered(int)       {}
func (nopRecorder) CalendarFailure(string) {}

type AvailabilityQuery struct {
	FormID uuid.UUID
	From   civil.Date
	To     civil.Date
}

type Availability struct {
	Slots          []availability.Slot
	TimezonePolicy availability.TimezonePolicy
	TimeZone       string
	Warnings       []string
}

// plan is everything resolved from storage and settings that a form's rules need.
type plan struct {
	form     domain.Form
	general  domain.GeneralSettings
	calendar domain.CalendarSettings
	rules    availability.RuleSet
}

func (s *Service) plan(ctx context.Context, formID uuid.UUID) (plan, error) {
	form, err := s.forms.Get(ctx, formID)
	if err != nil {
		return plan{}, err
	}
	general, err := s.settings.General(ctx)
	if err != nil {
		return plan{}, err
	}
	cal, err := s.settings.Calendar(ctx)
	if err != nil {
		return plan{}, err
	}
	rules, err := availability.Build(availability.Params{
		FormID:      form.ID,
		Config:      form.Scheduling,
		SlotMinutes: form.DurationMinutes,
		Location:    general.Location(),
	})
	if err != nil {
		return plan{}, err
	}
	return plan{form: form, general: general, calendar: cal, rules: rules}, nil
}

func (s *Service) Availability(ctx context.Context, q AvailabilityQuery) (Availability, error) {
	if q.FormID == uuid.Nil {
		return Availability{}, validationError("form_id is required")
	}
	if !q.From.IsValid() || !q.To.IsValid() {
		return Availability{}, validationError("from and to must be valid dates")
	}
	if q.To.Before(q.From) {
		return Availability{}, validationError("to must not be before from")
	}
	if q.To.DaysSince(q.From) >= maxQueryDays {
		return Availability{}, validationError("date range too long")
	}

	p, err := s.plan(ctx, q.FormID)
	if err != nil {
		return Availability{}, err
	}

	loc := p.rules.Location()
	pad := time.Duration(p.rules.BufferMinutes()) * time.Minute
	window := availability.Interval{
		Start: q.From.In(loc).Add(-pad),
		End:   q.To.AddDays(1).In(loc).Add(pad),
	}

	appts, err := s.repo.ListActive(ctx, q.FormID, window.Start, window.End)
	if err != nil {
		return Availability{}, fmt.Errorf("list appointments: %w", err)
	}

	var warnings []string
	busy, warn := s.busy(ctx, p, window)
	if warn != "" {
		warnings = append(warnings, warn)
	}

	slots := slices.Collect(availability.Filter(
		availability.Generate(p.rules, availability.DateRange{Start: q.From, End: q.To}, s.now()),
		domain.ExistingOf(appts),
		busy,
		p.rules,
	))
	s.rec.SlotsOffered(len(slots))

	return Availability{
		Slots:          slots,
		TimezonePolicy: p.rules.TimezonePolicy(),
		TimeZone:       loc.String(),
		Warnings:       warnings,
	}, nil
}

// busy reads external busy periods. A failing connector degrades to no busy data.
func (s *Service) busy(ctx context.Context, p plan, window availability.Interval) ([]availability.Interval, string) {
	if !p.calendar.Enabled || s.calendar == nil {
		return nil, ""
	}
	busy, err := s.calendar.ListBusy(ctx, window)
	if err != nil {
		s.rec.CalendarFailure("list_busy")
		s.log.Warn("calendar busy lookup failed", slog.Any("err", err), slog.String("form_id", p.form.ID.String()))
		return nil, "calendar busy times unavailable"
	}
	return busy, ""
}

type BookInput struct {
	FormID         uuid.UUID
	StartTime      time.Time
	EndTime        time.Time
	ClientName     string
	ClientEmail    string
	ClientPhone    string
	Notes          string
	IdempotencyKey string
}

type BookResult struct {
	Appointment domain.Appointment
	Warnings    []string
	Replayed    bool
}

func (s *Service) Book(ctx context.Context, in BookInput) (BookResult, error) {
	appt, err := newAppointment(in)
	if err != nil {
		s.rec.BookingAttempt("invalid")
		return BookResult{}, err
	}

	p, err := s.plan(ctx, in.FormID)
	if err != nil {
		s.rec.BookingAttempt("error")
		return BookResult{}, err
	}

	slot := availability.Interval{Start: appt.StartTime, End: appt.EndTime}
	if !p.rules.Offers(slot) {
		s.rec.BookingAttempt("invalid")
		return BookResult{}, &availability.ValidationError{Code: availability.CodeSlotNotOffered, Detail: "requested time is not one of the form's slots"}
	}

	if p.form.RequiresVerification(p.general) {
		appt.Status = domain.StatusPending
	} else {
		appt.Status = domain.StatusConfirmed
	}

	var warnings []string
	pad := time.Duration(p.rules.BufferMinutes()) * time.Minute
	busy, warn := s.busy(ctx, p, availability.Interval{Start: slot.Start.Add(-pad), End: slot.End.Add(pad)})
	if warn != "" {
		warnings = append(warnings, warn)
	}

	loc := p.rules.Location()
	day := p.rules.DayOf(slot.Start)
	lookStart := day.In(loc).Add(-pad)
	lookEnd := day.AddDays(1).In(loc).Add(pad)

	var created domain.Appointment
	replayed := false
	err = s.repo.InFormTransaction(ctx, in.FormID, func(ctx context.Context, tx store.BookingTx) error {
		if appt.ID != uuid.Nil {
			existing, err := tx.Get(ctx, appt.ID)
			switch {
			case err == nil:
				if !existing.SameBooking(appt) {
					return store.ErrIdempotencyConflict
				}
				created, replayed = existing, true
				return nil
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
		}

		current, err := tx.ListActive(ctx, in.FormID, lookStart, lookEnd)
		if err != nil {
			return err
		}
		check := availability.Slot{FormID: in.FormID, Start: slot.Start, End: slot.End}
		if err := availability.CheckSlot(check, domain.ExistingOf(current), busy, p.rules, s.now()); err != nil {
			return err
		}

		a, err := tx.CreateAppointment(ctx, appt)
		if errors.Is(err, store.ErrConflict) {
			return &availability.BookingConflictError{Reason: availability.ReasonOverlap, Slot: slot}
		}
		if err != nil {
			return err
		}
		created = a
		return nil
	})
	if err != nil {
		var conflict *availability.BookingConflictError
		if errors.As(err, &conflict) {
			s.rec.BookingAttempt("conflict_" + string(conflict.Reason))
		} else {
			s.rec.BookingAttempt("error")
		}
		return BookResult{}, err
	}
	if replayed {
		s.rec.BookingAttempt("replayed")
		return BookResult{Appointment: created, Replayed: true}, nil
	}
	s.rec.BookingAttempt(string(created.Status))

	warnings = append(warnings, s.afterCommit(ctx, p, &created)...)
	return BookResult{Appointment: created, Warnings: warnings}, nil
}

// afterCommit runs the best-effort side effects of a new booking. Failures come back as warnings.
func (s *Service) afterCommit(ctx context.Context, p plan, appt *domain.Appointment) []string {
	var warnings []string
	if s.events != nil {
		if err := s.events.Emit(ctx, domain.NewEvent(domain.EventBookingCreated, *appt, s.now())); err != nil {
			s.log.Warn("booking event emit failed", slog.Any("err", err), slog.String("appointment_id", appt.ID.String()))
			warnings = append(warnings, "notification could not be queued")
		} else if appt.Status == domain.StatusConfirmed {
			s.emit(ctx, domain.EventBookingConfirmed, *appt)
		}
	}

	if !p.calendar.Enabled || s.calendar == nil {
		return warnings
	}
	eventID, err := s.calendar.CreateEvent(ctx, domain.CalendarEvent{
		Summary:       p.form.Title + ": " + appt.ClientName,
		Description:   appt.Notes,
		Start:         appt.StartTime,
		End:           appt.EndTime,
		TimeZone:      p.rules.Location().String(),
		AttendeeEmail: appt.ClientEmail,
	})
	if err != nil {
		s.rec.CalendarFailure("create_event")
		s.log.Warn("calendar event create failed", slog.Any("err", err), slog.String("appointment_id", appt.ID.String()))
		return append(warnings, "calendar event could not be created")
	}
	if err := s.repo.SetCalendarEventID(ctx, appt.ID, eventID); err != nil {
		s.log.Warn("calendar event id save failed", slog.Any("err", err), slog.String("appointment_id", appt.ID.String()))
		return append(warnings, "calendar event id could not be saved")
	}
	appt.CalendarEventID = eventID
	return warnings
}

func newAppointment(in BookInput) (domain.Appointment, error) {
	if in.FormID == uuid.Nil {
		return domain.Appointment{}, validationError("form_id is required")
	}
	name := strings.TrimSpace(in.ClientName)
	if name == "" {
		return domain.Appointment{}, validationError("client_name is required")
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(in.ClientEmail))
	if err != nil {
		return domain.Appointment{}, validationError("client_email is invalid")
	}

	start := in.StartTime.UTC()
	end := in.EndTime.UTC()
	if !start.Before(end) {
		return domain.Appointment{}, validationError("end_time must be after start_time")
	}

	appt := domain.Appointment{
		FormID:      in.FormID,
		ClientName:  name,
		ClientEmail: strings.ToLower(addr.Address),
		ClientPhone: strings.TrimSpace(in.ClientPhone),
		Notes:       in.Notes,
		StartTime:   start,
		EndTime:     end,
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if len(key) > 256 {
			return domain.Appointment{}, validationError("idempotency_key too long")
		}
		appt.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("slotbook:book:"+in.FormID.String()+":"+key))
	}
	return appt, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, formID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	if formID == uuid.Nil {
		return nil, validationError("form_id is required")
	}
	start := windowStart.UTC()
	end := windowEnd.UTC()
	if !start.Before(end) {
		return nil, validationError("window_end must be after window_start")
	}
	return s.repo.List(ctx, formID, start, end)
}

// Confirm verifies a pending appointment by its token. Confirming twice is a no-op.
func (s *Service) Confirm(ctx context.Context, token uuid.UUID) (domain.Appointment, error) {
	if token == uuid.Nil {
		return domain.Appointment{}, validationError("token is required")
	}
	appt, err := s.repo.GetByVerificationToken(ctx, token)
	if err != nil {
		return domain.Appointment{}, err
	}
	if appt.Status == domain.StatusConfirmed {
		return appt, nil
	}
	now := s.now()
	if appt.Status == domain.StatusPending && appt.CreatedAt.Before(now.Add(-verificationTTL)) {
		return domain.Appointment{}, ErrVerificationExpired
	}
	if !appt.EndTime.After(now) {
		return domain.Appointment{}, validationError("appointment has already ended")
	}

	appt, err = s.repo.TransitionStatus(ctx, appt.ID, domain.StatusConfirmed)
	if err != nil {
		return domain.Appointment{}, err
	}
	s.emit(ctx, domain.EventBookingConfirmed, appt)
	return appt, nil
}

// Cancel cancels by id. Any calendar event is removed on a best-effort basis.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (domain.Appointment, []string, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, nil, validationError("appointment_id is required")
	}
	appt, err := s.repo.TransitionStatus(ctx, id, domain.StatusCancelled)
	if err != nil {
		return domain.Appointment{}, nil, err
	}
	s.emit(ctx, domain.EventBookingCancelled, appt)
	return appt, s.releaseCalendar(ctx, appt), nil
}

// CancelByToken lets the client cancel through the link in their emails.
func (s *Service) CancelByToken(ctx context.Context, token uuid.UUID) (domain.Appointment, []string, error) {
	if token == uuid.Nil {
		return domain.Appointment{}, nil, validationError("token is required")
	}
	appt, err := s.repo.GetByVerificationToken(ctx, token)
	if err != nil {
		return domain.Appointment{}, nil, err
	}
	return s.Cancel(ctx, appt.ID)
}

type SweepResult struct {
	Completed int
	Expired   int
}

// Sweep completes confirmed appointments that have ended and cancels pending ones
// whose verification window has lapsed.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	now := s.now()

	done, err := s.repo.CompleteEnded(ctx, now)
	if err != nil {
		return SweepResult{}, fmt.Errorf("complete ended appointments: %w", err)
	}
	expired, err := s.repo.ExpireUnverified(ctx, now.Add(-verificationTTL))
	if err != nil {
		return SweepResult{Completed: len(done)}, fmt.Errorf("expire unverified appointments: %w", err)
	}
	for _, appt := range expired {
		s.emit(ctx, domain.EventBookingCancelled, appt)
		s.releaseCalendar(ctx, appt)
	}

	if len(done) > 0 || len(expired) > 0 {
		s.log.Info("appointments swept", slog.Int("completed", len(done)), slog.Int("expired", len(expired)))
	}
	return SweepResult{Completed: len(done), Expired: len(expired)}, nil
}

func (s *Service) emit(ctx context.Context, t domain.EventType, appt domain.Appointment) {
	if s.events == nil {
		return
	}
	if err := s.events.Emit(ctx, domain.NewEvent(t, appt, s.now())); err != nil {
		s.log.Warn("event emit failed", slog.Any("err", err), slog.String("event", string(t)), slog.String("appointment_id", appt.ID.String()))
	}
}

func (s *Service) releaseCalendar(ctx context.Context, appt domain.Appointment) []string {
	if appt.CalendarEventID == "" || s.calendar == nil {
		return nil
	}
	if err := s.calendar.DeleteEvent(ctx, appt.CalendarEventID); err != nil {
		s.rec.CalendarFailure("delete_event")
		s.log.Warn("calendar event delete failed", slog.Any("err", err), slog.String("appointment_id", appt.ID.String()))
		return []string{"calendar event could not be removed"}
	}
	return nil
}
