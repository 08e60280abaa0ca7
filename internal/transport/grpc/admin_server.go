package grpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"slotbook/backend/internal/domain"
	"slotbook/backend/internal/service/forms"
)

type formService interface {
	Create(ctx context.Context, in forms.Input) (domain.Form, error)
	Update(ctx context.Context, in forms.Input) (domain.Form, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Form, error)
	List(ctx context.Context) ([]domain.Form, error)
}

type appointmentAdmin interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	List(ctx context.Context, formID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID) (domain.Appointment, []string, error)
}

type settingsService interface {
	Raw(ctx context.Context, key string) (json.RawMessage, error)
	Put(ctx context.Context, key string, raw json.RawMessage) error
}

type AdminServer struct {
	forms    formService
	appts    appointmentAdmin
	settings settingsService
	log      *slog.Logger
}

func NewAdminServer(f formService, a appointmentAdmin, st settingsService, log *slog.Logger) *AdminServer {
	if log == nil {
		log = slog.Default()
	}
	return &AdminServer{
		forms:    f,
		appts:    a,
		settings: st,
		log:      log.With(slog.String("component", "grpc.admin")),
	}
}

func formInput(req *FormRequest) forms.Input {
	return forms.Input{
		Title:             req.Title,
		Description:       req.Description,
		DurationMinutes:   req.DurationMinutes,
		Scheduling:        req.Scheduling,
		EmailVerification: req.EmailVerification,
	}
}

func (s *AdminServer) CreateForm(ctx context.Context, req *FormRequest) (*FormResponse, error) {
	log := s.log.With(slog.String("rpc", "CreateForm"))

	form, err := s.forms.Create(ctx, formInput(req))
	if err != nil {
		return nil, toStatus(ctx, log, "form create", err)
	}
	log.Info("form created", slog.String("form_id", form.ID.String()))
	return &FormResponse{Form: toForm(form)}, nil
}

func (s *AdminServer) UpdateForm(ctx context.Context, req *FormRequest) (*FormResponse, error) {
	log := s.log.With(slog.String("rpc", "UpdateForm"))

	id, err := uuid.Parse(req.ID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, status.Error(codes.InvalidArgument, "id must be a UUID")
	}
	in := formInput(req)
	in.ID = id

	form, err := s.forms.Update(ctx, in)
	if err != nil {
		return nil, toStatus(ctx, log, "form update", err, slog.String("form_id", req.ID))
	}
	log.Info("form updated", slog.String("form_id", form.ID.String()))
	return &FormResponse{Form: toForm(form)}, nil
}

func (s *AdminServer) GetForm(ctx context.Context, req *IDRequest) (*FormResponse, error) {
	log := s.log.With(slog.String("rpc", "GetForm"))

	id, err := uuid.Parse(req.ID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "id must be a UUID")
	}
	form, err := s.forms.Get(ctx, id)
	if err != nil {
		return nil, toStatus(ctx, log, "form get", err, slog.String("form_id", req.ID))
	}
	return &FormResponse{Form: toForm(form)}, nil
}

func (s *AdminServer) ListForms(ctx context.Context, _ *ListFormsRequest) (*ListFormsResponse, error) {
	log := s.log.With(slog.String("rpc", "ListForms"))

	list, err := s.forms.List(ctx)
	if err != nil {
		return nil, toStatus(ctx, log, "form list", err)
	}
	out := make([]Form, 0, len(list))
	for _, f := range list {
		out = append(out, toForm(f))
	}
	return &ListFormsResponse{Forms: out}, nil
}

func (s *AdminServer) ListAppointments(ctx context.Context, req *ListAppointmentsRequest) (*ListAppointmentsResponse, error) {
	log := s.log.With(slog.String("rpc", "ListAppointments"))

	formID, err := uuid.Parse(req.FormID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, status.Error(codes.InvalidArgument, "form_id must be a UUID")
	}
	if req.WindowStart.IsZero() || req.WindowEnd.IsZero() {
		log.Warn("invalid request", slog.String("reason", "missing_window"), slog.String("form_id", req.FormID))
		return nil, status.Error(codes.InvalidArgument, "window_start and window_end are required")
	}

	appts, err := s.appts.List(ctx, formID, req.WindowStart, req.WindowEnd)
	if err != nil {
		return nil, toStatus(ctx, log, "appointments list", err, slog.String("form_id", req.FormID))
	}

	out := make([]Appointment, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointment(a))
	}

	log.Debug(
		"appointments listed",
		slog.String("form_id", req.FormID),
		slog.Int("count", len(out)),
		slog.Time("window_start", req.WindowStart),
		slog.Time("window_end", req.WindowEnd),
	)
	return &ListAppointmentsResponse{Appointments: out}, nil
}

func (s *AdminServer) GetAppointment(ctx context.Context, req *IDRequest) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "GetAppointment"))

	id, err := uuid.Parse(req.ID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "id must be a UUID")
	}
	appt, err := s.appts.Get(ctx, id)
	if err != nil {
		return nil, toStatus(ctx, log, "appointment get", err, slog.String("appointment_id", req.ID))
	}
	return &AppointmentResponse{Appointment: toAppointment(appt)}, nil
}

func (s *AdminServer) CancelAppointment(ctx context.Context, req *IDRequest) (*CancelAppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "CancelAppointment"))

	id, err := uuid.Parse(req.ID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, status.Error(codes.InvalidArgument, "id must be a UUID")
	}
	appt, warnings, err := s.appts.Cancel(ctx, id)
	if err != nil {
		return nil, toStatus(ctx, log, "cancel", err, slog.String("appointment_id", req.ID))
	}

	log.Info("appointment cancelled", slog.String("appointment_id", appt.ID.String()), slog.String("by", "admin"))
	return &CancelAppointmentResponse{Appointment: toAppointment(appt), Warnings: warnings}, nil
}

func (s *AdminServer) GetSettings(ctx context.Context, req *GetSettingsRequest) (*SettingsResponse, error) {
	log := s.log.With(slog.String("rpc", "GetSettings"))

	raw, err := s.settings.Raw(ctx, req.Key)
	if err != nil {
		return nil, toStatus(ctx, log, "settings get", err, slog.String("key", req.Key))
	}
	return &SettingsResponse{Key: req.Key, Value: raw}, nil
}

func (s *AdminServer) UpdateSettings(ctx context.Context, req *UpdateSettingsRequest) (*SettingsResponse, error) {
	log := s.log.With(slog.String("rpc", "UpdateSettings"))

	if len(req.Value) == 0 {
		return nil, status.Error(codes.InvalidArgument, "value is required")
	}
	if err := s.settings.Put(ctx, req.Key, req.Value); err != nil {
		return nil, toStatus(ctx, log, "settings update", err, slog.String("key", req.Key))
	}
	raw, err := s.settings.Raw(ctx, req.Key)
	if err != nil {
		return nil, toStatus(ctx, log, "settings get", err, slog.String("key", req.Key))
	}

	log.Info("settings updated", slog.String("key", req.Key))
	return &SettingsResponse{Key: req.Key, Value: raw}, nil
}
