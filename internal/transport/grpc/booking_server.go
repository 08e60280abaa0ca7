package grpc

import (
	"context"
	"log/slog"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"slotbook/backend/internal/domain"
	"slotbook/backend/internal/service/appointments"
)

type bookingService interface {
	Availability(ctx context.Context, q appointments.AvailabilityQuery) (appointments.Availability, error)
	Book(ctx context.Context, in appointments.BookInput) (appointments.BookResult, error)
	Confirm(ctx context.Context, token uuid.UUID) (domain.Appointment, error)
	CancelByToken(ctx context.Context, token uuid.UUID) (domain.Appointment, []string, error)
}

type BookingServer struct {
	svc bookingService
	log *slog.Logger
}

func NewBookingServer(svc bookingService, log *slog.Logger) *BookingServer {
	if log == nil {
		log = slog.Default()
	}
	return &BookingServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.booking")),
	}
}

func (s *BookingServer) ListAvailableSlots(ctx context.Context, req *ListAvailableSlotsRequest) (*ListAvailableSlotsResponse, error) {
	log := s.log.With(slog.String("rpc", "ListAvailableSlots"))

	formID, err := uuid.Parse(req.FormID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, status.Error(codes.InvalidArgument, "form_id must be a UUID")
	}
	from, err := civil.ParseDate(req.From)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_from"), slog.String("form_id", req.FormID))
		return nil, status.Error(codes.InvalidArgument, "from must be a YYYY-MM-DD date")
	}
	to, err := civil.ParseDate(req.To)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_to"), slog.String("form_id", req.FormID))
		return nil, status.Error(codes.InvalidArgument, "to must be a YYYY-MM-DD date")
	}

	av, err := s.svc.Availability(ctx, appointments.AvailabilityQuery{FormID: formID, From: from, To: to})
	if err != nil {
		return nil, toStatus(ctx, log, "availability", err, slog.String("form_id", req.FormID))
	}

	out := make([]Slot, 0, len(av.Slots))
	for _, sl := range av.Slots {
		out = append(out, Slot{Start: sl.Start.UTC(), End: sl.End.UTC()})
	}

	log.Debug(
		"slots listed",
		slog.String("form_id", req.FormID),
		slog.Int("count", len(out)),
		slog.String("from", req.From),
		slog.String("to", req.To),
	)

	return &ListAvailableSlotsResponse{
		Slots:          out,
		TimezonePolicy: string(av.TimezonePolicy),
		TimeZone:       av.TimeZone,
		Warnings:       av.Warnings,
	}, nil
}

func (s *BookingServer) BookAppointment(ctx context.Context, req *BookAppointmentRequest) (*BookAppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "BookAppointment"))

	formID, err := uuid.Parse(req.FormID)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_uuid"))
		return nil, status.Error(codes.InvalidArgument, "form_id must be a UUID")
	}
	if req.StartTime.IsZero() || req.EndTime.IsZero() {
		log.Warn("invalid request", slog.String("reason", "missing_times"), slog.String("form_id", req.FormID))
		return nil, status.Error(codes.InvalidArgument, "start_time and end_time are required")
	}

	res, err := s.svc.Book(ctx, appointments.BookInput{
		FormID:         formID,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		ClientName:     req.ClientName,
		ClientEmail:    req.ClientEmail,
		ClientPhone:    req.ClientPhone,
		Notes:          req.Notes,
		IdempotencyKey: idempotencyKey(ctx),
	})
	if err != nil {
		return nil, toStatus(ctx, log, "booking", err,
			slog.String("form_id", req.FormID),
			slog.Time("start_time", req.StartTime),
			slog.Time("end_time", req.EndTime),
		)
	}

	log.Info(
		"appointment booked",
		slog.String("appointment_id", res.Appointment.ID.String()),
		slog.String("form_id", req.FormID),
		slog.String("status", string(res.Appointment.Status)),
		slog.Time("start_time", res.Appointment.StartTime),
		slog.Bool("replayed", res.Replayed),
	)

	return &BookAppointmentResponse{
		Appointment: toAppointment(res.Appointment),
		Warnings:    res.Warnings,
		Replayed:    res.Replayed,
	}, nil
}

func (s *BookingServer) ConfirmAppointment(ctx context.Context, req *TokenRequest) (*AppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "ConfirmAppointment"))

	token, err := uuid.Parse(strings.TrimSpace(req.Token))
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_token"))
		return nil, status.Error(codes.InvalidArgument, "token is invalid")
	}
	appt, err := s.svc.Confirm(ctx, token)
	if err != nil {
		return nil, toStatus(ctx, log, "confirm", err)
	}

	log.Info("appointment confirmed", slog.String("appointment_id", appt.ID.String()))
	return &AppointmentResponse{Appointment: toAppointment(appt)}, nil
}

func (s *BookingServer) CancelAppointment(ctx context.Context, req *TokenRequest) (*CancelAppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "CancelAppointment"))

	token, err := uuid.Parse(strings.TrimSpace(req.Token))
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "invalid_token"))
		return nil, status.Error(codes.InvalidArgument, "token is invalid")
	}
	appt, warnings, err := s.svc.CancelByToken(ctx, token)
	if err != nil {
		return nil, toStatus(ctx, log, "cancel", err)
	}

	log.Info("appointment cancelled", slog.String("appointment_id", appt.ID.String()), slog.String("by", "client"))
	return &CancelAppointmentResponse{Appointment: toAppointment(appt), Warnings: warnings}, nil
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
