package grpc

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"slotbook/backend/internal/availability"
	"slotbook/backend/internal/service/appointments"
	"slotbook/backend/internal/service/forms"
	"slotbook/backend/internal/service/settings"
	"slotbook/backend/internal/store"
)

// ConflictReasonTrailer carries the machine-readable reason of a rejected booking.
const ConflictReasonTrailer = "x-conflict-reason"

var conflictMessages = map[availability.ConflictReason]string{
	availability.ReasonOverlap:      "That time was just booked. Pick a different slot.",
	availability.ReasonBuffer:       "That time is too close to another appointment. Pick a different slot.",
	availability.ReasonDailyLimit:   "No more appointments can be booked on that day. Pick another day.",
	availability.ReasonBusyCalendar: "The host is busy at that time. Pick a different slot.",
	availability.ReasonStaleNotice:  "That time is too soon to book. Pick a later slot.",
}

// toStatus maps a service error to a gRPC status, logging it at the level it deserves.
// Internal details never reach the caller.
func toStatus(ctx context.Context, log *slog.Logger, op string, err error, attrs ...any) error {
	var conflict *availability.BookingConflictError
	if errors.As(err, &conflict) {
		_ = grpc.SetTrailer(ctx, metadata.Pairs(ConflictReasonTrailer, string(conflict.Reason)))
		log.Info(op+" conflict", append([]any{slog.String("reason", string(conflict.Reason))}, attrs...)...)
		msg, ok := conflictMessages[conflict.Reason]
		if !ok {
			msg = "That time is no longer available."
		}
		return status.Error(codes.FailedPrecondition, msg)
	}

	var avErr *availability.ValidationError
	if errors.As(err, &avErr) {
		log.Warn("invalid request", append([]any{slog.Any("err", err)}, attrs...)...)
		return status.Error(codes.InvalidArgument, avErr.Error())
	}
	if msg, ok := validationMessage(err); ok {
		log.Warn("invalid request", append([]any{slog.Any("err", err)}, attrs...)...)
		return status.Error(codes.InvalidArgument, msg)
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Info(op+" not found", attrs...)
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, store.ErrInvalidTransition):
		log.Info(op+" invalid transition", append([]any{slog.Any("err", err)}, attrs...)...)
		return status.Error(codes.FailedPrecondition, "The appointment cannot be changed from its current status.")
	case errors.Is(err, appointments.ErrVerificationExpired):
		log.Info(op+" verification expired", attrs...)
		return status.Error(codes.FailedPrecondition, "This verification link has expired. Book a new appointment.")
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.Info(op+" idempotency conflict", attrs...)
		return status.Error(codes.FailedPrecondition, "This request key was already used for a different appointment. Try again.")
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn(op+" timed out", attrs...)
		return status.Error(codes.DeadlineExceeded, "request timed out")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	}

	log.Error(op+" failed", append([]any{slog.Any("err", err)}, attrs...)...)
	return status.Error(codes.Internal, "internal error")
}

func validationMessage(err error) (string, bool) {
	var apptErr *appointments.ValidationError
	if errors.As(err, &apptErr) {
		return apptErr.Error(), true
	}
	var formErr *forms.ValidationError
	if errors.As(err, &formErr) {
		return formErr.Error(), true
	}
	var settingsErr *settings.ValidationError
	if errors.As(err, &settingsErr) {
		return settingsErr.Error(), true
	}
	return "", false
}
