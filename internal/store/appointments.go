package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"slotbook/backend/internal/domain"
)

type AppointmentRepository interface {
	// InFormTransaction runs fn with every other booking on formID held off until it returns.
	InFormTransaction(ctx context.Context, formID uuid.UUID, fn func(ctx context.Context, tx BookingTx) error) error

	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	GetByVerificationToken(ctx context.Context, token uuid.UUID) (domain.Appointment, error)
	List(ctx context.Context, formID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	ListActive(ctx context.Context, formID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error)

	// TransitionStatus moves an appointment to status `to`, failing with ErrInvalidTransition
	// when the lifecycle does not allow it.
	TransitionStatus(ctx context.Context, id uuid.UUID, to domain.AppointmentStatus) (domain.Appointment, error)
	SetCalendarEventID(ctx context.Context, id uuid.UUID, eventID string) error

	CompleteEnded(ctx context.Context, before time.Time) ([]domain.Appointment, error)
	ExpireUnverified(ctx context.Context, createdBefore time.Time) ([]domain.Appointment, error)
}

// BookingTx is the view of the appointment book inside InFormTransaction.
type BookingTx interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	ListActive(ctx context.Context, formID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
}
