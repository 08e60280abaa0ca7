package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"slotbook/backend/internal/availability"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

// Active reports whether an appointment in this status holds its slot.
func (s AppointmentStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled, StatusCompleted},
}

// CanTransition reports whether from -> to is an allowed lifecycle step.
func CanTransition(from, to AppointmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type TransitionError struct {
	From AppointmentStatus
	To   AppointmentStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("appointment cannot move from %s to %s", e.From, e.To)
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID                uuid.UUID         `bun:"id,pk,type:uuid"`
	FormID            uuid.UUID         `bun:"form_id,notnull,type:uuid"`
	ClientName        string            `bun:"client_name,notnull"`
	ClientEmail       string            `bun:"client_email,notnull"`
	ClientPhone       string            `bun:"client_phone"`
	Notes             string            `bun:"notes"`
	StartTime         time.Time         `bun:"start_time,notnull"`
	EndTime           time.Time         `bun:"end_time,notnull"`
	Status            AppointmentStatus `bun:"status,notnull"`
	VerificationToken uuid.UUID         `bun:"verification_token,notnull,type:uuid"`
	CalendarEventID   string            `bun:"calendar_event_id,nullzero"`
	CreatedAt         time.Time         `bun:"created_at,notnull"`
	UpdatedAt         time.Time         `bun:"updated_at,notnull"`
}

func (a Appointment) Existing() availability.Existing {
	return availability.Existing{
		FormID: a.FormID,
		Start:  a.StartTime,
		End:    a.EndTime,
		Active: a.Status.Active(),
	}
}

// SameBooking reports whether b asks for the same booking as a, as a replayed request would.
func (a Appointment) SameBooking(b Appointment) bool {
	return a.FormID == b.FormID &&
		a.ClientEmail == b.ClientEmail &&
		a.StartTime.Equal(b.StartTime) &&
		a.EndTime.Equal(b.EndTime)
}

func ExistingOf(appts []Appointment) []availability.Existing {
	out := make([]availability.Existing, 0, len(appts))
	for _, a := range appts {
		out = append(out, a.Existing())
	}
	return out
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.VerificationToken == uuid.Nil {
			a.VerificationToken = uuid.New()
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}
