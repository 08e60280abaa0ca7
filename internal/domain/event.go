package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventBookingCreated   EventType = "booking_created"
	EventBookingConfirmed EventType = "booking_confirmed"
	EventBookingCancelled EventType = "booking_cancelled"
)

// Event is published after an appointment changes state.
type Event struct {
	Type          EventType         `json:"type"`
	AppointmentID uuid.UUID         `json:"appointment_id"`
	FormID        uuid.UUID         `json:"form_id"`
	Status        AppointmentStatus `json:"status"`
	StartTime     time.Time         `json:"start_time"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

func NewEvent(t EventType, appt Appointment, at time.Time) Event {
	return Event{
		Type:          t,
		AppointmentID: appt.ID,
		FormID:        appt.FormID,
		Status:        appt.Status,
		StartTime:     appt.StartTime,
		OccurredAt:    at.UTC(),
	}
}

// CalendarEvent is what gets written to the host's external calendar.
type CalendarEvent struct {
	Summary       string
	Description   string
	Start         time.Time
	End           time.Time
	TimeZone      string
	AttendeeEmail string
}
