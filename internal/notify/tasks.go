// Package notify carries booking lifecycle events to the worker and renders the
// emails sent for them.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"slotbook/backend/internal/domain"
)

const (
	TypeBookingEvent    = "booking:event"
	TypeBookingReminder = "booking:reminder"
	TypeSweep           = "appointments:sweep"
)

const maxRetry = 8

type ReminderPayload struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
}

func NewEventTask(ev domain.Event) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, nil, err
	}
	opts := []asynq.Option{
		asynq.MaxRetry(maxRetry),
		asynq.TaskID(fmt.Sprintf("%s:%s", ev.Type, ev.AppointmentID)),
	}
	return asynq.NewTask(TypeBookingEvent, b), opts, nil
}

// NewReminderTask schedules a reminder at fireAt. One reminder exists per appointment.
func NewReminderTask(appointmentID uuid.UUID, fireAt time.Time) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(ReminderPayload{AppointmentID: appointmentID})
	if err != nil {
		return nil, nil, err
	}
	opts := []asynq.Option{
		asynq.ProcessAt(fireAt),
		asynq.MaxRetry(maxRetry),
		asynq.TaskID("reminder:" + appointmentID.String()),
	}
	return asynq.NewTask(TypeBookingReminder, b), opts, nil
}

func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TypeSweep, nil, asynq.MaxRetry(1))
}

func DecodeEvent(t *asynq.Task) (domain.Event, error) {
	var ev domain.Event
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		return domain.Event{}, err
	}
	return ev, nil
}

func DecodeReminder(t *asynq.Task) (ReminderPayload, error) {
	var p ReminderPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return ReminderPayload{}, err
	}
	return p, nil
}
