package grpc

import (
	"encoding/json"
	"time"

	"slotbook/backend/internal/availability"
	"slotbook/backend/internal/domain"
)

type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type Appointment struct {
	ID          string    `json:"id"`
	FormID      string    `json:"form_id"`
	ClientName  string    `json:"client_name"`
	ClientEmail string    `json:"client_email"`
	ClientPhone string    `json:"client_phone,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Form struct {
	ID                string              `json:"id"`
	Title             string              `json:"title"`
	Description       string              `json:"description,omitempty"`
	DurationMinutes   int                 `json:"duration_minutes"`
	Scheduling        availability.Config `json:"scheduling"`
	EmailVerification *bool               `json:"email_verification,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

type ListAvailableSlotsRequest struct {
	FormID string `json:"form_id"`
	// From and To are inclusive calendar dates, YYYY-MM-DD.
	From string `json:"from"`
	To   string `json:"to"`
}

type ListAvailableSlotsResponse struct {
	Slots          []Slot   `json:"slots"`
	TimezonePolicy string   `json:"timezone_policy"`
	TimeZone       string   `json:"time_zone"`
	Warnings       []string `json:"warnings,omitempty"`
}

type BookAppointmentRequest struct {
	FormID      string    `json:"form_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	ClientName  string    `json:"client_name"`
	ClientEmail string    `json:"client_email"`
	ClientPhone string    `json:"client_phone,omitempty"`
	Notes       string    `json:"notes,omitempty"`
}

type BookAppointmentResponse struct {
	Appointment Appointment `json:"appointment"`
	Warnings    []string    `json:"warnings,omitempty"`
	Replayed    bool        `json:"replayed,omitempty"`
}

type TokenRequest struct {
	Token string `json:"token"`
}

type AppointmentResponse struct {
	Appointment Appointment `json:"appointment"`
}

type CancelAppointmentResponse struct {
	Appointment Appointment `json:"appointment"`
	Warnings    []string    `json:"warnings,omitempty"`
}

type FormRequest struct {
	ID                string               `json:"id,omitempty"`
	Title             string               `json:"title"`
	Description       string               `json:"description,omitempty"`
	DurationMinutes   int                  `json:"duration_minutes"`
	Scheduling        *availability.Config `json:"scheduling,omitempty"`
	EmailVerification *bool                `json:"email_verification,omitempty"`
}

type FormResponse struct {
	Form Form `json:"form"`
}

type IDRequest struct {
	ID string `json:"id"`
}

type ListFormsRequest struct{}

type ListFormsResponse struct {
	Forms []Form `json:"forms"`
}

type ListAppointmentsRequest struct {
	FormID      string    `json:"form_id"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

type ListAppointmentsResponse struct {
	Appointments []Appointment `json:"appointments"`
}

type GetSettingsRequest struct {
	Key string `json:"key"`
}

type UpdateSettingsRequest struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

type SettingsResponse struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

func toAppointment(a domain.Appointment) Appointment {
	return Appointment{
		ID:          a.ID.String(),
		FormID:      a.FormID.String(),
		ClientName:  a.ClientName,
		ClientEmail: a.ClientEmail,
		ClientPhone: a.ClientPhone,
		Notes:       a.Notes,
		StartTime:   a.StartTime.UTC(),
		EndTime:     a.EndTime.UTC(),
		Status:      string(a.Status),
		CreatedAt:   a.CreatedAt.UTC(),
		UpdatedAt:   a.UpdatedAt.UTC(),
	}
}

func toForm(f domain.Form) Form {
	return Form{
		ID:                f.ID.String(),
		Title:             f.Title,
		Description:       f.Description,
		DurationMinutes:   f.DurationMinutes,
		Scheduling:        f.Scheduling,
		EmailVerification: f.EmailVerification,
		CreatedAt:         f.CreatedAt.UTC(),
		UpdatedAt:         f.UpdatedAt.UTC(),
	}
}
