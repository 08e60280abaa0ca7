package domain

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

const (
	SettingsGeneral       = "general"
	SettingsNotifications = "notifications"
	SettingsCalendar      = "calendar"
)

// Setting is a named JSON blob in the settings table.
type Setting struct {
	bun.BaseModel `bun:"table:settings"`

	Key       string          `bun:"key,pk"`
	Value     json.RawMessage `bun:"value,type:jsonb,notnull"`
	UpdatedAt time.Time       `bun:"updated_at,notnull"`
}

type GeneralSettings struct {
	BusinessName      string `json:"businessName"`
	Timezone          string `json:"timezone"`
	DateFormat        string `json:"dateFormat"`
	TimeFormat        string `json:"timeFormat"`
	EmailVerification bool   `json:"emailVerification"`
}

func DefaultGeneralSettings() GeneralSettings {
	return GeneralSettings{
		Timezone:          "UTC",
		DateFormat:        "Y-m-d",
		TimeFormat:        "H:i",
		EmailVerification: true,
	}
}

// Location resolves the host timezone, falling back to UTC for unknown names.
func (g GeneralSettings) Location() *time.Location {
	if g.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type EmailTemplate struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

const (
	TemplateVerification = "verification"
	TemplateConfirmation = "confirmation"
	TemplateReminder     = "reminder"
	TemplateCancelled    = "cancelled"
)

type NotificationSettings struct {
	AdminEmail string                   `json:"adminEmail"`
	FromName   string                   `json:"fromName"`
	FromEmail  string                   `json:"fromEmail"`
	MeetingURL string                   `json:"meetingLink"`
	Templates  map[string]EmailTemplate `json:"templates"`
}

type CalendarSettings struct {
	Enabled    bool   `json:"enabled"`
	Provider   string `json:"provider"`
	CalendarID string `json:"calendarId"`
}

func DefaultCalendarSettings() CalendarSettings {
	return CalendarSettings{Provider: "google", CalendarID: "primary"}
}
