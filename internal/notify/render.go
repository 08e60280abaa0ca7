package notify

import (
	"strings"
	"time"

	"slotbook/backend/internal/domain"
)

var defaultTemplates = map[string]domain.EmailTemplate{
	domain.TemplateVerification: {
		Subject: "Verify your appointment request",
		Body: `Dear {client_name},

Please verify your appointment request by clicking the link below:

{verification_link}

Appointment Details:
Date: {appointment_date}
Time: {appointment_time}
Type: {form_title}

This link will expire in 24 hours.

Best regards,
{business_name}`,
	},
	domain.TemplateConfirmation: {
		Subject: "Appointment Confirmed",
		Body: `Dear {client_name},

Your appointment has been confirmed.

Appointment Details:
Date: {appointment_date}
Time: {appointment_time}
Type: {form_title}
{meeting_link}

You can cancel this appointment using this link:
{cancellation_link}

Best regards,
{business_name}`,
	},
	domain.TemplateReminder: {
		Subject: "Appointment Reminder",
		Body: `Dear {client_name},

This is a reminder about your upcoming appointment.

Appointment Details:
Date: {appointment_date}
Time: {appointment_time}
Type: {form_title}
{meeting_link}

You can cancel this appointment using this link:
{cancellation_link}

Best regards,
{business_name}`,
	},
	domain.TemplateCancelled: {
		Subject: "Appointment Cancelled",
		Body: `Dear {client_name},

Your appointment has been cancelled.

Appointment Details:
Date: {appointment_date}
Time: {appointment_time}
Type: {form_title}

You can book a new appointment at any time.

Best regards,
{business_name}`,
	},
}

// Template returns the saved template for id, falling back per field to the default.
func Template(n domain.NotificationSettings, id string) domain.EmailTemplate {
	out := defaultTemplates[id]
	if t, ok := n.Templates[id]; ok {
		if strings.TrimSpace(t.Subject) != "" {
			out.Subject = t.Subject
		}
		if strings.TrimSpace(t.Body) != "" {
			out.Body = t.Body
		}
	}
	return out
}

// Vars are the values substituted into a template.
type Vars struct {
	ClientName       string
	ClientEmail      string
	Start            time.Time
	FormTitle        string
	MeetingURL       string
	VerificationLink string
	CancellationLink string
	BusinessName     string
}

// Render fills the {placeholder} variables of t. Dates and times use the site's
// timezone and formats.
func Render(t domain.EmailTemplate, v Vars, general domain.GeneralSettings) domain.EmailTemplate {
	local := v.Start.In(general.Location())
	r := strings.NewReplacer(
		"{client_name}", v.ClientName,
		"{client_email}", v.ClientEmail,
		"{appointment_date}", local.Format(goLayout(general.DateFormat, "2006-01-02")),
		"{appointment_time}", local.Format(goLayout(general.TimeFormat, "15:04")),
		"{form_title}", v.FormTitle,
		"{meeting_link}", v.MeetingURL,
		"{verification_link}", v.VerificationLink,
		"{cancellation_link}", v.CancellationLink,
		"{business_name}", v.BusinessName,
	)
	return domain.EmailTemplate{
		Subject: r.Replace(t.Subject),
		Body:    r.Replace(t.Body),
	}
}

// phpLayout maps the PHP date() characters admins configure to Go layout fragments.
var phpLayout = map[rune]string{
	'd': "02", 'j': "2", 'D': "Mon", 'l': "Monday",
	'm': "01", 'n': "1", 'M': "Jan", 'F': "January",
	'Y': "2006", 'y': "06",
	'H': "15", 'G': "15", 'h': "03", 'g': "3", 'i': "04", 's': "05",
	'A': "PM", 'a': "pm", 'T': "MST",
}

func goLayout(format, fallback string) string {
	if strings.TrimSpace(format) == "" {
		return fallback
	}
	var b strings.Builder
	escaped := false
	for _, r := range format {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		if l, ok := phpLayout[r]; ok {
			b.WriteString(l)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
