package availability

import "fmt"

const (
	CodeInvalidInterval  = "invalid_interval"
	CodeInvalidParameter = "invalid_parameter"
	CodeInvalidDateRange = "invalid_date_range"
	CodeOverlappingHours = "overlapping_hours"
	CodeSlotNotOffered   = "slot_not_offered"
)

// ValidationError reports malformed scheduling configuration or request input.
// It is never retryable.
type ValidationError struct {
	Code   string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Code
	}
	return e.Code + ": " + e.Detail
}

func validationError(code, format string, args ...any) error {
	return &ValidationError{Code: code, Detail: fmt.Sprintf(format, args...)}
}

type ConflictReason string

const (
	ReasonOverlap      ConflictReason = "overlap"
	ReasonBuffer       ConflictReason = "buffer"
	ReasonDailyLimit   ConflictReason = "daily_limit"
	ReasonBusyCalendar ConflictReason = "busy_calendar"
	ReasonStaleNotice  ConflictReason = "stale_notice"
)

// BookingConflictError is returned when a requested slot is no longer bookable.
type BookingConflictError struct {
	Reason ConflictReason
	Slot   Interval
}

func (e *BookingConflictError) Error() string {
	return "booking conflict: " + string(e.Reason)
}
