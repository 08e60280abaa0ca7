package availability

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

type TimezonePolicy string

const (
	TimezoneHost   TimezonePolicy = "host"
	TimezoneClient TimezonePolicy = "client"
)

// Config is the scheduling block stored on a form.
type Config struct {
	DateRange      DateRangeConfig          `json:"dateRange"`
	AvailableHours map[string][]HoursConfig `json:"availableHours"`
	BufferTime     int                      `json:"bufferTime"`
	MinimumNotice  int                      `json:"minimumNotice"`
	DailyLimit     *int                     `json:"dailyLimit"`
	Timezone       TimezonePolicy           `json:"timezone"`
}

type DateRangeConfig struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

type HoursConfig struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// DefaultConfig mirrors what a newly created form starts with.
func DefaultConfig() Config {
	weekday := []HoursConfig{{Start: "09:00", End: "17:00"}}
	return Config{
		AvailableHours: map[string][]HoursConfig{
			"monday":    weekday,
			"tuesday":   weekday,
			"wednesday": weekday,
			"thursday":  weekday,
			"friday":    weekday,
			"saturday":  {},
			"sunday":    {},
		},
		MinimumNotice: 24,
		Timezone:      TimezoneHost,
	}
}

// DateRange is an inclusive range of civil dates. A zero side is unbounded.
type DateRange struct {
	Start civil.Date
	End   civil.Date
}

func (r DateRange) Contains(d civil.Date) bool {
	if !r.Start.IsZero() && d.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && d.After(r.End) {
		return false
	}
	return true
}

// ClockRange is a window within a day, in minutes since local midnight.
type ClockRange struct {
	Start int
	End   int
}

func (c ClockRange) String() string {
	return formatClock(c.Start) + "-" + formatClock(c.End)
}

type Params struct {
	FormID      uuid.UUID
	Config      Config
	SlotMinutes int
	Location    *time.Location
}

// RuleSet is a validated, immutable view of a form's scheduling rules.
type RuleSet struct {
	formID       uuid.UUID
	dateRange    DateRange
	hours        [7][]ClockRange
	slotDuration time.Duration
	bufferMins   int
	notice       time.Duration
	dailyLimit   int
	policy       TimezonePolicy
	loc          *time.Location
}

var weekdayKeys = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func Build(p Params) (RuleSet, error) {
	cfg := p.Config
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}

	if p.SlotMinutes <= 0 {
		return RuleSet{}, validationError(CodeInvalidParameter, "slot duration must be positive, got %d", p.SlotMinutes)
	}
	if cfg.BufferTime < 0 {
		return RuleSet{}, validationError(CodeInvalidParameter, "bufferTime must be non-negative, got %d", cfg.BufferTime)
	}
	if cfg.MinimumNotice < 0 {
		return RuleSet{}, validationError(CodeInvalidParameter, "minimumNotice must be non-negative, got %d", cfg.MinimumNotice)
	}
	limit := 0
	if cfg.DailyLimit != nil {
		if *cfg.DailyLimit <= 0 {
			return RuleSet{}, validationError(CodeInvalidParameter, "dailyLimit must be positive, got %d", *cfg.DailyLimit)
		}
		limit = *cfg.DailyLimit
	}

	policy := TimezonePolicy(strings.ToLower(strings.TrimSpace(string(cfg.Timezone))))
	switch policy {
	case "":
		policy = TimezoneHost
	case TimezoneHost, TimezoneClient:
	default:
		return RuleSet{}, validationError(CodeInvalidParameter, "unknown timezone policy %q", cfg.Timezone)
	}

	dr, err := parseDateRange(cfg.DateRange, loc)
	if err != nil {
		return RuleSet{}, err
	}

	rs := RuleSet{
		formID:       p.FormID,
		dateRange:    dr,
		slotDuration: time.Duration(p.SlotMinutes) * time.Minute,
		bufferMins:   cfg.BufferTime,
		notice:       time.Duration(cfg.MinimumNotice) * time.Hour,
		dailyLimit:   limit,
		policy:       policy,
		loc:          loc,
	}

	for key, windows := range cfg.AvailableHours {
		wd, ok := weekdayKeys[strings.ToLower(strings.TrimSpace(key))]
		if !ok {
			return RuleSet{}, validationError(CodeInvalidParameter, "unknown weekday %q", key)
		}
		for _, w := range windows {
			cr, err := parseClockRange(w)
			if err != nil {
				return RuleSet{}, err
			}
			rs.hours[wd] = append(rs.hours[wd], cr)
		}
	}

	for wd := range rs.hours {
		day := rs.hours[wd]
		slices.SortFunc(day, func(a, b ClockRange) int { return a.Start - b.Start })
		for i := 1; i < len(day); i++ {
			if day[i].Start < day[i-1].End {
				return RuleSet{}, validationError(CodeOverlappingHours, "%s: %s overlaps %s",
					strings.ToLower(time.Weekday(wd).String()), day[i-1], day[i])
			}
		}
	}

	return rs, nil
}

func (rs RuleSet) FormID() uuid.UUID              { return rs.formID }
func (rs RuleSet) DateRange() DateRange           { return rs.dateRange }
func (rs RuleSet) SlotDuration() time.Duration    { return rs.slotDuration }
func (rs RuleSet) BufferMinutes() int             { return rs.bufferMins }
func (rs RuleSet) MinimumNotice() time.Duration   { return rs.notice }
func (rs RuleSet) TimezonePolicy() TimezonePolicy { return rs.policy }
func (rs RuleSet) Location() *time.Location       { return rs.loc }

// DailyLimit returns the per-day cap and whether one is configured.
func (rs RuleSet) DailyLimit() (int, bool) {
	return rs.dailyLimit, rs.dailyLimit > 0
}

func (rs RuleSet) Hours(wd time.Weekday) []ClockRange {
	return slices.Clone(rs.hours[wd])
}

// DayOf returns the host-timezone calendar date of t.
func (rs RuleSet) DayOf(t time.Time) civil.Date {
	return civil.DateOf(t.In(rs.loc))
}

func parseDateRange(cfg DateRangeConfig, loc *time.Location) (DateRange, error) {
	var dr DateRange
	var err error
	if dr.Start, err = parseConfigDate(cfg.Start, loc); err != nil {
		return DateRange{}, err
	}
	if dr.End, err = parseConfigDate(cfg.End, loc); err != nil {
		return DateRange{}, err
	}
	if !dr.Start.IsZero() && !dr.End.IsZero() && dr.Start.After(dr.End) {
		return DateRange{}, validationError(CodeInvalidDateRange, "start %s is after end %s", dr.Start, dr.End)
	}
	return dr, nil
}

// parseConfigDate accepts YYYY-MM-DD or an RFC 3339 timestamp, which is read in the host timezone.
func parseConfigDate(s string, loc *time.Location) (civil.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return civil.Date{}, nil
	}
	if d, err := civil.ParseDate(s); err == nil {
		return d, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return civil.Date{}, validationError(CodeInvalidParameter, "invalid date %q", s)
	}
	return civil.DateOf(t.In(loc)), nil
}

func parseClockRange(h HoursConfig) (ClockRange, error) {
	start, err := parseClock(h.Start)
	if err != nil {
		return ClockRange{}, err
	}
	end, err := parseClock(h.End)
	if err != nil {
		return ClockRange{}, err
	}
	if start >= end {
		return ClockRange{}, validationError(CodeInvalidParameter, "window %s-%s must start before it ends", h.Start, h.End)
	}
	return ClockRange{Start: start, End: end}, nil
}

func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, validationError(CodeInvalidParameter, "invalid time %q", s)
	}
	h, errH := strconv.Atoi(hh)
	m, errM := strconv.Atoi(mm)
	if errH != nil || errM != nil || h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, validationError(CodeInvalidParameter, "invalid time %q", s)
	}
	return h*60 + m, nil
}

func formatClock(minutes int) string {
	h := strconv.Itoa(minutes / 60)
	m := strconv.Itoa(minutes % 60)
	if len(h) < 2 {
		h = "0" + h
	}
	if len(m) < 2 {
		m = "0" + m
	}
	return h + ":" + m
}
