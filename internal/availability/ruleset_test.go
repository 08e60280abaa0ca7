package availability

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr), "error = %v, want *ValidationError", err)
	assert.Equal(t, code, vErr.Code)
}

func TestBuild_Defaults(t *testing.T) {
	rs, err := Build(Params{Config: DefaultConfig(), SlotMinutes: 30})
	require.NoError(t, err)

	assert.Equal(t, time.UTC, rs.Location())
	assert.Equal(t, TimezoneHost, rs.TimezonePolicy())
	assert.Equal(t, 30*time.Minute, rs.SlotDuration())
	assert.Equal(t, 24*time.Hour, rs.MinimumNotice())
	assert.Equal(t, []ClockRange{{Start: 9 * 60, End: 17 * 60}}, rs.Hours(time.Monday))
	assert.Empty(t, rs.Hours(time.Sunday))
	_, limited := rs.DailyLimit()
	assert.False(t, limited)
}

func TestBuild_DecodesStoredJSON(t *testing.T) {
	raw := `{
		"dateRange": {"start": "2026-03-01", "end": "2026-03-31"},
		"availableHours": {"monday": [{"start": "13:00", "end": "17:00"}, {"start": "09:00", "end": "12:00"}]},
		"bufferTime": 15,
		"minimumNotice": 2,
		"dailyLimit": 4,
		"timezone": "client"
	}`
	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(raw), &cfg))

	loc, err := time.LoadLocation("Africa/Lagos")
	require.NoError(t, err)

	rs, err := Build(Params{Config: cfg, SlotMinutes: 45, Location: loc})
	require.NoError(t, err)

	assert.Equal(t, DateRange{
		Start: civil.Date{Year: 2026, Month: time.March, Day: 1},
		End:   civil.Date{Year: 2026, Month: time.March, Day: 31},
	}, rs.DateRange())
	assert.Equal(t, []ClockRange{{Start: 540, End: 720}, {Start: 780, End: 1020}}, rs.Hours(time.Monday))
	assert.Equal(t, 15, rs.BufferMinutes())
	assert.Equal(t, 2*time.Hour, rs.MinimumNotice())
	limit, ok := rs.DailyLimit()
	assert.True(t, ok)
	assert.Equal(t, 4, limit)
	assert.Equal(t, TimezoneClient, rs.TimezonePolicy())
	assert.Equal(t, loc, rs.Location())
}

func TestBuild_Rejects(t *testing.T) {
	base := func() Config {
		return Config{AvailableHours: map[string][]HoursConfig{"monday": {{Start: "09:00", End: "12:00"}}}}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		minutes int
		code    string
	}{
		{name: "zero duration", mutate: func(c *Config) {}, minutes: 0, code: CodeInvalidParameter},
		{name: "negative buffer", mutate: func(c *Config) { c.BufferTime = -1 }, minutes: 30, code: CodeInvalidParameter},
		{name: "negative notice", mutate: func(c *Config) { c.MinimumNotice = -1 }, minutes: 30, code: CodeInvalidParameter},
		{name: "zero daily limit", mutate: func(c *Config) { c.DailyLimit = intPtr(0) }, minutes: 30, code: CodeInvalidParameter},
		{name: "unknown policy", mutate: func(c *Config) { c.Timezone = "utc" }, minutes: 30, code: CodeInvalidParameter},
		{name: "unknown weekday", mutate: func(c *Config) { c.AvailableHours["funday"] = nil }, minutes: 30, code: CodeInvalidParameter},
		{
			name:    "bad clock",
			mutate:  func(c *Config) { c.AvailableHours["monday"] = []HoursConfig{{Start: "9am", End: "12:00"}} },
			minutes: 30,
			code:    CodeInvalidParameter,
		},
		{
			name:    "inverted window",
			mutate:  func(c *Config) { c.AvailableHours["monday"] = []HoursConfig{{Start: "12:00", End: "09:00"}} },
			minutes: 30,
			code:    CodeInvalidParameter,
		},
		{
			name: "overlapping hours",
			mutate: func(c *Config) {
				c.AvailableHours["monday"] = []HoursConfig{{Start: "09:00", End: "12:00"}, {Start: "11:30", End: "14:00"}}
			},
			minutes: 30,
			code:    CodeOverlappingHours,
		},
		{
			name:    "inverted date range",
			mutate:  func(c *Config) { c.DateRange = DateRangeConfig{Start: "2026-04-01", End: "2026-03-01"} },
			minutes: 30,
			code:    CodeInvalidDateRange,
		},
		{
			name:    "garbage date",
			mutate:  func(c *Config) { c.DateRange = DateRangeConfig{Start: "soon"} },
			minutes: 30,
			code:    CodeInvalidParameter,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			_, err := Build(Params{Config: cfg, SlotMinutes: tt.minutes})
			requireCode(t, err, tt.code)
		})
	}
}

func TestBuild_AdjacentWindowsAllowed(t *testing.T) {
	_, err := Build(Params{
		Config: Config{AvailableHours: map[string][]HoursConfig{
			"tuesday": {{Start: "09:00", End: "12:00"}, {Start: "12:00", End: "24:00"}},
		}},
		SlotMinutes: 60,
	})
	require.NoError(t, err)
}

func TestBuild_DateRangeFromTimestampUsesHostZone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	rs, err := Build(Params{
		Config:      Config{DateRange: DateRangeConfig{Start: "2026-03-02T03:00:00Z"}},
		SlotMinutes: 30,
		Location:    loc,
	})
	require.NoError(t, err)
	assert.Equal(t, civil.Date{Year: 2026, Month: time.March, Day: 1}, rs.DateRange().Start)
	assert.True(t, rs.DateRange().End.IsZero())
}

func TestRuleSet_HoursReturnsCopy(t *testing.T) {
	rs, err := Build(Params{Config: DefaultConfig(), SlotMinutes: 30})
	require.NoError(t, err)

	h := rs.Hours(time.Monday)
	h[0].Start = 0
	assert.Equal(t, 9*60, rs.Hours(time.Monday)[0].Start)
}
