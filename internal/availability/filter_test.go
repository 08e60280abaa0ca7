package availability

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func monday(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
}

func active(h1, m1, h2, m2 int) Existing {
	return Existing{FormID: testFormID, Start: monday(h1, m1), End: monday(h2, m2), Active: true}
}

func mondayMorning(t *testing.T, mutate func(c *Config)) RuleSet {
	cfg := Config{AvailableHours: map[string][]HoursConfig{"monday": {{Start: "09:00", End: "12:00"}}}}
	if mutate != nil {
		mutate(&cfg)
	}
	return mustRuleSet(t, cfg, 60, time.UTC)
}

func available(rs RuleSet, existing []Existing, busy []Interval) []string {
	return starts(slices.Collect(Filter(Generate(rs, oneDay(day(2026, time.March, 2)), longAgo), existing, busy, rs)))
}

func TestFilter_MondayScenario(t *testing.T) {
	rs := mondayMorning(t, nil)
	assert.Equal(t, []string{
		"2026-03-02 09:00-10:00",
		"2026-03-02 10:00-11:00",
		"2026-03-02 11:00-12:00",
	}, available(rs, nil, nil))
}

func TestFilter_ExistingAppointments(t *testing.T) {
	otherForm := uuid.MustParse("00000000-0000-0000-0000-0000000000f2")

	tests := []struct {
		name     string
		mutate   func(c *Config)
		existing []Existing
		want     []string
	}{
		{
			name:     "active overlap",
			existing: []Existing{active(10, 0, 11, 0)},
			want:     []string{"2026-03-02 09:00-10:00", "2026-03-02 11:00-12:00"},
		},
		{
			name:     "inactive ignored",
			existing: []Existing{{FormID: testFormID, Start: monday(10, 0), End: monday(11, 0)}},
			want:     []string{"2026-03-02 09:00-10:00", "2026-03-02 10:00-11:00", "2026-03-02 11:00-12:00"},
		},
		{
			name:     "other form ignored",
			existing: []Existing{{FormID: otherForm, Start: monday(10, 0), End: monday(11, 0), Active: true}},
			want:     []string{"2026-03-02 09:00-10:00", "2026-03-02 10:00-11:00", "2026-03-02 11:00-12:00"},
		},
		{
			name:     "buffer blocks neighbours",
			mutate:   func(c *Config) { c.BufferTime = 15 },
			existing: []Existing{active(10, 0, 11, 0)},
			want:     []string{},
		},
		{
			name:     "buffer clears adjacent when gap is wide enough",
			mutate:   func(c *Config) { c.BufferTime = 15 },
			existing: []Existing{active(12, 15, 13, 0)},
			want:     []string{"2026-03-02 09:00-10:00", "2026-03-02 10:00-11:00", "2026-03-02 11:00-12:00"},
		},
		{
			name:     "daily limit excludes whole day",
			mutate:   func(c *Config) { c.DailyLimit = intPtr(1) },
			existing: []Existing{active(16, 0, 17, 0)},
			want:     []string{},
		},
		{
			name:     "daily limit not reached",
			mutate:   func(c *Config) { c.DailyLimit = intPtr(2) },
			existing: []Existing{active(9, 0, 10, 0)},
			want:     []string{"2026-03-02 10:00-11:00", "2026-03-02 11:00-12:00"},
		},
		{
			name:   "daily limit counts only that day",
			mutate: func(c *Config) { c.DailyLimit = intPtr(1) },
			existing: []Existing{{
				FormID: testFormID,
				Start:  time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC),
				End:    time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC),
				Active: true,
			}},
			want: []string{"2026-03-02 09:00-10:00", "2026-03-02 10:00-11:00", "2026-03-02 11:00-12:00"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := mondayMorning(t, tt.mutate)
			assert.Equal(t, tt.want, available(rs, tt.existing, nil))
		})
	}
}

func TestFilter_BusyIntervalsInvalidateWholeSlot(t *testing.T) {
	rs := mondayMorning(t, nil)
	busy := []Interval{
		{Start: monday(9, 50), End: monday(9, 55)},
		{Start: monday(11, 0), End: monday(11, 1)},
	}
	assert.Equal(t, []string{"2026-03-02 10:00-11:00"}, available(rs, nil, busy))
}

func TestFilter_BusyIsNotPadded(t *testing.T) {
	rs := mondayMorning(t, func(c *Config) { c.BufferTime = 30 })
	busy := []Interval{{Start: monday(10, 0), End: monday(11, 0)}}
	assert.Equal(t, []string{"2026-03-02 09:00-10:00", "2026-03-02 11:00-12:00"}, available(rs, nil, busy))
}

func TestFilter_PreservesOrderAndSubset(t *testing.T) {
	rs := mustRuleSet(t, DefaultConfig(), 30, time.UTC)
	q := DateRange{Start: day(2026, time.March, 2), End: day(2026, time.March, 6)}
	all := slices.Collect(Generate(rs, q, longAgo))
	kept := slices.Collect(Filter(slices.Values(all), []Existing{active(10, 0, 11, 0)}, nil, rs))

	require.Len(t, kept, len(all)-2)
	j := 0
	for _, s := range all {
		if j < len(kept) && s == kept[j] {
			j++
		}
	}
	assert.Equal(t, len(kept), j, "filter output must be an ordered subsequence of its input")
}

func conflictReason(t *testing.T, err error) ConflictReason {
	t.Helper()
	var cErr *BookingConflictError
	require.True(t, errors.As(err, &cErr), "error = %v, want *BookingConflictError", err)
	return cErr.Reason
}

func TestCheckSlot_Reasons(t *testing.T) {
	slot := Slot{FormID: testFormID, Start: monday(10, 0), End: monday(11, 0)}

	t.Run("clear", func(t *testing.T) {
		rs := mondayMorning(t, nil)
		assert.NoError(t, CheckSlot(slot, nil, nil, rs, longAgo))
	})
	t.Run("overlap", func(t *testing.T) {
		rs := mondayMorning(t, func(c *Config) { c.BufferTime = 30 })
		err := CheckSlot(slot, []Existing{active(11, 30, 12, 0), active(10, 0, 11, 0)}, nil, rs, longAgo)
		assert.Equal(t, ReasonOverlap, conflictReason(t, err))
	})
	t.Run("buffer", func(t *testing.T) {
		rs := mondayMorning(t, func(c *Config) { c.BufferTime = 10 })
		err := CheckSlot(slot, []Existing{active(11, 5, 12, 0)}, nil, rs, longAgo)
		assert.Equal(t, ReasonBuffer, conflictReason(t, err))
	})
	t.Run("busy calendar", func(t *testing.T) {
		rs := mondayMorning(t, nil)
		err := CheckSlot(slot, nil, []Interval{{Start: monday(10, 30), End: monday(10, 45)}}, rs, longAgo)
		assert.Equal(t, ReasonBusyCalendar, conflictReason(t, err))
	})
	t.Run("daily limit", func(t *testing.T) {
		rs := mondayMorning(t, func(c *Config) { c.DailyLimit = intPtr(1) })
		err := CheckSlot(slot, []Existing{active(15, 0, 16, 0)}, nil, rs, longAgo)
		assert.Equal(t, ReasonDailyLimit, conflictReason(t, err))
	})
	t.Run("stale notice", func(t *testing.T) {
		rs := mondayMorning(t, func(c *Config) { c.MinimumNotice = 24 })
		now := time.Date(2026, 3, 1, 10, 0, 1, 0, time.UTC)
		err := CheckSlot(slot, nil, nil, rs, now)
		assert.Equal(t, ReasonStaleNotice, conflictReason(t, err))

		now = time.Date(2026, 3, 1, 9, 59, 59, 0, time.UTC)
		assert.NoError(t, CheckSlot(slot, nil, nil, rs, now))
	})
	t.Run("touching neighbour is fine", func(t *testing.T) {
		rs := mondayMorning(t, nil)
		assert.NoError(t, CheckSlot(slot, []Existing{active(9, 0, 10, 0), active(11, 0, 12, 0)}, nil, rs, longAgo))
	})
}

func TestCheckSlot_NoticeExample(t *testing.T) {
	rs := mustRuleSet(t, Config{MinimumNotice: 24}, 60, time.UTC)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	early := Slot{FormID: testFormID, Start: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), End: time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)}
	assert.Equal(t, ReasonStaleNotice, conflictReason(t, CheckSlot(early, nil, nil, rs, now)))

	late := Slot{FormID: testFormID, Start: time.Date(2024, 1, 2, 10, 0, 1, 0, time.UTC), End: time.Date(2024, 1, 2, 11, 0, 1, 0, time.UTC)}
	assert.NoError(t, CheckSlot(late, nil, nil, rs, now))
}
