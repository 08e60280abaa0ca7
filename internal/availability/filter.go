package availability

import (
	"iter"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// Existing is an appointment already on a form's book. Only active
// (pending or confirmed) appointments block slots.
type Existing struct {
	FormID uuid.UUID
	Start  time.Time
	End    time.Time
	Active bool
}

func (e Existing) Interval() Interval {
	return Interval{Start: e.Start, End: e.End}
}

type book struct {
	raw    []Interval
	padded []Interval
	perDay map[civil.Date]int
	busy   []Interval
}

func newBook(rs RuleSet, existing []Existing, busy []Interval) book {
	b := book{perDay: make(map[civil.Date]int)}
	for _, e := range existing {
		iv := e.Interval()
		if !e.Active || e.FormID != rs.formID || !iv.Valid() {
			continue
		}
		b.raw = append(b.raw, iv)
		b.padded = append(b.padded, iv.pad(rs.bufferMins))
		b.perDay[rs.DayOf(iv.Start)]++
	}
	for _, iv := range busy {
		if iv.Valid() {
			b.busy = append(b.busy, iv)
		}
	}
	return b
}

func (b book) conflict(rs RuleSet, iv Interval) (ConflictReason, bool) {
	for _, r := range b.raw {
		if iv.overlaps(r) {
			return ReasonOverlap, true
		}
	}
	for _, p := range b.padded {
		if iv.overlaps(p) {
			return ReasonBuffer, true
		}
	}
	if rest := iv.subtract(b.busy); len(rest) != 1 || !rest[0].Start.Equal(iv.Start) || !rest[0].End.Equal(iv.End) {
		return ReasonBusyCalendar, true
	}
	if limit, ok := rs.DailyLimit(); ok && b.perDay[rs.DayOf(iv.Start)] >= limit {
		return ReasonDailyLimit, true
	}
	return "", false
}

// Filter drops slots that collide with an active appointment (after buffer padding),
// with an external busy period, or that fall on a day already at the daily limit.
// Surviving slots keep their input order.
func Filter(slots iter.Seq[Slot], existing []Existing, busy []Interval, rs RuleSet) iter.Seq[Slot] {
	return func(yield func(Slot) bool) {
		b := newBook(rs, existing, busy)
		for s := range slots {
			if _, hit := b.conflict(rs, s.Interval()); hit {
				continue
			}
			if !yield(s) {
				return
			}
		}
	}
}

// CheckSlot validates a single requested slot against the latest book. It returns a
// *BookingConflictError naming the first failed rule, or nil.
func CheckSlot(slot Slot, existing []Existing, busy []Interval, rs RuleSet, now time.Time) error {
	iv := slot.Interval()
	if err := iv.validate(); err != nil {
		return err
	}
	if iv.Start.Before(now.Add(rs.notice)) {
		return &BookingConflictError{Reason: ReasonStaleNotice, Slot: iv}
	}
	if reason, hit := newBook(rs, existing, busy).conflict(rs, iv); hit {
		return &BookingConflictError{Reason: reason, Slot: iv}
	}
	return nil
}
