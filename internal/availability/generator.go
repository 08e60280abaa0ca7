package availability

import (
	"iter"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

type Slot struct {
	FormID uuid.UUID
	Start  time.Time
	End    time.Time
}

func (s Slot) Interval() Interval {
	return Interval{Start: s.Start, End: s.End}
}

// Generate yields candidate slots for the days of q that fall inside the rule set's
// date range, ascending by start. Slots starting before now plus the minimum notice
// are skipped. A side of q left zero takes the rule set's bound; a range that stays
// unbounded yields nothing.
//
// Ranging over the result twice recomputes the same sequence.
func Generate(rs RuleSet, q DateRange, now time.Time) iter.Seq[Slot] {
	return func(yield func(Slot) bool) {
		from, to, ok := rs.effectiveRange(q)
		if !ok {
			return
		}
		earliest := now.Add(rs.notice)
		for d := from; !d.After(to); d = d.AddDays(1) {
			for _, s := range rs.daySlots(d) {
				if s.Start.Before(earliest) {
					continue
				}
				if !yield(s) {
					return
				}
			}
		}
	}
}

func (rs RuleSet) effectiveRange(q DateRange) (civil.Date, civil.Date, bool) {
	from, to := q.Start, q.End
	if from.IsZero() || (!rs.dateRange.Start.IsZero() && rs.dateRange.Start.After(from)) {
		from = rs.dateRange.Start
	}
	if to.IsZero() || (!rs.dateRange.End.IsZero() && rs.dateRange.End.Before(to)) {
		to = rs.dateRange.End
	}
	if from.IsZero() || to.IsZero() || from.After(to) {
		return civil.Date{}, civil.Date{}, false
	}
	return from, to, true
}

// daySlots lays the slot grid over every window of d, ignoring notice.
func (rs RuleSet) daySlots(d civil.Date) []Slot {
	windows := rs.hours[d.In(time.UTC).Weekday()]
	if len(windows) == 0 {
		return nil
	}
	var out []Slot
	for _, w := range windows {
		start := time.Date(d.Year, d.Month, d.Day, w.Start/60, w.Start%60, 0, 0, rs.loc)
		end := time.Date(d.Year, d.Month, d.Day, w.End/60, w.End%60, 0, 0, rs.loc)
		for t := start; !t.Add(rs.slotDuration).After(end); t = t.Add(rs.slotDuration) {
			out = append(out, Slot{FormID: rs.formID, Start: t, End: t.Add(rs.slotDuration)})
		}
	}
	return out
}

// Offers reports whether iv is exactly one of the grid slots of its host-timezone
// day inside the date range. Minimum notice is not considered.
func (rs RuleSet) Offers(iv Interval) bool {
	d := rs.DayOf(iv.Start)
	if !rs.dateRange.Contains(d) {
		return false
	}
	for _, s := range rs.daySlots(d) {
		if s.Start.Equal(iv.Start) && s.End.Equal(iv.End) {
			return true
		}
	}
	return false
}
