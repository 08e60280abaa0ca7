package availability

import (
	"slices"
	"time"
)

// Interval is a half-open span [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func NewInterval(start, end time.Time) (Interval, error) {
	iv := Interval{Start: start, End: end}
	if err := iv.validate(); err != nil {
		return Interval{}, err
	}
	return iv, nil
}

func (iv Interval) Valid() bool {
	return iv.Start.Before(iv.End)
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

func (iv Interval) validate() error {
	if !iv.Valid() {
		return validationError(CodeInvalidInterval, "start %s must be before end %s", iv.Start.Format(time.RFC3339), iv.End.Format(time.RFC3339))
	}
	return nil
}

// Overlaps reports whether a and b share any instant. Touching intervals do not overlap.
func Overlaps(a, b Interval) (bool, error) {
	if err := a.validate(); err != nil {
		return false, err
	}
	if err := b.validate(); err != nil {
		return false, err
	}
	return a.overlaps(b), nil
}

func (iv Interval) overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Pad widens iv by minutes on both sides.
func Pad(iv Interval, minutes int) (Interval, error) {
	if err := iv.validate(); err != nil {
		return Interval{}, err
	}
	if minutes < 0 {
		return Interval{}, validationError(CodeInvalidParameter, "padding must be non-negative, got %d", minutes)
	}
	return iv.pad(minutes), nil
}

func (iv Interval) pad(minutes int) Interval {
	d := time.Duration(minutes) * time.Minute
	return Interval{Start: iv.Start.Add(-d), End: iv.End.Add(d)}
}

// SubtractAll removes every cut from base and returns the remaining pieces in ascending order.
func SubtractAll(base Interval, cuts []Interval) ([]Interval, error) {
	if err := base.validate(); err != nil {
		return nil, err
	}
	for _, c := range cuts {
		if err := c.validate(); err != nil {
			return nil, err
		}
	}
	return base.subtract(cuts), nil
}

func (iv Interval) subtract(cuts []Interval) []Interval {
	sorted := slices.Clone(cuts)
	slices.SortFunc(sorted, func(a, b Interval) int {
		return a.Start.Compare(b.Start)
	})

	out := make([]Interval, 0, 1)
	cursor := iv.Start
	for _, c := range sorted {
		if !c.End.After(cursor) {
			continue
		}
		if !c.Start.Before(iv.End) {
			break
		}
		if c.Start.After(cursor) {
			out = append(out, Interval{Start: cursor, End: c.Start})
		}
		cursor = c.End
		if !cursor.Before(iv.End) {
			return out
		}
	}
	if cursor.Before(iv.End) {
		out = append(out, Interval{Start: cursor, End: iv.End})
	}
	return out
}
