package footprint

import (
	"fmt"
	"time"
)

// Granularity is the resolution a TimeWindow was declared at.
type Granularity int

const (
	// Year covers a whole calendar year.
	Year Granularity = iota
	// Month covers a whole calendar month.
	Month
	// Daily covers a single UTC day.
	Daily
)

// Day is a civil UTC date. It is comparable and used as an index key.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf returns the UTC day t falls on.
func DayOf(t time.Time) Day {
	y, m, d := t.UTC().Date()
	return Day{Year: y, Month: m, Day: d}
}

// Time returns midnight UTC at the start of the day.
func (d Day) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// IsZero reports whether the day is unset.
func (d Day) IsZero() bool {
	return d == Day{}
}

// Before reports whether d is strictly earlier than o.
func (d Day) Before(o Day) bool {
	return d.Time().Before(o.Time())
}

func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// TimeWindow is a half-open interval [Start, End) at year, month or day
// granularity.
type TimeWindow struct {
	Start       time.Time
	End         time.Time
	Granularity Granularity
}

// NewTimeWindow builds a window from a year and optional month and day.
// A zero month selects the whole year; a zero day selects the whole month.
// A day without a month is rejected.
func NewTimeWindow(year, month, day int) (TimeWindow, error) {
	if year < 1 {
		return TimeWindow{}, fmt.Errorf("year must be positive, got %d: %w", year, ErrInvalidTimeWindow)
	}
	if month < 0 || month > 12 {
		return TimeWindow{}, fmt.Errorf("month must be between 1 and 12, got %d: %w", month, ErrInvalidTimeWindow)
	}
	if day != 0 && month == 0 {
		return TimeWindow{}, fmt.Errorf("day %d given without a month: %w", day, ErrInvalidTimeWindow)
	}

	switch {
	case month == 0:
		start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return TimeWindow{Start: start, End: start.AddDate(1, 0, 0), Granularity: Year}, nil
	case day == 0:
		start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		return TimeWindow{Start: start, End: start.AddDate(0, 1, 0), Granularity: Month}, nil
	default:
		start := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		// time.Date normalises 2024-02-31 to March; reject instead.
		if start.Day() != day || int(start.Month()) != month {
			return TimeWindow{}, fmt.Errorf("%04d-%02d-%02d is not a calendar date: %w", year, month, day, ErrInvalidTimeWindow)
		}
		return TimeWindow{Start: start, End: start.AddDate(0, 0, 1), Granularity: Daily}, nil
	}
}

// Contains reports whether t lies in [Start, End).
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// ContainsDay reports whether the whole of day d lies in the window.
func (w TimeWindow) ContainsDay(d Day) bool {
	return w.Contains(d.Time())
}

func (w TimeWindow) String() string {
	switch w.Granularity {
	case Year:
		return fmt.Sprintf("%04d", w.Start.Year())
	case Month:
		return fmt.Sprintf("%04d-%02d", w.Start.Year(), int(w.Start.Month()))
	default:
		return w.Start.Format("2006-01-02")
	}
}
