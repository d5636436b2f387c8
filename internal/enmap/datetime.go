package enmap

import (
	"fmt"
	"strings"
	"time"
)

// Time formats seen in EnMAP KML exports, most precise first. Date and time
// arrive as separate fields and are joined with a space; startTime/stopTime
// are ISO 8601.
var timeFormats = []string{
	"2006-01-02 15:04:05.000000",    // date + time with microseconds
	"2006-01-02 15:04:05.000",       // date + time with milliseconds
	"2006-01-02 15:04:05.999999999", // any fractional precision
	"2006-01-02 15:04:05",           // date + time without fraction
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z",
	"2006-01-02T15:04:05.999999999",
}

// ParseTime parses an EnMAP timestamp and returns it in UTC, truncated to the
// millisecond. Timestamps without a zone are UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}

	var lastErr error
	for _, format := range timeFormats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t.UTC().Truncate(time.Millisecond), nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("failed to parse EnMAP time %q: %w", s, lastErr)
}

// ParseDateTime joins separate date and time fields and parses them.
func ParseDateTime(date, clock string) (time.Time, error) {
	date, clock = strings.TrimSpace(date), strings.TrimSpace(clock)
	if date == "" || clock == "" {
		return time.Time{}, fmt.Errorf("date %q and time %q are both required", date, clock)
	}
	return ParseTime(date + " " + strings.TrimSuffix(clock, "Z"))
}
