package footprint

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTimeWindow(t *testing.T) {
	tests := []struct {
		name            string
		year, month, dy int
		wantStart       time.Time
		wantEnd         time.Time
		wantString      string
		wantErr         bool
	}{
		{
			name:       "year",
			year:       2024,
			wantStart:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			wantString: "2024",
		},
		{
			name:       "month",
			year:       2024,
			month:      2,
			wantStart:  time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			wantString: "2024-02",
		},
		{
			name:       "december rolls over",
			year:       2023,
			month:      12,
			wantStart:  time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			wantString: "2023-12",
		},
		{
			name:       "leap day",
			year:       2024,
			month:      2,
			dy:         29,
			wantStart:  time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
			wantEnd:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			wantString: "2024-02-29",
		},
		{name: "zero year", year: 0, wantErr: true},
		{name: "month 13", year: 2024, month: 13, wantErr: true},
		{name: "day without month", year: 2024, dy: 3, wantErr: true},
		{name: "february 30", year: 2024, month: 2, dy: 30, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewTimeWindow(tt.year, tt.month, tt.dy)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidTimeWindow), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, w.Start)
			assert.Equal(t, tt.wantEnd, w.End)
			assert.Equal(t, tt.wantString, w.String())
		})
	}
}

func TestTimeWindow_Contains(t *testing.T) {
	w, err := NewTimeWindow(2024, 2, 0)
	require.NoError(t, err)

	assert.True(t, w.Contains(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)), "start is inclusive")
	assert.True(t, w.Contains(time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC)))
	assert.False(t, w.Contains(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)), "end is exclusive")
	assert.False(t, w.Contains(time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)))

	assert.True(t, w.ContainsDay(Day{2024, time.February, 10}))
	assert.False(t, w.ContainsDay(Day{2024, time.March, 1}))
}

func TestDay(t *testing.T) {
	local := time.FixedZone("UTC+2", 2*60*60)
	d := DayOf(time.Date(2024, 2, 16, 1, 0, 0, 0, local))
	assert.Equal(t, Day{2024, time.February, 15}, d, "days are taken in UTC")
	assert.Equal(t, "2024-02-15", d.String())
	assert.True(t, d.Before(Day{2024, time.February, 16}))
	assert.False(t, d.Before(d))
	assert.True(t, Day{}.IsZero())
}
