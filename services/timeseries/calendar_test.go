package timeseries

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestTradingDays(t *testing.T) {
	days := TradingDays(day(2024, 1, 1), day(2024, 1, 31))
	assert.Len(t, days, 23)
	assert.Equal(t, day(2024, 1, 1), days[0])
	assert.Equal(t, day(2024, 1, 31), days[len(days)-1])

	assert.Empty(t, TradingDays(day(2024, 1, 6), day(2024, 1, 7)), "weekend only")
	assert.Len(t, TradingDays(day(2024, 1, 5), day(2024, 1, 5)), 1)
}

func TestPreviousTradingDay(t *testing.T) {
	assert.Equal(t, day(2024, 1, 5), PreviousTradingDay(day(2024, 1, 8)), "monday goes back to friday")
	assert.Equal(t, day(2024, 1, 5), PreviousTradingDay(day(2024, 1, 7)))
	assert.Equal(t, day(2024, 1, 9), PreviousTradingDay(day(2024, 1, 10)))
	assert.Equal(t, day(2024, 1, 5), LastTradingDayOnOrBefore(day(2024, 1, 6)))
	assert.Equal(t, day(2024, 1, 5), LastTradingDayOnOrBefore(day(2024, 1, 5)))
}

func TestCalendar_FreshnessTarget(t *testing.T) {
	ny := newYork(t)
	cal := NewCalendar(ny, 16*time.Hour)

	tests := []struct {
		name  string
		now   time.Time
		grace int
		want  time.Time
	}{
		{"trading day after close", time.Date(2024, 2, 5, 16, 30, 0, 0, ny), 1, day(2024, 2, 5)},
		{"trading day at close", time.Date(2024, 2, 5, 16, 0, 0, 0, ny), 1, day(2024, 2, 5)},
		{"trading day before close", time.Date(2024, 2, 5, 10, 0, 0, 0, ny), 1, day(2024, 2, 2)},
		{"saturday", time.Date(2024, 2, 3, 18, 0, 0, 0, ny), 1, day(2024, 2, 2)},
		{"two days grace", time.Date(2024, 2, 7, 10, 0, 0, 0, ny), 2, day(2024, 2, 5)},
		{"zero grace treated as one", time.Date(2024, 2, 7, 10, 0, 0, 0, ny), 0, day(2024, 2, 6)},
		// 01:00 UTC on Tuesday is still Monday evening in New York.
		{"utc clock after midnight", time.Date(2024, 2, 6, 1, 0, 0, 0, time.UTC), 1, day(2024, 2, 5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cal.FreshnessTarget(tt.now, tt.grace))
		})
	}
}

func TestCalendar_CloseTime(t *testing.T) {
	ny := newYork(t)
	cal := NewCalendar(ny, 16*time.Hour)
	got := cal.CloseTime(time.Date(2024, 7, 1, 9, 0, 0, 0, ny))
	assert.True(t, got.Equal(time.Date(2024, 7, 1, 20, 0, 0, 0, time.UTC)), got.String())
}
