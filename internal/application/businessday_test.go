package application_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/gitactivity/internal/application"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCalendar_BusinessHoursBetween_HolidayWeek(t *testing.T) {
	cal := application.NewCalendar(time.UTC, "2024-05-01")

	hours, ok := cal.BusinessHoursBetween(date(2024, 4, 29), date(2024, 5, 3))
	require.True(t, ok)
	assert.InDelta(t, 72.0, hours, 1e-9)

	days, ok := cal.BusinessDaysBetween(date(2024, 4, 29), date(2024, 5, 3))
	require.True(t, ok)
	assert.Equal(t, 3, days)
}

func TestCalendar_BusinessDaysBetween_SameInstantIsZero(t *testing.T) {
	cal := application.NewCalendar(time.UTC)
	at := time.Date(2024, 4, 30, 13, 45, 0, 0, time.UTC)

	days, ok := cal.BusinessDaysBetween(at, at)
	require.True(t, ok)
	assert.Equal(t, 0, days)
}

func TestCalendar_BusinessDaysBetween_StartAfterEndIsZero(t *testing.T) {
	cal := application.NewCalendar(time.UTC)

	days, ok := cal.BusinessDaysBetween(date(2024, 5, 10), date(2024, 5, 1))
	require.True(t, ok)
	assert.Equal(t, 0, days)
}

func TestCalendar_BusinessDaysBetween_NeverNegative(t *testing.T) {
	cal := application.NewCalendar(time.UTC, "2024-12-25", "2024-12-26")
	start := date(2024, 12, 1)

	for i := 0; i < 60; i++ {
		end := start.AddDate(0, 0, i)
		days, ok := cal.BusinessDaysBetween(start, end)
		require.True(t, ok)
		assert.GreaterOrEqual(t, days, 0, "offset %d", i)
	}
}

func TestCalendar_UnknownInputs(t *testing.T) {
	cal := application.NewCalendar(time.UTC)

	_, ok := cal.BusinessHoursBetween(time.Time{}, date(2024, 5, 1))
	assert.False(t, ok)

	_, ok = cal.BusinessDaysBetween(date(2024, 5, 1), time.Time{})
	assert.False(t, ok)
}

func TestCalendar_WeekendExcluded(t *testing.T) {
	cal := application.NewCalendar(time.UTC)

	// Friday 00:00 -> Monday 00:00 covers one business day.
	days, ok := cal.BusinessDaysBetween(date(2024, 5, 3), date(2024, 5, 6))
	require.True(t, ok)
	assert.Equal(t, 1, days)
}

func TestCalendar_PartialDays(t *testing.T) {
	cal := application.NewCalendar(time.UTC)
	start := time.Date(2024, 4, 29, 18, 0, 0, 0, time.UTC)
	end := time.Date(2024, 4, 30, 6, 0, 0, 0, time.UTC)

	hours, ok := cal.BusinessHoursBetween(start, end)
	require.True(t, ok)
	assert.InDelta(t, 12.0, hours, 1e-9)
}

func TestCalendar_Timezone(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	cal := application.NewCalendar(tokyo)

	// Saturday 00:00 in Tokyo is still Friday in UTC; none of it counts.
	start := time.Date(2024, 5, 3, 15, 0, 0, 0, time.UTC)
	end := time.Date(2024, 5, 4, 15, 0, 0, 0, time.UTC)

	hours, ok := cal.BusinessHoursBetween(start, end)
	require.True(t, ok)
	assert.InDelta(t, 0.0, hours, 1e-9)
}

func TestNormalizeHolidayDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2024-05-01", "2024-05-01", true},
		{" 2024-05-01 ", "2024-05-01", true},
		{"2024-05-01T00:00:00Z", "2024-05-01", true},
		{"May 1, 2024", "2024-05-01", true},
		{"1 May 2024", "2024-05-01", true},
		{"2024/05/01", "2024-05-01", true},
		{"Labour day", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := application.NormalizeHolidayDate(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewCalendar_DropsUnparseable(t *testing.T) {
	cal := application.NewCalendar(time.UTC, "2024-05-01", "not a date", "May 1, 2024")
	assert.Equal(t, 1, cal.HolidayCount())
	assert.False(t, cal.IsBusinessDay(date(2024, 5, 1)))
}
