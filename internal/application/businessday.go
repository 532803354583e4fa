package application

import (
	"log/slog"
	"strings"
	"time"
)

// isoDate is the normalized holiday key format.
const isoDate = "2006-01-02"

// holidayLayouts are the date formats accepted for holiday strings, tried in order.
var holidayLayouts = []string{
	isoDate,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2 Jan 2006",
	"Monday, January 2, 2006",
	"Mon, Jan 2, 2006",
}

// Calendar answers business-day questions for one timezone and holiday set.
// Saturdays, Sundays and holidays are non-business days.
type Calendar struct {
	loc      *time.Location
	holidays map[string]struct{}
}

// NewCalendar builds a Calendar for loc (UTC when nil). Holiday strings may be
// ISO dates or free text; strings that cannot be parsed are logged and dropped.
func NewCalendar(loc *time.Location, holidays ...string) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	cal := Calendar{loc: loc, holidays: make(map[string]struct{}, len(holidays))}
	for _, raw := range holidays {
		key, ok := NormalizeHolidayDate(raw)
		if !ok {
			slog.Warn("dropping unparseable holiday date", "value", raw)
			continue
		}
		cal.holidays[key] = struct{}{}
	}
	return cal
}

// NormalizeHolidayDate converts a holiday string to YYYY-MM-DD.
func NormalizeHolidayDate(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	for _, layout := range holidayLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(isoDate), true
		}
	}
	return "", false
}

// Location returns the calendar's timezone.
func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// HolidayCount returns the number of distinct holidays.
func (c Calendar) HolidayCount() int {
	return len(c.holidays)
}

// IsBusinessDay reports whether the local calendar day containing t is a
// weekday that is not a holiday.
func (c Calendar) IsBusinessDay(t time.Time) bool {
	local := t.In(c.Location())
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.holidays[local.Format(isoDate)]
	return !holiday
}

// BusinessHoursBetween returns the hours of [start, end] that fall on business
// days. A zero start or end is unknown and yields ok=false. start after end
// yields 0.
func (c Calendar) BusinessHoursBetween(start, end time.Time) (hours float64, ok bool) {
	if start.IsZero() || end.IsZero() {
		return 0, false
	}
	if !start.Before(end) {
		return 0, true
	}

	loc := c.Location()
	s := start.In(loc)
	e := end.In(loc)

	var total time.Duration
	day := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, loc)
	for day.Before(e) {
		next := day.AddDate(0, 0, 1)
		if c.IsBusinessDay(day) {
			from := maxTime(day, s)
			to := minTime(next, e)
			if to.After(from) {
				total += to.Sub(from)
			}
		}
		day = next
	}
	return total.Hours(), true
}

// BusinessDaysBetween returns the number of whole business days (24 business
// hours each) between start and end. Unknown inputs yield ok=false.
func (c Calendar) BusinessDaysBetween(start, end time.Time) (days int, ok bool) {
	hours, ok := c.BusinessHoursBetween(start, end)
	if !ok {
		return 0, false
	}
	// Tolerate float drift at exact day boundaries.
	return int((hours + 1e-9) / 24), true
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
