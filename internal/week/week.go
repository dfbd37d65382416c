// Package week provides the Monday..Sunday week arithmetic the reporting
// pipeline is built on. All dates are UTC-midnight time.Time values; only
// the calendar date component is meaningful.
package week

import "time"

// Layout is the ISO date layout used everywhere dates cross the store or
// HTTP boundary.
const Layout = "2006-01-02"

// Date returns the UTC-midnight time for a calendar date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Truncate drops the time-of-day component of t, keeping the calendar date.
func Truncate(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), t.Day())
}

// Parse parses an ISO date string.
func Parse(s string) (time.Time, error) {
	return time.Parse(Layout, s)
}

// Format renders d as an ISO date string.
func Format(d time.Time) string {
	return d.Format(Layout)
}

// FormatPtr renders an optional date, returning "" for nil.
func FormatPtr(d *time.Time) string {
	if d == nil {
		return ""
	}
	return Format(*d)
}

// LastSunday returns the most recent Sunday on or before d.
func LastSunday(d time.Time) time.Time {
	d = Truncate(d)
	return d.AddDate(0, 0, -int(d.Weekday()))
}

// Bounds returns the Monday..Sunday (inclusive) bounds of the week
// containing d.
func Bounds(d time.Time) (start, end time.Time) {
	end = NextSunday(d)
	return end.AddDate(0, 0, -6), end
}

// NextSunday returns the first Sunday on or after d.
func NextSunday(d time.Time) time.Time {
	d = Truncate(d)
	return d.AddDate(0, 0, (7-int(d.Weekday()))%7)
}

// DaysBetween returns the whole days from a to b (positive when b is later).
func DaysBetween(a, b time.Time) int {
	return int(Truncate(b).Sub(Truncate(a)).Hours() / 24)
}

// Sundays returns every Sunday in [from, to]: the first Sunday on or after
// from through the last Sunday on or before to. Empty when the range holds
// no Sunday.
func Sundays(from, to time.Time) []time.Time {
	first := NextSunday(from)
	last := LastSunday(to)
	if first.After(last) {
		return nil
	}
	var out []time.Time
	for d := first; !d.After(last); d = d.AddDate(0, 0, 7) {
		out = append(out, d)
	}
	return out
}
