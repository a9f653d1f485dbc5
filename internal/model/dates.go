package model

import "time"

// DateOf returns the civil date of t in loc, stored as midnight UTC so every
// date-only column compares the same way regardless of the database.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date builds a date-only value.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts calendar days from a to b; negative when b is before a.
func DaysBetween(a, b time.Time) int {
	a = DateOf(a, time.UTC)
	b = DateOf(b, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
