package utils

import "time"

// DayKey formats t's calendar day in loc as "yyyy-mm-dd". This is the single
// place the fabric decides how a slot's instant maps to a calendar day —
// every other package calls through here rather than formatting dates
// itself.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02")
}
