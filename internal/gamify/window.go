package gamify

import "time"

// TimeFrame is the recurrence window of a quest.
type TimeFrame string

const (
	Daily   TimeFrame = "daily"
	Weekly  TimeFrame = "weekly"
	Monthly TimeFrame = "monthly"
)

// ValidTimeFrame reports whether tf is a known time frame.
func ValidTimeFrame(tf TimeFrame) bool {
	switch tf {
	case Daily, Weekly, Monthly:
		return true
	}
	return false
}

// WindowFor returns the half-open window [start, end) containing now for the
// given time frame. Daily windows run midnight to midnight, weekly windows are
// ISO weeks starting Monday, monthly windows are calendar months. All
// boundaries are taken in now's location.
func WindowFor(tf TimeFrame, now time.Time) (time.Time, time.Time) {
	switch tf {
	case Weekly:
		start := firstDayOfISOWeek(now)
		return start, start.AddDate(0, 0, 7)
	case Monthly:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return start, start.AddDate(0, 1, 0)
	default:
		start := DateOnly(now)
		return start, start.AddDate(0, 0, 1)
	}
}

// InWindow reports whether t falls inside [start, end).
func InWindow(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

// firstDayOfISOWeek walks back from now to the Monday of its ISO week.
func firstDayOfISOWeek(now time.Time) time.Time {
	day := DateOnly(now)
	for day.Weekday() != time.Monday {
		day = day.AddDate(0, 0, -1)
	}
	return day
}
