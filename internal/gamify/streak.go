// Package gamify holds the pure state-transition rules for streaks, quest
// windows, XP levels, and badge thresholds. It performs no I/O; the store
// applies these transitions inside database transactions.
package gamify

import "time"

// Streak is the per-user streak state as read from storage.
type Streak struct {
	Current       int
	Longest       int
	FreezeCredits int
	// LastActivity is the user-local date of the last counted activity,
	// zero if the user has never been active.
	LastActivity time.Time
}

// StreakChange is the result of advancing a streak by one activity day.
type StreakChange struct {
	Streak
	CreditsSpent int
	Extended     bool
	Frozen       bool
	Reset        bool
	Counted      bool
}

// MaxFreezeCredits caps how many freeze credits a user can hold.
const MaxFreezeCredits = 3

// AdvanceStreak applies one qualifying activity on the user-local day to the
// streak state. Same-day and out-of-order activity are no-ops. A gap of k
// missed days is bridged only when the user holds at least k freeze credits;
// bridging spends exactly k credits. Otherwise the streak resets to 1 and no
// credits are spent.
func AdvanceStreak(s Streak, day time.Time) StreakChange {
	day = DateOnly(day)
	change := StreakChange{Streak: s}
	change.LastActivity = DateOnly(s.LastActivity)

	if s.LastActivity.IsZero() {
		change.Current = 1
		change.LastActivity = day
		change.Counted = true
		change.Longest = maxInt(change.Longest, change.Current)
		return change
	}

	// Compare calendar days, not instants. The stored date scans back at UTC
	// midnight while day arrives at the user's local midnight, so an instant
	// comparison would treat the same local day as later for zones behind UTC.
	gap := daysBetween(DateOnly(s.LastActivity), day)
	if gap <= 0 {
		return change
	}

	switch {
	case gap == 1:
		change.Current = s.Current + 1
		change.Extended = true
	case gap-1 <= s.FreezeCredits:
		change.Current = s.Current + 1
		change.FreezeCredits = s.FreezeCredits - (gap - 1)
		change.CreditsSpent = gap - 1
		change.Extended = true
		change.Frozen = true
	default:
		change.Current = 1
		change.Reset = true
	}

	change.LastActivity = day
	change.Counted = true
	change.Longest = maxInt(change.Longest, change.Current)
	return change
}

// DateOnly truncates a time to midnight of its calendar day, preserving the
// location.
func DateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// daysBetween counts calendar days from a to b (b after a). Using the date
// components avoids DST-length days miscounting as 0 or 2.
func daysBetween(a, b time.Time) int {
	utcA := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	utcB := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(utcB.Sub(utcA) / (24 * time.Hour))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
