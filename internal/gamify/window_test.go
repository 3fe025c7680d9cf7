package gamify

import (
	"testing"
	"time"
)

func TestWindowForDaily(t *testing.T) {
	now := time.Date(2026, 3, 10, 17, 30, 0, 0, time.UTC)
	start, end := WindowFor(Daily, now)
	if !start.Equal(date(2026, 3, 10)) {
		t.Fatalf("start = %v", start)
	}
	if !end.Equal(date(2026, 3, 11)) {
		t.Fatalf("end = %v", end)
	}
}

func TestWindowForWeeklyStartsMonday(t *testing.T) {
	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{name: "midweek", now: date(2026, 3, 11), want: date(2026, 3, 9)},   // Wednesday
		{name: "monday itself", now: date(2026, 3, 9), want: date(2026, 3, 9)},
		{name: "sunday belongs to prior monday", now: date(2026, 3, 15), want: date(2026, 3, 9)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end := WindowFor(Weekly, tc.now)
			if !start.Equal(tc.want) {
				t.Fatalf("start = %v, want %v", start, tc.want)
			}
			if !end.Equal(tc.want.AddDate(0, 0, 7)) {
				t.Fatalf("end = %v", end)
			}
		})
	}
}

func TestWindowForMonthly(t *testing.T) {
	start, end := WindowFor(Monthly, date(2026, 2, 14))
	if !start.Equal(date(2026, 2, 1)) || !end.Equal(date(2026, 3, 1)) {
		t.Fatalf("window = [%v, %v)", start, end)
	}
}

func TestInWindowBoundaries(t *testing.T) {
	start, end := WindowFor(Daily, date(2026, 3, 10))
	if !InWindow(start, start, end) {
		t.Fatal("start must be inside the half-open window")
	}
	if InWindow(end, start, end) {
		t.Fatal("end must be outside the half-open window")
	}
	if InWindow(end.Add(-time.Nanosecond), start, end) != true {
		t.Fatal("instant before end must be inside")
	}
}

func TestValidTimeFrame(t *testing.T) {
	for _, tf := range []TimeFrame{Daily, Weekly, Monthly} {
		if !ValidTimeFrame(tf) {
			t.Fatalf("ValidTimeFrame(%q) = false", tf)
		}
	}
	if ValidTimeFrame("yearly") {
		t.Fatal("ValidTimeFrame(yearly) = true")
	}
}
