package clock

import (
	"testing"
	"time"
)

func TestDaysBetweenIgnoresTimeOfDay(t *testing.T) {
	due := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	now := time.Date(2026, 3, 11, 0, 1, 0, 0, time.UTC)
	if got := DaysBetween(due, now); got != 10 {
		t.Fatalf("expected 10 days, got %d", got)
	}
	if got := DaysBetween(now, due); got != -10 {
		t.Fatalf("expected -10 days, got %d", got)
	}
}

func TestFakeClockAdvanceDays(t *testing.T) {
	start := time.Date(2026, 1, 31, 8, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)
	c.AdvanceDays(1)
	if want := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC); !c.Now().Equal(want) {
		t.Fatalf("expected %v, got %v", want, c.Now())
	}
}
