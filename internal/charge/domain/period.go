package domain

import (
	"strings"
	"time"
)

const periodLayout = "2006-01"

// ParsePeriod returns the first instant of a "YYYY-MM" period and the last
// instant of its final day.
func ParsePeriod(period string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(periodLayout, strings.TrimSpace(period), time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, ErrInvalidPeriod
	}
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return start, end, nil
}

// PeriodOf formats t as a "YYYY-MM" period label.
func PeriodOf(t time.Time) string {
	return t.UTC().Format(periodLayout)
}

// MonthlyDueDate returns day of the period's month, clamped to its last day.
func MonthlyDueDate(periodStart time.Time, day int) time.Time {
	if day < 1 {
		day = 1
	}
	lastDay := periodStart.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(periodStart.Year(), periodStart.Month(), day, 0, 0, 0, 0, time.UTC)
}
