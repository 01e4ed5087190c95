package services

import (
	"math"
	"time"

	"library-circulation/internal/core/domain"
)

// ComputeFine returns the fine accrued by a loan due at dueDate when
// assessed at `at`. Overdue time is counted in whole calendar days (UTC);
// the policy's grace days are free, every later day costs FineRate.
func ComputeFine(dueDate, at time.Time, policy domain.Policy) float64 {
	if !at.After(dueDate) {
		return 0
	}

	chargeable := calendarDaysBetween(dueDate, at) - policy.GraceDays
	if chargeable <= 0 {
		return 0
	}
	return roundCents(float64(chargeable) * policy.FineRate)
}

func calendarDaysBetween(from, to time.Time) int {
	f := truncateDay(from)
	t := truncateDay(to)
	return int(t.Sub(f).Hours() / 24)
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
