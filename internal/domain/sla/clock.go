// Package sla derives the SLA standing of a work item from its deadline and pause history.
// Nothing in this package reads the wall clock; callers pass now explicitly.
package sla

import (
	"math"
	"time"
)

// Status is the SLA standing of a work item.
type Status string

const (
	StatusOnTime  Status = "ON_TIME"
	StatusAtRisk  Status = "AT_RISK"
	StatusOverdue Status = "OVERDUE"
)

// AtRiskPercent is the remaining share of the SLA window below which an item is at risk.
const AtRiskPercent = 25.0

// Reading is the result of evaluating the clock at a given instant.
type Reading struct {
	AdjustedDeadline time.Time
	Remaining        time.Duration // negative once overdue
	PercentRemaining float64
	Status           Status
}

// RemainingMinutes floors Remaining to whole minutes, so it never overstates time left.
func (r Reading) RemainingMinutes() int64 {
	return int64(math.Floor(r.Remaining.Minutes()))
}

// AdjustedDeadline shifts the deadline by the time the item spent paused.
func AdjustedDeadline(deadline time.Time, accumulatedPaused time.Duration) time.Time {
	return deadline.Add(accumulatedPaused)
}

// Compute evaluates the clock. totalWindow is the original deadline minus item start as
// persisted when the deadline was set; it is never reconstructed from now.
func Compute(deadline time.Time, accumulatedPaused, totalWindow time.Duration, now time.Time) Reading {
	adjusted := AdjustedDeadline(deadline, accumulatedPaused)
	remaining := adjusted.Sub(now)

	var percent float64
	if totalWindow > 0 {
		percent = math.Max(0, float64(remaining)/float64(totalWindow)*100)
	}

	status := StatusOnTime
	switch {
	case remaining <= 0:
		status = StatusOverdue
	case totalWindow <= 0:
		// Without a known window only overdue is decidable.
	case percent < AtRiskPercent:
		status = StatusAtRisk
	}

	return Reading{
		AdjustedDeadline: adjusted,
		Remaining:        remaining,
		PercentRemaining: percent,
		Status:           status,
	}
}
