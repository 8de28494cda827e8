package workitem

import (
	"database/sql"
	"time"
)

// Status is the workflow state of a work item. The engine reads it but never writes it.
type Status string

const (
	StatusNew                Status = "NEW"         // unconfirmed, no assignee yet
	StatusAssigned           Status = "ASSIGNED"    // confirmed, not started
	StatusInProgress         Status = "IN_PROGRESS" // the reminder run starts here
	StatusNeedsClarification Status = "NEEDS_CLARIFICATION"
	StatusOnHold             Status = "ON_HOLD"
	StatusCompleted          Status = "COMPLETED"
	StatusCancelled          Status = "CANCELLED"
)

// IsTerminal reports whether the item left the workflow for good.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ActiveStatuses are the states the engine evaluates on every tick.
var ActiveStatuses = []Status{
	StatusNew,
	StatusAssigned,
	StatusInProgress,
	StatusNeedsClarification,
	StatusOnHold,
}

// WorkItem is a request tracked against an SLA.
type WorkItem struct {
	ID              int64
	CategoryID      int64
	Status          Status
	AssigneeID      sql.NullInt64
	RequesterID     sql.NullInt64
	CreatedAt       time.Time
	StartedAt       sql.NullTime // last time the item entered IN_PROGRESS
	StatusChangedAt time.Time
	LastEventAt     time.Time // last state-changing event of any kind
	Deadline        sql.NullTime
	// SLAWindow is deadline minus item start, persisted when the deadline is set.
	SLAWindow         time.Duration
	CompletedAt       sql.NullTime
	AccumulatedPaused time.Duration
	Paused            bool
}

// HasSLA reports whether the item carries a deadline the SLA clock can evaluate.
func (w *WorkItem) HasSLA() bool {
	return w.Deadline.Valid
}
