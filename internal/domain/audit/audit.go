package audit

import (
	"context"
	"time"
)

// Action is the decision being recorded.
type Action string

const (
	ActionReminderSent           Action = "reminder.sent"
	ActionReminderFailed         Action = "reminder.failed"
	ActionEscalationCreated      Action = "escalation.created"
	ActionEscalationSkipped      Action = "escalation.skipped"
	ActionEscalationFailed       Action = "escalation.failed"
	ActionNotificationCreated    Action = "notification.created"
	ActionNotificationSuppressed Action = "notification.suppressed"
	ActionNotificationPurged     Action = "notification.purged"
	ActionTickCompleted          Action = "tick.completed"
	ActionTickSkipped            Action = "tick.skipped"
)

// Entry is one append-only audit record.
type Entry struct {
	ID         string         `json:"id"`
	Action     Action         `json:"action"`
	TickID     string         `json:"tick_id,omitempty"`
	EntityType string         `json:"entity_type,omitempty"`
	EntityID   int64          `json:"entity_id,omitempty"`
	UserID     int64          `json:"user_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Writer appends entries to the audit trail. Failures must never block the engine,
// so callers log and continue.
type Writer interface {
	Write(ctx context.Context, e *Entry) error
	Close() error
}
