// internal/domain/notification/notification.go
package notification

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Priority decides whether Do-Not-Disturb may suppress a notification.
type Priority string

const (
	PriorityInfo    Priority = "INFO"
	PriorityWarning Priority = "WARNING"
	PriorityUrgent  Priority = "URGENT" // never suppressed
)

// Type identifies what produced the notification.
type Type string

const (
	TypeReminder             Type = "SLA_REMINDER"
	TypeEscalation           Type = "ESCALATION"
	TypeEscalationVolumeHigh Type = "ESCALATION_VOLUME_HIGH"
)

// Notification is an in-app message for a single user.
type Notification struct {
	ID        int64
	UserID    int64
	Type      Type
	Priority  Priority
	Title     string
	Message   string
	Metadata  json.RawMessage
	IsRead    bool
	CreatedAt time.Time
	ReadAt    sql.NullTime
}
