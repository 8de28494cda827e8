// internal/domain/notification/repository.go
package notification

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("notification not found")

// Repository persists notifications.
type Repository interface {
	Create(ctx context.Context, n *Notification) error
	GetByID(ctx context.Context, id int64) (*Notification, error)
	ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*Notification, error)
	CountUnread(ctx context.Context, userID int64) (int, error)
	// MarkAsRead is a no-op for already read notifications.
	MarkAsRead(ctx context.Context, id int64, readAt time.Time) error
	MarkAllAsRead(ctx context.Context, userID int64, readAt time.Time) (int64, error)
	ExistsSince(ctx context.Context, userID int64, t Type, since time.Time) (bool, error)
	// PurgeRead deletes at most batchSize read notifications created before cutoff.
	PurgeRead(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// SettingRepository reads Do-Not-Disturb settings.
type SettingRepository interface {
	// GetSetting returns nil and no error when the user has no settings row.
	GetSetting(ctx context.Context, userID int64) (*Setting, error)
}

// Channel delivers a notification outside the application, e.g. through a chat bot.
// It receives a template key and parameters; rendering is the channel's concern.
type Channel interface {
	Name() string
	Send(ctx context.Context, userID int64, templateKey string, params map[string]any) error
}
