package timer

import (
	"context"
	"errors"
	"time"
)

// Custom errors
var (
	ErrNotFound        = errors.New("timer session not found")
	ErrSessionExists   = errors.New("a timer session is already active for this work item")
	ErrVersionConflict = errors.New("timer session changed concurrently")
)

// Repository persists timer sessions and their logs.
//
// Create must fail with ErrSessionExists when a session already exists for the work item.
// Update and Close are conditional on expectedVersion and fail with ErrVersionConflict when the
// stored version differs. Both mirror the pause state onto the work item in the same
// transaction: the paused flag follows the session state and addPaused is added to the item's
// accumulated pause time.
type Repository interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id int64) (*Session, error)
	GetByWorkItem(ctx context.Context, workItemID int64) (*Session, error)
	Update(ctx context.Context, s *Session, expectedVersion int64, addPaused time.Duration) error
	// Close deletes the session and stores its log.
	Close(ctx context.Context, sessionID, expectedVersion int64, log *DurationLog, addPaused time.Duration) error
	ListLogs(ctx context.Context, workItemID int64) ([]*DurationLog, error)
}
