package workitem

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no work item has the requested id.
var ErrNotFound = errors.New("work item not found")

// Repository is read-only for the engine. Pause state reaches work items through the
// timer repository.
type Repository interface {
	FindActiveByStatus(ctx context.Context, status Status) ([]*WorkItem, error)
	FindByID(ctx context.Context, id int64) (*WorkItem, error)
	// ListRecentlyCompleted returns up to limit completed items of a category, newest first.
	ListRecentlyCompleted(ctx context.Context, categoryID int64, limit int) ([]*WorkItem, error)
}
