package category

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when no category has the requested id.
var ErrNotFound = errors.New("category not found")

// Category groups work items that share deadline expectations.
// The hour fields are administrator overrides; unset fields fall back to engine defaults.
type Category struct {
	ID           int64
	Name         string
	MinHours     sql.NullFloat64
	MaxHours     sql.NullFloat64
	DefaultHours sql.NullFloat64
}

// Stats are computed from recently completed items and replaced wholesale on refresh.
type Stats struct {
	CategoryID  int64
	MeanHours   float64
	MedianHours float64
	// MinHours and MaxHours are the fastest and slowest completions in the sample.
	MinHours   float64
	MaxHours   float64
	SampleSize int
	ComputedAt  time.Time
}

// Repository reads categories and reads/replaces their historical stats.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Category, error)
	ListAll(ctx context.Context) ([]*Category, error)
	// GetStats returns nil stats and no error when none were computed yet.
	GetStats(ctx context.Context, categoryID int64) (*Stats, error)
	ReplaceStats(ctx context.Context, stats *Stats) error
	DeleteStats(ctx context.Context, categoryID int64) error
}
