package user

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no user matches the lookup.
var ErrNotFound = errors.New("user not found")

// Repository defines the operations for retrieving User entities.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*User, error)
	ListActiveAdmins(ctx context.Context) ([]*User, error) // escalation fallback recipients
}
