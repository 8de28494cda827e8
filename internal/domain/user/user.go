package user

import (
	"database/sql"
	"time"
)

// User is a person who can receive notifications and escalations.
type User struct {
	ID         int64
	TelegramID sql.NullInt64 // chat to deliver bot messages to
	Email      sql.NullString
	FirstName  string
	LastName   sql.NullString // To handle optional last name
	IsAdmin    bool
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// FullName joins first and last name.
func (u *User) FullName() string {
	if u.LastName.Valid && u.LastName.String != "" {
		return u.FirstName + " " + u.LastName.String
	}
	return u.FirstName
}
