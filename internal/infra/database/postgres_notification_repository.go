// internal/infra/database/postgres_notification_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sla_engine/internal/domain/notification"
)

type PostgresNotificationRepository struct {
	db *sql.DB
}

func NewPostgresNotificationRepository(db *sql.DB) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{db: db}
}

const notificationColumns = `id, user_id, type, priority, title, message, metadata, is_read, created_at, read_at`

func scanNotification(row rowScanner) (*notification.Notification, error) {
	n := &notification.Notification{}
	var metadata []byte
	if err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Priority, &n.Title, &n.Message, &metadata, &n.IsRead, &n.CreatedAt, &n.ReadAt); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		n.Metadata = metadata
	}
	return n, nil
}

func (r *PostgresNotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	query := `INSERT INTO notifications (user_id, type, priority, title, message, metadata, created_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7)
               RETURNING id`
	var metadata any
	if len(n.Metadata) > 0 {
		metadata = []byte(n.Metadata)
	}
	err := r.db.QueryRowContext(ctx, query, n.UserID, n.Type, n.Priority, n.Title, n.Message, metadata, n.CreatedAt).Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("error creating notification: %w", err)
	}
	return nil
}

func (r *PostgresNotificationRepository) GetByID(ctx context.Context, id int64) (*notification.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	n, err := scanNotification(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notification.ErrNotFound
		}
		return nil, fmt.Errorf("error getting notification by ID: %w", err)
	}
	return n, nil
}

func (r *PostgresNotificationRepository) ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*notification.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
               WHERE user_id = $1 AND ($2 = FALSE OR is_read = FALSE)
               ORDER BY created_at DESC, id DESC LIMIT $3`
	rows, err := r.db.QueryContext(ctx, query, userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing notifications: %w", err)
	}
	defer rows.Close()

	list := make([]*notification.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning notification row: %w", err)
		}
		list = append(list, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification rows: %w", err)
	}
	return list, nil
}

func (r *PostgresNotificationRepository) CountUnread(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("error counting unread notifications: %w", err)
	}
	return n, nil
}

func (r *PostgresNotificationRepository) MarkAsRead(ctx context.Context, id int64, readAt time.Time) error {
	query := `UPDATE notifications SET is_read = TRUE, read_at = $2 WHERE id = $1 AND is_read = FALSE`
	if _, err := r.db.ExecContext(ctx, query, id, readAt); err != nil {
		return fmt.Errorf("error marking notification as read: %w", err)
	}
	return nil
}

func (r *PostgresNotificationRepository) MarkAllAsRead(ctx context.Context, userID int64, readAt time.Time) (int64, error) {
	query := `UPDATE notifications SET is_read = TRUE, read_at = $2 WHERE user_id = $1 AND is_read = FALSE`
	res, err := r.db.ExecContext(ctx, query, userID, readAt)
	if err != nil {
		return 0, fmt.Errorf("error marking all notifications as read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error reading affected rows: %w", err)
	}
	return n, nil
}

func (r *PostgresNotificationRepository) ExistsSince(ctx context.Context, userID int64, t notification.Type, since time.Time) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM notifications WHERE user_id = $1 AND type = $2 AND created_at >= $3)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userID, t, since).Scan(&exists); err != nil {
		return false, fmt.Errorf("error checking recent notifications: %w", err)
	}
	return exists, nil
}

func (r *PostgresNotificationRepository) PurgeRead(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	query := `DELETE FROM notifications WHERE id IN (
                   SELECT id FROM notifications WHERE is_read = TRUE AND created_at < $1 ORDER BY id LIMIT $2
               )`
	res, err := r.db.ExecContext(ctx, query, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("error purging notifications: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error reading affected rows: %w", err)
	}
	return n, nil
}
