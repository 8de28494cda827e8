package database

import (
	"context"
	"database/sql"
	"fmt"

	"sla_engine/internal/domain/reminder"
)

// PostgresReminderRepository guards reminder sends with the
// (work_item_id, level, run_started_at) primary key.
type PostgresReminderRepository struct {
	db *sql.DB
}

func NewPostgresReminderRepository(db *sql.DB) *PostgresReminderRepository {
	return &PostgresReminderRepository{db: db}
}

func (r *PostgresReminderRepository) Claim(ctx context.Context, rec *reminder.SendRecord) (bool, error) {
	query := `INSERT INTO reminder_send_records (work_item_id, level, run_started_at, sent_at)
               VALUES ($1, $2, $3, $4)
               ON CONFLICT (work_item_id, level, run_started_at) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, rec.WorkItemID, int(rec.Level), rec.RunStartedAt, rec.SentAt)
	if err != nil {
		return false, fmt.Errorf("error claiming reminder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading affected rows: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresReminderRepository) Release(ctx context.Context, rec *reminder.SendRecord) error {
	query := `DELETE FROM reminder_send_records WHERE work_item_id = $1 AND level = $2 AND run_started_at = $3`
	if _, err := r.db.ExecContext(ctx, query, rec.WorkItemID, int(rec.Level), rec.RunStartedAt); err != nil {
		return fmt.Errorf("error releasing reminder claim: %w", err)
	}
	return nil
}
