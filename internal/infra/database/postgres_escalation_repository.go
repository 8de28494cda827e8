package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sla_engine/internal/domain/escalation"
)

// PostgresEscalationRepository guards escalations with the
// escalation_records_episode_unique constraint.
type PostgresEscalationRepository struct {
	db *sql.DB
}

func NewPostgresEscalationRepository(db *sql.DB) *PostgresEscalationRepository {
	return &PostgresEscalationRepository{db: db}
}

func (r *PostgresEscalationRepository) Claim(ctx context.Context, rec *escalation.Record) (bool, error) {
	query := `INSERT INTO escalation_records
               (rule_id, trigger_type, entity_type, entity_id, episode_key, recipient_id, reason, created_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
               ON CONFLICT ON CONSTRAINT escalation_records_episode_unique DO NOTHING
               RETURNING id`
	err := r.db.QueryRowContext(ctx, query,
		rec.RuleID, rec.TriggerType, rec.EntityType, rec.EntityID, rec.EpisodeKey, rec.RecipientID, rec.Reason, rec.CreatedAt,
	).Scan(&rec.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil // conflict: the episode is already escalated
		}
		return false, fmt.Errorf("error claiming escalation: %w", err)
	}
	return true, nil
}

func (r *PostgresEscalationRepository) Release(ctx context.Context, rec *escalation.Record) error {
	query := `DELETE FROM escalation_records
               WHERE rule_id = $1 AND trigger_type = $2 AND entity_type = $3 AND entity_id = $4 AND episode_key = $5`
	if _, err := r.db.ExecContext(ctx, query, rec.RuleID, rec.TriggerType, rec.EntityType, rec.EntityID, rec.EpisodeKey); err != nil {
		return fmt.Errorf("error releasing escalation record: %w", err)
	}
	return nil
}

func (r *PostgresEscalationRepository) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM escalation_records WHERE created_at >= $1`, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("error counting escalations: %w", err)
	}
	return n, nil
}

func (r *PostgresEscalationRepository) ListByEntity(ctx context.Context, entityType string, entityID int64) ([]*escalation.Record, error) {
	query := `SELECT id, rule_id, trigger_type, entity_type, entity_id, episode_key, recipient_id, reason, created_at
               FROM escalation_records WHERE entity_type = $1 AND entity_id = $2 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("error listing escalations: %w", err)
	}
	defer rows.Close()

	records := make([]*escalation.Record, 0)
	for rows.Next() {
		rec := &escalation.Record{}
		if err := rows.Scan(&rec.ID, &rec.RuleID, &rec.TriggerType, &rec.EntityType, &rec.EntityID, &rec.EpisodeKey, &rec.RecipientID, &rec.Reason, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning escalation: %w", err)
		}
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating escalations: %w", err)
	}
	return records, nil
}
