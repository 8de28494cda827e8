package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sla_engine/internal/domain/escalation"
	"sla_engine/internal/domain/notification"
	"sla_engine/internal/domain/reminder"

	"github.com/lib/pq" // For pq.Array
)

// PostgresConfigRepository reads reminder configuration, escalation rules and per-user
// notification settings.
type PostgresConfigRepository struct {
	db *sql.DB
}

func NewPostgresConfigRepository(db *sql.DB) *PostgresConfigRepository {
	return &PostgresConfigRepository{db: db}
}

func (r *PostgresConfigRepository) GetReminderConfig(ctx context.Context) (*reminder.Config, error) {
	query := `SELECT enabled, t1_minutes, t2_minutes, t3_minutes, window_minutes, channels
               FROM reminder_config WHERE id = 1`
	var (
		cfg        reminder.Config
		t1, t2, t3 int64
		window     int64
		channels   []string
	)
	err := r.db.QueryRowContext(ctx, query).Scan(&cfg.Enabled, &t1, &t2, &t3, &window, pq.Array(&channels))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error getting reminder config: %w", err)
	}
	cfg.Thresholds = [3]time.Duration{
		time.Duration(t1) * time.Minute,
		time.Duration(t2) * time.Minute,
		time.Duration(t3) * time.Minute,
	}
	cfg.Window = time.Duration(window) * time.Minute
	cfg.Channels = channels
	return &cfg, nil
}

func (r *PostgresConfigRepository) ListRules(ctx context.Context) ([]*escalation.Rule, error) {
	query := `SELECT id, trigger_type, threshold_minutes, recipient_strategy, recipient_user_id, enabled
               FROM escalation_rules ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing escalation rules: %w", err)
	}
	defer rows.Close()

	rules := make([]*escalation.Rule, 0)
	for rows.Next() {
		rule := &escalation.Rule{}
		var minutes int64
		if err := rows.Scan(&rule.ID, &rule.TriggerType, &minutes, &rule.RecipientStrategy, &rule.RecipientUserID, &rule.Enabled); err != nil {
			return nil, fmt.Errorf("error scanning escalation rule: %w", err)
		}
		rule.Threshold = time.Duration(minutes) * time.Minute
		rules = append(rules, rule)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating escalation rules: %w", err)
	}
	return rules, nil
}

func (r *PostgresConfigRepository) GetSetting(ctx context.Context, userID int64) (*notification.Setting, error) {
	query := `SELECT user_id, dnd_enabled, dnd_start_minute, dnd_end_minute, dnd_days, timezone
               FROM notification_settings WHERE user_id = $1`
	var (
		s    notification.Setting
		days []int64
		tz   string
	)
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&s.UserID, &s.DNDEnabled, &s.StartMinute, &s.EndMinute, pq.Array(&days), &tz)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error getting notification setting: %w", err)
	}
	for _, d := range days {
		if d >= 0 && d <= 6 {
			s.Days = append(s.Days, time.Weekday(d))
		}
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	s.Location = loc
	return &s, nil
}
