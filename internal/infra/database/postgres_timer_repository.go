package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sla_engine/internal/domain/timer"
)

const sessionColumns = `id, work_item_id, user_id, state, started_at, paused_at, accumulated_paused_seconds, version`

// PostgresTimerRepository stores timer sessions with optimistic versioning and mirrors pause
// state onto work_items in the same transaction.
type PostgresTimerRepository struct {
	db *sql.DB
}

func NewPostgresTimerRepository(db *sql.DB) *PostgresTimerRepository {
	return &PostgresTimerRepository{db: db}
}

func scanSession(row rowScanner) (*timer.Session, error) {
	s := &timer.Session{}
	var state timer.StateName
	var pausedAt sql.NullTime
	var pausedSecs int64
	if err := row.Scan(&s.ID, &s.WorkItemID, &s.UserID, &state, &s.StartedAt, &pausedAt, &pausedSecs, &s.Version); err != nil {
		return nil, err
	}
	s.AccumulatedPaused = fromSeconds(pausedSecs)
	switch state {
	case timer.StateRunning:
		s.State = timer.Running{}
	case timer.StatePaused:
		s.State = timer.Paused{At: pausedAt.Time}
	case timer.StateStopped:
		s.State = timer.Stopped{}
	default:
		return nil, fmt.Errorf("unknown timer state %q", state)
	}
	return s, nil
}

// pausedAt is the column value for a session state.
func pausedAt(st timer.State) sql.NullTime {
	if p, ok := st.(timer.Paused); ok {
		return sql.NullTime{Time: p.At, Valid: true}
	}
	return sql.NullTime{}
}

func (r *PostgresTimerRepository) Create(ctx context.Context, s *timer.Session) error {
	query := `INSERT INTO timer_sessions (work_item_id, user_id, state, started_at, paused_at, accumulated_paused_seconds, version)
               VALUES ($1, $2, $3, $4, $5, $6, $7)
               RETURNING id`
	err := r.db.QueryRowContext(ctx, query,
		s.WorkItemID, s.UserID, s.State.Name(), s.StartedAt, pausedAt(s.State), seconds(s.AccumulatedPaused), s.Version,
	).Scan(&s.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return timer.ErrSessionExists
		}
		return fmt.Errorf("error creating timer session: %w", err)
	}
	return nil
}

func (r *PostgresTimerRepository) GetByID(ctx context.Context, id int64) (*timer.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM timer_sessions WHERE id = $1`
	s, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, timer.ErrNotFound
		}
		return nil, fmt.Errorf("error getting timer session by ID: %w", err)
	}
	return s, nil
}

func (r *PostgresTimerRepository) GetByWorkItem(ctx context.Context, workItemID int64) (*timer.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM timer_sessions WHERE work_item_id = $1`
	s, err := scanSession(r.db.QueryRowContext(ctx, query, workItemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, timer.ErrNotFound
		}
		return nil, fmt.Errorf("error getting timer session by work item: %w", err)
	}
	return s, nil
}

func (r *PostgresTimerRepository) Update(ctx context.Context, s *timer.Session, expectedVersion int64, addPaused time.Duration) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE timer_sessions
               SET state = $1, paused_at = $2, accumulated_paused_seconds = $3, version = $4
               WHERE id = $5 AND version = $6`,
			s.State.Name(), pausedAt(s.State), seconds(s.AccumulatedPaused), s.Version, s.ID, expectedVersion)
		if err != nil {
			return fmt.Errorf("error updating timer session: %w", err)
		}
		if err := expectOneRow(res); err != nil {
			return err
		}
		_, isPaused := s.State.(timer.Paused)
		return mirrorPause(ctx, tx, s.WorkItemID, isPaused, addPaused)
	})
}

func (r *PostgresTimerRepository) Close(ctx context.Context, sessionID, expectedVersion int64, log *timer.DurationLog, addPaused time.Duration) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM timer_sessions WHERE id = $1 AND version = $2`, sessionID, expectedVersion)
		if err != nil {
			return fmt.Errorf("error deleting timer session: %w", err)
		}
		if err := expectOneRow(res); err != nil {
			return err
		}

		err = tx.QueryRowContext(ctx, `INSERT INTO timer_duration_logs
               (session_id, work_item_id, user_id, started_at, stopped_at, paused_seconds, worked_seconds)
               VALUES ($1, $2, $3, $4, $5, $6, $7)
               RETURNING id, created_at`,
			log.SessionID, log.WorkItemID, log.UserID, log.StartedAt, log.StoppedAt,
			seconds(log.PausedDuration), seconds(log.WorkedDuration),
		).Scan(&log.ID, &log.CreatedAt)
		if err != nil {
			return fmt.Errorf("error creating duration log: %w", err)
		}
		return mirrorPause(ctx, tx, log.WorkItemID, false, addPaused)
	})
}

func (r *PostgresTimerRepository) ListLogs(ctx context.Context, workItemID int64) ([]*timer.DurationLog, error) {
	query := `SELECT id, session_id, work_item_id, user_id, started_at, stopped_at, paused_seconds, worked_seconds, created_at
               FROM timer_duration_logs WHERE work_item_id = $1 ORDER BY started_at`
	rows, err := r.db.QueryContext(ctx, query, workItemID)
	if err != nil {
		return nil, fmt.Errorf("error listing duration logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*timer.DurationLog, 0)
	for rows.Next() {
		l := &timer.DurationLog{}
		var pausedSecs, workedSecs int64
		if err := rows.Scan(&l.ID, &l.SessionID, &l.WorkItemID, &l.UserID, &l.StartedAt, &l.StoppedAt, &pausedSecs, &workedSecs, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning duration log: %w", err)
		}
		l.PausedDuration = fromSeconds(pausedSecs)
		l.WorkedDuration = fromSeconds(workedSecs)
		logs = append(logs, l)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating duration logs: %w", err)
	}
	return logs, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading affected rows: %w", err)
	}
	if n == 0 {
		return timer.ErrVersionConflict
	}
	return nil
}

func mirrorPause(ctx context.Context, tx *sql.Tx, workItemID int64, paused bool, addPaused time.Duration) error {
	_, err := tx.ExecContext(ctx, `UPDATE work_items
               SET paused = $1, accumulated_paused_seconds = accumulated_paused_seconds + $2
               WHERE id = $3`, paused, seconds(addPaused), workItemID)
	if err != nil {
		return fmt.Errorf("error mirroring pause state to work item: %w", err)
	}
	return nil
}
