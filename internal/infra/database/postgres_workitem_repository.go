package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sla_engine/internal/domain/workitem"
)

const workItemColumns = `id, category_id, status, assignee_id, requester_id, created_at, started_at,
       status_changed_at, last_event_at, deadline, sla_window_seconds, completed_at,
       accumulated_paused_seconds, paused`

// PostgresWorkItemRepository reads work items. Writes to pause state go through the timer repository.
type PostgresWorkItemRepository struct {
	db *sql.DB
}

func NewPostgresWorkItemRepository(db *sql.DB) *PostgresWorkItemRepository {
	return &PostgresWorkItemRepository{db: db}
}

func scanWorkItem(row rowScanner) (*workitem.WorkItem, error) {
	w := &workitem.WorkItem{}
	var windowSecs, pausedSecs int64
	err := row.Scan(
		&w.ID, &w.CategoryID, &w.Status, &w.AssigneeID, &w.RequesterID, &w.CreatedAt, &w.StartedAt,
		&w.StatusChangedAt, &w.LastEventAt, &w.Deadline, &windowSecs, &w.CompletedAt,
		&pausedSecs, &w.Paused,
	)
	if err != nil {
		return nil, err
	}
	w.SLAWindow = fromSeconds(windowSecs)
	w.AccumulatedPaused = fromSeconds(pausedSecs)
	return w, nil
}

func (r *PostgresWorkItemRepository) FindActiveByStatus(ctx context.Context, status workitem.Status) ([]*workitem.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE status = $1 AND completed_at IS NULL ORDER BY id`
	return r.list(ctx, "active work items", query, status)
}

func (r *PostgresWorkItemRepository) FindByID(ctx context.Context, id int64) (*workitem.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE id = $1`
	w, err := scanWorkItem(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, workitem.ErrNotFound
		}
		return nil, fmt.Errorf("error getting work item by ID: %w", err)
	}
	return w, nil
}

func (r *PostgresWorkItemRepository) ListRecentlyCompleted(ctx context.Context, categoryID int64, limit int) ([]*workitem.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items
               WHERE category_id = $1 AND status = $2 AND completed_at IS NOT NULL
               ORDER BY completed_at DESC LIMIT $3`
	return r.list(ctx, "completed work items", query, categoryID, workitem.StatusCompleted, limit)
}

func (r *PostgresWorkItemRepository) list(ctx context.Context, what, query string, args ...any) ([]*workitem.WorkItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing %s: %w", what, err)
	}
	defer rows.Close()

	items := make([]*workitem.WorkItem, 0)
	for rows.Next() {
		w, err := scanWorkItem(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning %s: %w", what, err)
		}
		items = append(items, w)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", what, err)
	}
	return items, nil
}
