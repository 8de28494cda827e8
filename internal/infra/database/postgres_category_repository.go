package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sla_engine/internal/domain/category"
)

type PostgresCategoryRepository struct {
	db *sql.DB
}

func NewPostgresCategoryRepository(db *sql.DB) *PostgresCategoryRepository {
	return &PostgresCategoryRepository{db: db}
}

func (r *PostgresCategoryRepository) GetByID(ctx context.Context, id int64) (*category.Category, error) {
	query := `SELECT id, name, min_hours, max_hours, default_hours FROM categories WHERE id = $1`
	c := &category.Category{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Name, &c.MinHours, &c.MaxHours, &c.DefaultHours)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, category.ErrNotFound
		}
		return nil, fmt.Errorf("error getting category by ID: %w", err)
	}
	return c, nil
}

func (r *PostgresCategoryRepository) ListAll(ctx context.Context) ([]*category.Category, error) {
	query := `SELECT id, name, min_hours, max_hours, default_hours FROM categories ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing categories: %w", err)
	}
	defer rows.Close()

	cats := make([]*category.Category, 0)
	for rows.Next() {
		c := &category.Category{}
		if err := rows.Scan(&c.ID, &c.Name, &c.MinHours, &c.MaxHours, &c.DefaultHours); err != nil {
			return nil, fmt.Errorf("error scanning category: %w", err)
		}
		cats = append(cats, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}
	return cats, nil
}

func (r *PostgresCategoryRepository) GetStats(ctx context.Context, categoryID int64) (*category.Stats, error) {
	query := `SELECT category_id, mean_hours, median_hours, min_hours, max_hours, sample_size, computed_at
               FROM category_stats WHERE category_id = $1`
	s := &category.Stats{}
	err := r.db.QueryRowContext(ctx, query, categoryID).Scan(&s.CategoryID, &s.MeanHours, &s.MedianHours, &s.MinHours, &s.MaxHours, &s.SampleSize, &s.ComputedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error getting category stats: %w", err)
	}
	return s, nil
}

// ReplaceStats overwrites any previously computed stats of the category.
func (r *PostgresCategoryRepository) ReplaceStats(ctx context.Context, s *category.Stats) error {
	query := `INSERT INTO category_stats (category_id, mean_hours, median_hours, min_hours, max_hours, sample_size, computed_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7)
               ON CONFLICT (category_id) DO UPDATE
               SET mean_hours = EXCLUDED.mean_hours, median_hours = EXCLUDED.median_hours,
                   min_hours = EXCLUDED.min_hours, max_hours = EXCLUDED.max_hours,
                   sample_size = EXCLUDED.sample_size, computed_at = EXCLUDED.computed_at`
	if _, err := r.db.ExecContext(ctx, query, s.CategoryID, s.MeanHours, s.MedianHours, s.MinHours, s.MaxHours, s.SampleSize, s.ComputedAt); err != nil {
		return fmt.Errorf("error replacing category stats: %w", err)
	}
	return nil
}

func (r *PostgresCategoryRepository) DeleteStats(ctx context.Context, categoryID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM category_stats WHERE category_id = $1`, categoryID); err != nil {
		return fmt.Errorf("error deleting category stats: %w", err)
	}
	return nil
}
