package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"sla_engine/internal/domain/category"
	"sla_engine/internal/domain/workitem"
	"sla_engine/pkg/xerr"

	"github.com/sirupsen/logrus"
)

const (
	defaultMinDeadlineHours     = 4.0
	defaultMaxDeadlineHours     = 72.0
	defaultSuggestedHours       = 24.0
	defaultTriageBuffer         = 2 * time.Hour
	categoryStatsSampleSize     = 20
	shortDeadlineWarningPercent = 0.75 // warn when the deadline is below 75% of the median
)

// DeadlineRange bounds a deadline chosen for a new work item.
type DeadlineRange struct {
	Min       time.Time `json:"min"`
	Max       time.Time `json:"max"`
	Suggested time.Time `json:"suggested"`
}

// DeadlineValidation is the verdict on a proposed deadline.
type DeadlineValidation struct {
	IsValid    bool     `json:"isValid"`
	IsTooShort bool     `json:"isTooShort"`
	IsTooLong  bool     `json:"isTooLong"`
	Warnings   []string `json:"warnings"`
}

// Timeline is an estimated start/end window for a request.
type Timeline struct {
	EstimatedStart time.Time `json:"estimatedStart"`
	EstimatedEnd   time.Time `json:"estimatedEnd"`
}

// DeadlineService computes deadline ranges and timelines from category history.
type DeadlineService struct {
	categoryRepo category.Repository
	workItemRepo workitem.Repository
	logger       *logrus.Entry
	now          func() time.Time
}

func NewDeadlineService(cr category.Repository, wr workitem.Repository, logger *logrus.Entry) *DeadlineService {
	return &DeadlineService{
		categoryRepo: cr,
		workItemRepo: wr,
		logger:       logger.WithField("component", "deadline"),
		now:          time.Now,
	}
}

type bounds struct {
	// limits are the configured (or default) hard bounds a deadline is validated against.
	limitMin, limitMax float64
	// minHours and maxHours are the offered range, narrowed by history when nothing is configured.
	minHours, maxHours float64
	suggestedHours     float64
	stats              *category.Stats
}

func (s *DeadlineService) loadBounds(ctx context.Context, op string, categoryID int64) (*bounds, error) {
	cat, err := s.categoryRepo.GetByID(ctx, categoryID)
	if err != nil {
		if errors.Is(err, category.ErrNotFound) {
			return nil, xerr.NotFound(op, fmt.Errorf("category %d: %w", categoryID, err))
		}
		return nil, xerr.Transient(op, err)
	}
	stats, err := s.categoryRepo.GetStats(ctx, categoryID)
	if err != nil {
		return nil, xerr.Transient(op, err)
	}

	b := &bounds{
		limitMin:       defaultMinDeadlineHours,
		limitMax:       defaultMaxDeadlineHours,
		suggestedHours: defaultSuggestedHours,
		stats:          stats,
	}
	hasHistory := stats != nil && stats.SampleSize > 0
	minConfigured := cat.MinHours.Valid && cat.MinHours.Float64 > 0
	maxConfigured := cat.MaxHours.Valid && cat.MaxHours.Float64 > 0
	if minConfigured {
		b.limitMin = cat.MinHours.Float64
	}
	if maxConfigured {
		b.limitMax = cat.MaxHours.Float64
	}

	// Configured bounds win over historical ones, which win over the defaults.
	b.minHours, b.maxHours = b.limitMin, b.limitMax
	if !minConfigured && hasHistory && stats.MinHours > 0 {
		b.minHours = stats.MinHours
	}
	if !maxConfigured && hasHistory && stats.MaxHours > 0 {
		b.maxHours = stats.MaxHours
	}
	if b.maxHours < b.minHours {
		b.maxHours = b.minHours
	}
	switch {
	case hasHistory && stats.MedianHours > 0:
		b.suggestedHours = stats.MedianHours
	case cat.DefaultHours.Valid && cat.DefaultHours.Float64 > 0:
		b.suggestedHours = cat.DefaultHours.Float64
	}
	if b.suggestedHours < b.minHours {
		b.suggestedHours = b.minHours
	}
	if b.suggestedHours > b.maxHours {
		b.suggestedHours = b.maxHours
	}
	return b, nil
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

// GetDeadlineRange returns the allowed and suggested deadlines for an item starting at start.
func (s *DeadlineService) GetDeadlineRange(ctx context.Context, categoryID int64, start time.Time) (*DeadlineRange, error) {
	b, err := s.loadBounds(ctx, "deadline.range", categoryID)
	if err != nil {
		return nil, err
	}
	return &DeadlineRange{
		Min:       start.Add(hours(b.minHours)),
		Max:       start.Add(hours(b.maxHours)),
		Suggested: start.Add(hours(b.suggestedHours)),
	}, nil
}

// ValidateDeadline checks a proposed deadline against the category's bounds.
func (s *DeadlineService) ValidateDeadline(ctx context.Context, categoryID int64, deadline, start time.Time) (*DeadlineValidation, error) {
	if deadline.IsZero() || start.IsZero() {
		return nil, xerr.Validation("deadline.validate", "deadline and start date are required")
	}
	b, err := s.loadBounds(ctx, "deadline.validate", categoryID)
	if err != nil {
		return nil, err
	}

	hoursUntil := deadline.Sub(start).Hours()
	v := &DeadlineValidation{Warnings: []string{}}
	if hoursUntil < b.limitMin {
		v.IsTooShort = true
		v.Warnings = append(v.Warnings, fmt.Sprintf("deadline is %.1fh after start, minimum is %.1fh", hoursUntil, b.limitMin))
	}
	if hoursUntil > b.limitMax {
		v.IsTooLong = true
		v.Warnings = append(v.Warnings, fmt.Sprintf("deadline is %.1fh after start, maximum is %.1fh", hoursUntil, b.limitMax))
	}
	if !v.IsTooShort && b.stats != nil && b.stats.SampleSize > 0 && hoursUntil < b.stats.MedianHours*shortDeadlineWarningPercent {
		v.Warnings = append(v.Warnings, fmt.Sprintf("similar requests usually take %.1fh", b.stats.MedianHours))
	}
	v.IsValid = !v.IsTooShort && !v.IsTooLong
	return v, nil
}

// EstimateTimeline estimates when work on a request made at requestDate starts and ends.
func (s *DeadlineService) EstimateTimeline(ctx context.Context, categoryID int64, requestDate time.Time) (*Timeline, error) {
	cat, err := s.categoryRepo.GetByID(ctx, categoryID)
	if err != nil {
		if errors.Is(err, category.ErrNotFound) {
			return nil, xerr.NotFound("deadline.timeline", fmt.Errorf("category %d: %w", categoryID, err))
		}
		return nil, xerr.Transient("deadline.timeline", err)
	}

	duration := hours(defaultSuggestedHours)
	if cat.DefaultHours.Valid && cat.DefaultHours.Float64 > 0 {
		duration = hours(cat.DefaultHours.Float64)
	} else {
		stats, err := s.categoryRepo.GetStats(ctx, categoryID)
		if err != nil {
			return nil, xerr.Transient("deadline.timeline", err)
		}
		if stats != nil && stats.SampleSize > 0 && stats.MedianHours > 0 {
			duration = hours(stats.MedianHours)
		}
	}

	start := requestDate.Add(defaultTriageBuffer)
	return &Timeline{EstimatedStart: start, EstimatedEnd: start.Add(duration)}, nil
}

// UpdateCategoryStats recomputes completion statistics from the last completed items and
// replaces the stored stats.
func (s *DeadlineService) UpdateCategoryStats(ctx context.Context, categoryID int64) (*category.Stats, error) {
	const op = "deadline.update_stats"
	if _, err := s.categoryRepo.GetByID(ctx, categoryID); err != nil {
		if errors.Is(err, category.ErrNotFound) {
			return nil, xerr.NotFound(op, fmt.Errorf("category %d: %w", categoryID, err))
		}
		return nil, xerr.Transient(op, err)
	}

	items, err := s.workItemRepo.ListRecentlyCompleted(ctx, categoryID, categoryStatsSampleSize)
	if err != nil {
		return nil, xerr.Transient(op, err)
	}

	samples := make([]float64, 0, len(items))
	for _, it := range items {
		if !it.CompletedAt.Valid || it.CompletedAt.Time.Before(it.CreatedAt) {
			continue
		}
		samples = append(samples, it.CompletedAt.Time.Sub(it.CreatedAt).Hours())
	}

	logger := s.logger.WithField("category_id", categoryID)
	if len(samples) == 0 {
		logger.Info("No completed items; clearing category stats")
		if err := s.categoryRepo.DeleteStats(ctx, categoryID); err != nil {
			return nil, xerr.Transient(op, err)
		}
		return nil, nil
	}

	stats := &category.Stats{
		CategoryID:  categoryID,
		MeanHours:   mean(samples),
		MedianHours: median(samples),
		MinHours:    slices.Min(samples),
		MaxHours:    slices.Max(samples),
		SampleSize:  len(samples),
		ComputedAt:  s.now(),
	}
	if err := s.categoryRepo.ReplaceStats(ctx, stats); err != nil {
		return nil, xerr.Transient(op, err)
	}
	logger.WithFields(logrus.Fields{
		"mean_hours":   stats.MeanHours,
		"median_hours": stats.MedianHours,
		"sample_size":  stats.SampleSize,
	}).Info("Category stats updated")
	return stats, nil
}

// UpdateAllCategoryStats refreshes every category; a failing category does not stop the rest.
func (s *DeadlineService) UpdateAllCategoryStats(ctx context.Context) error {
	cats, err := s.categoryRepo.ListAll(ctx)
	if err != nil {
		return xerr.Transient("deadline.update_all_stats", err)
	}
	var failed int
	for _, c := range cats {
		if _, err := s.UpdateCategoryStats(ctx, c.ID); err != nil {
			failed++
			s.logger.WithError(err).WithField("category_id", c.ID).Error("Failed to update category stats")
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to update stats for %d of %d categories", failed, len(cats))
	}
	return nil
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func median(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
