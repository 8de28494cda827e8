package app

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"sla_engine/internal/domain/category"
	"sla_engine/internal/domain/workitem"
	"sla_engine/pkg/xerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDeadline(t *testing.T) {
	svc := NewDeadlineService(newFakeCategories(&category.Category{ID: 1, Name: "general"}), newFakeWorkItems(), testLogger())
	start := baseTime

	tests := map[string]struct {
		deadline  time.Time
		wantValid bool
		wantShort bool
		wantLong  bool
	}{
		"three hours is too short": {deadline: start.Add(3 * time.Hour), wantShort: true},
		"73 hours is too long":     {deadline: start.Add(73 * time.Hour), wantLong: true},
		"24 hours is valid":        {deadline: start.Add(24 * time.Hour), wantValid: true},
		"exactly the minimum":      {deadline: start.Add(4 * time.Hour), wantValid: true},
		"exactly the maximum":      {deadline: start.Add(72 * time.Hour), wantValid: true},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			v, err := svc.ValidateDeadline(context.Background(), 1, tt.deadline, start)
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, v.IsValid)
			assert.Equal(t, tt.wantShort, v.IsTooShort)
			assert.Equal(t, tt.wantLong, v.IsTooLong)
			if !tt.wantValid {
				assert.NotEmpty(t, v.Warnings)
			}
		})
	}
}

func TestValidateDeadlineRequiresDates(t *testing.T) {
	svc := NewDeadlineService(newFakeCategories(&category.Category{ID: 1}), newFakeWorkItems(), testLogger())
	_, err := svc.ValidateDeadline(context.Background(), 1, time.Time{}, baseTime)
	assert.True(t, xerr.Is(err, xerr.KindValidation))
}

func TestValidateDeadlineCategoryOverride(t *testing.T) {
	cat := &category.Category{ID: 2, MinHours: sql.NullFloat64{Float64: 8, Valid: true}}
	svc := NewDeadlineService(newFakeCategories(cat), newFakeWorkItems(), testLogger())

	v, err := svc.ValidateDeadline(context.Background(), 2, baseTime.Add(6*time.Hour), baseTime)
	require.NoError(t, err)
	assert.True(t, v.IsTooShort)
}

func TestValidateDeadlineIgnoresHistoricalBounds(t *testing.T) {
	cats := newFakeCategories(&category.Category{ID: 1})
	cats.stats[1] = &category.Stats{CategoryID: 1, MedianHours: 10, MinHours: 2, MaxHours: 30, SampleSize: 8}
	svc := NewDeadlineService(cats, newFakeWorkItems(), testLogger())

	v, err := svc.ValidateDeadline(context.Background(), 1, baseTime.Add(48*time.Hour), baseTime)
	require.NoError(t, err)
	assert.True(t, v.IsValid)
	assert.False(t, v.IsTooLong)
}

func TestGetDeadlineRange(t *testing.T) {
	ctx := context.Background()
	cats := newFakeCategories(&category.Category{ID: 1}, &category.Category{ID: 2})
	cats.stats[2] = &category.Stats{CategoryID: 2, MedianHours: 10, SampleSize: 5}
	svc := NewDeadlineService(cats, newFakeWorkItems(), testLogger())

	r, err := svc.GetDeadlineRange(ctx, 1, baseTime)
	require.NoError(t, err)
	assert.Equal(t, baseTime.Add(4*time.Hour), r.Min)
	assert.Equal(t, baseTime.Add(72*time.Hour), r.Max)
	assert.Equal(t, baseTime.Add(24*time.Hour), r.Suggested)

	r, err = svc.GetDeadlineRange(ctx, 2, baseTime)
	require.NoError(t, err)
	assert.Equal(t, baseTime.Add(10*time.Hour), r.Suggested, "historical median drives the suggestion")

	_, err = svc.GetDeadlineRange(ctx, 3, baseTime)
	assert.True(t, xerr.Is(err, xerr.KindNotFound))
}

func TestGetDeadlineRangeHistoricalBounds(t *testing.T) {
	tests := map[string]struct {
		cat              *category.Category
		stats            *category.Stats
		wantMin, wantMax time.Duration
		wantSuggested    time.Duration
	}{
		"history overrides defaults": {
			cat:           &category.Category{ID: 1},
			stats:         &category.Stats{CategoryID: 1, MedianHours: 10, MinHours: 2, MaxHours: 30, SampleSize: 8},
			wantMin:       2 * time.Hour,
			wantMax:       30 * time.Hour,
			wantSuggested: 10 * time.Hour,
		},
		"configured bounds win over history": {
			cat:           &category.Category{ID: 1, MinHours: sql.NullFloat64{Float64: 6, Valid: true}},
			stats:         &category.Stats{CategoryID: 1, MedianHours: 10, MinHours: 2, MaxHours: 30, SampleSize: 8},
			wantMin:       6 * time.Hour,
			wantMax:       30 * time.Hour,
			wantSuggested: 10 * time.Hour,
		},
		"empty history keeps defaults": {
			cat:           &category.Category{ID: 1},
			stats:         &category.Stats{CategoryID: 1},
			wantMin:       4 * time.Hour,
			wantMax:       72 * time.Hour,
			wantSuggested: 24 * time.Hour,
		},
		"max never below min": {
			cat:           &category.Category{ID: 1, MinHours: sql.NullFloat64{Float64: 40, Valid: true}},
			stats:         &category.Stats{CategoryID: 1, MedianHours: 10, MinHours: 2, MaxHours: 30, SampleSize: 8},
			wantMin:       40 * time.Hour,
			wantMax:       40 * time.Hour,
			wantSuggested: 40 * time.Hour,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			cats := newFakeCategories(tt.cat)
			cats.stats[tt.cat.ID] = tt.stats
			svc := NewDeadlineService(cats, newFakeWorkItems(), testLogger())

			r, err := svc.GetDeadlineRange(context.Background(), tt.cat.ID, baseTime)
			require.NoError(t, err)
			assert.Equal(t, baseTime.Add(tt.wantMin), r.Min)
			assert.Equal(t, baseTime.Add(tt.wantMax), r.Max)
			assert.Equal(t, baseTime.Add(tt.wantSuggested), r.Suggested)
		})
	}
}

func TestEstimateTimeline(t *testing.T) {
	ctx := context.Background()
	cats := newFakeCategories(
		&category.Category{ID: 1},
		&category.Category{ID: 2, DefaultHours: sql.NullFloat64{Float64: 6, Valid: true}},
	)
	svc := NewDeadlineService(cats, newFakeWorkItems(), testLogger())

	tl, err := svc.EstimateTimeline(ctx, 1, baseTime)
	require.NoError(t, err)
	assert.Equal(t, baseTime.Add(2*time.Hour), tl.EstimatedStart)
	assert.Equal(t, baseTime.Add(26*time.Hour), tl.EstimatedEnd)

	tl, err = svc.EstimateTimeline(ctx, 2, baseTime)
	require.NoError(t, err)
	assert.Equal(t, baseTime.Add(8*time.Hour), tl.EstimatedEnd)
}

func completedItem(id, categoryID int64, took time.Duration, completed time.Time) *workitem.WorkItem {
	return &workitem.WorkItem{
		ID:          id,
		CategoryID:  categoryID,
		Status:      workitem.StatusCompleted,
		CreatedAt:   completed.Add(-took),
		CompletedAt: sql.NullTime{Time: completed, Valid: true},
	}
}

func TestUpdateCategoryStatsReplacesWholesale(t *testing.T) {
	ctx := context.Background()
	cats := newFakeCategories(&category.Category{ID: 1})
	cats.stats[1] = &category.Stats{CategoryID: 1, MedianHours: 99, SampleSize: 100}
	items := newFakeWorkItems(
		completedItem(1, 1, 2*time.Hour, baseTime),
		completedItem(2, 1, 4*time.Hour, baseTime.Add(-time.Hour)),
		completedItem(3, 1, 12*time.Hour, baseTime.Add(-2*time.Hour)),
	)
	svc := NewDeadlineService(cats, items, testLogger())
	svc.now = fixedClock(baseTime)

	stats, err := svc.UpdateCategoryStats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.SampleSize)
	assert.InDelta(t, 4.0, stats.MedianHours, 1e-9)
	assert.InDelta(t, 6.0, stats.MeanHours, 1e-9)
	assert.InDelta(t, 2.0, stats.MinHours, 1e-9)
	assert.InDelta(t, 12.0, stats.MaxHours, 1e-9)
	assert.Same(t, stats, cats.stats[1])
}

func TestUpdateCategoryStatsUsesLastTwenty(t *testing.T) {
	ctx := context.Background()
	cats := newFakeCategories(&category.Category{ID: 1})
	var list []*workitem.WorkItem
	for i := 0; i < 25; i++ {
		took := time.Hour
		if i >= 20 {
			took = 100 * time.Hour // oldest five
		}
		list = append(list, completedItem(int64(i+1), 1, took, baseTime.Add(-time.Duration(i)*time.Hour)))
	}
	svc := NewDeadlineService(cats, newFakeWorkItems(list...), testLogger())

	stats, err := svc.UpdateCategoryStats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 20, stats.SampleSize)
	assert.InDelta(t, 1.0, stats.MeanHours, 1e-9)
}

func TestUpdateCategoryStatsWithoutSamplesClears(t *testing.T) {
	ctx := context.Background()
	cats := newFakeCategories(&category.Category{ID: 1})
	cats.stats[1] = &category.Stats{CategoryID: 1, MedianHours: 5, SampleSize: 3}
	svc := NewDeadlineService(cats, newFakeWorkItems(), testLogger())

	stats, err := svc.UpdateCategoryStats(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, stats)
	assert.NotContains(t, cats.stats, int64(1))
}
