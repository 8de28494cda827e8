package app

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// budgetContext bounds per-item work by the tick deadline. A zero deadline means no budget.
func budgetContext(ctx context.Context, deadline time.Time) (context.Context, context.CancelFunc) {
	if deadline.IsZero() {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, deadline)
}

// forEach runs fn for every item with at most limit calls in flight. Items that have not
// started when ctx is done are skipped and reported as deferred.
func forEach[T any](ctx context.Context, limit int, items []T, fn func(context.Context, T)) int {
	var deferred atomic.Int64
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, it := range items {
		if ctx.Err() != nil {
			deferred.Add(int64(len(items) - i))
			break
		}
		it := it
		g.Go(func() error {
			if ctx.Err() != nil {
				deferred.Add(1)
				return nil
			}
			fn(ctx, it)
			return nil
		})
	}
	_ = g.Wait()
	return int(deferred.Load())
}
