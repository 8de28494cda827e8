package scheduler

import (
	"context"
	"fmt"
	"time"

	"sla_engine/internal/app"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	retentionTimeout = 10 * time.Minute
	statsTimeout     = 5 * time.Minute
)

// TickRunner runs one engine tick.
type TickRunner interface {
	RunTick(ctx context.Context) (*app.TickResult, error)
}

// Purger deletes read notifications older than the retention period.
type Purger interface {
	PurgeExpired(ctx context.Context, retention time.Duration) (int64, error)
}

// StatsRefresher recomputes historical category stats.
type StatsRefresher interface {
	UpdateAllCategoryStats(ctx context.Context) error
}

// Specs are the cron expressions of the three jobs. An empty spec disables its job.
type Specs struct {
	Tick          string
	Retention     string
	CategoryStats string
}

// EngineScheduler is the internal periodic trigger. It drives the same Engine as the HTTP
// trigger endpoint, plus the retention and category stats housekeeping jobs.
type EngineScheduler struct {
	cronEngine *cron.Cron
	engine     TickRunner
	purger     Purger
	stats      StatsRefresher
	specs      Specs
	tickBudget time.Duration
	retention  time.Duration
	logger     *logrus.Entry
}

func NewEngineScheduler(
	engine TickRunner,
	purger Purger,
	stats StatsRefresher,
	specs Specs,
	tickBudget time.Duration,
	retention time.Duration,
	logger *logrus.Entry,
) *EngineScheduler {
	l := logger.WithField("component", "scheduler")
	return &EngineScheduler{
		cronEngine: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(
				cron.Recover(cron.PrintfLogger(l)),
				cron.SkipIfStillRunning(cron.PrintfLogger(l)),
			),
		),
		engine:     engine,
		purger:     purger,
		stats:      stats,
		specs:      specs,
		tickBudget: tickBudget,
		retention:  retention,
		logger:     l,
	}
}

// Start registers the jobs and starts the cron engine.
func (s *EngineScheduler) Start() error {
	s.logger.Info("Starting engine scheduler...")

	jobs := []struct {
		name string
		spec string
		fn   func()
	}{
		{name: "tick", spec: s.specs.Tick, fn: s.runTick},
		{name: "retention", spec: s.specs.Retention, fn: s.runRetention},
		{name: "category_stats", spec: s.specs.CategoryStats, fn: s.runCategoryStats},
	}
	for _, j := range jobs {
		if j.spec == "" {
			s.logger.WithField("job", j.name).Info("No cron spec configured, job disabled")
			continue
		}
		if _, err := s.cronEngine.AddFunc(j.spec, j.fn); err != nil {
			return fmt.Errorf("could not add %s cron job (%q): %w", j.name, j.spec, err)
		}
		s.logger.WithFields(logrus.Fields{"job": j.name, "spec": j.spec}).Info("Cron job registered")
	}

	s.cronEngine.Start()
	s.logger.Info("Engine scheduler started with jobs.")
	return nil
}

func (s *EngineScheduler) runTick() {
	// The engine enforces its own budget; the outer timeout only bounds a stuck lock call.
	ctx, cancel := context.WithTimeout(context.Background(), s.tickBudget+time.Minute)
	defer cancel()

	res, err := s.engine.RunTick(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Scheduled tick aborted")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"tick_id":   res.TickID,
		"success":   res.Success,
		"skipped":   res.Skipped,
		"sent":      res.Sent,
		"escalated": res.Escalated,
		"failures":  res.Failures,
	}).Info("Scheduled tick finished")
}

func (s *EngineScheduler) runRetention() {
	ctx, cancel := context.WithTimeout(context.Background(), retentionTimeout)
	defer cancel()

	n, err := s.purger.PurgeExpired(ctx, s.retention)
	if err != nil {
		s.logger.WithError(err).WithField("purged", n).Error("Notification retention job failed")
		return
	}
	s.logger.WithField("purged", n).Info("Notification retention job finished")
}

func (s *EngineScheduler) runCategoryStats() {
	ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
	defer cancel()

	if err := s.stats.UpdateAllCategoryStats(ctx); err != nil {
		s.logger.WithError(err).Error("Category stats refresh failed")
		return
	}
	s.logger.Info("Category stats refreshed")
}

// Stop stops scheduling new jobs and waits for running ones.
func (s *EngineScheduler) Stop() {
	s.logger.Info("Stopping engine scheduler...")
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	s.logger.Info("Engine scheduler gracefully stopped.")
}
