package app

import (
	"context"
	"time"

	"sla_engine/internal/domain/audit"
	"sla_engine/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const tickLockKey = "sla-engine:tick"

// TickLocker is an optional advisory lock that lets an overlapping tick be skipped.
// ok is false when another holder has the lock.
type TickLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, ok bool, err error)
}

// TickResult is what a trigger caller receives.
type TickResult struct {
	Success       bool           `json:"success"`
	TickID        string         `json:"tickId"`
	Checked       int            `json:"checked"`
	Escalated     int            `json:"escalated"`
	Sent          int            `json:"sent"`
	ByTriggerType map[string]int `json:"byTriggerType"`
	Failures      int            `json:"failures"`
	Deferred      int            `json:"deferred"`
	Skipped       bool           `json:"skipped"`
	DurationMs    int64          `json:"durationMs"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Engine runs one tick: the reminder pass followed by the escalation pass.
type Engine struct {
	reminders   *ReminderService
	escalations *EscalationService
	locker      TickLocker
	budget      time.Duration
	audit       auditor
	logger      *logrus.Entry
	now         func() time.Time
}

func NewEngine(
	reminders *ReminderService,
	escalations *EscalationService,
	locker TickLocker, // may be nil
	budget time.Duration,
	aw audit.Writer,
	logger *logrus.Entry,
) *Engine {
	l := logger.WithField("component", "engine")
	return &Engine{
		reminders:   reminders,
		escalations: escalations,
		locker:      locker,
		budget:      budget,
		audit:       auditor{w: aw, logger: l},
		logger:      l,
		now:         time.Now,
	}
}

// RunTick evaluates reminders and escalations once. An error means the tick was aborted; a
// result with Success false means it completed with per-item failures.
func (e *Engine) RunTick(ctx context.Context) (*TickResult, error) {
	start := time.Now()
	now := e.now()
	res := &TickResult{
		TickID:        uuid.NewString(),
		ByTriggerType: map[string]int{},
		Timestamp:     now,
	}
	logger := e.logger.WithField("tick_id", res.TickID)

	if e.locker != nil {
		ttl := e.budget
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		unlock, ok, err := e.locker.TryLock(ctx, tickLockKey, ttl)
		switch {
		case err != nil:
			logger.WithError(err).Warn("Tick lock unavailable; running without it")
		case !ok:
			logger.Info("Another tick is running; skipping")
			res.Success = true
			res.Skipped = true
			res.DurationMs = time.Since(start).Milliseconds()
			metrics.TicksTotal.WithLabelValues("skipped").Inc()
			e.audit.record(ctx, &audit.Entry{Action: audit.ActionTickSkipped, TickID: res.TickID}, now)
			return res, nil
		default:
			defer func() {
				if err := unlock(context.WithoutCancel(ctx)); err != nil {
					logger.WithError(err).Warn("Failed to release tick lock")
				}
			}()
		}
	}

	var deadline time.Time
	if e.budget > 0 {
		deadline = start.Add(e.budget)
	}

	rem, err := e.reminders.ProcessTick(ctx, res.TickID, now, deadline)
	if err != nil {
		metrics.TicksTotal.WithLabelValues("failed").Inc()
		logger.WithError(err).Error("Tick aborted in reminder pass")
		return nil, err
	}
	esc, err := e.escalations.ProcessTick(ctx, res.TickID, now, deadline)
	if err != nil {
		metrics.TicksTotal.WithLabelValues("failed").Inc()
		logger.WithError(err).Error("Tick aborted in escalation pass")
		return nil, err
	}

	res.Checked = esc.Checked
	res.Escalated = esc.Escalated
	res.Sent = rem.Sent
	for t, n := range esc.ByTriggerType {
		res.ByTriggerType[string(t)] = n
	}
	res.Failures = rem.Failed + esc.Failed
	res.Deferred = rem.Deferred + esc.Deferred
	res.Success = res.Failures == 0
	res.DurationMs = time.Since(start).Milliseconds()

	outcome := "ok"
	if !res.Success {
		outcome = "degraded"
	}
	metrics.TicksTotal.WithLabelValues(outcome).Inc()
	metrics.TickDuration.Observe(time.Since(start).Seconds())
	if res.Deferred > 0 {
		metrics.TickDeferredItems.Add(float64(res.Deferred))
	}

	logger.WithFields(logrus.Fields{
		"checked":     res.Checked,
		"escalated":   res.Escalated,
		"sent":        res.Sent,
		"failures":    res.Failures,
		"deferred":    res.Deferred,
		"duration_ms": res.DurationMs,
	}).Info("Tick finished")
	e.audit.record(ctx, &audit.Entry{
		Action: audit.ActionTickCompleted,
		TickID: res.TickID,
		Details: map[string]any{
			"checked":   res.Checked,
			"escalated": res.Escalated,
			"sent":      res.Sent,
			"failures":  res.Failures,
			"deferred":  res.Deferred,
		},
	}, now)
	return res, nil
}
