package app

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"sla_engine/internal/domain/audit"
	"sla_engine/internal/domain/escalation"
	"sla_engine/internal/domain/notification"
	"sla_engine/internal/domain/reminder"
	"sla_engine/internal/domain/sla"
	"sla_engine/internal/domain/workitem"
	"sla_engine/internal/infra/metrics"
	"sla_engine/pkg/xerr"

	"github.com/sirupsen/logrus"
)

// ReminderResult summarizes one reminder pass.
type ReminderResult struct {
	Checked  int
	Sent     int
	Failed   int
	Deferred int
}

type itemOutcome int

const (
	outcomeNone itemOutcome = iota
	outcomeSent
	outcomeDuplicate
	outcomeSkipped
	outcomeFailed
)

// ReminderService sends threshold reminders for in-progress work items.
type ReminderService struct {
	configRepo   reminder.ConfigRepository
	workItemRepo workitem.Repository
	sendRepo     reminder.Repository
	dispatcher   *NotificationService
	audit        auditor
	concurrency  int
	logger       *logrus.Entry
}

func NewReminderService(
	cr reminder.ConfigRepository,
	wr workitem.Repository,
	sr reminder.Repository,
	dispatcher *NotificationService,
	aw audit.Writer,
	concurrency int,
	logger *logrus.Entry,
) *ReminderService {
	l := logger.WithField("component", "reminders")
	return &ReminderService{
		configRepo:   cr,
		workItemRepo: wr,
		sendRepo:     sr,
		dispatcher:   dispatcher,
		audit:        auditor{w: aw, logger: l},
		concurrency:  concurrency,
		logger:       l,
	}
}

// ProcessTick evaluates every eligible item at now. Per-item failures are counted and retried
// on a later tick; only failures to load the configuration or the candidates are returned.
// Items not started before deadline are deferred.
func (s *ReminderService) ProcessTick(ctx context.Context, tickID string, now, deadline time.Time) (*ReminderResult, error) {
	const op = "reminder.tick"
	logger := s.logger.WithField("tick_id", tickID)

	cfg, err := s.configRepo.GetReminderConfig(ctx)
	if err != nil {
		return nil, xerr.Transient(op, fmt.Errorf("load reminder config: %w", err))
	}
	if cfg == nil || !cfg.Enabled {
		logger.Debug("Reminders disabled")
		return &ReminderResult{}, nil
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Error("Reminder config is invalid; no reminders sent")
		return &ReminderResult{}, nil
	}

	items, err := s.workItemRepo.FindActiveByStatus(ctx, workitem.StatusInProgress)
	if err != nil {
		return nil, xerr.Transient(op, fmt.Errorf("load in-progress items: %w", err))
	}
	eligible := items[:0:0]
	for _, it := range items {
		if it.Paused || !it.StartedAt.Valid || it.CompletedAt.Valid {
			continue
		}
		eligible = append(eligible, it)
	}

	res := &ReminderResult{Checked: len(eligible)}
	budgetCtx, cancel := budgetContext(ctx, deadline)
	defer cancel()
	var mu sync.Mutex
	res.Deferred = forEach(budgetCtx, s.concurrency, eligible, func(ctx context.Context, item *workitem.WorkItem) {
		outcome := s.processItem(ctx, tickID, cfg, item, now)
		mu.Lock()
		defer mu.Unlock()
		switch outcome {
		case outcomeSent:
			res.Sent++
		case outcomeFailed:
			res.Failed++
		}
	})

	logger.WithFields(logrus.Fields{
		"checked":  res.Checked,
		"sent":     res.Sent,
		"failed":   res.Failed,
		"deferred": res.Deferred,
	}).Info("Reminder pass finished")
	return res, nil
}

func (s *ReminderService) processItem(ctx context.Context, tickID string, cfg *reminder.Config, item *workitem.WorkItem, now time.Time) itemOutcome {
	elapsed := now.Sub(item.StartedAt.Time)
	level, ok := cfg.MatchLevel(elapsed)
	if !ok {
		return outcomeNone
	}
	logger := s.logger.WithFields(logrus.Fields{
		"tick_id":      tickID,
		"work_item_id": item.ID,
		"level":        level,
	})
	if !item.AssigneeID.Valid {
		logger.Warn("In-progress item has no assignee; reminder skipped")
		return outcomeSkipped
	}

	rec := &reminder.SendRecord{
		WorkItemID:   item.ID,
		Level:        level,
		RunStartedAt: item.StartedAt.Time,
		SentAt:       now,
	}
	claimed, err := s.sendRepo.Claim(ctx, rec)
	if err != nil {
		logger.WithError(err).Error("Failed to claim reminder")
		metrics.RemindersFailed.WithLabelValues(levelLabel(level)).Inc()
		return outcomeFailed
	}
	if !claimed {
		logger.Debug("Reminder already sent for this run")
		return outcomeDuplicate
	}

	params := reminderParams(item, level, elapsed, now)
	_, err = s.dispatcher.Create(ctx, NotificationRequest{
		UserID:      item.AssigneeID.Int64,
		Type:        notification.TypeReminder,
		Priority:    reminderPriority(level),
		TemplateKey: TemplateReminder,
		Title:       TemplateReminder,
		Message:     fmt.Sprintf("work item %d: reminder level %d", item.ID, level),
		Params:      params,
		Channels:    cfg.Channels,
		TickID:      tickID,
	})
	if err != nil {
		if relErr := s.sendRepo.Release(context.WithoutCancel(ctx), rec); relErr != nil {
			logger.WithError(relErr).Error("Failed to release reminder claim")
		}
		logger.WithError(err).Error("Failed to dispatch reminder; will retry next tick")
		metrics.RemindersFailed.WithLabelValues(levelLabel(level)).Inc()
		s.audit.record(ctx, &audit.Entry{
			Action:     audit.ActionReminderFailed,
			TickID:     tickID,
			EntityType: escalation.EntityWorkItem,
			EntityID:   item.ID,
			UserID:     item.AssigneeID.Int64,
			Details:    map[string]any{"level": int(level), "error": err.Error()},
		}, now)
		return outcomeFailed
	}

	logger.Info("Reminder sent")
	metrics.RemindersSent.WithLabelValues(levelLabel(level)).Inc()
	s.audit.record(ctx, &audit.Entry{
		Action:     audit.ActionReminderSent,
		TickID:     tickID,
		EntityType: escalation.EntityWorkItem,
		EntityID:   item.ID,
		UserID:     item.AssigneeID.Int64,
		Details:    params,
	}, now)
	return outcomeSent
}

func reminderParams(item *workitem.WorkItem, level reminder.Level, elapsed time.Duration, now time.Time) map[string]any {
	params := map[string]any{
		"workItemId":     item.ID,
		"level":          int(level),
		"elapsedMinutes": int64(elapsed.Minutes()),
	}
	if item.HasSLA() {
		r := sla.Compute(item.Deadline.Time, item.AccumulatedPaused, item.SLAWindow, now)
		params["deadline"] = r.AdjustedDeadline.Format(time.RFC3339)
		params["remainingMinutes"] = r.RemainingMinutes()
		params["slaStatus"] = string(r.Status)
	}
	return params
}

func reminderPriority(level reminder.Level) notification.Priority {
	switch level {
	case reminder.Level3:
		return notification.PriorityUrgent
	case reminder.Level2:
		return notification.PriorityWarning
	default:
		return notification.PriorityInfo
	}
}

func levelLabel(l reminder.Level) string {
	return strconv.Itoa(int(l))
}
