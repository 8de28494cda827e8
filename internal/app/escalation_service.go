package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sla_engine/internal/domain/audit"
	"sla_engine/internal/domain/escalation"
	"sla_engine/internal/domain/notification"
	"sla_engine/internal/domain/sla"
	"sla_engine/internal/domain/workitem"
	"sla_engine/internal/infra/metrics"
	"sla_engine/pkg/xerr"

	"github.com/sirupsen/logrus"
)

// EscalationResult summarizes one detector pass.
type EscalationResult struct {
	Checked       int
	Escalated     int
	ByTriggerType map[escalation.TriggerType]int
	Skipped       int
	Failed        int
	Deferred      int
}

// VolumeAlert configures the "too many escalations" alert. A zero Threshold disables it.
type VolumeAlert struct {
	Window    time.Duration
	Threshold int
}

// candidate is an item breaching a rule in a given episode.
type candidate struct {
	rule       *escalation.Rule
	item       *workitem.WorkItem
	episodeKey time.Time
	reason     string
	params     map[string]any
}

// EscalationService evaluates the escalation rule catalog against active work items.
type EscalationService struct {
	ruleRepo     escalation.RuleRepository
	workItemRepo workitem.Repository
	escRepo      escalation.Repository
	resolver     *RecipientResolver
	dispatcher   *NotificationService
	audit        auditor
	volume       VolumeAlert
	concurrency  int
	logger       *logrus.Entry
}

func NewEscalationService(
	rr escalation.RuleRepository,
	wr workitem.Repository,
	er escalation.Repository,
	resolver *RecipientResolver,
	dispatcher *NotificationService,
	aw audit.Writer,
	volume VolumeAlert,
	concurrency int,
	logger *logrus.Entry,
) *EscalationService {
	l := logger.WithField("component", "escalations")
	return &EscalationService{
		ruleRepo:     rr,
		workItemRepo: wr,
		escRepo:      er,
		resolver:     resolver,
		dispatcher:   dispatcher,
		audit:        auditor{w: aw, logger: l},
		volume:       volume,
		concurrency:  concurrency,
		logger:       l,
	}
}

// History lists the escalation records of a work item, oldest first.
func (s *EscalationService) History(ctx context.Context, workItemID int64) ([]*escalation.Record, error) {
	const op = "EscalationService.History"
	if _, err := s.workItemRepo.FindByID(ctx, workItemID); err != nil {
		if errors.Is(err, workitem.ErrNotFound) {
			return nil, xerr.NotFound(op, err)
		}
		return nil, xerr.Transient(op, err)
	}
	records, err := s.escRepo.ListByEntity(ctx, escalation.EntityWorkItem, workItemID)
	if err != nil {
		return nil, xerr.Transient(op, err)
	}
	return records, nil
}

// ProcessTick evaluates every enabled rule against the active items at now. Rules and items
// load on ctx; candidates not started before deadline are deferred.
func (s *EscalationService) ProcessTick(ctx context.Context, tickID string, now, deadline time.Time) (*EscalationResult, error) {
	const op = "escalation.tick"
	logger := s.logger.WithField("tick_id", tickID)

	rules, err := s.ruleRepo.ListRules(ctx)
	if err != nil {
		return nil, xerr.Transient(op, fmt.Errorf("load escalation rules: %w", err))
	}
	if len(rules) == 0 {
		rules = escalation.DefaultRules()
	}

	var items []*workitem.WorkItem
	for _, st := range workitem.ActiveStatuses {
		batch, err := s.workItemRepo.FindActiveByStatus(ctx, st)
		if err != nil {
			return nil, xerr.Transient(op, fmt.Errorf("load %s items: %w", st, err))
		}
		items = append(items, batch...)
	}

	var candidates []candidate
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		for _, item := range items {
			if c, ok := evaluate(rule, item, now); ok {
				candidates = append(candidates, c)
			}
		}
	}

	res := &EscalationResult{
		Checked:       len(items),
		ByTriggerType: make(map[escalation.TriggerType]int),
	}
	budgetCtx, cancel := budgetContext(ctx, deadline)
	defer cancel()
	var mu sync.Mutex
	res.Deferred = forEach(budgetCtx, s.concurrency, candidates, func(ctx context.Context, c candidate) {
		outcome := s.processCandidate(ctx, tickID, c, now)
		mu.Lock()
		defer mu.Unlock()
		switch outcome {
		case outcomeSent:
			res.Escalated++
			res.ByTriggerType[c.rule.TriggerType]++
		case outcomeSkipped:
			res.Skipped++
		case outcomeFailed:
			res.Failed++
		}
	})

	if res.Escalated > 0 && ctx.Err() == nil {
		if err := s.checkVolume(ctx, tickID, now); err != nil {
			logger.WithError(err).Warn("Escalation volume check failed")
		}
	}

	logger.WithFields(logrus.Fields{
		"checked":    res.Checked,
		"candidates": len(candidates),
		"escalated":  res.Escalated,
		"skipped":    res.Skipped,
		"failed":     res.Failed,
		"deferred":   res.Deferred,
	}).Info("Escalation pass finished")
	return res, nil
}

// evaluate reports whether item breaches rule at now, and the episode the breach belongs to.
// An episode key is the state timestamp the breach is measured from, so a cleared and
// re-occurring condition yields a new key.
func evaluate(rule *escalation.Rule, item *workitem.WorkItem, now time.Time) (candidate, bool) {
	c := candidate{rule: rule, item: item}
	switch rule.TriggerType {
	case escalation.TriggerNoConfirmation:
		if item.Status != workitem.StatusNew || now.Sub(item.CreatedAt) <= rule.Threshold {
			return c, false
		}
		c.episodeKey = item.StatusChangedAt
		c.reason = fmt.Sprintf("not confirmed for %s", roundDuration(now.Sub(item.CreatedAt)))
		c.params = map[string]any{"hoursWaiting": int64(now.Sub(item.CreatedAt).Hours())}

	case escalation.TriggerClarificationTimeout:
		if item.Status != workitem.StatusNeedsClarification || now.Sub(item.StatusChangedAt) <= rule.Threshold {
			return c, false
		}
		c.episodeKey = item.StatusChangedAt
		c.reason = fmt.Sprintf("awaiting clarification for %s", roundDuration(now.Sub(item.StatusChangedAt)))
		c.params = map[string]any{"hoursWaiting": int64(now.Sub(item.StatusChangedAt).Hours())}

	case escalation.TriggerSLAOverdue:
		// A paused item's deadline keeps moving until it resumes.
		if !item.HasSLA() || item.Paused {
			return c, false
		}
		r := sla.Compute(item.Deadline.Time, item.AccumulatedPaused, item.SLAWindow, now)
		if r.Status != sla.StatusOverdue {
			return c, false
		}
		c.episodeKey = r.AdjustedDeadline
		c.reason = fmt.Sprintf("SLA overdue by %d minutes", -r.RemainingMinutes())
		c.params = map[string]any{
			"deadline":         r.AdjustedDeadline.Format(time.RFC3339),
			"remainingMinutes": r.RemainingMinutes(),
		}

	case escalation.TriggerStuckTask:
		if item.Status.IsTerminal() || now.Sub(item.LastEventAt) <= rule.Threshold {
			return c, false
		}
		c.episodeKey = item.LastEventAt
		c.reason = fmt.Sprintf("no activity for %s", roundDuration(now.Sub(item.LastEventAt)))
		c.params = map[string]any{"hoursIdle": int64(now.Sub(item.LastEventAt).Hours())}

	default:
		return c, false
	}
	c.params["workItemId"] = item.ID
	c.params["triggerType"] = string(rule.TriggerType)
	c.params["status"] = string(item.Status)
	c.params["reason"] = c.reason
	return c, true
}

func (s *EscalationService) processCandidate(ctx context.Context, tickID string, c candidate, now time.Time) itemOutcome {
	trigger := string(c.rule.TriggerType)
	logger := s.logger.WithFields(logrus.Fields{
		"tick_id":      tickID,
		"work_item_id": c.item.ID,
		"rule_id":      c.rule.ID,
		"trigger_type": trigger,
	})

	recipient, err := s.resolver.Resolve(ctx, c.rule, c.item)
	if err != nil {
		if !errors.Is(err, ErrNoRecipient) {
			logger.WithError(err).Error("Failed to resolve escalation recipient")
			metrics.EscalationsFailed.WithLabelValues(trigger).Inc()
			return outcomeFailed
		}
		logger.Warn("No recipient for escalation; candidate skipped")
		metrics.EscalationsSkipped.WithLabelValues(trigger).Inc()
		s.audit.record(ctx, &audit.Entry{
			Action:     audit.ActionEscalationSkipped,
			TickID:     tickID,
			EntityType: escalation.EntityWorkItem,
			EntityID:   c.item.ID,
			Details:    map[string]any{"rule_id": c.rule.ID, "trigger_type": trigger, "reason": "no recipient"},
		}, now)
		return outcomeSkipped
	}

	rec := &escalation.Record{
		RuleID:      c.rule.ID,
		TriggerType: c.rule.TriggerType,
		EntityType:  escalation.EntityWorkItem,
		EntityID:    c.item.ID,
		EpisodeKey:  c.episodeKey,
		RecipientID: recipient.ID,
		Reason:      c.reason,
		CreatedAt:   now,
	}
	claimed, err := s.escRepo.Claim(ctx, rec)
	if err != nil {
		logger.WithError(err).Error("Failed to record escalation")
		metrics.EscalationsFailed.WithLabelValues(trigger).Inc()
		return outcomeFailed
	}
	if !claimed {
		logger.Debug("Escalation already recorded for this episode")
		return outcomeDuplicate
	}

	_, err = s.dispatcher.Create(ctx, NotificationRequest{
		UserID:      recipient.ID,
		Type:        notification.TypeEscalation,
		Priority:    escalationPriority(c.rule.TriggerType),
		TemplateKey: TemplateEscalation,
		Title:       TemplateEscalation,
		Message:     fmt.Sprintf("work item %d: %s", c.item.ID, c.reason),
		Params:      c.params,
		TickID:      tickID,
	})
	if err != nil {
		if relErr := s.escRepo.Release(context.WithoutCancel(ctx), rec); relErr != nil {
			logger.WithError(relErr).Error("Failed to release escalation record")
		}
		logger.WithError(err).Error("Failed to dispatch escalation; will retry next tick")
		metrics.EscalationsFailed.WithLabelValues(trigger).Inc()
		s.audit.record(ctx, &audit.Entry{
			Action:     audit.ActionEscalationFailed,
			TickID:     tickID,
			EntityType: escalation.EntityWorkItem,
			EntityID:   c.item.ID,
			UserID:     recipient.ID,
			Details:    map[string]any{"rule_id": c.rule.ID, "trigger_type": trigger, "error": err.Error()},
		}, now)
		return outcomeFailed
	}

	logger.WithField("recipient_id", recipient.ID).Info("Escalation created")
	metrics.EscalationsCreated.WithLabelValues(trigger).Inc()
	s.audit.record(ctx, &audit.Entry{
		Action:     audit.ActionEscalationCreated,
		TickID:     tickID,
		EntityType: escalation.EntityWorkItem,
		EntityID:   c.item.ID,
		UserID:     recipient.ID,
		Details: map[string]any{
			"rule_id":      c.rule.ID,
			"trigger_type": trigger,
			"episode_key":  c.episodeKey,
			"reason":       c.reason,
		},
	}, now)
	return outcomeSent
}

// checkVolume alerts administrators once per window when the persisted escalation count
// reaches the threshold.
func (s *EscalationService) checkVolume(ctx context.Context, tickID string, now time.Time) error {
	if s.volume.Threshold <= 0 || s.volume.Window <= 0 {
		return nil
	}
	since := now.Add(-s.volume.Window)
	count, err := s.escRepo.CountSince(ctx, since)
	if err != nil {
		return fmt.Errorf("count escalations: %w", err)
	}
	if count < s.volume.Threshold {
		return nil
	}
	admins, err := s.resolver.Admins(ctx)
	if err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"tick_id": tickID,
		"count":   count,
		"window":  s.volume.Window.String(),
	}).Warn("Escalation volume is high")

	var errs []error
	for _, admin := range admins {
		sent, err := s.dispatcher.SentSince(ctx, admin.ID, notification.TypeEscalationVolumeHigh, since)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if sent {
			continue
		}
		_, err = s.dispatcher.Create(ctx, NotificationRequest{
			UserID:      admin.ID,
			Type:        notification.TypeEscalationVolumeHigh,
			Priority:    notification.PriorityUrgent,
			TemplateKey: TemplateEscalationVolumeHigh,
			Title:       TemplateEscalationVolumeHigh,
			Message:     fmt.Sprintf("%d escalations in the last %s", count, s.volume.Window),
			Params: map[string]any{
				"count":         count,
				"threshold":     s.volume.Threshold,
				"windowMinutes": int64(s.volume.Window.Minutes()),
			},
			TickID: tickID,
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func escalationPriority(t escalation.TriggerType) notification.Priority {
	if t == escalation.TriggerSLAOverdue {
		return notification.PriorityUrgent
	}
	return notification.PriorityWarning
}

func roundDuration(d time.Duration) string {
	return d.Round(time.Minute).String()
}
