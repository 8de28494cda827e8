// internal/app/notification_service.go
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sla_engine/internal/domain/audit"
	"sla_engine/internal/domain/notification"
	"sla_engine/internal/infra/metrics"
	"sla_engine/pkg/xerr"

	"github.com/sirupsen/logrus"
)

const purgeBatchSize = 500

// OutboundPusher delivers a persisted notification through external channels.
// An empty channel list means every configured channel.
type OutboundPusher interface {
	Push(ctx context.Context, channels []string, userID int64, templateKey string, params map[string]any) error
}

// NotificationRequest describes a notification to create. Title and Message are fallbacks for
// clients that do not render TemplateKey themselves.
type NotificationRequest struct {
	UserID      int64
	Type        notification.Type
	Priority    notification.Priority
	TemplateKey string
	Title       string
	Message     string
	Params      map[string]any
	Channels    []string
	TickID      string
}

// NotificationService is the dispatcher: it applies Do-Not-Disturb, persists in-app
// notifications and pushes them to outbound channels.
type NotificationService struct {
	notifRepo   notification.Repository
	settingRepo notification.SettingRepository
	outbound    OutboundPusher
	audit       auditor
	logger      *logrus.Entry
	now         func() time.Time
}

func NewNotificationService(
	nr notification.Repository,
	sr notification.SettingRepository,
	outbound OutboundPusher, // may be nil
	aw audit.Writer,
	logger *logrus.Entry,
) *NotificationService {
	l := logger.WithField("component", "dispatcher")
	return &NotificationService{
		notifRepo:   nr,
		settingRepo: sr,
		outbound:    outbound,
		audit:       auditor{w: aw, logger: l},
		logger:      l,
		now:         time.Now,
	}
}

// Create persists a notification unless the recipient's DND window suppresses it. A suppressed
// call returns nil and no error. Outbound delivery failures are logged and do not fail the call.
func (s *NotificationService) Create(ctx context.Context, req NotificationRequest) (*notification.Notification, error) {
	const op = "notification.create"
	if req.UserID <= 0 {
		return nil, xerr.Validation(op, "recipient is required")
	}
	if req.Priority == "" {
		req.Priority = notification.PriorityInfo
	}
	now := s.now()
	logger := s.logger.WithFields(logrus.Fields{
		"user_id":  req.UserID,
		"type":     req.Type,
		"priority": req.Priority,
		"tick_id":  req.TickID,
	})

	setting, err := s.settingRepo.GetSetting(ctx, req.UserID)
	if err != nil {
		return nil, xerr.Transient(op, fmt.Errorf("load notification settings: %w", err))
	}
	if setting.Suppresses(req.Priority, now) {
		logger.Info("Notification suppressed by Do-Not-Disturb")
		metrics.NotificationsSuppressed.WithLabelValues(string(req.Type)).Inc()
		s.audit.record(ctx, &audit.Entry{
			Action: audit.ActionNotificationSuppressed,
			TickID: req.TickID,
			UserID: req.UserID,
			Details: map[string]any{
				"type":         req.Type,
				"priority":     req.Priority,
				"template_key": req.TemplateKey,
			},
		}, now)
		return nil, nil
	}

	metadata, err := buildMetadata(req)
	if err != nil {
		return nil, xerr.Validation(op, err.Error())
	}
	n := &notification.Notification{
		UserID:    req.UserID,
		Type:      req.Type,
		Priority:  req.Priority,
		Title:     req.Title,
		Message:   req.Message,
		Metadata:  metadata,
		CreatedAt: now,
	}
	if err := s.notifRepo.Create(ctx, n); err != nil {
		return nil, xerr.Transient(op, err)
	}
	metrics.NotificationsCreated.WithLabelValues(string(req.Type), string(req.Priority)).Inc()
	logger.WithField("notification_id", n.ID).Info("Notification created")
	s.audit.record(ctx, &audit.Entry{
		Action:     audit.ActionNotificationCreated,
		TickID:     req.TickID,
		EntityType: "notification",
		EntityID:   n.ID,
		UserID:     req.UserID,
		Details:    map[string]any{"type": req.Type, "priority": req.Priority},
	}, now)

	if s.outbound != nil && req.TemplateKey != "" {
		if err := s.outbound.Push(ctx, req.Channels, req.UserID, req.TemplateKey, req.Params); err != nil {
			logger.WithError(err).Warn("Outbound delivery failed; notification kept in-app")
		}
	}
	return n, nil
}

func buildMetadata(req NotificationRequest) (json.RawMessage, error) {
	md := map[string]any{}
	for k, v := range req.Params {
		md[k] = v
	}
	if req.TemplateKey != "" {
		md["templateKey"] = req.TemplateKey
	}
	if len(md) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("metadata is not serializable: %w", err)
	}
	return raw, nil
}

// MarkAsRead acknowledges one notification of userID. Re-marking succeeds trivially.
func (s *NotificationService) MarkAsRead(ctx context.Context, userID, notificationID int64) error {
	const op = "notification.mark_read"
	n, err := s.notifRepo.GetByID(ctx, notificationID)
	if err != nil {
		if errors.Is(err, notification.ErrNotFound) {
			return xerr.NotFound(op, err)
		}
		return xerr.Transient(op, err)
	}
	if n.UserID != userID {
		// Other users' notifications are reported as missing.
		return xerr.NotFound(op, notification.ErrNotFound)
	}
	if n.IsRead {
		return nil
	}
	if err := s.notifRepo.MarkAsRead(ctx, notificationID, s.now()); err != nil {
		return xerr.Transient(op, err)
	}
	return nil
}

// MarkAllAsRead acknowledges every unread notification of userID and returns how many changed.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID int64) (int64, error) {
	n, err := s.notifRepo.MarkAllAsRead(ctx, userID, s.now())
	if err != nil {
		return 0, xerr.Transient("notification.mark_all_read", err)
	}
	return n, nil
}

// ListForUser returns the newest notifications of userID.
func (s *NotificationService) ListForUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*notification.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	list, err := s.notifRepo.ListByUser(ctx, userID, unreadOnly, limit)
	if err != nil {
		return nil, xerr.Transient("notification.list", err)
	}
	return list, nil
}

func (s *NotificationService) CountUnread(ctx context.Context, userID int64) (int, error) {
	n, err := s.notifRepo.CountUnread(ctx, userID)
	if err != nil {
		return 0, xerr.Transient("notification.count_unread", err)
	}
	return n, nil
}

// SentSince reports whether userID already received a notification of type t since the given time.
func (s *NotificationService) SentSince(ctx context.Context, userID int64, t notification.Type, since time.Time) (bool, error) {
	ok, err := s.notifRepo.ExistsSince(ctx, userID, t, since)
	if err != nil {
		return false, xerr.Transient("notification.sent_since", err)
	}
	return ok, nil
}

// PurgeExpired deletes read notifications older than retention in batches. Unread
// notifications are never purged.
func (s *NotificationService) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, xerr.Validation("notification.purge", "retention must be positive")
	}
	now := s.now()
	cutoff := now.Add(-retention)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, xerr.Transient("notification.purge", err)
		}
		n, err := s.notifRepo.PurgeRead(ctx, cutoff, purgeBatchSize)
		if err != nil {
			return total, xerr.Transient("notification.purge", err)
		}
		total += n
		if n < purgeBatchSize {
			break
		}
	}
	s.logger.WithFields(logrus.Fields{
		"purged": total,
		"cutoff": cutoff.Format(time.RFC3339),
	}).Info("Read notifications purged")
	if total > 0 {
		s.audit.record(ctx, &audit.Entry{
			Action:  audit.ActionNotificationPurged,
			Details: map[string]any{"count": total, "cutoff": cutoff},
		}, now)
	}
	return total, nil
}
