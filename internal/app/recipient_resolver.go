package app

import (
	"context"
	"errors"
	"fmt"

	"sla_engine/internal/domain/escalation"
	"sla_engine/internal/domain/user"
	"sla_engine/internal/domain/workitem"

	"github.com/sirupsen/logrus"
)

// ErrNoRecipient is returned when neither the rule's strategy nor the admin fallback yields
// an active user.
var ErrNoRecipient = errors.New("no active recipient for escalation")

// RecipientResolver picks who receives an escalation.
type RecipientResolver struct {
	userRepo user.Repository
	logger   *logrus.Entry
}

func NewRecipientResolver(ur user.Repository, logger *logrus.Entry) *RecipientResolver {
	return &RecipientResolver{
		userRepo: ur,
		logger:   logger.WithField("component", "recipients"),
	}
}

// Resolve applies the rule's strategy to the item and falls back to the first active
// administrator when the strategy names nobody or an inactive user.
func (r *RecipientResolver) Resolve(ctx context.Context, rule *escalation.Rule, item *workitem.WorkItem) (*user.User, error) {
	var candidate int64
	switch rule.RecipientStrategy {
	case escalation.RecipientAssignee:
		if item.AssigneeID.Valid {
			candidate = item.AssigneeID.Int64
		}
	case escalation.RecipientRequester:
		if item.RequesterID.Valid {
			candidate = item.RequesterID.Int64
		}
	case escalation.RecipientFixedUser:
		if rule.RecipientUserID.Valid {
			candidate = rule.RecipientUserID.Int64
		}
	case escalation.RecipientAdmin:
	default:
		r.logger.WithField("strategy", rule.RecipientStrategy).Warn("Unknown recipient strategy, using admin fallback")
	}

	if candidate > 0 {
		u, err := r.userRepo.GetByID(ctx, candidate)
		switch {
		case err == nil && u.IsActive:
			return u, nil
		case err == nil:
			r.logger.WithField("user_id", candidate).Info("Escalation recipient is inactive, using admin fallback")
		case errors.Is(err, user.ErrNotFound):
			r.logger.WithField("user_id", candidate).Warn("Escalation recipient not found, using admin fallback")
		default:
			return nil, fmt.Errorf("failed to load recipient %d: %w", candidate, err)
		}
	}
	return r.FirstAdmin(ctx)
}

// FirstAdmin returns the first active administrator.
func (r *RecipientResolver) FirstAdmin(ctx context.Context) (*user.User, error) {
	admins, err := r.Admins(ctx)
	if err != nil {
		return nil, err
	}
	if len(admins) == 0 {
		return nil, ErrNoRecipient
	}
	return admins[0], nil
}

// Admins lists the active administrators.
func (r *RecipientResolver) Admins(ctx context.Context) ([]*user.User, error) {
	admins, err := r.userRepo.ListActiveAdmins(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active admins: %w", err)
	}
	return admins, nil
}
