package escalation

import (
	"context"
	"database/sql"
	"time"
)

// TriggerType names a breach condition in the rule catalog.
type TriggerType string

const (
	TriggerNoConfirmation       TriggerType = "NO_CONFIRMATION"
	TriggerClarificationTimeout TriggerType = "CLARIFICATION_TIMEOUT"
	TriggerSLAOverdue           TriggerType = "SLA_OVERDUE"
	TriggerStuckTask            TriggerType = "STUCK_TASK"
)

// TriggerTypes is the fixed catalog, in evaluation order.
var TriggerTypes = []TriggerType{
	TriggerNoConfirmation,
	TriggerClarificationTimeout,
	TriggerSLAOverdue,
	TriggerStuckTask,
}

// RecipientStrategy picks who receives an escalation.
type RecipientStrategy string

const (
	RecipientAssignee  RecipientStrategy = "ASSIGNEE"
	RecipientRequester RecipientStrategy = "REQUESTER"
	RecipientAdmin     RecipientStrategy = "ADMIN"
	RecipientFixedUser RecipientStrategy = "FIXED_USER"
)

// EntityWorkItem is the only entity type the built-in rules evaluate.
const EntityWorkItem = "work_item"

// Rule is one configured entry of the catalog.
type Rule struct {
	ID                int64
	TriggerType       TriggerType
	Threshold         time.Duration
	RecipientStrategy RecipientStrategy
	RecipientUserID   sql.NullInt64 // used by FIXED_USER
	Enabled           bool
}

// DefaultRules is used when no rules are configured. The ids match the rows the schema seeds.
func DefaultRules() []*Rule {
	return []*Rule{
		{ID: 1, TriggerType: TriggerNoConfirmation, Threshold: 24 * time.Hour, RecipientStrategy: RecipientAdmin, Enabled: true},
		{ID: 2, TriggerType: TriggerClarificationTimeout, Threshold: 8 * time.Hour, RecipientStrategy: RecipientRequester, Enabled: true},
		{ID: 3, TriggerType: TriggerSLAOverdue, RecipientStrategy: RecipientAssignee, Enabled: true},
		{ID: 4, TriggerType: TriggerStuckTask, Threshold: 48 * time.Hour, RecipientStrategy: RecipientAssignee, Enabled: true},
	}
}

// Record is the idempotency guard of one breach episode.
// (RuleID, TriggerType, EntityType, EntityID, EpisodeKey) is unique.
type Record struct {
	ID          int64
	RuleID      int64
	TriggerType TriggerType
	EntityType  string
	EntityID    int64
	// EpisodeKey identifies the continuous breach; it changes when the condition clears
	// and later holds again.
	EpisodeKey  time.Time
	RecipientID int64
	Reason      string
	CreatedAt   time.Time
}

// Repository stores escalation records. Claim reports false when the episode already has one.
type Repository interface {
	Claim(ctx context.Context, rec *Record) (bool, error)
	Release(ctx context.Context, rec *Record) error
	CountSince(ctx context.Context, since time.Time) (int, error)
	ListByEntity(ctx context.Context, entityType string, entityID int64) ([]*Record, error)
}

// RuleRepository reads the configured rule catalog.
type RuleRepository interface {
	ListRules(ctx context.Context) ([]*Rule, error)
}
