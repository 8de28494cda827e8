package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"sla_engine/internal/domain/category"
	"sla_engine/internal/domain/escalation"
	"sla_engine/internal/domain/notification"
	"sla_engine/internal/domain/timer"
	"sla_engine/pkg/xerr"

	"github.com/gin-gonic/gin"
)

type sessionResponse struct {
	ID                    int64      `json:"id"`
	WorkItemID            int64      `json:"workItemId"`
	UserID                int64      `json:"userId"`
	State                 string     `json:"state"`
	StartedAt             time.Time  `json:"startedAt"`
	PausedAt              *time.Time `json:"pausedAt,omitempty"`
	AccumulatedPausedSecs int64      `json:"accumulatedPausedSeconds"`
	Version               int64      `json:"version"`
}

func toSession(s *timer.Session) sessionResponse {
	resp := sessionResponse{
		ID:                    s.ID,
		WorkItemID:            s.WorkItemID,
		UserID:                s.UserID,
		State:                 string(s.State.Name()),
		StartedAt:             s.StartedAt,
		AccumulatedPausedSecs: int64(s.AccumulatedPaused / time.Second),
		Version:               s.Version,
	}
	if p, ok := s.State.(timer.Paused); ok {
		at := p.At
		resp.PausedAt = &at
	}
	return resp
}

type durationLogResponse struct {
	ID            int64     `json:"id"`
	SessionID     int64     `json:"sessionId"`
	WorkItemID    int64     `json:"workItemId"`
	UserID        int64     `json:"userId"`
	StartedAt     time.Time `json:"startedAt"`
	StoppedAt     time.Time `json:"stoppedAt"`
	PausedSeconds int64     `json:"pausedSeconds"`
	WorkedSeconds int64     `json:"workedSeconds"`
}

func toDurationLog(l *timer.DurationLog) durationLogResponse {
	return durationLogResponse{
		ID:            l.ID,
		SessionID:     l.SessionID,
		WorkItemID:    l.WorkItemID,
		UserID:        l.UserID,
		StartedAt:     l.StartedAt,
		StoppedAt:     l.StoppedAt,
		PausedSeconds: int64(l.PausedDuration / time.Second),
		WorkedSeconds: int64(l.WorkedDuration / time.Second),
	}
}

type escalationResponse struct {
	ID          int64     `json:"id"`
	RuleID      int64     `json:"ruleId"`
	TriggerType string    `json:"triggerType"`
	EpisodeKey  time.Time `json:"episodeKey"`
	RecipientID int64     `json:"recipientId"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toEscalation(r *escalation.Record) escalationResponse {
	return escalationResponse{
		ID:          r.ID,
		RuleID:      r.RuleID,
		TriggerType: string(r.TriggerType),
		EpisodeKey:  r.EpisodeKey,
		RecipientID: r.RecipientID,
		Reason:      r.Reason,
		CreatedAt:   r.CreatedAt,
	}
}

type statsResponse struct {
	CategoryID  int64     `json:"categoryId"`
	MeanHours   float64   `json:"meanHours"`
	MedianHours float64   `json:"medianHours"`
	MinHours    float64   `json:"minHours"`
	MaxHours    float64   `json:"maxHours"`
	SampleSize  int       `json:"sampleSize"`
	ComputedAt  time.Time `json:"computedAt"`
}

func toStats(s *category.Stats) *statsResponse {
	if s == nil {
		return nil
	}
	return &statsResponse{
		CategoryID:  s.CategoryID,
		MeanHours:   s.MeanHours,
		MedianHours: s.MedianHours,
		MinHours:    s.MinHours,
		MaxHours:    s.MaxHours,
		SampleSize:  s.SampleSize,
		ComputedAt:  s.ComputedAt,
	}
}

type notificationResponse struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Priority  string          `json:"priority"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	IsRead    bool            `json:"isRead"`
	CreatedAt time.Time       `json:"createdAt"`
	ReadAt    *time.Time      `json:"readAt,omitempty"`
}

func toNotification(n *notification.Notification) notificationResponse {
	resp := notificationResponse{
		ID:        n.ID,
		Type:      string(n.Type),
		Priority:  string(n.Priority),
		Title:     n.Title,
		Message:   n.Message,
		Metadata:  n.Metadata,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
	if n.ReadAt.Valid {
		at := n.ReadAt.Time
		resp.ReadAt = &at
	}
	return resp
}

// respondError writes err with the status its kind maps to.
func (s *server) respondError(c *gin.Context, err error) {
	status := xerr.HTTPStatus(err)
	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": "internal server error", "kind": xerr.KindOf(err).String()})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": xerr.KindOf(err).String()})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// queryTime parses an RFC 3339 query parameter, defaulting to now when absent.
func queryTime(c *gin.Context, name string, now time.Time) (time.Time, bool) {
	v := c.Query(name)
	if v == "" {
		return now, true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name + ", expected RFC 3339"})
		return time.Time{}, false
	}
	return t, true
}
