package httpapi

import (
	"context"
	"net/http"
	"time"

	"sla_engine/internal/app"
	"sla_engine/internal/domain/category"
	"sla_engine/internal/domain/escalation"
	"sla_engine/internal/domain/notification"
	"sla_engine/internal/domain/timer"
	"sla_engine/internal/infra/metrics"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// TickRunner runs one engine tick.
type TickRunner interface {
	RunTick(ctx context.Context) (*app.TickResult, error)
}

// Timers is the timer session manager.
type Timers interface {
	Start(ctx context.Context, workItemID, userID int64) (*timer.Session, error)
	Pause(ctx context.Context, sessionID int64) (*timer.Session, error)
	Resume(ctx context.Context, sessionID int64) (*timer.Session, error)
	Stop(ctx context.Context, sessionID int64) (*timer.DurationLog, error)
	ActiveSession(ctx context.Context, workItemID int64) (*timer.Session, error)
	Logs(ctx context.Context, workItemID int64) ([]*timer.DurationLog, error)
}

// Deadlines is the deadline and timeline calculator.
type Deadlines interface {
	GetDeadlineRange(ctx context.Context, categoryID int64, start time.Time) (*app.DeadlineRange, error)
	ValidateDeadline(ctx context.Context, categoryID int64, deadline, start time.Time) (*app.DeadlineValidation, error)
	EstimateTimeline(ctx context.Context, categoryID int64, requestDate time.Time) (*app.Timeline, error)
	UpdateCategoryStats(ctx context.Context, categoryID int64) (*category.Stats, error)
}

// Escalations exposes recorded escalations.
type Escalations interface {
	History(ctx context.Context, workItemID int64) ([]*escalation.Record, error)
}

// Inbox is the read side of the notification dispatcher.
type Inbox interface {
	ListForUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*notification.Notification, error)
	CountUnread(ctx context.Context, userID int64) (int, error)
	MarkAsRead(ctx context.Context, userID, notificationID int64) error
	MarkAllAsRead(ctx context.Context, userID int64) (int64, error)
}

// Services are the handlers' collaborators.
type Services struct {
	Engine      TickRunner
	Timers      Timers
	Deadlines   Deadlines
	Escalations Escalations
	Inbox       Inbox
}

// Config holds the trigger endpoint's protection settings.
type Config struct {
	TriggerSecret        string
	TriggerRatePerSecond float64
	TriggerBurst         int
}

type server struct {
	svc    Services
	logger *logrus.Entry
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(cfg Config, svc Services, logger *logrus.Entry) *gin.Engine {
	s := &server{svc: svc, logger: logger.WithField("component", "http")}

	r := gin.New()
	r.Use(requestLogger(s.logger), recovery(s.logger))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))

	v1 := r.Group("/api/v1")

	limiter := rate.NewLimiter(rate.Limit(cfg.TriggerRatePerSecond), cfg.TriggerBurst)
	v1.POST("/engine/tick", bearerAuth(cfg.TriggerSecret), rateLimit(limiter), s.triggerTick)

	items := v1.Group("/work-items/:id")
	items.POST("/timer", requireUser, s.startTimer)
	items.GET("/timer", s.activeTimer)
	items.GET("/timer/logs", s.timerLogs)
	items.GET("/escalations", s.escalationHistory)

	timers := v1.Group("/timers/:sessionId")
	timers.POST("/pause", s.pauseTimer)
	timers.POST("/resume", s.resumeTimer)
	timers.POST("/stop", s.stopTimer)

	cats := v1.Group("/categories/:id")
	cats.GET("/deadline-range", s.deadlineRange)
	cats.POST("/deadline/validate", s.validateDeadline)
	cats.GET("/timeline", s.timeline)
	cats.POST("/stats/refresh", s.refreshStats)

	inbox := v1.Group("/notifications", requireUser)
	inbox.GET("", s.listNotifications)
	inbox.GET("/unread-count", s.unreadCount)
	inbox.POST("/:id/read", s.markRead)
	inbox.POST("/read-all", s.markAllRead)

	return r
}
