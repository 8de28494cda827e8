package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultInboxLimit = 50

func (s *server) triggerTick(c *gin.Context) {
	res, err := s.svc.Engine.RunTick(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "tick aborted"})
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- Timer sessions ---

func (s *server) startTimer(c *gin.Context) {
	workItemID, ok := pathID(c, "id")
	if !ok {
		return
	}
	session, err := s.svc.Timers.Start(c.Request.Context(), workItemID, userID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSession(session))
}

func (s *server) activeTimer(c *gin.Context) {
	workItemID, ok := pathID(c, "id")
	if !ok {
		return
	}
	session, err := s.svc.Timers.ActiveSession(c.Request.Context(), workItemID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSession(session))
}

func (s *server) timerLogs(c *gin.Context) {
	workItemID, ok := pathID(c, "id")
	if !ok {
		return
	}
	logs, err := s.svc.Timers.Logs(c.Request.Context(), workItemID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	out := make([]durationLogResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, toDurationLog(l))
	}
	c.JSON(http.StatusOK, out)
}

func (s *server) escalationHistory(c *gin.Context) {
	workItemID, ok := pathID(c, "id")
	if !ok {
		return
	}
	records, err := s.svc.Escalations.History(c.Request.Context(), workItemID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	out := make([]escalationResponse, 0, len(records))
	for _, r := range records {
		out = append(out, toEscalation(r))
	}
	c.JSON(http.StatusOK, out)
}

func (s *server) pauseTimer(c *gin.Context) {
	sessionID, ok := pathID(c, "sessionId")
	if !ok {
		return
	}
	session, err := s.svc.Timers.Pause(c.Request.Context(), sessionID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSession(session))
}

func (s *server) resumeTimer(c *gin.Context) {
	sessionID, ok := pathID(c, "sessionId")
	if !ok {
		return
	}
	session, err := s.svc.Timers.Resume(c.Request.Context(), sessionID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSession(session))
}

func (s *server) stopTimer(c *gin.Context) {
	sessionID, ok := pathID(c, "sessionId")
	if !ok {
		return
	}
	log, err := s.svc.Timers.Stop(c.Request.Context(), sessionID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDurationLog(log))
}

// --- Deadlines ---

func (s *server) deadlineRange(c *gin.Context) {
	categoryID, ok := pathID(c, "id")
	if !ok {
		return
	}
	start, ok := queryTime(c, "start", time.Now())
	if !ok {
		return
	}
	r, err := s.svc.Deadlines.GetDeadlineRange(c.Request.Context(), categoryID, start)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

type validateDeadlineRequest struct {
	Deadline time.Time  `json:"deadline"`
	Start    *time.Time `json:"start"`
}

func (s *server) validateDeadline(c *gin.Context) {
	categoryID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req validateDeadlineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.Deadline.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deadline is required"})
		return
	}
	start := time.Now()
	if req.Start != nil {
		start = *req.Start
	}
	v, err := s.svc.Deadlines.ValidateDeadline(c.Request.Context(), categoryID, req.Deadline, start)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *server) timeline(c *gin.Context) {
	categoryID, ok := pathID(c, "id")
	if !ok {
		return
	}
	requestDate, ok := queryTime(c, "requestDate", time.Now())
	if !ok {
		return
	}
	t, err := s.svc.Deadlines.EstimateTimeline(c.Request.Context(), categoryID, requestDate)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *server) refreshStats(c *gin.Context) {
	categoryID, ok := pathID(c, "id")
	if !ok {
		return
	}
	stats, err := s.svc.Deadlines.UpdateCategoryStats(c.Request.Context(), categoryID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": toStats(stats)})
}

// --- Notifications ---

func (s *server) listNotifications(c *gin.Context) {
	unreadOnly := c.Query("unread") == "true"
	limit := defaultInboxLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	list, err := s.svc.Inbox.ListForUser(c.Request.Context(), userID(c), unreadOnly, limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	out := make([]notificationResponse, 0, len(list))
	for _, n := range list {
		out = append(out, toNotification(n))
	}
	c.JSON(http.StatusOK, out)
}

func (s *server) unreadCount(c *gin.Context) {
	n, err := s.svc.Inbox.CountUnread(c.Request.Context(), userID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": n})
}

func (s *server) markRead(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := s.svc.Inbox.MarkAsRead(c.Request.Context(), userID(c), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) markAllRead(c *gin.Context) {
	n, err := s.svc.Inbox.MarkAllAsRead(c.Request.Context(), userID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": n})
}
