package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sla_engine/internal/app"
	"sla_engine/internal/domain/category"
	"sla_engine/internal/domain/escalation"
	"sla_engine/internal/domain/notification"
	"sla_engine/internal/domain/timer"
	"sla_engine/pkg/xerr"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

type fakeEngine struct {
	res   *app.TickResult
	err   error
	calls int
}

func (f *fakeEngine) RunTick(context.Context) (*app.TickResult, error) {
	f.calls++
	return f.res, f.err
}

type fakeTimers struct {
	startErr error
	started  []int64
}

func (f *fakeTimers) Start(_ context.Context, workItemID, userID int64) (*timer.Session, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = append(f.started, workItemID, userID)
	return &timer.Session{ID: 1, WorkItemID: workItemID, UserID: userID, StartedAt: t0, State: timer.Running{}}, nil
}

func (f *fakeTimers) Pause(_ context.Context, id int64) (*timer.Session, error) {
	return &timer.Session{ID: id, WorkItemID: 7, StartedAt: t0, State: timer.Paused{At: t0.Add(30 * time.Minute)}, Version: 1}, nil
}

func (f *fakeTimers) Resume(_ context.Context, id int64) (*timer.Session, error) {
	return nil, xerr.InvalidState("timer.resume", timer.ErrInvalidTransition)
}

func (f *fakeTimers) Stop(_ context.Context, id int64) (*timer.DurationLog, error) {
	return &timer.DurationLog{ID: 3, SessionID: id, WorkItemID: 7, StartedAt: t0, StoppedAt: t0.Add(50 * time.Minute),
		PausedDuration: 10 * time.Minute, WorkedDuration: 40 * time.Minute}, nil
}

func (f *fakeTimers) ActiveSession(context.Context, int64) (*timer.Session, error) {
	return nil, xerr.NotFound("timer.active", timer.ErrNotFound)
}

func (f *fakeTimers) Logs(context.Context, int64) ([]*timer.DurationLog, error) { return nil, nil }

type fakeDeadlines struct {
	gotStart time.Time
}

func (f *fakeDeadlines) GetDeadlineRange(_ context.Context, _ int64, start time.Time) (*app.DeadlineRange, error) {
	f.gotStart = start
	return &app.DeadlineRange{Min: start.Add(4 * time.Hour), Max: start.Add(72 * time.Hour), Suggested: start.Add(24 * time.Hour)}, nil
}

func (f *fakeDeadlines) ValidateDeadline(_ context.Context, _ int64, deadline, start time.Time) (*app.DeadlineValidation, error) {
	short := deadline.Sub(start) < 4*time.Hour
	return &app.DeadlineValidation{IsValid: !short, IsTooShort: short, Warnings: []string{}}, nil
}

func (f *fakeDeadlines) EstimateTimeline(context.Context, int64, time.Time) (*app.Timeline, error) {
	return nil, xerr.NotFound("deadline.timeline", category.ErrNotFound)
}

func (f *fakeDeadlines) UpdateCategoryStats(_ context.Context, id int64) (*category.Stats, error) {
	return &category.Stats{CategoryID: id, MeanHours: 5, MedianHours: 4, SampleSize: 3, ComputedAt: t0}, nil
}

type fakeInbox struct {
	gotUser   int64
	gotUnread bool
	gotLimit  int
	markErr   error
}

func (f *fakeInbox) ListForUser(_ context.Context, userID int64, unreadOnly bool, limit int) ([]*notification.Notification, error) {
	f.gotUser, f.gotUnread, f.gotLimit = userID, unreadOnly, limit
	return []*notification.Notification{{ID: 9, UserID: userID, Type: notification.TypeEscalation, Priority: notification.PriorityUrgent, CreatedAt: t0}}, nil
}

func (f *fakeInbox) CountUnread(context.Context, int64) (int, error) { return 4, nil }

func (f *fakeInbox) MarkAsRead(_ context.Context, userID, _ int64) error {
	f.gotUser = userID
	return f.markErr
}

func (f *fakeInbox) MarkAllAsRead(context.Context, int64) (int64, error) { return 4, nil }

type fakeEscalations struct {
	err error
}

func (f *fakeEscalations) History(_ context.Context, workItemID int64) ([]*escalation.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []*escalation.Record{{
		ID: 1, RuleID: 3, TriggerType: escalation.TriggerSLAOverdue, EntityType: escalation.EntityWorkItem,
		EntityID: workItemID, EpisodeKey: t0, RecipientID: 2, Reason: "SLA overdue", CreatedAt: t0,
	}}, nil
}

type fixture struct {
	router      *gin.Engine
	engine      *fakeEngine
	timers      *fakeTimers
	deadlines   *fakeDeadlines
	escalations *fakeEscalations
	inbox       *fakeInbox
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	l := logrus.New()
	l.SetOutput(io.Discard)

	f := &fixture{
		engine:      &fakeEngine{res: &app.TickResult{Success: true, TickID: "t-1", Checked: 5, Sent: 2, ByTriggerType: map[string]int{}}},
		timers:      &fakeTimers{},
		deadlines:   &fakeDeadlines{},
		escalations: &fakeEscalations{},
		inbox:       &fakeInbox{},
	}
	f.router = NewRouter(
		Config{TriggerSecret: "s3cret", TriggerRatePerSecond: 100, TriggerBurst: 100},
		Services{Engine: f.engine, Timers: f.timers, Deadlines: f.deadlines, Escalations: f.escalations, Inbox: f.inbox},
		logrus.NewEntry(l),
	)
	return f
}

func (f *fixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestTriggerTick(t *testing.T) {
	tests := map[string]struct {
		auth       string
		result     *app.TickResult
		err        error
		wantStatus int
		wantCalls  int
	}{
		"valid secret":        {auth: "Bearer s3cret", wantStatus: http.StatusOK, wantCalls: 1},
		"wrong secret":        {auth: "Bearer nope", wantStatus: http.StatusUnauthorized},
		"missing header":      {auth: "", wantStatus: http.StatusUnauthorized},
		"basic scheme":        {auth: "Basic s3cret", wantStatus: http.StatusUnauthorized},
		"aborted tick":        {auth: "Bearer s3cret", err: errors.New("db down"), wantStatus: http.StatusInternalServerError, wantCalls: 1},
		"degraded tick is ok": {auth: "Bearer s3cret", result: &app.TickResult{Success: false, Failures: 2}, wantStatus: http.StatusOK, wantCalls: 1},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			if tt.result != nil {
				f.engine.res = tt.result
			}
			f.engine.err = tt.err

			w := f.do(http.MethodPost, "/api/v1/engine/tick", "", map[string]string{"Authorization": tt.auth})
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCalls, f.engine.calls)
			if w.Code != http.StatusOK {
				assert.Equal(t, false, decode(t, w)["success"])
			}
		})
	}
}

func TestTriggerTickResponseShape(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/api/v1/engine/tick", "", map[string]string{"Authorization": "Bearer s3cret"})
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	for _, key := range []string{"success", "checked", "escalated", "sent", "byTriggerType", "durationMs", "timestamp", "skipped", "failures"} {
		assert.Contains(t, body, key)
	}
	assert.Equal(t, float64(5), body["checked"])
}

func TestTriggerTickRateLimited(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := logrus.New()
	l.SetOutput(io.Discard)
	engine := &fakeEngine{res: &app.TickResult{Success: true}}
	router := NewRouter(Config{TriggerSecret: "s3cret", TriggerRatePerSecond: 0.001, TriggerBurst: 1}, Services{Engine: engine}, logrus.NewEntry(l))

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/engine/tick", nil)
		req.Header.Set("Authorization", "Bearer s3cret")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, 1, engine.calls)
}

func TestTriggerTickRejectedCallsDoNotConsumeRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := logrus.New()
	l.SetOutput(io.Discard)
	engine := &fakeEngine{res: &app.TickResult{Success: true}}
	router := NewRouter(Config{TriggerSecret: "s3cret", TriggerRatePerSecond: 0.001, TriggerBurst: 2}, Services{Engine: engine}, logrus.NewEntry(l))

	post := func(auth string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/engine/tick", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	codes := []int{post(""), post("Bearer wrong"), post("Bearer s3cret")}
	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusOK}, codes)
	assert.Equal(t, 1, engine.calls)
}

func TestTimerEndpoints(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/work-items/7/timer", "", map[string]string{"X-User-ID": "3"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "RUNNING", decode(t, w)["state"])
	assert.Equal(t, []int64{7, 3}, f.timers.started)

	w = f.do(http.MethodPost, "/api/v1/work-items/7/timer", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodPost, "/api/v1/timers/11/pause", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PAUSED", decode(t, w)["state"])
	assert.Contains(t, decode(t, w), "pausedAt")

	w = f.do(http.MethodPost, "/api/v1/timers/11/resume", "", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_state", decode(t, w)["kind"])

	w = f.do(http.MethodPost, "/api/v1/timers/11/stop", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2400), decode(t, w)["workedSeconds"])

	w = f.do(http.MethodGet, "/api/v1/work-items/7/timer", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodPost, "/api/v1/timers/abc/stop", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTimerStartConflict(t *testing.T) {
	f := newFixture(t)
	f.timers.startErr = xerr.InvalidState("timer.start", app.ErrTimerAlreadyRunning)

	w := f.do(http.MethodPost, "/api/v1/work-items/7/timer", "", map[string]string{"X-User-ID": "3"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestEscalationHistory(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/v1/work-items/7/escalations", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "SLA_OVERDUE", out[0]["triggerType"])
	assert.Equal(t, "SLA overdue", out[0]["reason"])

	f.escalations.err = xerr.NotFound("escalations.history", errors.New("work item not found"))
	w = f.do(http.MethodGet, "/api/v1/work-items/8/escalations", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeadlineEndpoints(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/v1/categories/2/deadline-range?start=2026-03-04T10:00:00Z", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, f.deadlines.gotStart.Equal(t0))
	assert.Equal(t, "2026-03-05T10:00:00Z", decode(t, w)["suggested"])

	w = f.do(http.MethodGet, "/api/v1/categories/2/deadline-range?start=tomorrow", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/v1/categories/2/deadline/validate",
		`{"deadline":"2026-03-04T13:00:00Z","start":"2026-03-04T10:00:00Z"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["isTooShort"])

	w = f.do(http.MethodPost, "/api/v1/categories/2/deadline/validate", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/api/v1/categories/99/timeline", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodPost, "/api/v1/categories/2/stats/refresh", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)["stats"].(map[string]any)
	assert.Equal(t, float64(4), stats["medianHours"])
}

func TestNotificationEndpoints(t *testing.T) {
	f := newFixture(t)
	user := map[string]string{"X-User-ID": "4"}

	w := f.do(http.MethodGet, "/api/v1/notifications?unread=true&limit=10", "", user)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(4), f.inbox.gotUser)
	assert.True(t, f.inbox.gotUnread)
	assert.Equal(t, 10, f.inbox.gotLimit)

	w = f.do(http.MethodGet, "/api/v1/notifications?limit=-1", "", user)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/api/v1/notifications/unread-count", "", user)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(4), decode(t, w)["unread"])

	w = f.do(http.MethodPost, "/api/v1/notifications/9/read", "", user)
	assert.Equal(t, http.StatusNoContent, w.Code)

	f.inbox.markErr = xerr.NotFound("notification.mark_read", notification.ErrNotFound)
	w = f.do(http.MethodPost, "/api/v1/notifications/9/read", "", user)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodPost, "/api/v1/notifications/read-all", "", user)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(4), decode(t, w)["marked"])

	w = f.do(http.MethodGet, "/api/v1/notifications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "", nil).Code)
	w := f.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sla_engine_")
}
