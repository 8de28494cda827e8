package app

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"sla_engine/internal/domain/audit"
	"sla_engine/internal/domain/category"
	"sla_engine/internal/domain/escalation"
	"sla_engine/internal/domain/notification"
	"sla_engine/internal/domain/reminder"
	"sla_engine/internal/domain/timer"
	"sla_engine/internal/domain/user"
	"sla_engine/internal/domain/workitem"

	"github.com/sirupsen/logrus"
)

var errStorageDown = errors.New("storage unavailable")

// 2026-03-04 is a Wednesday.
var baseTime = time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// --- work items ---

type fakeWorkItems struct {
	mu    sync.Mutex
	items map[int64]*workitem.WorkItem
	err   error
	delay time.Duration // per list call
}

func newFakeWorkItems(items ...*workitem.WorkItem) *fakeWorkItems {
	f := &fakeWorkItems{items: map[int64]*workitem.WorkItem{}}
	for _, it := range items {
		f.items[it.ID] = it
	}
	return f
}

func (f *fakeWorkItems) FindActiveByStatus(ctx context.Context, st workitem.Status) ([]*workitem.WorkItem, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []*workitem.WorkItem
	for _, it := range f.items {
		if it.Status == st {
			cp := *it
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeWorkItems) FindByID(_ context.Context, id int64) (*workitem.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	if !ok {
		return nil, workitem.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (f *fakeWorkItems) ListRecentlyCompleted(_ context.Context, categoryID int64, limit int) ([]*workitem.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*workitem.WorkItem
	for _, it := range f.items {
		if it.CategoryID == categoryID && it.Status == workitem.StatusCompleted {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.Time.After(out[j].CompletedAt.Time) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeWorkItems) update(id int64, fn func(*workitem.WorkItem)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.items[id])
}

// --- timers ---

type fakeTimers struct {
	mu       sync.Mutex
	nextID   int64
	sessions map[int64]*timer.Session
	logs     []*timer.DurationLog
	items    *fakeWorkItems
}

func newFakeTimers(items *fakeWorkItems) *fakeTimers {
	return &fakeTimers{sessions: map[int64]*timer.Session{}, items: items}
}

func (f *fakeTimers) Create(_ context.Context, s *timer.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.sessions {
		if existing.WorkItemID == s.WorkItemID {
			return timer.ErrSessionExists
		}
	}
	f.nextID++
	s.ID = f.nextID
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeTimers) GetByID(_ context.Context, id int64) (*timer.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, timer.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeTimers) GetByWorkItem(_ context.Context, workItemID int64) (*timer.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.WorkItemID == workItemID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, timer.ErrNotFound
}

func (f *fakeTimers) Update(_ context.Context, s *timer.Session, expectedVersion int64, addPaused time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.sessions[s.ID]
	if !ok || cur.Version != expectedVersion {
		return timer.ErrVersionConflict
	}
	cp := *s
	f.sessions[s.ID] = &cp
	f.mirror(s.WorkItemID, s.State.Name() == timer.StatePaused, addPaused)
	return nil
}

func (f *fakeTimers) Close(_ context.Context, sessionID, expectedVersion int64, log *timer.DurationLog, addPaused time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.sessions[sessionID]
	if !ok || cur.Version != expectedVersion {
		return timer.ErrVersionConflict
	}
	delete(f.sessions, sessionID)
	log.ID = int64(len(f.logs) + 1)
	f.logs = append(f.logs, log)
	f.mirror(cur.WorkItemID, false, addPaused)
	return nil
}

func (f *fakeTimers) mirror(workItemID int64, paused bool, addPaused time.Duration) {
	if f.items == nil {
		return
	}
	f.items.update(workItemID, func(it *workitem.WorkItem) {
		it.Paused = paused
		it.AccumulatedPaused += addPaused
	})
}

func (f *fakeTimers) ListLogs(_ context.Context, workItemID int64) ([]*timer.DurationLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*timer.DurationLog
	for _, l := range f.logs {
		if l.WorkItemID == workItemID {
			out = append(out, l)
		}
	}
	return out, nil
}

// --- categories ---

type fakeCategories struct {
	cats  map[int64]*category.Category
	stats map[int64]*category.Stats
}

func newFakeCategories(cats ...*category.Category) *fakeCategories {
	f := &fakeCategories{cats: map[int64]*category.Category{}, stats: map[int64]*category.Stats{}}
	for _, c := range cats {
		f.cats[c.ID] = c
	}
	return f
}

func (f *fakeCategories) GetByID(_ context.Context, id int64) (*category.Category, error) {
	c, ok := f.cats[id]
	if !ok {
		return nil, category.ErrNotFound
	}
	return c, nil
}

func (f *fakeCategories) ListAll(_ context.Context) ([]*category.Category, error) {
	var out []*category.Category
	for _, c := range f.cats {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeCategories) GetStats(_ context.Context, categoryID int64) (*category.Stats, error) {
	return f.stats[categoryID], nil
}

func (f *fakeCategories) ReplaceStats(_ context.Context, s *category.Stats) error {
	f.stats[s.CategoryID] = s
	return nil
}

func (f *fakeCategories) DeleteStats(_ context.Context, categoryID int64) error {
	delete(f.stats, categoryID)
	return nil
}

// --- reminders ---

type fakeReminderConfig struct {
	cfg *reminder.Config
	err error
}

func (f *fakeReminderConfig) GetReminderConfig(context.Context) (*reminder.Config, error) {
	return f.cfg, f.err
}

type sendKey struct {
	workItemID int64
	level      reminder.Level
	run        time.Time
}

type fakeSendRecords struct {
	mu       sync.Mutex
	records  map[sendKey]*reminder.SendRecord
	released int
}

func newFakeSendRecords() *fakeSendRecords {
	return &fakeSendRecords{records: map[sendKey]*reminder.SendRecord{}}
}

func (f *fakeSendRecords) key(r *reminder.SendRecord) sendKey {
	return sendKey{r.WorkItemID, r.Level, r.RunStartedAt.UTC()}
}

func (f *fakeSendRecords) Claim(_ context.Context, r *reminder.SendRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[f.key(r)]; ok {
		return false, nil
	}
	f.records[f.key(r)] = r
	return true, nil
}

func (f *fakeSendRecords) Release(_ context.Context, r *reminder.SendRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, f.key(r))
	f.released++
	return nil
}

func (f *fakeSendRecords) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

// --- escalations ---

type fakeRules struct {
	rules []*escalation.Rule
}

func (f *fakeRules) ListRules(ctx context.Context) ([]*escalation.Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.rules, nil
}

type episodeKey struct {
	ruleID   int64
	trigger  escalation.TriggerType
	entityID int64
	episode  time.Time
}

type fakeEscalations struct {
	mu      sync.Mutex
	records map[episodeKey]*escalation.Record
}

func newFakeEscalations() *fakeEscalations {
	return &fakeEscalations{records: map[episodeKey]*escalation.Record{}}
}

func (f *fakeEscalations) key(r *escalation.Record) episodeKey {
	return episodeKey{r.RuleID, r.TriggerType, r.EntityID, r.EpisodeKey.UTC()}
}

func (f *fakeEscalations) Claim(_ context.Context, r *escalation.Record) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[f.key(r)]; ok {
		return false, nil
	}
	r.ID = int64(len(f.records) + 1)
	f.records[f.key(r)] = r
	return true, nil
}

func (f *fakeEscalations) Release(_ context.Context, r *escalation.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, f.key(r))
	return nil
}

func (f *fakeEscalations) CountSince(_ context.Context, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.records {
		if !r.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeEscalations) ListByEntity(_ context.Context, entityType string, entityID int64) ([]*escalation.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*escalation.Record
	for _, r := range f.records {
		if r.EntityType == entityType && r.EntityID == entityID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeEscalations) byRule(ruleID int64) []*escalation.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*escalation.Record
	for _, r := range f.records {
		if r.RuleID == ruleID {
			out = append(out, r)
		}
	}
	return out
}

// --- users ---

type fakeUsers struct {
	users map[int64]*user.User
}

func newFakeUsers(users ...*user.User) *fakeUsers {
	f := &fakeUsers{users: map[int64]*user.User{}}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*user.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetByTelegramID(_ context.Context, tgID int64) (*user.User, error) {
	for _, u := range f.users {
		if u.TelegramID.Valid && u.TelegramID.Int64 == tgID {
			return u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (f *fakeUsers) ListActiveAdmins(context.Context) ([]*user.User, error) {
	var out []*user.User
	for _, u := range f.users {
		if u.IsAdmin && u.IsActive {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- notifications ---

type fakeNotifications struct {
	mu        sync.Mutex
	items     []*notification.Notification
	createErr error
}

func (f *fakeNotifications) Create(_ context.Context, n *notification.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	n.ID = int64(len(f.items) + 1)
	f.items = append(f.items, n)
	return nil
}

func (f *fakeNotifications) GetByID(_ context.Context, id int64) (*notification.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.items {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, notification.ErrNotFound
}

func (f *fakeNotifications) ListByUser(_ context.Context, userID int64, unreadOnly bool, limit int) ([]*notification.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*notification.Notification
	for i := len(f.items) - 1; i >= 0 && len(out) < limit; i-- {
		n := f.items[i]
		if n.UserID == userID && (!unreadOnly || !n.IsRead) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNotifications) CountUnread(_ context.Context, userID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := 0
	for _, n := range f.items {
		if n.UserID == userID && !n.IsRead {
			c++
		}
	}
	return c, nil
}

func (f *fakeNotifications) MarkAsRead(_ context.Context, id int64, readAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.items {
		if n.ID == id && !n.IsRead {
			n.IsRead = true
			n.ReadAt.Time, n.ReadAt.Valid = readAt, true
		}
	}
	return nil
}

func (f *fakeNotifications) MarkAllAsRead(_ context.Context, userID int64, readAt time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var c int64
	for _, n := range f.items {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			n.ReadAt.Time, n.ReadAt.Valid = readAt, true
			c++
		}
	}
	return c, nil
}

func (f *fakeNotifications) ExistsSince(_ context.Context, userID int64, t notification.Type, since time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.items {
		if n.UserID == userID && n.Type == t && !n.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeNotifications) PurgeRead(_ context.Context, cutoff time.Time, batchSize int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []*notification.Notification
	var purged int64
	for _, n := range f.items {
		if n.IsRead && n.CreatedAt.Before(cutoff) && purged < int64(batchSize) {
			purged++
			continue
		}
		kept = append(kept, n)
	}
	f.items = kept
	return purged, nil
}

func (f *fakeNotifications) forUser(userID int64) []*notification.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*notification.Notification
	for _, n := range f.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

func (f *fakeNotifications) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

type fakeSettings struct {
	settings map[int64]*notification.Setting
}

func (f *fakeSettings) GetSetting(_ context.Context, userID int64) (*notification.Setting, error) {
	if f == nil || f.settings == nil {
		return nil, nil
	}
	return f.settings[userID], nil
}

// --- outbound and audit ---

type pushCall struct {
	channels    []string
	userID      int64
	templateKey string
}

type fakeOutbound struct {
	mu    sync.Mutex
	calls []pushCall
	err   error
}

func (f *fakeOutbound) Push(_ context.Context, channels []string, userID int64, templateKey string, _ map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pushCall{channels, userID, templateKey})
	return f.err
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []*audit.Entry
}

func (f *fakeAudit) Write(_ context.Context, e *audit.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeAudit) Close() error { return nil }

func (f *fakeAudit) actions() []audit.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []audit.Action
	for _, e := range f.entries {
		out = append(out, e.Action)
	}
	return out
}
