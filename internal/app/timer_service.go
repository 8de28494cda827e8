package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sla_engine/internal/domain/timer"
	"sla_engine/internal/domain/workitem"
	"sla_engine/internal/infra/metrics"
	"sla_engine/pkg/xerr"

	"github.com/sirupsen/logrus"
)

// Errors the timer actions surface to the user.
var (
	ErrTimerAlreadyRunning = errors.New("a timer is already running for this work item")
	ErrTimerStateChanged   = errors.New("the timer was changed by someone else, reload and retry")
	ErrWorkItemClosed      = errors.New("work item is closed")
)

// TimerService drives the start/pause/resume/stop state machine of work timers.
type TimerService struct {
	timerRepo    timer.Repository
	workItemRepo workitem.Repository
	logger       *logrus.Entry
	now          func() time.Time
}

func NewTimerService(tr timer.Repository, wr workitem.Repository, logger *logrus.Entry) *TimerService {
	return &TimerService{
		timerRepo:    tr,
		workItemRepo: wr,
		logger:       logger.WithField("component", "timer"),
		now:          time.Now,
	}
}

// Start creates a running session for the work item.
func (s *TimerService) Start(ctx context.Context, workItemID, userID int64) (_ *timer.Session, err error) {
	const op = "timer.start"
	defer func() { observeTimer("start", err) }()
	item, err := s.workItemRepo.FindByID(ctx, workItemID)
	if err != nil {
		if errors.Is(err, workitem.ErrNotFound) {
			return nil, xerr.NotFound(op, fmt.Errorf("work item %d: %w", workItemID, err))
		}
		return nil, xerr.Transient(op, err)
	}
	if item.Status.IsTerminal() {
		return nil, xerr.InvalidState(op, fmt.Errorf("%w (%s)", ErrWorkItemClosed, item.Status))
	}

	session := timer.New(workItemID, userID, s.now())
	if err := s.timerRepo.Create(ctx, session); err != nil {
		if errors.Is(err, timer.ErrSessionExists) {
			return nil, xerr.InvalidState(op, ErrTimerAlreadyRunning)
		}
		return nil, xerr.Transient(op, err)
	}

	s.logger.WithFields(logrus.Fields{
		"session_id":   session.ID,
		"work_item_id": workItemID,
		"user_id":      userID,
	}).Info("Timer started")
	return session, nil
}

// Pause stops counting work time. Valid only while running.
func (s *TimerService) Pause(ctx context.Context, sessionID int64) (_ *timer.Session, err error) {
	const op = "timer.pause"
	defer func() { observeTimer("pause", err) }()
	current, err := s.load(ctx, op, sessionID)
	if err != nil {
		return nil, err
	}
	next, err := current.Pause(s.now())
	if err != nil {
		return nil, xerr.InvalidState(op, err)
	}
	if err := s.persist(ctx, op, next, current.Version, 0); err != nil {
		return nil, err
	}
	s.logger.WithField("session_id", sessionID).Info("Timer paused")
	return next, nil
}

// Resume continues a paused session and adds the pause span to the accumulated pause time.
func (s *TimerService) Resume(ctx context.Context, sessionID int64) (_ *timer.Session, err error) {
	const op = "timer.resume"
	defer func() { observeTimer("resume", err) }()
	current, err := s.load(ctx, op, sessionID)
	if err != nil {
		return nil, err
	}
	next, span, err := current.Resume(s.now())
	if err != nil {
		return nil, xerr.InvalidState(op, err)
	}
	if err := s.persist(ctx, op, next, current.Version, span); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"session_id":     sessionID,
		"paused_seconds": int64(span.Seconds()),
	}).Info("Timer resumed")
	return next, nil
}

// Stop closes the session and returns its duration log.
func (s *TimerService) Stop(ctx context.Context, sessionID int64) (_ *timer.DurationLog, err error) {
	const op = "timer.stop"
	defer func() { observeTimer("stop", err) }()
	current, err := s.load(ctx, op, sessionID)
	if err != nil {
		return nil, err
	}
	log, openPause, err := current.Stop(s.now())
	if err != nil {
		return nil, xerr.InvalidState(op, err)
	}
	if err := s.timerRepo.Close(ctx, sessionID, current.Version, log, openPause); err != nil {
		return nil, s.classifyWriteErr(op, err)
	}
	s.logger.WithFields(logrus.Fields{
		"session_id":     sessionID,
		"work_item_id":   log.WorkItemID,
		"worked_seconds": int64(log.WorkedDuration.Seconds()),
	}).Info("Timer stopped")
	return log, nil
}

// ActiveSession returns the running or paused session of a work item.
func (s *TimerService) ActiveSession(ctx context.Context, workItemID int64) (*timer.Session, error) {
	session, err := s.timerRepo.GetByWorkItem(ctx, workItemID)
	if err != nil {
		if errors.Is(err, timer.ErrNotFound) {
			return nil, xerr.NotFound("timer.active", err)
		}
		return nil, xerr.Transient("timer.active", err)
	}
	return session, nil
}

// Logs lists the duration logs of a work item.
func (s *TimerService) Logs(ctx context.Context, workItemID int64) ([]*timer.DurationLog, error) {
	logs, err := s.timerRepo.ListLogs(ctx, workItemID)
	if err != nil {
		return nil, xerr.Transient("timer.logs", err)
	}
	return logs, nil
}

func (s *TimerService) load(ctx context.Context, op string, sessionID int64) (*timer.Session, error) {
	session, err := s.timerRepo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, timer.ErrNotFound) {
			return nil, xerr.NotFound(op, fmt.Errorf("session %d: %w", sessionID, err))
		}
		return nil, xerr.Transient(op, err)
	}
	return session, nil
}

func (s *TimerService) persist(ctx context.Context, op string, next *timer.Session, expectedVersion int64, addPaused time.Duration) error {
	if err := s.timerRepo.Update(ctx, next, expectedVersion, addPaused); err != nil {
		return s.classifyWriteErr(op, err)
	}
	return nil
}

// classifyWriteErr turns a lost optimistic race into InvalidState.
func (s *TimerService) classifyWriteErr(op string, err error) error {
	if errors.Is(err, timer.ErrVersionConflict) || errors.Is(err, timer.ErrNotFound) {
		return xerr.InvalidState(op, ErrTimerStateChanged)
	}
	return xerr.Transient(op, err)
}

func observeTimer(action string, err error) {
	result := "ok"
	if err != nil {
		result = xerr.KindOf(err).String()
	}
	metrics.TimerTransitions.WithLabelValues(action, result).Inc()
}
