package timer

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when an operation is not allowed from the session's state.
var ErrInvalidTransition = errors.New("invalid timer transition")

// StateName is the persisted name of a session state.
type StateName string

const (
	StateRunning StateName = "RUNNING"
	StatePaused  StateName = "PAUSED"
	StateStopped StateName = "STOPPED"
)

// State is one of Running, Paused or Stopped.
type State interface {
	Name() StateName
	isState()
}

// Running means the clock is counting work time.
type Running struct{}

// Paused means the clock stopped counting at At.
type Paused struct {
	At time.Time
}

// Stopped is terminal. A stopped session only lives long enough to produce its log.
type Stopped struct {
	At time.Time
}

func (Running) Name() StateName { return StateRunning }
func (Paused) Name() StateName  { return StatePaused }
func (Stopped) Name() StateName { return StateStopped }

func (Running) isState() {}
func (Paused) isState()  {}
func (Stopped) isState() {}

// Session is a work timer on a single work item.
type Session struct {
	ID                int64
	WorkItemID        int64
	UserID            int64
	StartedAt         time.Time
	AccumulatedPaused time.Duration
	State             State
	// Version increases on every transition and guards concurrent updates.
	Version int64
}

// New returns a running session started at now.
func New(workItemID, userID int64, now time.Time) *Session {
	return &Session{
		WorkItemID: workItemID,
		UserID:     userID,
		StartedAt:  now,
		State:      Running{},
	}
}

// Pause returns the session paused at now. Valid only while running.
func (s Session) Pause(now time.Time) (*Session, error) {
	if _, ok := s.State.(Running); !ok {
		return nil, fmt.Errorf("%w: cannot pause a %s session", ErrInvalidTransition, s.State.Name())
	}
	s.State = Paused{At: now}
	s.Version++
	return &s, nil
}

// Resume returns the session running again and the span it was paused for.
func (s Session) Resume(now time.Time) (*Session, time.Duration, error) {
	p, ok := s.State.(Paused)
	if !ok {
		return nil, 0, fmt.Errorf("%w: cannot resume a %s session", ErrInvalidTransition, s.State.Name())
	}
	span := pauseSpan(p.At, now)
	s.AccumulatedPaused += span
	s.State = Running{}
	s.Version++
	return &s, span, nil
}

// Stop closes the session and produces its duration log. If the session is paused, the open
// pause span counts as paused time; openPause reports that span so callers can mirror it.
func (s Session) Stop(now time.Time) (log *DurationLog, openPause time.Duration, err error) {
	switch st := s.State.(type) {
	case Running:
	case Paused:
		openPause = pauseSpan(st.At, now)
	default:
		return nil, 0, fmt.Errorf("%w: cannot stop a %s session", ErrInvalidTransition, s.State.Name())
	}

	paused := s.AccumulatedPaused + openPause
	elapsed := now.Sub(s.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	worked := elapsed - paused
	if worked < 0 {
		worked = 0
	}

	return &DurationLog{
		SessionID:      s.ID,
		WorkItemID:     s.WorkItemID,
		UserID:         s.UserID,
		StartedAt:      s.StartedAt,
		StoppedAt:      now,
		PausedDuration: paused,
		WorkedDuration: worked,
	}, openPause, nil
}

func pauseSpan(from, to time.Time) time.Duration {
	if d := to.Sub(from); d > 0 {
		return d
	}
	return 0
}

// DurationLog is the immutable record a stopped session leaves behind.
type DurationLog struct {
	ID             int64
	SessionID      int64
	WorkItemID     int64
	UserID         int64
	StartedAt      time.Time
	StoppedAt      time.Time
	PausedDuration time.Duration
	WorkedDuration time.Duration
	CreatedAt      time.Time
}
