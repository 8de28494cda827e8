package notification

import "time"

// Setting holds a user's Do-Not-Disturb preferences.
// StartMinute and EndMinute are minutes after local midnight; EndMinute < StartMinute
// describes a window that crosses midnight.
type Setting struct {
	UserID      int64
	DNDEnabled  bool
	StartMinute int
	EndMinute   int
	Days        []time.Weekday
	Location    *time.Location
}

// DNDActive reports whether now falls on a configured weekday and inside [start, end).
func (s *Setting) DNDActive(now time.Time) bool {
	if s == nil || !s.DNDEnabled || s.StartMinute == s.EndMinute {
		return false
	}
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)

	onDay := false
	for _, d := range s.Days {
		if d == local.Weekday() {
			onDay = true
			break
		}
	}
	if !onDay {
		return false
	}

	m := local.Hour()*60 + local.Minute()
	if s.StartMinute < s.EndMinute {
		return m >= s.StartMinute && m < s.EndMinute
	}
	return m >= s.StartMinute || m < s.EndMinute
}

// Suppresses reports whether a notification of priority p created at now is dropped.
func (s *Setting) Suppresses(p Priority, now time.Time) bool {
	return p != PriorityUrgent && s.DNDActive(now)
}
