package domain

import "time"

// TimerSession is a persisted focus session. Elapsed time while running is
// AccumulatedMs plus the time since ResumedAt; the clock service keeps the
// monotonic reading in memory and only writes checkpoints here.
type TimerSession struct {
	ID              string
	HabitID         string
	Mode            TimerMode
	State           SessionState
	Source          Source
	StartedAt       time.Time
	ResumedAt       *time.Time
	AccumulatedMs   int64
	TargetMs        int64
	EndedAt         *time.Time
	DurationSeconds *int
	UpdatedAt       time.Time
}

// IsOpen reports whether the session is still running or paused.
func (s *TimerSession) IsOpen() bool {
	return s.State == SessionRunning || s.State == SessionPaused
}

// Credited reports whether the session was closed with a logged duration.
func (s *TimerSession) Credited() bool {
	return s.State == SessionEnded && s.DurationSeconds != nil && *s.DurationSeconds > 0
}
