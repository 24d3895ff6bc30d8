package testutil

import (
	"time"

	"github.com/alexanderramin/streak/internal/domain"
	"github.com/google/uuid"
)

// HabitOption customises a fixture habit.
type HabitOption func(*domain.Habit)

func WithFrequency(f domain.Frequency) HabitOption {
	return func(h *domain.Habit) {
		h.Frequency = f
	}
}

func WithTimer(mode domain.TimerMode, targetSec int) HabitOption {
	return func(h *domain.Habit) {
		h.Policy.Mode = mode
		if targetSec > 0 {
			h.Policy.TargetDurationSeconds = &targetSec
		}
	}
}

func WithMinDuration(sec int) HabitOption {
	return func(h *domain.Habit) {
		h.Policy.MinDurationSeconds = &sec
	}
}

func WithAutoComplete() HabitOption {
	return func(h *domain.Habit) {
		h.Policy.AutoCompleteOnTarget = true
	}
}

func WithRequireTimer() HabitOption {
	return func(h *domain.Habit) {
		h.Policy.RequireTimerToComplete = true
	}
}

// NewTestHabit builds a daily habit with the timer off unless options say otherwise.
func NewTestHabit(name string, opts ...HabitOption) *domain.Habit {
	now := time.Now().UTC()
	h := &domain.Habit{
		ID:        uuid.New().String(),
		Name:      name,
		Frequency: domain.FrequencyDaily,
		Policy:    domain.TimingPolicy{Mode: domain.TimerOff},
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SessionOption customises a fixture timer session.
type SessionOption func(*domain.TimerSession)

func WithSessionState(state domain.SessionState) SessionOption {
	return func(s *domain.TimerSession) {
		s.State = state
	}
}

func WithSessionStartedAt(t time.Time) SessionOption {
	return func(s *domain.TimerSession) {
		s.StartedAt = t
		s.ResumedAt = &t
		s.UpdatedAt = t
	}
}

func WithAccumulatedMs(ms int64) SessionOption {
	return func(s *domain.TimerSession) {
		s.AccumulatedMs = ms
	}
}

func WithSessionTarget(ms int64) SessionOption {
	return func(s *domain.TimerSession) {
		s.TargetMs = ms
	}
}

// WithEndedDuration closes the session crediting sec seconds.
func WithEndedDuration(sec int) SessionOption {
	return func(s *domain.TimerSession) {
		end := s.StartedAt.Add(time.Duration(sec) * time.Second)
		s.State = domain.SessionEnded
		s.ResumedAt = nil
		s.EndedAt = &end
		s.DurationSeconds = &sec
		s.AccumulatedMs = int64(sec) * 1000
	}
}

// NewTestSession builds a running stopwatch session started now.
func NewTestSession(habitID string, opts ...SessionOption) *domain.TimerSession {
	now := time.Now().UTC()
	s := &domain.TimerSession{
		ID:        uuid.New().String(),
		HabitID:   habitID,
		Mode:      domain.TimerStopwatch,
		State:     domain.SessionRunning,
		Source:    domain.SourceManual,
		StartedAt: now,
		ResumedAt: &now,
		UpdatedAt: now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
