package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrTargetRequired   = errors.New("target duration is required for countdown and pomodoro timers")
	ErrMinAboveTarget   = errors.New("minimum duration cannot exceed target duration")
	ErrNonPositiveValue = errors.New("durations must be positive")
)

// TimingPolicy is the per-habit timer configuration. It is treated as an
// immutable value: edits replace the whole policy.
type TimingPolicy struct {
	Mode                   TimerMode
	TargetDurationSeconds  *int
	MinDurationSeconds     *int
	AutoCompleteOnTarget   bool
	RequireTimerToComplete bool
}

// Validate checks the policy invariants.
func (p TimingPolicy) Validate() error {
	if p.TargetDurationSeconds != nil && *p.TargetDurationSeconds <= 0 {
		return fmt.Errorf("target: %w", ErrNonPositiveValue)
	}
	if p.MinDurationSeconds != nil && *p.MinDurationSeconds <= 0 {
		return fmt.Errorf("minimum: %w", ErrNonPositiveValue)
	}
	if (p.Mode == TimerCountdown || p.Mode == TimerPomodoro) && p.TargetDurationSeconds == nil {
		return ErrTargetRequired
	}
	if p.TargetDurationSeconds != nil && p.MinDurationSeconds != nil &&
		*p.MinDurationSeconds > *p.TargetDurationSeconds {
		return ErrMinAboveTarget
	}
	return nil
}

// TimerEnabled reports whether the habit uses a timer at all.
func (p TimingPolicy) TimerEnabled() bool {
	return p.Mode != "" && p.Mode != TimerOff
}

// TargetMs returns the target in milliseconds, or 0 when unset.
func (p TimingPolicy) TargetMs() int64 {
	if p.TargetDurationSeconds == nil {
		return 0
	}
	return int64(*p.TargetDurationSeconds) * 1000
}

// MinMs returns the minimum duration in milliseconds, or 0 when unset.
func (p TimingPolicy) MinMs() int64 {
	if p.MinDurationSeconds == nil {
		return 0
	}
	return int64(*p.MinDurationSeconds) * 1000
}

type Habit struct {
	ID         string
	Name       string
	Frequency  Frequency
	Policy     TimingPolicy
	ArchivedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate checks the habit's own fields and its timing policy.
func (h *Habit) Validate() error {
	if h.Name == "" {
		return errors.New("habit name is required")
	}
	if _, err := ParseFrequency(string(h.Frequency)); err != nil {
		return err
	}
	if _, err := ParseTimerMode(string(h.Policy.Mode)); err != nil {
		return err
	}
	return h.Policy.Validate()
}

// IsArchived reports whether the habit has been archived.
func (h *Habit) IsArchived() bool {
	return h.ArchivedAt != nil
}
