package domain

import "fmt"

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// ParseFrequency converts a user-supplied string into a Frequency.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(s); f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return f, nil
	}
	return "", fmt.Errorf("unknown frequency %q (want daily, weekly or monthly)", s)
}

type TimerMode string

const (
	TimerOff       TimerMode = "off"
	TimerCountdown TimerMode = "countdown"
	TimerStopwatch TimerMode = "stopwatch"
	TimerPomodoro  TimerMode = "pomodoro"
)

// ParseTimerMode converts a user-supplied string into a TimerMode.
func ParseTimerMode(s string) (TimerMode, error) {
	switch m := TimerMode(s); m {
	case TimerOff, TimerCountdown, TimerStopwatch, TimerPomodoro:
		return m, nil
	case "":
		return TimerOff, nil
	}
	return "", fmt.Errorf("unknown timer mode %q (want off, countdown, stopwatch or pomodoro)", s)
}

type SessionState string

const (
	SessionRunning SessionState = "running"
	SessionPaused  SessionState = "paused"
	SessionEnded   SessionState = "ended"
)

// Source identifies which entry point produced a session or completion.
type Source string

const (
	SourceManual       Source = "manual"
	SourceAuto         Source = "auto"
	SourceWidget       Source = "widget"
	SourceNotification Source = "notification"
)

// ValidSources is the canonical set of accepted source strings.
var ValidSources = map[Source]bool{
	SourceManual: true, SourceAuto: true, SourceWidget: true, SourceNotification: true,
}
