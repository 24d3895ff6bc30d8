package coordinator

import (
	"time"

	"github.com/alexanderramin/streak/internal/decision"
)

// State is the single view every surface renders from. Only the
// coordinator writes it; callers get copies.
type State struct {
	ActiveHabitID   string
	ActiveSessionID string
	TimerState      decision.TimerState
	ElapsedMs       int64
	RemainingMs     int64
	TargetMs        int64
	Paused          bool

	IsLoading bool
	LastError string

	// Set when a timer was paused to make way for another habit.
	PausedHabitID     string
	PausedRemainingMs int64

	PendingConfirmHabitID string
	PendingConfirmType    decision.ConfirmType
}

func idleState() State {
	return State{TimerState: decision.TimerIdle}
}

// HasPendingConfirm reports whether a confirmation awaits habitID.
func (s State) HasPendingConfirm(habitID string) bool {
	return s.PendingConfirmHabitID != "" && s.PendingConfirmHabitID == habitID
}

type UIEventType string

const (
	UIConfirmRequested UIEventType = "confirm_requested"
	UIDisallowed       UIEventType = "disallowed"
	UIUndoable         UIEventType = "undoable"
	UITimerSwitched    UIEventType = "timer_switched"
	UIAutoPaused       UIEventType = "auto_paused"
	UIAutoCompleted    UIEventType = "auto_completed"
	UIUndone           UIEventType = "undone"
	UIError            UIEventType = "error"
)

// UIEvent is a one-shot message for surfaces: dialogs, toasts, snackbars.
type UIEvent struct {
	Type    UIEventType
	HabitID string
	At      time.Time

	Confirm   decision.ConfirmType
	Overrides []decision.Override
	Reason    decision.Reason

	// TimerSwitched / AutoPaused: the habit whose timer was paused.
	FromHabitID string

	// Undoable / Undone.
	PeriodKey string
	UndoUntil time.Time

	Message string
}
