// Package decision holds the completion decision engine: a pure function
// from a habit's timing policy, its timer snapshot and a requested intent to
// exactly one outcome (execute, confirm or disallow).
package decision

import "github.com/alexanderramin/streak/internal/domain"

type Intent string

const (
	IntentStart               Intent = "start"
	IntentPause               Intent = "pause"
	IntentResume              Intent = "resume"
	IntentDone                Intent = "done"
	IntentStopWithoutComplete Intent = "stop"
	IntentQuickComplete       Intent = "quick_complete"
	IntentExtend              Intent = "extend"
)

// ParseIntent accepts the canonical names plus a few relay aliases.
func ParseIntent(s string) (Intent, bool) {
	switch s {
	case "start", "pause", "resume", "done", "stop", "quick_complete", "extend":
		return Intent(s), true
	case "quick", "complete":
		return IntentQuickComplete, true
	case "discard":
		return IntentStopWithoutComplete, true
	}
	return "", false
}

// Override acknowledges a previously surfaced confirmation.
type Override string

const (
	OverrideNone         Override = ""
	OverrideConfirm      Override = "confirm"
	OverrideLogPartial   Override = "log_partial"
	OverrideDontAskAgain Override = "dont_ask_again"
)

func ParseOverride(s string) (Override, bool) {
	switch o := Override(s); o {
	case OverrideConfirm, OverrideLogPartial, OverrideDontAskAgain:
		return o, true
	case "", "none":
		return OverrideNone, true
	}
	return "", false
}

type TimerState string

const (
	TimerIdle     TimerState = "idle"
	TimerRunning  TimerState = "running"
	TimerPaused   TimerState = "paused"
	TimerAtTarget TimerState = "at_target"
)

// TimerSnapshot is the habit's own timer as seen at decision time.
type TimerSnapshot struct {
	State     TimerState
	SessionID string
	ElapsedMs int64
	TargetMs  int64
}

func (s TimerSnapshot) Active() bool {
	return s.State != "" && s.State != TimerIdle
}

func (s TimerSnapshot) Ticking() bool {
	return s.State == TimerRunning || s.State == TimerAtTarget
}

// Flags are the global policy switches, passed in on every call.
type Flags struct {
	SingleActiveTimer      bool
	AskBeforeSkippingTimer bool
}

// RunningTimer identifies another habit's ticking session.
type RunningTimer struct {
	HabitID   string
	SessionID string
}

type Input struct {
	HabitID string
	Policy  domain.TimingPolicy
	Timer   TimerSnapshot

	// TimerRanThisPeriod is true when a credited session exists in the
	// current period; LoggedThisPeriodMs is their total.
	TimerRanThisPeriod  bool
	LoggedThisPeriodMs  int64
	CompletedThisPeriod bool
	Archived            bool

	Intent          Intent
	Override        Override
	SystemTriggered bool
	ExtendByMs      int64

	Flags Flags

	// OthersRunning lists ticking timers of other habits.
	OthersRunning []RunningTimer
}

type Kind string

const (
	KindExecute  Kind = "execute"
	KindConfirm  Kind = "confirm"
	KindDisallow Kind = "disallow"
)

type ConfirmType string

const (
	ConfirmBelowMinDuration      ConfirmType = "below_min_duration"
	ConfirmDiscardNonZeroSession ConfirmType = "discard_non_zero_session"
	ConfirmEndPomodoroEarly      ConfirmType = "end_pomodoro_early"
	ConfirmCompleteWithoutTimer  ConfirmType = "complete_without_timer"
)

// Overrides lists the choices that resolve a confirmation.
func (c ConfirmType) Overrides() []Override {
	switch c {
	case ConfirmBelowMinDuration, ConfirmEndPomodoroEarly, ConfirmDiscardNonZeroSession:
		return []Override{OverrideConfirm, OverrideLogPartial}
	case ConfirmCompleteWithoutTimer:
		return []Override{OverrideConfirm, OverrideDontAskAgain}
	default:
		return []Override{OverrideConfirm}
	}
}

type Reason string

const (
	ReasonTimerRequired Reason = "this habit needs a timed session before it can be completed; start the timer first"
	ReasonTimerDisabled Reason = "this habit has no timer"
	ReasonInvalidExtend Reason = "extension must be a positive duration"
	ReasonUnknownIntent Reason = "unknown action"
	ReasonHabitArchived Reason = "this habit is archived"
)

type ActionKind string

const (
	ActionAutoPauseOther     ActionKind = "auto_pause_other"
	ActionStartTimer         ActionKind = "start_timer"
	ActionPauseTimer         ActionKind = "pause_timer"
	ActionResumeTimer        ActionKind = "resume_timer"
	ActionExtendTimer        ActionKind = "extend_timer"
	ActionCompleteForPeriod  ActionKind = "complete_for_period"
	ActionStopTimer          ActionKind = "stop_timer"
	ActionDiscardTimer       ActionKind = "discard_timer"
	ActionDisableSkipPrompt  ActionKind = "disable_skip_prompt"
	ActionEmitUndoableNotice ActionKind = "emit_undoable_notice"
	ActionEmitSwitchNotice   ActionKind = "emit_switch_notice"
)

// Action is one step of an Execute outcome. Only the fields relevant to Kind
// are set.
type Action struct {
	Kind      ActionKind
	HabitID   string
	SessionID string

	// CompleteForPeriod: LogDuration reports whether DurationMs is logged.
	LogDuration bool
	DurationMs  int64

	TargetMs   int64
	ExtendByMs int64

	// SwitchNotice: the habit whose timer was paused.
	FromHabitID string
}

type Outcome struct {
	Kind     Kind
	Actions  []Action
	Undoable bool
	Confirm  ConfirmType
	Reason   Reason
}

// IsNoop reports an Execute outcome with nothing to do.
func (o Outcome) IsNoop() bool {
	return o.Kind == KindExecute && len(o.Actions) == 0
}

// Has reports whether the outcome contains an action of the given kind.
func (o Outcome) Has(kind ActionKind) bool {
	for _, a := range o.Actions {
		if a.Kind == kind {
			return true
		}
	}
	return false
}

// ActionKinds lists the action kinds in order.
func (o Outcome) ActionKinds() []ActionKind {
	kinds := make([]ActionKind, len(o.Actions))
	for i, a := range o.Actions {
		kinds[i] = a.Kind
	}
	return kinds
}
