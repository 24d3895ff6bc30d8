package decision

import "github.com/alexanderramin/streak/internal/domain"

// emptySessionMs is the elapsed time below which a session has nothing worth
// crediting; durations are stored in whole seconds.
const emptySessionMs = 1000

// Decide evaluates one intent. It never fails: every expected condition is an
// Execute, Confirm or Disallow outcome. An Execute with no actions is a no-op.
func Decide(in Input) Outcome {
	if in.Archived && !allowedWhenArchived(in.Intent) {
		return disallow(ReasonHabitArchived)
	}

	switch in.Intent {
	case IntentStart:
		return decideStart(in)
	case IntentResume:
		return decideResume(in)
	case IntentPause:
		return decidePause(in)
	case IntentExtend:
		return decideExtend(in)
	case IntentStopWithoutComplete:
		return decideStop(in)
	case IntentDone, IntentQuickComplete:
		return decideDone(in)
	default:
		return disallow(ReasonUnknownIntent)
	}
}

// Pausing or stopping is always allowed so an archived habit never strands a
// running session.
func allowedWhenArchived(intent Intent) bool {
	return intent == IntentPause || intent == IntentStopWithoutComplete
}

func decideStart(in Input) Outcome {
	if in.CompletedThisPeriod {
		return noop()
	}
	if !in.Policy.TimerEnabled() {
		return disallow(ReasonTimerDisabled)
	}

	switch in.Timer.State {
	case TimerRunning, TimerAtTarget:
		return noop()
	case TimerPaused:
		return decideResume(in)
	}

	actions := autoPauseOthers(in)
	actions = append(actions, Action{
		Kind:     ActionStartTimer,
		HabitID:  in.HabitID,
		TargetMs: in.Policy.TargetMs(),
	})
	actions = append(actions, switchNotices(in)...)
	return execute(actions, false)
}

func decideResume(in Input) Outcome {
	if in.CompletedThisPeriod || in.Timer.State != TimerPaused {
		return noop()
	}
	actions := autoPauseOthers(in)
	actions = append(actions, Action{
		Kind:      ActionResumeTimer,
		HabitID:   in.HabitID,
		SessionID: in.Timer.SessionID,
	})
	actions = append(actions, switchNotices(in)...)
	return execute(actions, false)
}

func decidePause(in Input) Outcome {
	if !in.Timer.Ticking() {
		return noop()
	}
	return execute([]Action{{
		Kind:      ActionPauseTimer,
		HabitID:   in.HabitID,
		SessionID: in.Timer.SessionID,
	}}, false)
}

func decideExtend(in Input) Outcome {
	if in.ExtendByMs <= 0 {
		return disallow(ReasonInvalidExtend)
	}
	if !in.Timer.Active() {
		return noop()
	}
	return execute([]Action{{
		Kind:       ActionExtendTimer,
		HabitID:    in.HabitID,
		SessionID:  in.Timer.SessionID,
		ExtendByMs: in.ExtendByMs,
	}}, false)
}

func decideStop(in Input) Outcome {
	if !in.Timer.Active() {
		return noop()
	}
	if in.Timer.ElapsedMs < emptySessionMs {
		return execute([]Action{discardAction(in)}, false)
	}

	switch in.Override {
	case OverrideConfirm:
		return execute([]Action{discardAction(in)}, false)
	case OverrideLogPartial:
		return execute([]Action{stopAction(in)}, false)
	}
	return confirm(ConfirmDiscardNonZeroSession)
}

func decideDone(in Input) Outcome {
	if in.CompletedThisPeriod {
		// The period is already satisfied; an open session is closed and
		// credited but nothing is recorded twice.
		if in.Timer.Active() {
			return execute([]Action{stopAction(in)}, false)
		}
		return noop()
	}

	if !in.Timer.Active() {
		return decideDoneWithoutTimer(in)
	}

	if in.SystemTriggered || in.Override == OverrideConfirm {
		return completeWithTimer(in)
	}
	if in.Override == OverrideLogPartial {
		return execute([]Action{stopAction(in)}, false)
	}

	// A pomodoro focus segment cut short is the more specific prompt, so it
	// wins over the minimum-duration one.
	if in.Policy.Mode == domain.TimerPomodoro {
		if target := timerTarget(in); target > 0 && in.Timer.ElapsedMs < target {
			return confirm(ConfirmEndPomodoroEarly)
		}
	}
	if belowMinimum(in, in.Timer.ElapsedMs+in.LoggedThisPeriodMs) {
		return confirm(ConfirmBelowMinDuration)
	}
	return completeWithTimer(in)
}

func decideDoneWithoutTimer(in Input) Outcome {
	if in.TimerRanThisPeriod {
		return doneFromLoggedTime(in)
	}
	if in.Policy.RequireTimerToComplete {
		return disallow(ReasonTimerRequired)
	}

	prompt := in.Policy.TimerEnabled() &&
		in.Flags.AskBeforeSkippingTimer &&
		in.Intent != IntentQuickComplete &&
		!in.SystemTriggered
	if !prompt {
		return completeForPeriod(in, nil, false, 0)
	}

	switch in.Override {
	case OverrideConfirm:
		return completeForPeriod(in, nil, false, 0)
	case OverrideDontAskAgain:
		return completeForPeriod(in, []Action{{Kind: ActionDisableSkipPrompt}}, false, 0)
	}
	return confirm(ConfirmCompleteWithoutTimer)
}

// doneFromLoggedTime completes a habit whose timer already ran this period.
// The minimum applies to the period total, so a session logged as partial
// does not unlock completion on its own.
func doneFromLoggedTime(in Input) Outcome {
	if in.SystemTriggered || in.Override == OverrideConfirm || !belowMinimum(in, in.LoggedThisPeriodMs) {
		return completeForPeriod(in, nil, true, in.LoggedThisPeriodMs)
	}
	if in.Override == OverrideLogPartial {
		// the time is already credited
		return noop()
	}
	return confirm(ConfirmBelowMinDuration)
}

func belowMinimum(in Input, loggedMs int64) bool {
	minMs := in.Policy.MinMs()
	return minMs > 0 && loggedMs < minMs
}

func completeWithTimer(in Input) Outcome {
	return execute([]Action{
		{
			Kind:        ActionCompleteForPeriod,
			HabitID:     in.HabitID,
			LogDuration: true,
			DurationMs:  in.Timer.ElapsedMs + in.LoggedThisPeriodMs,
		},
		stopAction(in),
		{Kind: ActionEmitUndoableNotice, HabitID: in.HabitID},
	}, true)
}

func completeForPeriod(in Input, prefix []Action, logDuration bool, durationMs int64) Outcome {
	actions := append([]Action{}, prefix...)
	actions = append(actions,
		Action{
			Kind:        ActionCompleteForPeriod,
			HabitID:     in.HabitID,
			LogDuration: logDuration,
			DurationMs:  durationMs,
		},
		Action{Kind: ActionEmitUndoableNotice, HabitID: in.HabitID},
	)
	return execute(actions, true)
}

func autoPauseOthers(in Input) []Action {
	if !in.Flags.SingleActiveTimer {
		return nil
	}
	var actions []Action
	for _, other := range in.OthersRunning {
		if other.HabitID == in.HabitID {
			continue
		}
		actions = append(actions, Action{
			Kind:      ActionAutoPauseOther,
			HabitID:   other.HabitID,
			SessionID: other.SessionID,
		})
	}
	return actions
}

func switchNotices(in Input) []Action {
	if !in.Flags.SingleActiveTimer {
		return nil
	}
	var actions []Action
	for _, other := range in.OthersRunning {
		if other.HabitID == in.HabitID {
			continue
		}
		actions = append(actions, Action{
			Kind:        ActionEmitSwitchNotice,
			HabitID:     in.HabitID,
			FromHabitID: other.HabitID,
		})
	}
	return actions
}

func stopAction(in Input) Action {
	return Action{
		Kind:       ActionStopTimer,
		HabitID:    in.HabitID,
		SessionID:  in.Timer.SessionID,
		DurationMs: in.Timer.ElapsedMs,
	}
}

func discardAction(in Input) Action {
	return Action{
		Kind:      ActionDiscardTimer,
		HabitID:   in.HabitID,
		SessionID: in.Timer.SessionID,
	}
}

func timerTarget(in Input) int64 {
	if in.Timer.TargetMs > 0 {
		return in.Timer.TargetMs
	}
	return in.Policy.TargetMs()
}

func execute(actions []Action, undoable bool) Outcome {
	return Outcome{Kind: KindExecute, Actions: actions, Undoable: undoable}
}

func noop() Outcome {
	return Outcome{Kind: KindExecute}
}

func confirm(t ConfirmType) Outcome {
	return Outcome{Kind: KindConfirm, Confirm: t}
}

func disallow(r Reason) Outcome {
	return Outcome{Kind: KindDisallow, Reason: r}
}
