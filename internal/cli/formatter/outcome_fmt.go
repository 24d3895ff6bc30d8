package formatter

import (
	"fmt"

	"github.com/alexanderramin/streak/internal/coordinator"
	"github.com/alexanderramin/streak/internal/decision"
)

// FormatResult describes what a submitted intent did for the named habit.
func FormatResult(habit string, res coordinator.Result) string {
	out := res.Outcome
	switch {
	case res.Deduplicated:
		return Dim(fmt.Sprintf("%s: already in progress", habit)) + "\n"
	case out.Kind == decision.KindDisallow:
		return StyleRed.Render(fmt.Sprintf("%s: %s", habit, out.Reason)) + "\n"
	case out.Kind == decision.KindConfirm:
		title, _ := ConfirmText(out.Confirm)
		return StyleYellow.Render(fmt.Sprintf("%s: %s", habit, title)) + "\n"
	case out.IsNoop():
		return Dim(fmt.Sprintf("%s: nothing to do", habit)) + "\n"
	}

	var msg string
	switch {
	case out.Has(decision.ActionCompleteForPeriod) && res.AlreadyCompleted:
		msg = "already completed for this period"
	case out.Has(decision.ActionCompleteForPeriod):
		msg = "completed"
		if res.Completion != nil && res.Completion.DurationSecondsLogged != nil {
			msg += fmt.Sprintf(" (%s logged)", FormatDuration(int64(*res.Completion.DurationSecondsLogged)*1000))
		}
		if out.Undoable {
			msg += Dim("  undo: streak undo " + quoteArg(habit))
		}
	case out.Has(decision.ActionStartTimer):
		msg = "timer started"
	case out.Has(decision.ActionResumeTimer):
		msg = "timer resumed"
	case out.Has(decision.ActionPauseTimer):
		msg = "timer paused"
	case out.Has(decision.ActionExtendTimer):
		msg = "timer extended"
	case out.Has(decision.ActionStopTimer):
		msg = "timer stopped, time logged"
	case out.Has(decision.ActionDiscardTimer):
		msg = "timer discarded"
	default:
		msg = "done"
	}
	line := StyleGreen.Render(habit+": ") + msg + "\n"
	for _, a := range out.Actions {
		if a.Kind == decision.ActionAutoPauseOther {
			line += Dim("  paused the other running timer") + "\n"
		}
	}
	return line
}

// ConfirmText returns the prompt title and description for a confirmation.
func ConfirmText(c decision.ConfirmType) (string, string) {
	switch c {
	case decision.ConfirmBelowMinDuration:
		return "Session is shorter than the minimum", "Complete anyway, or only log the time spent?"
	case decision.ConfirmEndPomodoroEarly:
		return "End this pomodoro early?", "The focus segment has not reached its target."
	case decision.ConfirmDiscardNonZeroSession:
		return "Discard this session?", "The time recorded so far will be lost unless you log it."
	case decision.ConfirmCompleteWithoutTimer:
		return "Complete without running the timer?", "This habit normally uses a timer."
	}
	return "Are you sure?", ""
}

// OverrideLabel is the button text for an override.
func OverrideLabel(c decision.ConfirmType, o decision.Override) string {
	switch o {
	case decision.OverrideConfirm:
		if c == decision.ConfirmDiscardNonZeroSession {
			return "Discard"
		}
		return "Complete anyway"
	case decision.OverrideLogPartial:
		return "Log time only"
	case decision.OverrideDontAskAgain:
		return "Complete, don't ask again"
	}
	return string(o)
}

func quoteArg(s string) string {
	for _, r := range s {
		if r == ' ' || r == '\t' {
			return fmt.Sprintf("%q", s)
		}
	}
	return s
}
