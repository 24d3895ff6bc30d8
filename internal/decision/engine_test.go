package decision

import (
	"math/rand"
	"testing"

	"github.com/alexanderramin/streak/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func countdown(targetSec int) domain.TimingPolicy {
	return domain.TimingPolicy{Mode: domain.TimerCountdown, TargetDurationSeconds: intPtr(targetSec)}
}

func running(elapsedMs int64) TimerSnapshot {
	return TimerSnapshot{State: TimerRunning, SessionID: "s-1", ElapsedMs: elapsedMs}
}

func defaultFlags() Flags {
	return Flags{SingleActiveTimer: true, AskBeforeSkippingTimer: true}
}

func TestDecide_DoneWithoutTimer_RequireTimerDisallows(t *testing.T) {
	policy := countdown(600)
	policy.RequireTimerToComplete = true

	out := Decide(Input{HabitID: "h-1", Policy: policy, Intent: IntentDone, Flags: defaultFlags()})

	assert.Equal(t, KindDisallow, out.Kind)
	assert.Equal(t, ReasonTimerRequired, out.Reason)
	assert.Empty(t, out.Actions)
}

func TestDecide_DoneWithoutTimer_AsksBeforeSkipping(t *testing.T) {
	in := Input{HabitID: "h-1", Policy: countdown(600), Intent: IntentDone, Flags: defaultFlags()}

	out := Decide(in)
	assert.Equal(t, KindConfirm, out.Kind)
	assert.Equal(t, ConfirmCompleteWithoutTimer, out.Confirm)

	in.Override = OverrideConfirm
	out = Decide(in)
	require.Equal(t, KindExecute, out.Kind)
	assert.Equal(t, []ActionKind{ActionCompleteForPeriod, ActionEmitUndoableNotice}, out.ActionKinds())
	assert.True(t, out.Undoable)
	assert.False(t, out.Actions[0].LogDuration)
}

func TestDecide_DoneWithoutTimer_DontAskAgainDisablesPrompt(t *testing.T) {
	in := Input{
		HabitID:  "h-1",
		Policy:   countdown(600),
		Intent:   IntentDone,
		Override: OverrideDontAskAgain,
		Flags:    defaultFlags(),
	}

	out := Decide(in)

	assert.Equal(t, []ActionKind{ActionDisableSkipPrompt, ActionCompleteForPeriod, ActionEmitUndoableNotice}, out.ActionKinds())
	assert.True(t, out.Undoable)
}

func TestDecide_DoneWithoutTimer_CompletesImmediately(t *testing.T) {
	cases := []struct {
		name   string
		policy domain.TimingPolicy
		flags  Flags
		intent Intent
	}{
		{"timer off", domain.TimingPolicy{Mode: domain.TimerOff}, defaultFlags(), IntentDone},
		{"ask disabled", countdown(600), Flags{SingleActiveTimer: true}, IntentDone},
		{"quick complete", countdown(600), defaultFlags(), IntentQuickComplete},
	}
	for _, tc := range cases {
		out := Decide(Input{HabitID: "h-1", Policy: tc.policy, Intent: tc.intent, Flags: tc.flags})
		assert.Equal(t, KindExecute, out.Kind, tc.name)
		assert.Equal(t, []ActionKind{ActionCompleteForPeriod, ActionEmitUndoableNotice}, out.ActionKinds(), tc.name)
		assert.True(t, out.Undoable, tc.name)
	}
}

func TestDecide_DoneAfterEarlierSession_LogsPeriodTotal(t *testing.T) {
	policy := countdown(600)
	policy.RequireTimerToComplete = true

	out := Decide(Input{
		HabitID:            "h-1",
		Policy:             policy,
		Intent:             IntentDone,
		TimerRanThisPeriod: true,
		LoggedThisPeriodMs: 420000,
		Flags:              defaultFlags(),
	})

	require.Equal(t, KindExecute, out.Kind)
	require.True(t, out.Has(ActionCompleteForPeriod))
	assert.True(t, out.Actions[0].LogDuration)
	assert.Equal(t, int64(420000), out.Actions[0].DurationMs)
}

func TestDecide_MinimumDurationGate(t *testing.T) {
	policy := domain.TimingPolicy{Mode: domain.TimerStopwatch, MinDurationSeconds: intPtr(300)}
	in := Input{HabitID: "h-1", Policy: policy, Intent: IntentDone, Flags: defaultFlags()}

	in.Timer = running(299000)
	out := Decide(in)
	assert.Equal(t, KindConfirm, out.Kind)
	assert.Equal(t, ConfirmBelowMinDuration, out.Confirm)

	in.Timer = running(300000)
	out = Decide(in)
	require.Equal(t, KindExecute, out.Kind)
	assert.Equal(t, []ActionKind{ActionCompleteForPeriod, ActionStopTimer, ActionEmitUndoableNotice}, out.ActionKinds())
	assert.True(t, out.Undoable)
	assert.Equal(t, int64(300000), out.Actions[0].DurationMs)
	assert.Equal(t, "s-1", out.Actions[1].SessionID)
}

func TestDecide_MinimumCountsPeriodTotal(t *testing.T) {
	policy := domain.TimingPolicy{Mode: domain.TimerStopwatch, MinDurationSeconds: intPtr(300)}
	in := Input{
		HabitID:            "h-1",
		Policy:             policy,
		Intent:             IntentDone,
		Timer:              running(120000),
		TimerRanThisPeriod: true,
		LoggedThisPeriodMs: 200000,
		Flags:              defaultFlags(),
	}

	out := Decide(in)
	require.Equal(t, KindExecute, out.Kind, "120s live plus 200s logged clears a 300s minimum")
	assert.Equal(t, int64(320000), out.Actions[0].DurationMs)

	in.LoggedThisPeriodMs = 100000
	out = Decide(in)
	assert.Equal(t, KindConfirm, out.Kind)
	assert.Equal(t, ConfirmBelowMinDuration, out.Confirm)
}

func TestDecide_PartialLogDoesNotUnlockDone(t *testing.T) {
	policy := domain.TimingPolicy{Mode: domain.TimerStopwatch, MinDurationSeconds: intPtr(300)}
	in := Input{
		HabitID:            "h-1",
		Policy:             policy,
		Intent:             IntentDone,
		TimerRanThisPeriod: true,
		LoggedThisPeriodMs: 100000,
		Flags:              defaultFlags(),
	}

	out := Decide(in)
	assert.Equal(t, KindConfirm, out.Kind)
	assert.Equal(t, ConfirmBelowMinDuration, out.Confirm)

	in.Override = OverrideLogPartial
	assert.True(t, Decide(in).IsNoop(), "the partial time is already credited")

	in.Override = OverrideConfirm
	out = Decide(in)
	require.Equal(t, KindExecute, out.Kind)
	assert.Equal(t, []ActionKind{ActionCompleteForPeriod, ActionEmitUndoableNotice}, out.ActionKinds())
	assert.Equal(t, int64(100000), out.Actions[0].DurationMs)

	in.Override = OverrideNone
	in.SystemTriggered = true
	assert.True(t, Decide(in).Has(ActionCompleteForPeriod))

	in.SystemTriggered = false
	in.LoggedThisPeriodMs = 300000
	assert.True(t, Decide(in).Has(ActionCompleteForPeriod))
}

func TestDecide_BelowMinimum_Overrides(t *testing.T) {
	policy := domain.TimingPolicy{Mode: domain.TimerStopwatch, MinDurationSeconds: intPtr(300)}
	in := Input{HabitID: "h-1", Policy: policy, Intent: IntentDone, Timer: running(120000), Flags: defaultFlags()}

	in.Override = OverrideConfirm
	out := Decide(in)
	assert.True(t, out.Has(ActionCompleteForPeriod))
	assert.True(t, out.Undoable)

	in.Override = OverrideLogPartial
	out = Decide(in)
	assert.Equal(t, []ActionKind{ActionStopTimer}, out.ActionKinds())
	assert.Equal(t, int64(120000), out.Actions[0].DurationMs)
	assert.False(t, out.Undoable)
}

func TestDecide_NoMinimum_CompletesWhilePaused(t *testing.T) {
	in := Input{
		HabitID: "h-1",
		Policy:  domain.TimingPolicy{Mode: domain.TimerStopwatch},
		Intent:  IntentDone,
		Timer:   TimerSnapshot{State: TimerPaused, SessionID: "s-1", ElapsedMs: 5000},
		Flags:   defaultFlags(),
	}

	out := Decide(in)

	assert.Equal(t, []ActionKind{ActionCompleteForPeriod, ActionStopTimer, ActionEmitUndoableNotice}, out.ActionKinds())
}

func TestDecide_PomodoroEndEarlyTakesPrecedence(t *testing.T) {
	policy := domain.TimingPolicy{
		Mode:                  domain.TimerPomodoro,
		TargetDurationSeconds: intPtr(1500),
		MinDurationSeconds:    intPtr(600),
	}
	in := Input{HabitID: "h-1", Policy: policy, Intent: IntentDone, Timer: running(60000), Flags: defaultFlags()}

	out := Decide(in)
	assert.Equal(t, ConfirmEndPomodoroEarly, out.Confirm)

	// Above the minimum but short of the segment.
	in.Timer = running(900000)
	out = Decide(in)
	assert.Equal(t, ConfirmEndPomodoroEarly, out.Confirm)

	in.Override = OverrideConfirm
	out = Decide(in)
	assert.Equal(t, KindExecute, out.Kind)
	assert.True(t, out.Has(ActionCompleteForPeriod))
}

func TestDecide_PomodoroUsesExtendedTarget(t *testing.T) {
	policy := domain.TimingPolicy{Mode: domain.TimerPomodoro, TargetDurationSeconds: intPtr(60)}
	timer := running(90000)
	timer.TargetMs = 120000

	out := Decide(Input{HabitID: "h-1", Policy: policy, Intent: IntentDone, Timer: timer, Flags: defaultFlags()})

	assert.Equal(t, ConfirmEndPomodoroEarly, out.Confirm)
}

func TestDecide_SystemTriggeredSkipsConfirmation(t *testing.T) {
	policy := domain.TimingPolicy{
		Mode:                  domain.TimerPomodoro,
		TargetDurationSeconds: intPtr(60),
		MinDurationSeconds:    intPtr(60),
		AutoCompleteOnTarget:  true,
	}
	timer := running(59999)
	timer.State = TimerAtTarget

	out := Decide(Input{HabitID: "h-1", Policy: policy, Intent: IntentDone, Timer: timer, SystemTriggered: true, Flags: defaultFlags()})

	assert.Equal(t, KindExecute, out.Kind)
	assert.Equal(t, []ActionKind{ActionCompleteForPeriod, ActionStopTimer, ActionEmitUndoableNotice}, out.ActionKinds())
}

func TestDecide_DoneAlreadyCompleted(t *testing.T) {
	in := Input{HabitID: "h-1", Policy: countdown(60), Intent: IntentDone, CompletedThisPeriod: true, Flags: defaultFlags()}

	assert.True(t, Decide(in).IsNoop())

	in.Timer = running(30000)
	out := Decide(in)
	assert.Equal(t, []ActionKind{ActionStopTimer}, out.ActionKinds())
	assert.False(t, out.Has(ActionCompleteForPeriod))
}

func TestDecide_StopWithoutComplete(t *testing.T) {
	in := Input{HabitID: "h-1", Policy: countdown(60), Intent: IntentStopWithoutComplete, Flags: defaultFlags()}

	t.Run("empty session is discarded silently", func(t *testing.T) {
		in := in
		in.Timer = running(0)
		out := Decide(in)
		assert.Equal(t, KindExecute, out.Kind)
		assert.Equal(t, []ActionKind{ActionDiscardTimer}, out.ActionKinds())
	})

	t.Run("non-zero session asks first", func(t *testing.T) {
		in := in
		in.Timer = running(45000)
		out := Decide(in)
		assert.Equal(t, KindConfirm, out.Kind)
		assert.Equal(t, ConfirmDiscardNonZeroSession, out.Confirm)

		in.Override = OverrideConfirm
		assert.Equal(t, []ActionKind{ActionDiscardTimer}, Decide(in).ActionKinds())

		in.Override = OverrideLogPartial
		assert.Equal(t, []ActionKind{ActionStopTimer}, Decide(in).ActionKinds())
	})

	t.Run("idle is a no-op", func(t *testing.T) {
		assert.True(t, Decide(in).IsNoop())
	})
}

func TestDecide_StartSwitchesActiveTimer(t *testing.T) {
	out := Decide(Input{
		HabitID:       "h-b",
		Policy:        countdown(600),
		Intent:        IntentStart,
		Flags:         defaultFlags(),
		OthersRunning: []RunningTimer{{HabitID: "h-a", SessionID: "s-a"}},
	})

	require.Equal(t, []ActionKind{ActionAutoPauseOther, ActionStartTimer, ActionEmitSwitchNotice}, out.ActionKinds())
	assert.Equal(t, "h-a", out.Actions[0].HabitID)
	assert.Equal(t, "s-a", out.Actions[0].SessionID)
	assert.Equal(t, int64(600000), out.Actions[1].TargetMs)
	assert.Equal(t, "h-b", out.Actions[2].HabitID)
	assert.Equal(t, "h-a", out.Actions[2].FromHabitID)
	assert.False(t, out.Undoable)
}

func TestDecide_StartWithoutSingleActivePolicy(t *testing.T) {
	out := Decide(Input{
		HabitID:       "h-b",
		Policy:        countdown(600),
		Intent:        IntentStart,
		Flags:         Flags{},
		OthersRunning: []RunningTimer{{HabitID: "h-a", SessionID: "s-a"}},
	})

	assert.Equal(t, []ActionKind{ActionStartTimer}, out.ActionKinds())
}

func TestDecide_StartIdempotent(t *testing.T) {
	in := Input{HabitID: "h-1", Policy: countdown(60), Intent: IntentStart, Flags: defaultFlags()}

	in.Timer = running(1000)
	assert.True(t, Decide(in).IsNoop(), "already running")

	in.Timer = TimerSnapshot{}
	in.CompletedThisPeriod = true
	assert.True(t, Decide(in).IsNoop(), "already completed")

	in.Intent = IntentResume
	in.Timer = TimerSnapshot{State: TimerPaused, SessionID: "s-1"}
	assert.True(t, Decide(in).IsNoop(), "resume after completion")
}

func TestDecide_StartOnPausedTimerResumes(t *testing.T) {
	out := Decide(Input{
		HabitID: "h-1",
		Policy:  countdown(60),
		Intent:  IntentStart,
		Timer:   TimerSnapshot{State: TimerPaused, SessionID: "s-1", ElapsedMs: 10000},
		Flags:   defaultFlags(),
	})

	assert.Equal(t, []ActionKind{ActionResumeTimer}, out.ActionKinds())
	assert.Equal(t, "s-1", out.Actions[0].SessionID)
}

func TestDecide_StartTimerDisabled(t *testing.T) {
	out := Decide(Input{HabitID: "h-1", Policy: domain.TimingPolicy{Mode: domain.TimerOff}, Intent: IntentStart})

	assert.Equal(t, KindDisallow, out.Kind)
	assert.Equal(t, ReasonTimerDisabled, out.Reason)
}

func TestDecide_PauseAndExtend(t *testing.T) {
	in := Input{HabitID: "h-1", Policy: countdown(60), Intent: IntentPause, Timer: running(1000)}
	assert.Equal(t, []ActionKind{ActionPauseTimer}, Decide(in).ActionKinds())

	in.Timer.State = TimerPaused
	assert.True(t, Decide(in).IsNoop(), "pause is idempotent")

	in.Intent = IntentExtend
	in.ExtendByMs = 0
	assert.Equal(t, ReasonInvalidExtend, Decide(in).Reason)

	in.ExtendByMs = 300000
	out := Decide(in)
	require.Equal(t, []ActionKind{ActionExtendTimer}, out.ActionKinds())
	assert.Equal(t, int64(300000), out.Actions[0].ExtendByMs)

	in.Timer = TimerSnapshot{State: TimerIdle}
	assert.True(t, Decide(in).IsNoop())
}

func TestDecide_ArchivedHabit(t *testing.T) {
	in := Input{HabitID: "h-1", Policy: countdown(60), Archived: true, Timer: running(5000)}

	in.Intent = IntentStart
	assert.Equal(t, ReasonHabitArchived, Decide(in).Reason)

	in.Intent = IntentPause
	assert.Equal(t, KindExecute, Decide(in).Kind)
}

func TestDecide_UnknownIntent(t *testing.T) {
	out := Decide(Input{HabitID: "h-1", Intent: "snooze"})
	assert.Equal(t, KindDisallow, out.Kind)
	assert.Equal(t, ReasonUnknownIntent, out.Reason)
}

func TestParseIntent_Aliases(t *testing.T) {
	got, ok := ParseIntent("quick")
	require.True(t, ok)
	assert.Equal(t, IntentQuickComplete, got)

	got, ok = ParseIntent("discard")
	require.True(t, ok)
	assert.Equal(t, IntentStopWithoutComplete, got)

	_, ok = ParseIntent("snooze")
	assert.False(t, ok)
}

// TestDecide_Invariants property-tests the outcome shape over random inputs.
func TestDecide_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	intents := []Intent{IntentStart, IntentPause, IntentResume, IntentDone, IntentStopWithoutComplete, IntentQuickComplete, IntentExtend}
	states := []TimerState{TimerIdle, TimerRunning, TimerPaused, TimerAtTarget}
	modes := []domain.TimerMode{domain.TimerOff, domain.TimerCountdown, domain.TimerStopwatch, domain.TimerPomodoro}
	overrides := []Override{OverrideNone, OverrideConfirm, OverrideLogPartial, OverrideDontAskAgain}

	for trial := 0; trial < 500; trial++ {
		policy := domain.TimingPolicy{
			Mode:                   modes[rng.Intn(len(modes))],
			TargetDurationSeconds:  intPtr(rng.Intn(1800) + 60),
			AutoCompleteOnTarget:   rng.Intn(2) == 1,
			RequireTimerToComplete: rng.Intn(2) == 1,
		}
		if rng.Intn(2) == 1 {
			policy.MinDurationSeconds = intPtr(rng.Intn(60) + 1)
		}
		in := Input{
			HabitID:             "h-1",
			Policy:              policy,
			Timer:               TimerSnapshot{State: states[rng.Intn(len(states))], SessionID: "s-1", ElapsedMs: int64(rng.Intn(3600000))},
			CompletedThisPeriod: rng.Intn(3) == 0,
			Intent:              intents[rng.Intn(len(intents))],
			Override:            overrides[rng.Intn(len(overrides))],
			ExtendByMs:          int64(rng.Intn(600000)),
			Flags:               Flags{SingleActiveTimer: rng.Intn(2) == 1, AskBeforeSkippingTimer: rng.Intn(2) == 1},
		}

		out := Decide(in)

		switch out.Kind {
		case KindExecute:
			assert.Empty(t, out.Confirm, "trial %d", trial)
			assert.Empty(t, out.Reason, "trial %d", trial)
		case KindConfirm:
			assert.Empty(t, out.Actions, "trial %d", trial)
			assert.NotEmpty(t, out.Confirm, "trial %d", trial)
		case KindDisallow:
			assert.Empty(t, out.Actions, "trial %d", trial)
			assert.NotEmpty(t, out.Reason, "trial %d", trial)
		default:
			t.Fatalf("trial %d: unexpected kind %q", trial, out.Kind)
		}

		if in.CompletedThisPeriod {
			assert.False(t, out.Has(ActionCompleteForPeriod), "trial %d: completed period recorded twice", trial)
		}
		if out.Undoable {
			assert.True(t, out.Has(ActionCompleteForPeriod), "trial %d: undoable without a completion", trial)
		}
	}
}
