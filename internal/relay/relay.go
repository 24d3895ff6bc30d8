// Package relay turns the action strings carried by widget buttons and
// notification actions into coordinator requests. Surfaces outside the
// process never touch sessions or completions directly.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/alexanderramin/streak/internal/coordinator"
	"github.com/alexanderramin/streak/internal/decision"
	"github.com/alexanderramin/streak/internal/domain"
)

const scheme = "habit"

var ErrMalformedAction = errors.New("malformed action")

// Action is one button press: "habit:<id>:<intent>[:<arg>]". The optional
// argument is an override for done/stop/quick_complete and a number of
// seconds for extend.
type Action struct {
	HabitID    string
	Intent     decision.Intent
	Override   decision.Override
	ExtendByMs int64
}

func ParseAction(raw string) (Action, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 3 || len(parts) > 4 || parts[0] != scheme || parts[1] == "" {
		return Action{}, fmt.Errorf("%w: %q", ErrMalformedAction, raw)
	}
	intent, ok := decision.ParseIntent(parts[2])
	if !ok {
		return Action{}, fmt.Errorf("%w: unknown intent %q", ErrMalformedAction, parts[2])
	}
	a := Action{HabitID: parts[1], Intent: intent}
	if len(parts) == 3 {
		if intent == decision.IntentExtend {
			return Action{}, fmt.Errorf("%w: extend needs a duration", ErrMalformedAction)
		}
		return a, nil
	}

	arg := parts[3]
	if intent == decision.IntentExtend {
		secs, err := strconv.Atoi(arg)
		if err != nil || secs <= 0 {
			return Action{}, fmt.Errorf("%w: extend duration %q", ErrMalformedAction, arg)
		}
		a.ExtendByMs = int64(secs) * 1000
		return a, nil
	}
	override, ok := decision.ParseOverride(arg)
	if !ok {
		return Action{}, fmt.Errorf("%w: unknown override %q", ErrMalformedAction, arg)
	}
	a.Override = override
	return a, nil
}

func (a Action) String() string {
	s := scheme + ":" + a.HabitID + ":" + string(a.Intent)
	switch {
	case a.Intent == decision.IntentExtend && a.ExtendByMs > 0:
		s += ":" + strconv.FormatInt(a.ExtendByMs/1000, 10)
	case a.Override != decision.OverrideNone:
		s += ":" + string(a.Override)
	}
	return s
}

// Submitter is the coordinator entry point relays forward to.
type Submitter interface {
	Submit(ctx context.Context, req coordinator.Request) (coordinator.Result, error)
}

type Relay struct {
	source domain.Source
	target Submitter
	logger *slog.Logger
}

func NewWidgetRelay(target Submitter, logger *slog.Logger) *Relay {
	return newRelay(domain.SourceWidget, target, logger)
}

func NewNotificationRelay(target Submitter, logger *slog.Logger) *Relay {
	return newRelay(domain.SourceNotification, target, logger)
}

func newRelay(source domain.Source, target Submitter, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Relay{source: source, target: target, logger: logger}
}

func (r *Relay) Source() domain.Source {
	return r.source
}

// Handle parses raw and submits it tagged with the relay's source.
func (r *Relay) Handle(ctx context.Context, raw string) (coordinator.Result, error) {
	a, err := ParseAction(raw)
	if err != nil {
		r.logger.Warn("rejected relay action", "source", r.source, "action", raw, "error", err)
		return coordinator.Result{}, err
	}
	res, err := r.target.Submit(ctx, coordinator.Request{
		HabitID:    a.HabitID,
		Intent:     a.Intent,
		Override:   a.Override,
		Source:     r.source,
		ExtendByMs: a.ExtendByMs,
	})
	if err != nil {
		return res, fmt.Errorf("%s action %s: %w", r.source, a, err)
	}
	r.logger.Debug("relayed action", "source", r.source, "action", a.String(), "kind", res.Outcome.Kind)
	return res, nil
}

// Buttons lists the actions a widget or notification shows for habitID in
// the given state.
func Buttons(state coordinator.State, habitID string) []Action {
	if state.HasPendingConfirm(habitID) {
		var out []Action
		intent := ConfirmIntent(state.PendingConfirmType)
		for _, o := range state.PendingConfirmType.Overrides() {
			out = append(out, Action{HabitID: habitID, Intent: intent, Override: o})
		}
		return out
	}

	if state.ActiveHabitID != habitID || state.TimerState == decision.TimerIdle {
		return []Action{
			{HabitID: habitID, Intent: decision.IntentStart},
			{HabitID: habitID, Intent: decision.IntentDone},
		}
	}
	toggle := decision.IntentPause
	if state.TimerState == decision.TimerPaused {
		toggle = decision.IntentResume
	}
	return []Action{
		{HabitID: habitID, Intent: toggle},
		{HabitID: habitID, Intent: decision.IntentDone},
		{HabitID: habitID, Intent: decision.IntentStopWithoutComplete},
	}
}

// ConfirmIntent is the intent to resubmit with an override to resolve c.
func ConfirmIntent(c decision.ConfirmType) decision.Intent {
	if c == decision.ConfirmDiscardNonZeroSession {
		return decision.IntentStopWithoutComplete
	}
	return decision.IntentDone
}
