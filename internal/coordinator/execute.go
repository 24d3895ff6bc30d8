package coordinator

import (
	"context"
	"fmt"

	"github.com/alexanderramin/streak/internal/clock"
	"github.com/alexanderramin/streak/internal/decision"
	"github.com/alexanderramin/streak/internal/domain"
	"github.com/alexanderramin/streak/internal/service"
)

// execution applies one Execute outcome's actions in order. Each applied
// step pushes its inverse so a later failure can be rolled back.
type execution struct {
	c      *Coordinator
	req    Request
	policy service.HabitPolicy

	undo []func(context.Context) error

	record           *domain.CompletionRecord
	alreadyCompleted bool
	autoPaused       []clock.Snapshot
	resumed          bool
}

func (e *execution) source() domain.Source {
	if e.req.systemTriggered {
		return domain.SourceAuto
	}
	if e.req.Source == "" {
		return domain.SourceManual
	}
	return e.req.Source
}

func (e *execution) apply(ctx context.Context, actions []decision.Action) error {
	for _, a := range actions {
		if err := e.step(ctx, a); err != nil {
			return fmt.Errorf("%s: %w", a.Kind, err)
		}
	}
	return nil
}

func (e *execution) step(ctx context.Context, a decision.Action) error {
	timers := e.c.deps.Timers

	switch a.Kind {
	case decision.ActionAutoPauseOther:
		if err := timers.Pause(ctx, a.SessionID); err != nil {
			return err
		}
		e.push(func(ctx context.Context) error { return timers.Resume(ctx, a.SessionID) })
		if snap, ok := timers.Snapshot(a.HabitID); ok {
			e.autoPaused = append(e.autoPaused, snap)
		}

	case decision.ActionStartTimer:
		id, err := timers.Start(ctx, clock.StartRequest{
			HabitID:  a.HabitID,
			Mode:     e.policy.Policy.Mode,
			TargetMs: a.TargetMs,
			Source:   e.source(),
		})
		if err != nil {
			return err
		}
		e.push(func(ctx context.Context) error { return timers.Discard(ctx, id) })

	case decision.ActionPauseTimer:
		if err := timers.Pause(ctx, a.SessionID); err != nil {
			return err
		}
		e.push(func(ctx context.Context) error { return timers.Resume(ctx, a.SessionID) })

	case decision.ActionResumeTimer:
		if err := timers.Resume(ctx, a.SessionID); err != nil {
			return err
		}
		e.resumed = true
		e.push(func(ctx context.Context) error { return timers.Pause(ctx, a.SessionID) })

	case decision.ActionExtendTimer:
		return timers.Extend(ctx, a.SessionID, a.ExtendByMs)

	case decision.ActionCompleteForPeriod:
		var secs *int
		if a.LogDuration {
			s := int(a.DurationMs / 1000)
			secs = &s
		}
		res, err := e.c.deps.Completions.RecordCompletion(ctx, a.HabitID, secs, e.source())
		if err != nil {
			return err
		}
		e.c.metrics.observeCompletion(res.Inserted)
		e.record = res.Record
		e.alreadyCompleted = res.AlreadyCompleted
		if res.Inserted && res.Record != nil {
			key := res.Record.PeriodKey
			e.push(func(ctx context.Context) error {
				_, err := e.c.deps.Completions.RemoveCompletion(ctx, a.HabitID, key)
				return err
			})
		}

	case decision.ActionStopTimer:
		_, err := timers.Complete(ctx, a.SessionID)
		return err

	case decision.ActionDiscardTimer:
		return timers.Discard(ctx, a.SessionID)

	case decision.ActionDisableSkipPrompt:
		settings := e.c.deps.Settings
		if err := settings.SetAskBeforeSkipping(ctx, false); err != nil {
			return err
		}
		e.push(func(ctx context.Context) error { return settings.SetAskBeforeSkipping(ctx, true) })

	case decision.ActionEmitUndoableNotice, decision.ActionEmitSwitchNotice:
		// emitted once every other step has succeeded

	default:
		return fmt.Errorf("unhandled action %q", a.Kind)
	}
	return nil
}

func (e *execution) push(fn func(context.Context) error) {
	e.undo = append(e.undo, fn)
}

// compensate reverts applied steps newest first. Failures are logged and
// the remaining steps still run.
func (e *execution) compensate(ctx context.Context) {
	for i := len(e.undo) - 1; i >= 0; i-- {
		if err := e.undo[i](context.WithoutCancel(ctx)); err != nil {
			e.c.logger.Error("rollback step failed",
				"habit_id", e.req.HabitID, "intent", e.req.Intent, "error", err)
		}
	}
	e.undo = nil
}
