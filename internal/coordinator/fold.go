package coordinator

import (
	"context"
	"time"

	"github.com/alexanderramin/streak/internal/clock"
	"github.com/alexanderramin/streak/internal/decision"
	"github.com/alexanderramin/streak/internal/domain"
	"github.com/alexanderramin/streak/internal/service"
)

// Run folds clock lifecycle events into state until ctx is done. Ticks
// refresh the visible counters; a target reached on an auto-completing
// habit is submitted as a system Done.
func (c *Coordinator) Run(ctx context.Context) error {
	events, cancel := c.deps.Timers.Events().Subscribe(clockEventBuffer)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.fold(ctx, ev)
		}
	}
}

func (c *Coordinator) fold(ctx context.Context, ev clock.Event) {
	switch ev.Type {
	case clock.EventTick:
		c.foldTick(ctx, ev)
	case clock.EventTargetReached:
		c.foldTargetReached(ctx, ev)
	case clock.EventAutoPaused:
		c.execMu.Lock()
		c.mu.Lock()
		c.syncLocked("")
		if ev.HabitID != c.state.ActiveHabitID {
			c.state.PausedHabitID = ev.HabitID
			c.state.PausedRemainingMs = ev.RemainingMs
		}
		c.publishLocked()
		c.mu.Unlock()
		c.execMu.Unlock()
		c.emit(UIEvent{Type: UIAutoPaused, HabitID: ev.OtherHabitID, FromHabitID: ev.HabitID})
	default:
		c.execMu.Lock()
		c.mu.Lock()
		c.syncLocked("")
		c.publishLocked()
		c.mu.Unlock()
		c.execMu.Unlock()
	}
}

// foldTick refreshes the visible counters. A tick past the target also
// stands in for a TargetReached this coordinator never acted on, e.g. one
// dropped by a full subscriber buffer.
func (c *Coordinator) foldTick(ctx context.Context, ev clock.Event) {
	atTarget := ev.TargetMs > 0 && ev.ElapsedMs >= ev.TargetMs

	c.mu.Lock()
	switch c.state.ActiveSessionID {
	case ev.SessionID:
		c.state.ElapsedMs = ev.ElapsedMs
		c.state.RemainingMs = ev.RemainingMs
		c.state.TargetMs = ev.TargetMs
		c.state.TimerState = decision.TimerRunning
		if atTarget {
			c.state.TimerState = decision.TimerAtTarget
		}
		c.publishLocked()
	case "":
		// a session running with nothing in focus, e.g. started before Init
		c.syncLocked(ev.HabitID)
		c.publishLocked()
	}
	pending := atTarget && !c.targetHandledLocked(ev)
	c.mu.Unlock()

	if pending {
		c.foldTargetReached(ctx, ev)
	}
}

func (c *Coordinator) foldTargetReached(ctx context.Context, ev clock.Event) {
	// The bus replays its last event to a new subscriber; only act on a
	// session that is still open, and once per target.
	snap, ok := c.deps.Timers.Snapshot(ev.HabitID)
	if !ok || snap.SessionID != ev.SessionID {
		return
	}
	c.mu.Lock()
	if c.targetHandledLocked(ev) {
		c.mu.Unlock()
		return
	}
	c.targets[ev.HabitID] = targetMark{sessionID: ev.SessionID, targetMs: ev.TargetMs}
	c.mu.Unlock()

	// the habit may have been edited by another process since it was cached
	c.deps.Policies.Invalidate(ev.HabitID)
	hp, err := c.deps.Policies.Lookup(ctx, ev.HabitID)
	if err != nil {
		c.fail(err)
		return
	}
	if !hp.Policy.AutoCompleteOnTarget || hp.Archived {
		c.execMu.Lock()
		c.mu.Lock()
		c.syncLocked("")
		c.publishLocked()
		c.mu.Unlock()
		c.execMu.Unlock()
		return
	}
	c.autoComplete(ctx, hp)
}

func (c *Coordinator) targetHandledLocked(ev clock.Event) bool {
	return c.targets[ev.HabitID] == targetMark{sessionID: ev.SessionID, targetMs: ev.TargetMs}
}

func (c *Coordinator) autoComplete(ctx context.Context, hp service.HabitPolicy) {
	startedAt := time.Now()
	res, err := c.Submit(ctx, Request{
		HabitID:         hp.HabitID,
		Intent:          decision.IntentDone,
		Source:          domain.SourceAuto,
		systemTriggered: true,
	})
	c.observer.ObserveUseCase(ctx, service.UseCaseEvent{
		Name:      "auto-complete",
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
		Success:   err == nil,
		Err:       err,
		Fields:    map[string]any{"habit_id": hp.HabitID},
	})
	if err != nil {
		c.logger.Warn("auto-complete failed", "habit_id", hp.HabitID, "error", err)
		return
	}
	if res.Outcome.Kind != decision.KindExecute || res.Completion == nil || res.AlreadyCompleted {
		return
	}
	c.metrics.observeAutoCompletion()
	c.logger.Info("habit auto-completed on target", "habit_id", hp.HabitID, "name", hp.Name)

	e := UIEvent{Type: UIAutoCompleted, HabitID: hp.HabitID}
	if res.Completion != nil {
		e.PeriodKey = res.Completion.PeriodKey
	}
	c.emit(e)
}
