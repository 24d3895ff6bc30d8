// Package coordinator owns the process-wide timer/completion state. Every
// entry point (in-app, widget, notification) submits intents here; the
// coordinator asks the decision engine what to do, drives the session clock
// and the completion write path, and republishes one state stream.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alexanderramin/streak/internal/clock"
	"github.com/alexanderramin/streak/internal/decision"
	"github.com/alexanderramin/streak/internal/domain"
	"github.com/alexanderramin/streak/internal/eventbus"
	"github.com/alexanderramin/streak/internal/service"
)

const (
	DefaultUndoWindow = 5 * time.Second
	clockEventBuffer  = 256
)

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrUndoExpired   = errors.New("undo window has passed")
)

// TimerService is the part of the session clock the coordinator drives.
type TimerService interface {
	Start(ctx context.Context, req clock.StartRequest) (string, error)
	Pause(ctx context.Context, sessionID string) error
	Resume(ctx context.Context, sessionID string) error
	Extend(ctx context.Context, sessionID string, byMs int64) error
	Complete(ctx context.Context, sessionID string) (int64, error)
	Discard(ctx context.Context, sessionID string) error
	Recover(ctx context.Context) (int, error)
	Snapshot(habitID string) (clock.Snapshot, bool)
	ActiveSessions() []clock.Snapshot
	SetExclusive(on bool)
	Events() *eventbus.Bus[clock.Event]
}

type Deps struct {
	Timers      TimerService
	Completions service.CompletionService
	Policies    service.PolicySource
	Settings    service.SettingsService
	History     service.SessionHistory
	// Clock is the wall clock for periods and the undo window.
	Clock clock.Clock
}

type Options struct {
	// DedupWindow also drops an identical intent for the same habit that
	// arrives this soon after the previous one finished.
	DedupWindow time.Duration
	UndoWindow  time.Duration
	Logger      *slog.Logger
	Observer    service.UseCaseObserver
	Metrics     *Metrics
}

// Request is one intent from any entry point.
type Request struct {
	HabitID    string
	Intent     decision.Intent
	Override   decision.Override
	Source     domain.Source
	ExtendByMs int64

	systemTriggered bool
}

type Result struct {
	Outcome decision.Outcome
	// Deduplicated is set when the request was dropped because the same
	// habit already had an intent in flight.
	Deduplicated bool
	// Completion is the record written or found by a CompleteForPeriod.
	Completion       *domain.CompletionRecord
	AlreadyCompleted bool
}

type undoEntry struct {
	periodKey string
	at        time.Time
}

type lastIntent struct {
	intent   decision.Intent
	override decision.Override
	at       time.Time
}

type targetMark struct {
	sessionID string
	targetMs  int64
}

type Coordinator struct {
	deps        Deps
	dedupWindow time.Duration
	undoWindow  time.Duration
	logger      *slog.Logger
	observer    service.UseCaseObserver
	metrics     *Metrics

	states   *eventbus.Bus[State]
	uiEvents *eventbus.Bus[UIEvent]

	// execMu serializes decide+execute and the folding of lifecycle events.
	execMu sync.Mutex

	mu       sync.Mutex
	state    State
	inFlight map[string]bool
	last     map[string]lastIntent
	undo     map[string]undoEntry
	// targets holds, per habit, the session target already acted on.
	targets map[string]targetMark
}

func New(deps Deps, opts Options) *Coordinator {
	if deps.Clock == nil {
		deps.Clock = clock.SystemClock{}
	}
	if opts.UndoWindow <= 0 {
		opts.UndoWindow = DefaultUndoWindow
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Coordinator{
		deps:        deps,
		dedupWindow: opts.DedupWindow,
		undoWindow:  opts.UndoWindow,
		logger:      opts.Logger,
		observer:    service.ObserverOrNoop([]service.UseCaseObserver{opts.Observer}),
		metrics:     opts.Metrics,
		states:      eventbus.New[State]("state", opts.Logger),
		uiEvents:    eventbus.New[UIEvent]("ui", opts.Logger),
		state:       idleState(),
		inFlight:    map[string]bool{},
		last:        map[string]lastIntent{},
		undo:        map[string]undoEntry{},
		targets:     map[string]targetMark{},
	}
	c.states.Publish(c.state)
	return c
}

// State returns a copy of the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// States is the state stream; a new subscriber first receives the current state.
func (c *Coordinator) States() *eventbus.Bus[State] {
	return c.states
}

func (c *Coordinator) UIEvents() *eventbus.Bus[UIEvent] {
	return c.uiEvents
}

// Init reattaches sessions left open by a previous process and derives the
// initial state from them.
func (c *Coordinator) Init(ctx context.Context) error {
	c.execMu.Lock()
	defer c.execMu.Unlock()

	flags, err := c.deps.Settings.Flags(ctx)
	if err != nil {
		c.fail(fmt.Errorf("loading settings: %w", err))
		return err
	}
	c.deps.Timers.SetExclusive(flags.SingleActiveTimer)

	n, err := c.deps.Timers.Recover(ctx)
	if err != nil {
		c.fail(err)
		return err
	}
	if n > 0 {
		c.logger.Info("reattached open timer sessions", "count", n)
	}

	c.mu.Lock()
	c.syncLocked("")
	c.publishLocked()
	c.mu.Unlock()
	return nil
}

// Submit runs one intent to completion. Business outcomes (confirm,
// disallow, no-op) are returned in Result with a nil error; an error means a
// persistence or clock failure, after which state is rolled back and
// LastError is set.
func (c *Coordinator) Submit(ctx context.Context, req Request) (res Result, err error) {
	startedAt := time.Now()
	fields := map[string]any{
		"habit_id": req.HabitID,
		"intent":   string(req.Intent),
	}
	if req.Override != decision.OverrideNone {
		fields["override"] = string(req.Override)
	}
	if req.systemTriggered {
		fields["system"] = true
	}

	// System requests are never dropped as duplicates; they wait behind
	// whatever is in flight for the habit.
	if !req.systemTriggered {
		if !c.begin(req) {
			c.metrics.observeDeduplicated()
			c.logger.Debug("dropped duplicate intent", "habit_id", req.HabitID, "intent", req.Intent)
			return Result{Outcome: decision.Outcome{Kind: decision.KindExecute}, Deduplicated: true}, nil
		}
		defer c.end(req)
	}
	defer func() {
		fields["kind"] = string(res.Outcome.Kind)
		c.metrics.observeSubmit(req.Intent, time.Since(startedAt))
		c.observer.ObserveUseCase(ctx, service.UseCaseEvent{
			Name:      "submit",
			StartedAt: startedAt,
			Duration:  time.Since(startedAt),
			Success:   err == nil,
			Err:       err,
			Fields:    fields,
		})
	}()

	c.execMu.Lock()
	defer c.execMu.Unlock()

	in, hp, err := c.gather(ctx, req)
	if err != nil {
		c.fail(err)
		return Result{}, err
	}
	out := decision.Decide(in)
	c.metrics.observeOutcome(req.Intent, out.Kind)
	res.Outcome = out

	switch out.Kind {
	case decision.KindConfirm:
		c.mu.Lock()
		c.state.PendingConfirmHabitID = req.HabitID
		c.state.PendingConfirmType = out.Confirm
		c.publishLocked()
		c.mu.Unlock()
		c.emit(UIEvent{
			Type:      UIConfirmRequested,
			HabitID:   req.HabitID,
			Confirm:   out.Confirm,
			Overrides: out.Confirm.Overrides(),
		})
		return res, nil

	case decision.KindDisallow:
		c.emit(UIEvent{
			Type:    UIDisallowed,
			HabitID: req.HabitID,
			Reason:  out.Reason,
			Message: string(out.Reason),
		})
		return res, nil
	}

	c.mu.Lock()
	pre := c.state
	if c.state.HasPendingConfirm(req.HabitID) {
		c.state.PendingConfirmHabitID = ""
		c.state.PendingConfirmType = ""
	}
	c.mu.Unlock()

	if out.IsNoop() {
		c.mu.Lock()
		c.publishLocked()
		c.mu.Unlock()
		return res, nil
	}

	run := &execution{c: c, req: req, policy: hp}
	if err := run.apply(ctx, out.Actions); err != nil {
		run.compensate(ctx)
		c.metrics.observeFailure(req.Intent)
		c.mu.Lock()
		c.state = pre
		c.syncLocked(pre.ActiveHabitID)
		c.state.IsLoading = true
		c.state.LastError = err.Error()
		c.publishLocked()
		c.mu.Unlock()
		c.emit(UIEvent{Type: UIError, HabitID: req.HabitID, Message: err.Error()})
		return res, err
	}

	res.Completion = run.record
	res.AlreadyCompleted = run.alreadyCompleted
	c.finish(run, out)
	return res, nil
}

// Dismiss drops a pending confirmation without side effects.
func (c *Coordinator) Dismiss(habitID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.HasPendingConfirm(habitID) {
		return false
	}
	c.state.PendingConfirmHabitID = ""
	c.state.PendingConfirmType = ""
	c.publishLocked()
	return true
}

// Undo removes the completion written by the habit's last undoable action
// if it happened within the undo window.
func (c *Coordinator) Undo(ctx context.Context, habitID string) (err error) {
	startedAt := time.Now()
	defer func() {
		c.observer.ObserveUseCase(ctx, service.UseCaseEvent{
			Name:      "undo",
			StartedAt: startedAt,
			Duration:  time.Since(startedAt),
			Success:   err == nil,
			Err:       err,
			Fields:    map[string]any{"habit_id": habitID},
		})
	}()

	c.execMu.Lock()
	defer c.execMu.Unlock()

	c.mu.Lock()
	entry, ok := c.undo[habitID]
	if ok && c.deps.Clock.Now().Sub(entry.at) > c.undoWindow {
		delete(c.undo, habitID)
		c.mu.Unlock()
		return ErrUndoExpired
	}
	c.mu.Unlock()
	if !ok {
		if entry, ok = c.recentCompletion(ctx, habitID); !ok {
			return ErrNothingToUndo
		}
	}

	if _, err := c.deps.Completions.RemoveCompletion(ctx, habitID, entry.periodKey); err != nil {
		c.fail(err)
		return err
	}

	c.mu.Lock()
	delete(c.undo, habitID)
	c.state.LastError = ""
	c.publishLocked()
	c.mu.Unlock()
	c.emit(UIEvent{Type: UIUndone, HabitID: habitID, PeriodKey: entry.periodKey})
	return nil
}

// recentCompletion finds a current-period record written within the undo
// window by another process, which has no in-memory undo entry here.
func (c *Coordinator) recentCompletion(ctx context.Context, habitID string) (undoEntry, bool) {
	key, err := c.deps.Completions.CurrentPeriodKey(ctx, habitID)
	if err != nil {
		return undoEntry{}, false
	}
	recs, err := c.deps.Completions.ListByHabit(ctx, habitID)
	if err != nil {
		c.logger.Warn("listing completions for undo", "habit_id", habitID, "error", err)
		return undoEntry{}, false
	}
	now := c.deps.Clock.Now()
	for _, r := range recs {
		if r.PeriodKey == key && now.Sub(r.CompletedAt) <= c.undoWindow {
			return undoEntry{periodKey: key, at: r.CompletedAt}, true
		}
	}
	return undoEntry{}, false
}

// ClearError resets LastError once a surface has shown it.
func (c *Coordinator) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.LastError == "" {
		return
	}
	c.state.LastError = ""
	c.publishLocked()
}

// begin claims the habit for one in-flight intent.
func (c *Coordinator) begin(req Request) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[req.HabitID] {
		return false
	}
	if c.dedupWindow > 0 {
		if prev, ok := c.last[req.HabitID]; ok &&
			prev.intent == req.Intent && prev.override == req.Override &&
			c.deps.Clock.Now().Sub(prev.at) < c.dedupWindow {
			return false
		}
	}
	c.inFlight[req.HabitID] = true
	c.state.IsLoading = true
	c.publishLocked()
	return true
}

func (c *Coordinator) end(req Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, req.HabitID)
	c.last[req.HabitID] = lastIntent{intent: req.Intent, override: req.Override, at: c.deps.Clock.Now()}
	c.state.IsLoading = len(c.inFlight) > 0
	c.publishLocked()
}

// gather builds the engine input from the policy source, settings, the
// completion store and the clock.
func (c *Coordinator) gather(ctx context.Context, req Request) (decision.Input, service.HabitPolicy, error) {
	hp, err := c.deps.Policies.Lookup(ctx, req.HabitID)
	if err != nil {
		return decision.Input{}, hp, fmt.Errorf("loading habit policy: %w", err)
	}
	flags, err := c.deps.Settings.Flags(ctx)
	if err != nil {
		return decision.Input{}, hp, fmt.Errorf("loading settings: %w", err)
	}
	c.deps.Timers.SetExclusive(flags.SingleActiveTimer)

	completed, err := c.deps.Completions.IsCompletedForCurrentPeriod(ctx, req.HabitID)
	if err != nil {
		return decision.Input{}, hp, fmt.Errorf("checking completion: %w", err)
	}
	activity, err := c.deps.History.PeriodActivity(ctx, req.HabitID, hp.Frequency, c.deps.Clock.Now())
	if err != nil {
		return decision.Input{}, hp, err
	}

	in := decision.Input{
		HabitID:             req.HabitID,
		Policy:              hp.Policy,
		TimerRanThisPeriod:  activity.TimerRan,
		LoggedThisPeriodMs:  activity.LoggedMs,
		CompletedThisPeriod: completed,
		Archived:            hp.Archived,
		Intent:              req.Intent,
		Override:            req.Override,
		SystemTriggered:     req.systemTriggered,
		ExtendByMs:          req.ExtendByMs,
		Flags:               flags,
		Timer:               decision.TimerSnapshot{State: decision.TimerIdle},
	}
	if snap, ok := c.deps.Timers.Snapshot(req.HabitID); ok {
		in.Timer = timerSnapshot(snap)
	}
	for _, s := range c.deps.Timers.ActiveSessions() {
		if s.HabitID != req.HabitID && s.Running() {
			in.OthersRunning = append(in.OthersRunning, decision.RunningTimer{HabitID: s.HabitID, SessionID: s.SessionID})
		}
	}
	return in, hp, nil
}

func timerSnapshot(s clock.Snapshot) decision.TimerSnapshot {
	ts := decision.TimerSnapshot{
		SessionID: s.SessionID,
		ElapsedMs: s.ElapsedMs,
		TargetMs:  s.TargetMs,
	}
	switch {
	case s.State == domain.SessionPaused:
		ts.State = decision.TimerPaused
	case s.TargetReached:
		ts.State = decision.TimerAtTarget
	default:
		ts.State = decision.TimerRunning
	}
	return ts
}

// finish applies a successful execution to state and emits its notices.
func (c *Coordinator) finish(run *execution, out decision.Outcome) {
	now := c.deps.Clock.Now()
	var events []UIEvent

	c.mu.Lock()
	c.state.LastError = ""
	c.syncLocked(run.req.HabitID)
	for _, p := range run.autoPaused {
		c.state.PausedHabitID = p.HabitID
		c.state.PausedRemainingMs = p.RemainingMs
	}
	if c.state.PausedHabitID == run.req.HabitID && run.resumed {
		c.state.PausedHabitID = ""
		c.state.PausedRemainingMs = 0
	}
	for _, a := range out.Actions {
		switch a.Kind {
		case decision.ActionEmitUndoableNotice:
			if run.record == nil || run.alreadyCompleted {
				continue
			}
			c.undo[a.HabitID] = undoEntry{periodKey: run.record.PeriodKey, at: now}
			events = append(events, UIEvent{
				Type:      UIUndoable,
				HabitID:   a.HabitID,
				PeriodKey: run.record.PeriodKey,
				UndoUntil: now.Add(c.undoWindow),
			})
		case decision.ActionEmitSwitchNotice:
			events = append(events, UIEvent{
				Type:        UITimerSwitched,
				HabitID:     a.HabitID,
				FromHabitID: a.FromHabitID,
			})
		}
	}
	c.publishLocked()
	c.mu.Unlock()

	for _, e := range events {
		c.emit(e)
	}
}

// fail surfaces a non-business error without touching timer state.
func (c *Coordinator) fail(err error) {
	c.logger.Warn("coordinator operation failed", "error", err)
	c.mu.Lock()
	c.state.LastError = err.Error()
	c.publishLocked()
	c.mu.Unlock()
	c.emit(UIEvent{Type: UIError, Message: err.Error()})
}

func (c *Coordinator) emit(e UIEvent) {
	if e.At.IsZero() {
		e.At = c.deps.Clock.Now()
	}
	c.uiEvents.Publish(e)
}

func (c *Coordinator) publishLocked() {
	c.states.Publish(c.state)
}

// syncLocked derives the timer fields from the clock. The preferred habit
// stays in focus while it has an open session; otherwise any running
// session is shown.
func (c *Coordinator) syncLocked(preferred string) {
	if preferred == "" {
		preferred = c.state.ActiveHabitID
	}
	sessions := c.deps.Timers.ActiveSessions()

	var focus *clock.Snapshot
	pick := func(match func(clock.Snapshot) bool) {
		if focus != nil {
			return
		}
		for i := range sessions {
			if match(sessions[i]) {
				focus = &sessions[i]
			}
		}
	}
	pick(func(s clock.Snapshot) bool { return s.HabitID == preferred && s.Running() })
	pick(func(s clock.Snapshot) bool { return s.Running() })
	pick(func(s clock.Snapshot) bool { return s.HabitID == preferred })

	if focus == nil {
		c.state.ActiveHabitID = ""
		c.state.ActiveSessionID = ""
		c.state.TimerState = decision.TimerIdle
		c.state.ElapsedMs = 0
		c.state.RemainingMs = 0
		c.state.TargetMs = 0
		c.state.Paused = false
	} else {
		ts := timerSnapshot(*focus)
		c.state.ActiveHabitID = focus.HabitID
		c.state.ActiveSessionID = focus.SessionID
		c.state.TimerState = ts.State
		c.state.ElapsedMs = focus.ElapsedMs
		c.state.RemainingMs = focus.RemainingMs
		c.state.TargetMs = focus.TargetMs
		c.state.Paused = ts.State == decision.TimerPaused
	}

	if c.state.PausedHabitID != "" {
		still := false
		for _, s := range sessions {
			if s.HabitID == c.state.PausedHabitID && !s.Running() && s.HabitID != c.state.ActiveHabitID {
				still = true
				c.state.PausedRemainingMs = s.RemainingMs
			}
		}
		if !still {
			c.state.PausedHabitID = ""
			c.state.PausedRemainingMs = 0
		}
	}
}
