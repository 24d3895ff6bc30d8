package clock

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alexanderramin/streak/internal/domain"
	"github.com/alexanderramin/streak/internal/eventbus"
	"github.com/alexanderramin/streak/internal/repository"
	"github.com/google/uuid"
)

const DefaultTickInterval = time.Second

type Options struct {
	Clock        Clock
	TickInterval time.Duration
	// Exclusive starts with the single-active-timer policy on.
	Exclusive bool
	Logger    *slog.Logger
	Observer  Observer
}

type StartRequest struct {
	HabitID  string
	Mode     domain.TimerMode
	TargetMs int64
	Source   domain.Source
}

type tracked struct {
	session *domain.TimerSession
	// baseMs is the elapsed time up to anchor; anchor is zero while paused.
	baseMs      int64
	anchor      time.Time
	targetFired bool
}

func (t *tracked) running() bool {
	return t.session.State == domain.SessionRunning
}

func (t *tracked) elapsed(now time.Time) int64 {
	if !t.running() {
		return t.baseMs
	}
	d := now.Sub(t.anchor).Milliseconds()
	if d < 0 {
		d = 0
	}
	return t.baseMs + d
}

// Service runs the session clock. All commands are serialized; events are
// published while the lock is held so subscribers see them in command order.
type Service struct {
	sessions repository.TimerSessionRepo
	clock    Clock
	interval time.Duration
	logger   *slog.Logger
	observer Observer
	events   *eventbus.Bus[Event]

	mu        sync.Mutex
	open      map[string]*tracked // by session ID
	exclusive bool
	closed    bool
}

func NewService(sessions repository.TimerSessionRepo, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	return &Service{
		sessions:  sessions,
		clock:     opts.Clock,
		interval:  opts.TickInterval,
		logger:    opts.Logger,
		observer:  opts.Observer,
		events:    eventbus.New[Event]("clock", opts.Logger),
		open:      map[string]*tracked{},
		exclusive: opts.Exclusive,
	}
}

// Events is the lifecycle stream. Subscribers get the latest event on join.
func (s *Service) Events() *eventbus.Bus[Event] {
	return s.events
}

// SetExclusive toggles the single-active-timer safety net.
func (s *Service) SetExclusive(on bool) {
	s.mu.Lock()
	s.exclusive = on
	s.mu.Unlock()
}

// Start opens a running session for the habit. Under the single-active
// policy any other running session is paused first with an AutoPaused event.
func (s *Service) Start(ctx context.Context, req StartRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrUnavailable
	}
	if t := s.byHabitLocked(req.HabitID); t != nil {
		return "", fmt.Errorf("habit %s session %s: %w", req.HabitID, t.session.ID, ErrSessionActive)
	}
	if s.exclusive {
		if err := s.pauseOthersLocked(ctx, req.HabitID); err != nil {
			return "", err
		}
	}

	now := s.clock.Now()
	source := req.Source
	if source == "" {
		source = domain.SourceManual
	}
	session := &domain.TimerSession{
		ID:        uuid.New().String(),
		HabitID:   req.HabitID,
		Mode:      req.Mode,
		State:     domain.SessionRunning,
		Source:    source,
		StartedAt: now,
		ResumedAt: &now,
		TargetMs:  req.TargetMs,
		UpdatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", fmt.Errorf("starting session: %w", err)
	}
	t := &tracked{session: session, anchor: now}
	s.open[session.ID] = t
	s.emitLocked(EventStarted, t, now, "")
	s.observer.SetActiveSessions(len(s.open))
	return session.ID, nil
}

// Pause is a no-op for a session that is already paused.
func (s *Service) Pause(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookupLocked(sessionID)
	if err != nil {
		return err
	}
	if !t.running() {
		return nil
	}
	return s.pauseLocked(ctx, t, EventPaused, "")
}

// Resume is a no-op for a session that is already running.
func (s *Service) Resume(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookupLocked(sessionID)
	if err != nil {
		return err
	}
	if t.running() {
		return nil
	}
	if s.exclusive {
		if err := s.pauseOthersLocked(ctx, t.session.HabitID); err != nil {
			return err
		}
	}

	now := s.clock.Now()
	next := *t.session
	next.State = domain.SessionRunning
	next.ResumedAt = &now
	next.AccumulatedMs = t.baseMs
	next.UpdatedAt = now
	if err := s.sessions.Update(ctx, &next); err != nil {
		return fmt.Errorf("resuming session: %w", err)
	}
	t.session = &next
	t.anchor = now
	s.emitLocked(EventResumed, t, now, "")
	return nil
}

// Extend raises the session target. A stopwatch session without a target
// gets one counted from its current elapsed time.
func (s *Service) Extend(ctx context.Context, sessionID string, byMs int64) error {
	if byMs <= 0 {
		return ErrInvalidExtend
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookupLocked(sessionID)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	elapsed := t.elapsed(now)
	next := *t.session
	if next.TargetMs > 0 {
		next.TargetMs += byMs
	} else {
		next.TargetMs = elapsed + byMs
	}
	next.UpdatedAt = now
	if err := s.sessions.Update(ctx, &next); err != nil {
		return fmt.Errorf("extending session: %w", err)
	}
	t.session = &next
	if elapsed < next.TargetMs {
		t.targetFired = false
	}
	s.emitLocked(EventExtended, t, now, "")
	return nil
}

// Complete closes the session with its duration credited and returns the
// elapsed milliseconds.
func (s *Service) Complete(ctx context.Context, sessionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookupLocked(sessionID)
	if err != nil {
		return 0, err
	}
	now := s.clock.Now()
	elapsed := t.elapsed(now)
	seconds := int(elapsed / 1000)
	if err := s.endLocked(ctx, t, now, elapsed, &seconds); err != nil {
		return 0, fmt.Errorf("completing session: %w", err)
	}
	s.emitLocked(EventCompleted, t, now, "")
	return elapsed, nil
}

// Discard closes the session without crediting any duration.
func (s *Service) Discard(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.lookupLocked(sessionID)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	elapsed := t.elapsed(now)
	if err := s.endLocked(ctx, t, now, elapsed, nil); err != nil {
		return fmt.Errorf("discarding session: %w", err)
	}
	s.emitLocked(EventDiscarded, t, now, "")
	return nil
}

// Tick emits one Tick per running session and TargetReached the first time
// a session's elapsed time meets its target.
func (s *Service) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	now := s.clock.Now()
	for _, t := range s.sortedLocked() {
		if !t.running() {
			continue
		}
		s.emitLocked(EventTick, t, now, "")
		s.observer.ObserveTick()
		target := t.session.TargetMs
		if target > 0 && !t.targetFired && t.elapsed(now) >= target {
			t.targetFired = true
			s.emitLocked(EventTargetReached, t, now, "")
		}
	}
}

// Run ticks at the configured cadence until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Recover reattaches every session the store still has open. Running
// sessions are credited with the wall time since their last checkpoint.
func (s *Service) Recover(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrUnavailable
	}
	open, err := s.sessions.ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading open sessions: %w", err)
	}

	now := s.clock.Now()
	recovered := 0
	for _, session := range open {
		if _, ok := s.open[session.ID]; ok {
			continue
		}
		t := &tracked{session: session, baseMs: session.AccumulatedMs}
		if t.running() {
			if session.ResumedAt != nil {
				if gap := now.Sub(*session.ResumedAt).Milliseconds(); gap > 0 {
					t.baseMs += gap
				}
			}
			t.anchor = now
		}
		s.open[session.ID] = t
		recovered++
		s.emitLocked(EventRecovered, t, now, "")
		s.logger.Info("recovered timer session",
			"session_id", session.ID, "habit_id", session.HabitID,
			"state", session.State, "elapsed_ms", t.baseMs)
	}

	if s.exclusive {
		if err := s.enforceSingleRunningLocked(ctx); err != nil {
			return recovered, err
		}
	}
	s.observer.SetActiveSessions(len(s.open))
	return recovered, nil
}

// Snapshot returns the open session of a habit.
func (s *Service) Snapshot(habitID string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.byHabitLocked(habitID)
	if t == nil {
		return Snapshot{}, false
	}
	return snapshotOf(t, s.clock.Now()), true
}

// ActiveSessions lists open sessions, oldest first.
func (s *Service) ActiveSessions() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	var out []Snapshot
	for _, t := range s.sortedLocked() {
		out = append(out, snapshotOf(t, now))
	}
	return out
}

// Close stops accepting commands and ends every event subscription. Open
// sessions stay open in the store for the next Recover.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.open = map[string]*tracked{}
	s.mu.Unlock()
	s.events.Close()
}

func (s *Service) lookupLocked(sessionID string) (*tracked, error) {
	if s.closed {
		return nil, ErrUnavailable
	}
	t, ok := s.open[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}
	return t, nil
}

func (s *Service) byHabitLocked(habitID string) *tracked {
	for _, t := range s.open {
		if t.session.HabitID == habitID {
			return t
		}
	}
	return nil
}

func (s *Service) sortedLocked() []*tracked {
	out := make([]*tracked, 0, len(s.open))
	for _, t := range s.open {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].session.StartedAt.Before(out[j].session.StartedAt)
	})
	return out
}

func (s *Service) pauseOthersLocked(ctx context.Context, habitID string) error {
	for _, t := range s.sortedLocked() {
		if t.session.HabitID == habitID || !t.running() {
			continue
		}
		if err := s.pauseLocked(ctx, t, EventAutoPaused, habitID); err != nil {
			return err
		}
		s.logger.Info("auto-paused timer", "habit_id", t.session.HabitID, "for_habit_id", habitID)
	}
	return nil
}

// enforceSingleRunningLocked keeps the most recently resumed session running.
func (s *Service) enforceSingleRunningLocked(ctx context.Context) error {
	var keep *tracked
	for _, t := range s.open {
		if !t.running() {
			continue
		}
		if keep == nil || resumedAt(t).After(resumedAt(keep)) {
			keep = t
		}
	}
	if keep == nil {
		return nil
	}
	return s.pauseOthersLocked(ctx, keep.session.HabitID)
}

func resumedAt(t *tracked) time.Time {
	if t.session.ResumedAt != nil {
		return *t.session.ResumedAt
	}
	return t.session.StartedAt
}

func (s *Service) pauseLocked(ctx context.Context, t *tracked, kind EventType, otherHabitID string) error {
	now := s.clock.Now()
	elapsed := t.elapsed(now)
	next := *t.session
	next.State = domain.SessionPaused
	next.ResumedAt = nil
	next.AccumulatedMs = elapsed
	next.UpdatedAt = now
	if err := s.sessions.Update(ctx, &next); err != nil {
		return fmt.Errorf("pausing session: %w", err)
	}
	t.session = &next
	t.baseMs = elapsed
	t.anchor = time.Time{}
	s.emitLocked(kind, t, now, otherHabitID)
	return nil
}

func (s *Service) endLocked(ctx context.Context, t *tracked, now time.Time, elapsed int64, seconds *int) error {
	next := *t.session
	next.State = domain.SessionEnded
	next.ResumedAt = nil
	next.AccumulatedMs = elapsed
	next.EndedAt = &now
	next.DurationSeconds = seconds
	next.UpdatedAt = now
	if err := s.sessions.Update(ctx, &next); err != nil {
		return err
	}
	t.session = &next
	t.baseMs = elapsed
	delete(s.open, next.ID)
	s.observer.SetActiveSessions(len(s.open))
	return nil
}

func (s *Service) emitLocked(kind EventType, t *tracked, now time.Time, otherHabitID string) {
	elapsed := t.elapsed(now)
	s.events.Publish(Event{
		Type:         kind,
		SessionID:    t.session.ID,
		HabitID:      t.session.HabitID,
		Mode:         t.session.Mode,
		Source:       t.session.Source,
		ElapsedMs:    elapsed,
		RemainingMs:  remaining(t.session.TargetMs, elapsed),
		TargetMs:     t.session.TargetMs,
		Paused:       t.session.State == domain.SessionPaused,
		At:           now,
		OtherHabitID: otherHabitID,
	})
	if kind != EventTick {
		s.observer.ObserveTransition(kind)
	}
}

func snapshotOf(t *tracked, now time.Time) Snapshot {
	elapsed := t.elapsed(now)
	return Snapshot{
		SessionID:     t.session.ID,
		HabitID:       t.session.HabitID,
		Mode:          t.session.Mode,
		State:         t.session.State,
		Source:        t.session.Source,
		StartedAt:     t.session.StartedAt,
		ElapsedMs:     elapsed,
		TargetMs:      t.session.TargetMs,
		RemainingMs:   remaining(t.session.TargetMs, elapsed),
		TargetReached: t.session.TargetMs > 0 && elapsed >= t.session.TargetMs,
	}
}
