package coordinator

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alexanderramin/streak/internal/clock"
	"github.com/alexanderramin/streak/internal/decision"
	"github.com/alexanderramin/streak/internal/domain"
	"github.com/alexanderramin/streak/internal/repository"
	"github.com/alexanderramin/streak/internal/service"
	"github.com/alexanderramin/streak/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

type harness struct {
	coord       *Coordinator
	timers      *clock.Service
	clock       *testutil.FakeClock
	db          *sql.DB
	completions service.CompletionService
	settings    service.SettingsService
	sessions    repository.TimerSessionRepo
	metrics     *Metrics
	ui          <-chan UIEvent
}

func newHarness(t *testing.T, configure ...func(*Deps, *Options)) *harness {
	t.Helper()
	database := testutil.NewTestDB(t)
	return newHarnessOn(t, database, testutil.NewFakeClock(t0), configure...)
}

func newHarnessOn(t *testing.T, database *sql.DB, fake *testutil.FakeClock, configure ...func(*Deps, *Options)) *harness {
	t.Helper()
	habits := repository.NewSQLiteHabitRepo(database)
	sessions := repository.NewSQLiteTimerSessionRepo(database)
	policies, err := service.NewPolicySource(habits, 16, 0)
	require.NoError(t, err)

	metrics := MustNewMetrics(prometheus.NewRegistry())
	timers := clock.NewService(sessions, clock.Options{Clock: fake, Exclusive: true, Observer: metrics})
	completions := service.NewCompletionService(database, testutil.NewTestUoW(database), fake, time.UTC)
	settings := service.NewSettingsService(repository.NewSQLiteSettingsRepo(database),
		decision.Flags{SingleActiveTimer: true, AskBeforeSkippingTimer: true})

	deps := Deps{
		Timers:      timers,
		Completions: completions,
		Policies:    policies,
		Settings:    settings,
		History:     service.NewSessionHistory(sessions, time.UTC),
		Clock:       fake,
	}
	opts := Options{Metrics: metrics}
	for _, fn := range configure {
		fn(&deps, &opts)
	}

	coord := New(deps, opts)
	ui, cancel := coord.UIEvents().Subscribe(64)
	t.Cleanup(cancel)

	return &harness{
		coord:       coord,
		timers:      timers,
		clock:       fake,
		db:          database,
		completions: deps.Completions,
		settings:    settings,
		sessions:    sessions,
		metrics:     metrics,
		ui:          ui,
	}
}

func (h *harness) habit(t *testing.T, name string, opts ...testutil.HabitOption) string {
	t.Helper()
	habit := testutil.NewTestHabit(name, opts...)
	require.NoError(t, repository.NewSQLiteHabitRepo(h.db).Create(context.Background(), habit))
	return habit.ID
}

func (h *harness) submit(t *testing.T, habitID string, intent decision.Intent, override ...decision.Override) Result {
	t.Helper()
	req := Request{HabitID: habitID, Intent: intent}
	if len(override) > 0 {
		req.Override = override[0]
	}
	res, err := h.coord.Submit(context.Background(), req)
	require.NoError(t, err)
	return res
}

func (h *harness) completed(t *testing.T, habitID string) bool {
	t.Helper()
	done, err := h.completions.IsCompletedForCurrentPeriod(context.Background(), habitID)
	require.NoError(t, err)
	return done
}

func (h *harness) records(t *testing.T, habitID string) []*domain.CompletionRecord {
	t.Helper()
	recs, err := h.completions.ListByHabit(context.Background(), habitID)
	require.NoError(t, err)
	return recs
}

// uiEvents drains the UI events published so far.
func (h *harness) uiEvents() []UIEvent {
	var out []UIEvent
	for {
		select {
		case e := <-h.ui:
			out = append(out, e)
		default:
			return out
		}
	}
}

func findUI(events []UIEvent, typ UIEventType) (UIEvent, bool) {
	for _, e := range events {
		if e.Type == typ {
			return e, true
		}
	}
	return UIEvent{}, false
}

func TestSubmit_DoneWithoutTimerCompletesOnce(t *testing.T) {
	h := newHarness(t)
	id := h.habit(t, "Stretch")

	res := h.submit(t, id, decision.IntentDone)
	assert.Equal(t, decision.KindExecute, res.Outcome.Kind)
	require.NotNil(t, res.Completion)
	assert.Equal(t, "2024-03-04", res.Completion.PeriodKey)
	assert.Equal(t, domain.SourceManual, res.Completion.Source)
	assert.Nil(t, res.Completion.DurationSecondsLogged)

	undoable, ok := findUI(h.uiEvents(), UIUndoable)
	require.True(t, ok)
	assert.Equal(t, id, undoable.HabitID)
	assert.Equal(t, t0.Add(DefaultUndoWindow), undoable.UndoUntil)

	again := h.submit(t, id, decision.IntentDone)
	assert.True(t, again.Outcome.IsNoop())
	assert.Len(t, h.records(t, id), 1)

	state := h.coord.State()
	assert.False(t, state.IsLoading)
	assert.Empty(t, state.LastError)
	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.completions.WithLabelValues("inserted")))
}

func TestSubmit_RequireTimerDisallows(t *testing.T) {
	h := newHarness(t)
	id := h.habit(t, "Piano", testutil.WithTimer(domain.TimerStopwatch, 0), testutil.WithRequireTimer())

	res := h.submit(t, id, decision.IntentDone)
	assert.Equal(t, decision.KindDisallow, res.Outcome.Kind)
	assert.Equal(t, decision.ReasonTimerRequired, res.Outcome.Reason)
	assert.False(t, h.completed(t, id))

	e, ok := findUI(h.uiEvents(), UIDisallowed)
	require.True(t, ok)
	assert.Equal(t, decision.ReasonTimerRequired, e.Reason)

	quick := h.submit(t, id, decision.IntentQuickComplete)
	assert.Equal(t, decision.KindDisallow, quick.Outcome.Kind)
	assert.Empty(t, h.records(t, id))
}

func TestSubmit_ConfirmOverrideAndDismiss(t *testing.T) {
	h := newHarness(t)
	id := h.habit(t, "Read", testutil.WithTimer(domain.TimerStopwatch, 0))

	res := h.submit(t, id, decision.IntentDone)
	require.Equal(t, decision.KindConfirm, res.Outcome.Kind)
	assert.Equal(t, decision.ConfirmCompleteWithoutTimer, res.Outcome.Confirm)
	assert.True(t, h.coord.State().HasPendingConfirm(id))

	e, ok := findUI(h.uiEvents(), UIConfirmRequested)
	require.True(t, ok)
	assert.Equal(t, decision.ConfirmCompleteWithoutTimer.Overrides(), e.Overrides)

	assert.True(t, h.coord.Dismiss(id))
	assert.False(t, h.coord.State().HasPendingConfirm(id))
	assert.False(t, h.coord.Dismiss(id), "nothing left to dismiss")
	assert.False(t, h.completed(t, id))

	h.submit(t, id, decision.IntentDone)
	require.True(t, h.coord.State().HasPendingConfirm(id))

	res = h.submit(t, id, decision.IntentDone, decision.OverrideConfirm)
	assert.Equal(t, decision.KindExecute, res.Outcome.Kind)
	assert.False(t, h.coord.State().HasPendingConfirm(id))
	assert.True(t, h.completed(t, id))
}

func TestSubmit_DontAskAgainPersistsFlag(t *testing.T) {
	h := newHarness(t)
	first := h.habit(t, "Run", testutil.WithTimer(domain.TimerStopwatch, 0))
	second := h.habit(t, "Swim", testutil.WithTimer(domain.TimerStopwatch, 0))

	res := h.submit(t, first, decision.IntentDone, decision.OverrideDontAskAgain)
	assert.Equal(t, decision.KindExecute, res.Outcome.Kind)
	assert.True(t, h.completed(t, first))

	flags, err := h.settings.Flags(context.Background())
	require.NoError(t, err)
	assert.False(t, flags.AskBeforeSkippingTimer)

	res = h.submit(t, second, decision.IntentDone)
	assert.Equal(t, decision.KindExecute, res.Outcome.Kind, "no prompt once disabled")
}

func TestSubmit_MinDurationGate(t *testing.T) {
	h := newHarness(t)
	id := h.habit(t, "Meditate", testutil.WithTimer(domain.TimerStopwatch, 0), testutil.WithMinDuration(300))

	res := h.submit(t, id, decision.IntentStart)
	require.Equal(t, decision.KindExecute, res.Outcome.Kind)
	state := h.coord.State()
	assert.Equal(t, id, state.ActiveHabitID)
	assert.Equal(t, decision.TimerRunning, state.TimerState)

	h.clock.Advance(299 * time.Second)
	res = h.submit(t, id, decision.IntentDone)
	assert.Equal(t, decision.KindConfirm, res.Outcome.Kind)
	assert.Equal(t, decision.ConfirmBelowMinDuration, res.Outcome.Confirm)

	h.clock.Advance(time.Second)
	res = h.submit(t, id, decision.IntentDone)
	require.Equal(t, decision.KindExecute, res.Outcome.Kind)
	require.NotNil(t, res.Completion)
	require.NotNil(t, res.Completion.DurationSecondsLogged)
	assert.Equal(t, 300, *res.Completion.DurationSecondsLogged)

	state = h.coord.State()
	assert.Equal(t, decision.TimerIdle, state.TimerState)
	assert.Empty(t, state.ActiveHabitID)
	assert.False(t, state.HasPendingConfirm(id))
	assert.Empty(t, h.timers.ActiveSessions())
}

func TestSubmit_SingleActiveSwitch(t *testing.T) {
	h := newHarness(t)
	a := h.habit(t, "Guitar", testutil.WithTimer(domain.TimerCountdown, 600))
	b := h.habit(t, "Spanish", testutil.WithTimer(domain.TimerStopwatch, 0))

	h.submit(t, a, decision.IntentStart)
	h.clock.Advance(10 * time.Second)
	h.uiEvents()

	res := h.submit(t, b, decision.IntentStart)
	require.Equal(t, decision.KindExecute, res.Outcome.Kind)

	state := h.coord.State()
	assert.Equal(t, b, state.ActiveHabitID)
	assert.Equal(t, decision.TimerRunning, state.TimerState)
	assert.Equal(t, a, state.PausedHabitID)
	assert.Equal(t, int64(590000), state.PausedRemainingMs)

	snapA, ok := h.timers.Snapshot(a)
	require.True(t, ok)
	assert.Equal(t, domain.SessionPaused, snapA.State)

	e, ok := findUI(h.uiEvents(), UITimerSwitched)
	require.True(t, ok)
	assert.Equal(t, b, e.HabitID)
	assert.Equal(t, a, e.FromHabitID)

	// resuming A pauses B in turn
	h.submit(t, a, decision.IntentResume)
	state = h.coord.State()
	assert.Equal(t, a, state.ActiveHabitID)
	assert.Equal(t, b, state.PausedHabitID)
}

func TestSubmit_ParallelTimersWhenNotExclusive(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.settings.SetSingleActiveTimer(context.Background(), false))
	a := h.habit(t, "Walk", testutil.WithTimer(domain.TimerStopwatch, 0))
	b := h.habit(t, "Podcast", testutil.WithTimer(domain.TimerStopwatch, 0))

	h.submit(t, a, decision.IntentStart)
	h.submit(t, b, decision.IntentStart)

	running := 0
	for _, s := range h.timers.ActiveSessions() {
		if s.Running() {
			running++
		}
	}
	assert.Equal(t, 2, running)
	assert.Empty(t, h.coord.State().PausedHabitID)
}

// failingTimers fails Start while startErr is set.
type failingTimers struct {
	*clock.Service
	startErr error
}

func (f *failingTimers) Start(ctx context.Context, req clock.StartRequest) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	return f.Service.Start(ctx, req)
}

func TestSubmit_RollsBackOnTimerFailure(t *testing.T) {
	var timers *failingTimers
	h := newHarness(t, func(d *Deps, _ *Options) {
		timers = &failingTimers{Service: d.Timers.(*clock.Service)}
		d.Timers = timers
	})
	a := h.habit(t, "Guitar", testutil.WithTimer(domain.TimerStopwatch, 0))
	b := h.habit(t, "Spanish", testutil.WithTimer(domain.TimerStopwatch, 0))

	h.submit(t, a, decision.IntentStart)
	h.clock.Advance(30 * time.Second)
	h.uiEvents()

	timers.startErr = errors.New("disk full")
	_, err := h.coord.Submit(context.Background(), Request{HabitID: b, Intent: decision.IntentStart})
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")

	snapA, ok := h.timers.Snapshot(a)
	require.True(t, ok)
	assert.Equal(t, domain.SessionRunning, snapA.State, "auto-paused timer is resumed")

	state := h.coord.State()
	assert.Equal(t, a, state.ActiveHabitID)
	assert.Empty(t, state.PausedHabitID)
	assert.Contains(t, state.LastError, "disk full")
	assert.False(t, state.IsLoading)

	_, ok = findUI(h.uiEvents(), UIError)
	assert.True(t, ok)
	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.executeFailures.WithLabelValues(string(decision.IntentStart))))

	timers.startErr = nil
	h.submit(t, b, decision.IntentStart)
	assert.Empty(t, h.coord.State().LastError, "success clears the error")
}

func TestSubmit_CompletionWriteFailureKeepsTimer(t *testing.T) {
	database := testutil.NewTestDB(t)
	fake := testutil.NewFakeClock(t0)
	h := newHarnessOn(t, database, fake, func(d *Deps, _ *Options) {
		uow := &testutil.FailingExecUoW{DB: database, Match: "INSERT INTO completions", FailOn: 1, Err: errors.New("io error")}
		d.Completions = service.NewCompletionService(database, uow, fake, time.UTC)
	})
	id := h.habit(t, "Draw", testutil.WithTimer(domain.TimerStopwatch, 0))

	h.submit(t, id, decision.IntentStart)
	h.clock.Advance(2 * time.Minute)

	_, err := h.coord.Submit(context.Background(), Request{HabitID: id, Intent: decision.IntentDone})
	require.Error(t, err)
	assert.False(t, h.completed(t, id))

	snap, ok := h.timers.Snapshot(id)
	require.True(t, ok, "session stays open for a retry")
	assert.True(t, snap.Running())
	assert.Equal(t, id, h.coord.State().ActiveHabitID)
	assert.NotEmpty(t, h.coord.State().LastError)
}

// blockingCompletions holds RecordCompletion until release is closed.
type blockingCompletions struct {
	service.CompletionService
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingCompletions) RecordCompletion(ctx context.Context, habitID string, secs *int, src domain.Source) (*service.RecordResult, error) {
	if b.calls.Add(1) == 1 {
		close(b.entered)
	}
	<-b.release
	return b.CompletionService.RecordCompletion(ctx, habitID, secs, src)
}

func TestSubmit_DeduplicatesInFlightIntent(t *testing.T) {
	blocking := &blockingCompletions{entered: make(chan struct{}), release: make(chan struct{})}
	h := newHarness(t, func(d *Deps, _ *Options) {
		blocking.CompletionService = d.Completions
		d.Completions = blocking
	})
	id := h.habit(t, "Floss")

	var (
		wg    sync.WaitGroup
		first Result
		err   error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, err = h.coord.Submit(context.Background(), Request{HabitID: id, Intent: decision.IntentDone})
	}()

	<-blocking.entered
	assert.True(t, h.coord.State().IsLoading)
	second := h.submit(t, id, decision.IntentDone)
	assert.True(t, second.Deduplicated)

	close(blocking.release)
	wg.Wait()
	require.NoError(t, err)
	assert.Equal(t, decision.KindExecute, first.Outcome.Kind)
	assert.False(t, first.Deduplicated)

	assert.Equal(t, int32(1), blocking.calls.Load())
	assert.Len(t, h.records(t, id), 1)
	assert.False(t, h.coord.State().IsLoading)
	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.deduplicated))
}

func TestSubmit_DedupWindow(t *testing.T) {
	h := newHarness(t, func(_ *Deps, o *Options) { o.DedupWindow = 500 * time.Millisecond })
	id := h.habit(t, "Journal", testutil.WithTimer(domain.TimerStopwatch, 0))

	h.submit(t, id, decision.IntentStart)
	h.submit(t, id, decision.IntentPause)
	res := h.submit(t, id, decision.IntentPause)
	assert.True(t, res.Deduplicated)

	h.clock.Advance(time.Second)
	res = h.submit(t, id, decision.IntentPause)
	assert.False(t, res.Deduplicated)
}

func TestSubmit_StopDiscardsEmptySession(t *testing.T) {
	h := newHarness(t)
	id := h.habit(t, "Pushups", testutil.WithTimer(domain.TimerStopwatch, 0))

	h.submit(t, id, decision.IntentStart)
	started := h.coord.State().ActiveSessionID
	h.clock.Advance(500 * time.Millisecond)

	res := h.submit(t, id, decision.IntentStopWithoutComplete)
	require.Equal(t, decision.KindExecute, res.Outcome.Kind)
	assert.Equal(t, []decision.ActionKind{decision.ActionDiscardTimer}, res.Outcome.ActionKinds())
	assert.Equal(t, decision.TimerIdle, h.coord.State().TimerState)

	session, err := h.sessions.GetByID(context.Background(), started)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionEnded, session.State)
	assert.Nil(t, session.DurationSeconds)
	assert.False(t, h.completed(t, id))
}

func TestSubmit_StopNonEmptyAsksThenLogsPartial(t *testing.T) {
	h := newHarness(t)
	id := h.habit(t, "Pushups", testutil.WithTimer(domain.TimerStopwatch, 0))

	h.submit(t, id, decision.IntentStart)
	started := h.coord.State().ActiveSessionID
	h.clock.Advance(45 * time.Second)

	res := h.submit(t, id, decision.IntentStopWithoutComplete)
	require.Equal(t, decision.KindConfirm, res.Outcome.Kind)
	assert.Equal(t, decision.ConfirmDiscardNonZeroSession, res.Outcome.Confirm)

	res = h.submit(t, id, decision.IntentStopWithoutComplete, decision.OverrideLogPartial)
	require.Equal(t, decision.KindExecute, res.Outcome.Kind)

	session, err := h.sessions.GetByID(context.Background(), started)
	require.NoError(t, err)
	require.NotNil(t, session.DurationSeconds)
	assert.Equal(t, 45, *session.DurationSeconds)
	assert.False(t, h.completed(t, id), "a partial log is not a completion")

	// the credited time counts once the habit is completed later
	res = h.submit(t, id, decision.IntentDone)
	require.Equal(t, decision.KindExecute, res.Outcome.Kind)
	require.NotNil(t, res.Completion.DurationSecondsLogged)
	assert.Equal(t, 45, *res.Completion.DurationSecondsLogged)
}

func TestSubmit_PartialLogKeepsMinimumGate(t *testing.T) {
	h := newHarness(t)
	id := h.habit(t, "Meditate", testutil.WithTimer(domain.TimerStopwatch, 0), testutil.WithMinDuration(300))

	h.submit(t, id, decision.IntentStart)
	h.clock.Advance(100 * time.Second)

	res := h.submit(t, id, decision.IntentDone)
	require.Equal(t, decision.KindConfirm, res.Outcome.Kind)
	assert.Equal(t, decision.ConfirmBelowMinDuration, res.Outcome.Confirm)

	res = h.submit(t, id, decision.IntentDone, decision.OverrideLogPartial)
	require.Equal(t, decision.KindExecute, res.Outcome.Kind)
	assert.Nil(t, res.Completion)
	assert.False(t, h.completed(t, id))

	res = h.submit(t, id, decision.IntentDone)
	assert.Equal(t, decision.KindConfirm, res.Outcome.Kind, "100s logged is still short of the minimum")
	assert.Equal(t, decision.ConfirmBelowMinDuration, res.Outcome.Confirm)
	assert.False(t, h.completed(t, id))

	// a second session tops the period total up past the minimum
	h.submit(t, id, decision.IntentStart)
	h.clock.Advance(200 * time.Second)
	res = h.submit(t, id, decision.IntentDone)
	require.Equal(t, decision.KindExecute, res.Outcome.Kind)
	require.NotNil(t, res.Completion)
	require.NotNil(t, res.Completion.DurationSecondsLogged)
	assert.Equal(t, 300, *res.Completion.DurationSecondsLogged)
}

func TestSubmit_PeriodRollover(t *testing.T) {
	database := testutil.NewTestDB(t)
	fake := testutil.NewFakeClock(time.Date(2024, 3, 4, 23, 59, 0, 0, time.UTC))
	h := newHarnessOn(t, database, fake)
	id := h.habit(t, "Vitamins")

	res := h.submit(t, id, decision.IntentDone)
	require.NotNil(t, res.Completion)
	assert.Equal(t, "2024-03-04", res.Completion.PeriodKey)

	fake.Advance(2 * time.Minute)
	assert.False(t, h.completed(t, id))

	res = h.submit(t, id, decision.IntentDone)
	require.NotNil(t, res.Completion)
	assert.Equal(t, "2024-03-05", res.Completion.PeriodKey)
	assert.Len(t, h.records(t, id), 2)
}

func TestUndo(t *testing.T) {
	t.Run("within window", func(t *testing.T) {
		h := newHarness(t)
		id := h.habit(t, "Water")
		h.submit(t, id, decision.IntentDone)

		h.clock.Advance(3 * time.Second)
		require.NoError(t, h.coord.Undo(context.Background(), id))
		assert.False(t, h.completed(t, id))

		e, ok := findUI(h.uiEvents(), UIUndone)
		require.True(t, ok)
		assert.Equal(t, "2024-03-04", e.PeriodKey)

		assert.ErrorIs(t, h.coord.Undo(context.Background(), id), ErrNothingToUndo)
	})

	t.Run("after window", func(t *testing.T) {
		h := newHarness(t)
		id := h.habit(t, "Water")
		h.submit(t, id, decision.IntentDone)

		h.clock.Advance(DefaultUndoWindow + time.Second)
		assert.ErrorIs(t, h.coord.Undo(context.Background(), id), ErrUndoExpired)
		assert.True(t, h.completed(t, id))
	})

	t.Run("completion from another process", func(t *testing.T) {
		database := testutil.NewTestDB(t)
		fake := testutil.NewFakeClock(t0)
		first := newHarnessOn(t, database, fake)
		id := first.habit(t, "Water")
		first.submit(t, id, decision.IntentDone)

		second := newHarnessOn(t, database, fake)
		fake.Advance(2 * time.Second)
		require.NoError(t, second.coord.Undo(context.Background(), id))
		assert.False(t, second.completed(t, id))
	})

	t.Run("completion from another process after window", func(t *testing.T) {
		database := testutil.NewTestDB(t)
		fake := testutil.NewFakeClock(t0)
		first := newHarnessOn(t, database, fake)
		id := first.habit(t, "Water")
		first.submit(t, id, decision.IntentDone)

		second := newHarnessOn(t, database, fake)
		fake.Advance(DefaultUndoWindow + time.Second)
		assert.ErrorIs(t, second.coord.Undo(context.Background(), id), ErrNothingToUndo)
		assert.True(t, second.completed(t, id))
	})

	t.Run("nothing recorded", func(t *testing.T) {
		h := newHarness(t)
		id := h.habit(t, "Water")
		assert.ErrorIs(t, h.coord.Undo(context.Background(), id), ErrNothingToUndo)
	})
}

func TestRun_AutoCompletesOnTarget(t *testing.T) {
	h := newHarness(t)
	id := h.habit(t, "Plank", testutil.WithTimer(domain.TimerCountdown, 60), testutil.WithAutoComplete())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.coord.Run(ctx) }()

	h.submit(t, id, decision.IntentStart)
	h.clock.Advance(60 * time.Second)
	h.timers.Tick()

	require.Eventually(t, func() bool { return h.completed(t, id) }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return h.coord.State().TimerState == decision.TimerIdle
	}, 2*time.Second, 10*time.Millisecond)

	recs := h.records(t, id)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.SourceAuto, recs[0].Source)
	require.NotNil(t, recs[0].DurationSecondsLogged)
	assert.Equal(t, 60, *recs[0].DurationSecondsLogged)

	require.Eventually(t, func() bool {
		return promtest.ToFloat64(h.metrics.autoCompletions) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRun_TargetWithoutAutoCompleteWaits(t *testing.T) {
	h := newHarness(t)
	id := h.habit(t, "Plank", testutil.WithTimer(domain.TimerCountdown, 60))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.coord.Run(ctx) }()

	h.submit(t, id, decision.IntentStart)
	h.clock.Advance(61 * time.Second)
	h.timers.Tick()

	require.Eventually(t, func() bool {
		return h.coord.State().TimerState == decision.TimerAtTarget
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, h.completed(t, id))
}

// gatedSettings holds one Flags call, armed by the test, until release is
// closed.
type gatedSettings struct {
	service.SettingsService
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSettings) Flags(ctx context.Context) (decision.Flags, error) {
	if g.armed.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.release
	}
	return g.SettingsService.Flags(ctx)
}

func TestRun_AutoCompleteWaitsForInFlightIntent(t *testing.T) {
	gate := &gatedSettings{entered: make(chan struct{}), release: make(chan struct{})}
	h := newHarness(t, func(d *Deps, _ *Options) {
		gate.SettingsService = d.Settings
		d.Settings = gate
	})
	id := h.habit(t, "Plank", testutil.WithTimer(domain.TimerCountdown, 60), testutil.WithAutoComplete())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.coord.Run(ctx) }()

	h.submit(t, id, decision.IntentStart)

	// a widget re-fires start and stalls while the target is reached
	gate.armed.Store(true)
	widgetErr := make(chan error, 1)
	go func() {
		_, err := h.coord.Submit(ctx, Request{HabitID: id, Intent: decision.IntentStart, Source: domain.SourceWidget})
		widgetErr <- err
	}()
	select {
	case <-gate.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("widget start never reached settings")
	}

	h.clock.Advance(60 * time.Second)
	h.timers.Tick()
	time.Sleep(50 * time.Millisecond)
	close(gate.release)
	require.NoError(t, <-widgetErr)

	require.Eventually(t, func() bool { return h.completed(t, id) }, 2*time.Second, 10*time.Millisecond)
	recs := h.records(t, id)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.SourceAuto, recs[0].Source)
	require.Eventually(t, func() bool {
		return h.coord.State().TimerState == decision.TimerIdle
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, promtest.ToFloat64(h.metrics.deduplicated))
}

func TestFold_TickPastTargetCompletesWithoutTargetEvent(t *testing.T) {
	h := newHarness(t)
	id := h.habit(t, "Plank", testutil.WithTimer(domain.TimerCountdown, 60), testutil.WithAutoComplete())
	ctx := context.Background()

	h.submit(t, id, decision.IntentStart)
	sessionID := h.coord.State().ActiveSessionID
	h.clock.Advance(61 * time.Second)

	// the TargetReached for this session was never delivered
	h.coord.fold(ctx, clock.Event{
		Type:      clock.EventTick,
		SessionID: sessionID,
		HabitID:   id,
		ElapsedMs: 61000,
		TargetMs:  60000,
	})

	assert.True(t, h.completed(t, id))
	assert.Equal(t, decision.TimerIdle, h.coord.State().TimerState)
	require.Len(t, h.records(t, id), 1)
}

func TestFold_TickMarksAtTarget(t *testing.T) {
	h := newHarness(t)
	id := h.habit(t, "Stretch", testutil.WithTimer(domain.TimerCountdown, 60))
	ctx := context.Background()

	h.submit(t, id, decision.IntentStart)
	sessionID := h.coord.State().ActiveSessionID
	tick := clock.Event{Type: clock.EventTick, SessionID: sessionID, HabitID: id, ElapsedMs: 30000, TargetMs: 60000, RemainingMs: 30000}

	h.coord.fold(ctx, tick)
	assert.Equal(t, decision.TimerRunning, h.coord.State().TimerState)

	h.clock.Advance(65 * time.Second)
	tick.ElapsedMs, tick.RemainingMs = 65000, 0
	h.coord.fold(ctx, tick)
	state := h.coord.State()
	assert.Equal(t, decision.TimerAtTarget, state.TimerState)
	assert.Equal(t, int64(65000), state.ElapsedMs)
	assert.False(t, h.completed(t, id), "no auto-complete configured")
}

func TestRun_TicksRefreshState(t *testing.T) {
	h := newHarness(t)
	id := h.habit(t, "Focus", testutil.WithTimer(domain.TimerCountdown, 1500))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.coord.Run(ctx) }()

	h.submit(t, id, decision.IntentStart)
	h.clock.Advance(25 * time.Second)
	h.timers.Tick()

	require.Eventually(t, func() bool {
		s := h.coord.State()
		return s.ElapsedMs == 25000 && s.RemainingMs == 1475000
	}, 2*time.Second, 10*time.Millisecond)
}

func TestInit_RecoversRunningSession(t *testing.T) {
	database := testutil.NewTestDB(t)
	fake := testutil.NewFakeClock(t0)
	habit := testutil.NewTestHabit("Yoga", testutil.WithTimer(domain.TimerStopwatch, 0))
	require.NoError(t, repository.NewSQLiteHabitRepo(database).Create(context.Background(), habit))
	require.NoError(t, repository.NewSQLiteTimerSessionRepo(database).Create(context.Background(),
		testutil.NewTestSession(habit.ID, testutil.WithSessionStartedAt(t0))))

	fake.Advance(90 * time.Second)
	h := newHarnessOn(t, database, fake)
	require.NoError(t, h.coord.Init(context.Background()))

	state := h.coord.State()
	assert.Equal(t, habit.ID, state.ActiveHabitID)
	assert.Equal(t, decision.TimerRunning, state.TimerState)
	assert.Equal(t, int64(90000), state.ElapsedMs)

	res := h.submit(t, habit.ID, decision.IntentDone)
	require.Equal(t, decision.KindExecute, res.Outcome.Kind)
	require.NotNil(t, res.Completion.DurationSecondsLogged)
	assert.Equal(t, 90, *res.Completion.DurationSecondsLogged)
}

func TestStates_ReplaysCurrentState(t *testing.T) {
	h := newHarness(t)
	id := h.habit(t, "Sketch", testutil.WithTimer(domain.TimerStopwatch, 0))
	h.submit(t, id, decision.IntentStart)

	states, cancel := h.coord.States().Subscribe(4)
	defer cancel()
	select {
	case s := <-states:
		assert.Equal(t, id, s.ActiveHabitID)
	case <-time.After(time.Second):
		t.Fatal("no state replayed")
	}
}
