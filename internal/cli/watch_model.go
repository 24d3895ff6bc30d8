package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alexanderramin/streak/internal/cli/formatter"
	"github.com/alexanderramin/streak/internal/coordinator"
	"github.com/alexanderramin/streak/internal/decision"
	"github.com/alexanderramin/streak/internal/domain"
	"github.com/alexanderramin/streak/internal/relay"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	noticeTTL         = 4 * time.Second
	watchBarWidth     = 24
	watchExtendByMs   = int64(5 * time.Minute / time.Millisecond)
	watchSubscribeBuf = 16
)

type (
	watchTickMsg  time.Time
	stateMsg      coordinator.State
	uiEventMsg    coordinator.UIEvent
	channelClosed struct{}
	runErrMsg     struct{ err error }
	submitDoneMsg struct {
		habit string
		res   coordinator.Result
		err   error
	}
	undoDoneMsg struct {
		habit string
		err   error
	}
)

// watchModel is the live timer bar. It renders coordinator state and sends
// every key press back through the coordinator.
type watchModel struct {
	ctx    context.Context
	app    *App
	names  map[string]string
	focus  string
	states <-chan coordinator.State
	events <-chan coordinator.UIEvent

	state     coordinator.State
	notice    string
	noticeAt  time.Time
	undoHabit string
	undoUntil time.Time

	help     help.Model
	showHelp bool
	width    int
	err      error
}

func newWatchModel(ctx context.Context, app *App, names map[string]string, focus string,
	states <-chan coordinator.State, events <-chan coordinator.UIEvent) watchModel {
	h := help.New()
	h.ShowAll = false
	return watchModel{
		ctx:    ctx,
		app:    app,
		names:  names,
		focus:  focus,
		states: states,
		events: events,
		state:  app.Intents.State(),
		help:   h,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.states),
		waitForEvent(m.events),
		watchTickCmd(),
	)
}

func watchTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return watchTickMsg(t)
	})
}

func waitForState(ch <-chan coordinator.State) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return channelClosed{}
		}
		return stateMsg(s)
	}
}

func waitForEvent(ch <-chan coordinator.UIEvent) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return channelClosed{}
		}
		return uiEventMsg(e)
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case watchTickMsg:
		now := time.Time(msg)
		if m.notice != "" && now.Sub(m.noticeAt) > noticeTTL {
			m.notice = ""
		}
		if m.undoHabit != "" && now.After(m.undoUntil) {
			m.undoHabit = ""
		}
		return m, watchTickCmd()

	case stateMsg:
		m.state = coordinator.State(msg)
		return m, waitForState(m.states)

	case uiEventMsg:
		m.applyEvent(coordinator.UIEvent(msg))
		return m, waitForEvent(m.events)

	case submitDoneMsg:
		if msg.err != nil {
			m.setNotice(formatter.StyleRed.Render(msg.err.Error()))
			return m, nil
		}
		if msg.res.Outcome.Kind != decision.KindConfirm {
			m.setNotice(strings.TrimSuffix(formatter.FormatResult(msg.habit, msg.res), "\n"))
		}
		return m, nil

	case undoDoneMsg:
		if msg.err != nil {
			m.setNotice(formatter.StyleRed.Render(msg.err.Error()))
		}
		m.undoHabit = ""
		return m, nil

	case runErrMsg:
		m.err = msg.err
		return m, tea.Quit

	case channelClosed:
		return m, nil
	}
	return m, nil
}

func (m watchModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, watchKeys.Quit) {
		return m, tea.Quit
	}
	if key.Matches(msg, watchKeys.Help) {
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		return m, nil
	}

	if pending := m.state.PendingConfirmHabitID; pending != "" {
		intent := relay.ConfirmIntent(m.state.PendingConfirmType)
		switch {
		case key.Matches(msg, watchKeys.Confirm):
			return m, m.submit(pending, intent, decision.OverrideConfirm)
		case key.Matches(msg, watchKeys.LogPartial):
			return m, m.submit(pending, intent, decision.OverrideLogPartial)
		case key.Matches(msg, watchKeys.DontAskAgain):
			return m, m.submit(pending, intent, decision.OverrideDontAskAgain)
		case key.Matches(msg, watchKeys.Dismiss):
			m.app.Intents.Dismiss(pending)
			return m, nil
		}
		return m, nil
	}

	habit := m.target()
	switch {
	case key.Matches(msg, watchKeys.Undo):
		if m.undoHabit == "" {
			return m, nil
		}
		return m, m.undo(m.undoHabit)
	case habit == "":
		return m, nil
	case key.Matches(msg, watchKeys.Toggle):
		intent := decision.IntentPause
		if m.state.ActiveHabitID != habit || m.state.TimerState == decision.TimerPaused {
			intent = decision.IntentResume
		}
		return m, m.submit(habit, intent, decision.OverrideNone)
	case key.Matches(msg, watchKeys.Start):
		return m, m.submit(habit, decision.IntentStart, decision.OverrideNone)
	case key.Matches(msg, watchKeys.Done):
		return m, m.submit(habit, decision.IntentDone, decision.OverrideNone)
	case key.Matches(msg, watchKeys.Stop):
		return m, m.submit(habit, decision.IntentStopWithoutComplete, decision.OverrideNone)
	case key.Matches(msg, watchKeys.Extend):
		return m, m.submitReq(coordinator.Request{HabitID: habit, Intent: decision.IntentExtend, ExtendByMs: watchExtendByMs})
	}
	return m, nil
}

// target is the habit key presses act on: the focused timer, else the
// habit whose timer was paused for it, else the one named on the command
// line.
func (m watchModel) target() string {
	switch {
	case m.state.ActiveHabitID != "":
		return m.state.ActiveHabitID
	case m.state.PausedHabitID != "":
		return m.state.PausedHabitID
	}
	return m.focus
}

func (m watchModel) submit(habitID string, intent decision.Intent, override decision.Override) tea.Cmd {
	return m.submitReq(coordinator.Request{HabitID: habitID, Intent: intent, Override: override})
}

func (m watchModel) submitReq(req coordinator.Request) tea.Cmd {
	ctx, intents, name := m.ctx, m.app.Intents, m.name(req.HabitID)
	req.Source = domain.SourceManual
	return func() tea.Msg {
		res, err := intents.Submit(ctx, req)
		return submitDoneMsg{habit: name, res: res, err: err}
	}
}

func (m watchModel) undo(habitID string) tea.Cmd {
	ctx, intents, name := m.ctx, m.app.Intents, m.name(habitID)
	return func() tea.Msg {
		return undoDoneMsg{habit: name, err: intents.Undo(ctx, habitID)}
	}
}

func (m *watchModel) applyEvent(e coordinator.UIEvent) {
	name := m.name(e.HabitID)
	switch e.Type {
	case coordinator.UIUndoable:
		m.undoHabit = e.HabitID
		m.undoUntil = e.UndoUntil
	case coordinator.UIAutoCompleted:
		m.setNotice(formatter.StyleGreen.Render(name+": ") + "target reached, completed")
	case coordinator.UIAutoPaused:
		m.setNotice(formatter.StyleYellow.Render(name+": ") + "paused")
	case coordinator.UIUndone:
		m.setNotice(formatter.StyleGreen.Render(name+": ") + "completion undone")
	case coordinator.UIDisallowed:
		m.setNotice(formatter.StyleRed.Render(fmt.Sprintf("%s: %s", name, e.Reason)))
	case coordinator.UIError:
		m.setNotice(formatter.StyleRed.Render("error: " + e.Message))
	}
}

func (m *watchModel) setNotice(s string) {
	m.notice = s
	m.noticeAt = time.Now()
}

func (m watchModel) name(habitID string) string {
	if n, ok := m.names[habitID]; ok {
		return n
	}
	return formatter.TruncID(habitID)
}

func (m watchModel) View() string {
	var b strings.Builder
	s := m.state

	switch {
	case s.ActiveHabitID != "":
		b.WriteString(formatter.Bold(m.name(s.ActiveHabitID)) + "  " + formatter.TimerIndicator(s.TimerState) + "\n")
		clock := formatter.FormatClock(s.ElapsedMs)
		if s.TargetMs > 0 {
			clock += formatter.Dim(" / " + formatter.FormatClock(s.TargetMs))
		}
		b.WriteString(formatter.TimerColor(s.TimerState).Render(clock) + "\n")
		if s.TargetMs > 0 {
			b.WriteString(formatter.RenderProgress(formatter.TargetFraction(s.ElapsedMs, s.TargetMs), watchBarWidth) + "\n")
		}
	case m.focus != "":
		b.WriteString(formatter.Bold(m.name(m.focus)) + "  " + formatter.TimerIndicator(decision.TimerIdle) + "\n")
	default:
		b.WriteString(formatter.Dim("No timer running.") + "\n")
	}

	if s.PausedHabitID != "" {
		b.WriteString(formatter.Dim(fmt.Sprintf("paused: %s (%s left)", m.name(s.PausedHabitID), formatter.FormatClock(s.PausedRemainingMs))) + "\n")
	}
	if s.PendingConfirmHabitID != "" {
		title, _ := formatter.ConfirmText(s.PendingConfirmType)
		b.WriteString("\n" + formatter.StyleYellow.Render(m.name(s.PendingConfirmHabitID)+": "+title) + "\n")
		for _, o := range s.PendingConfirmType.Overrides() {
			b.WriteString(fmt.Sprintf("  %s %s\n", formatter.Bold(overrideKey(o)), formatter.OverrideLabel(s.PendingConfirmType, o)))
		}
		b.WriteString(fmt.Sprintf("  %s %s\n", formatter.Bold("n"), "Cancel"))
	}
	if m.undoHabit != "" {
		b.WriteString(formatter.Dim(fmt.Sprintf("%s completed, press u to undo", m.name(m.undoHabit))) + "\n")
	}
	if m.notice != "" {
		b.WriteString(m.notice + "\n")
	}
	if s.LastError != "" && m.notice == "" {
		b.WriteString(formatter.StyleRed.Render("error: "+s.LastError) + "\n")
	}

	b.WriteString("\n" + m.help.View(watchKeys))
	return b.String() + "\n"
}

func overrideKey(o decision.Override) string {
	switch o {
	case decision.OverrideLogPartial:
		return "l"
	case decision.OverrideDontAskAgain:
		return "a"
	}
	return "y"
}
