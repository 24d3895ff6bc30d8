package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alexanderramin/streak/internal/clock"
	"github.com/alexanderramin/streak/internal/coordinator"
	"github.com/alexanderramin/streak/internal/decision"
	"github.com/alexanderramin/streak/internal/domain"
	"github.com/alexanderramin/streak/internal/service"
)

// TimerReader is the read side of the session clock.
type TimerReader interface {
	Snapshot(habitID string) (clock.Snapshot, bool)
}

// StateReader exposes the coordinator's current state.
type StateReader interface {
	State() coordinator.State
}

type statusService struct {
	habits      service.HabitService
	completions service.CompletionService
	history     service.SessionHistory
	timers      TimerReader
	state       StateReader
	clock       clock.Clock
}

func NewStatusService(
	habits service.HabitService,
	completions service.CompletionService,
	history service.SessionHistory,
	timers TimerReader,
	state StateReader,
	clk clock.Clock,
) StatusUseCase {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &statusService{
		habits:      habits,
		completions: completions,
		history:     history,
		timers:      timers,
		state:       state,
		clock:       clk,
	}
}

func (s *statusService) GetStatus(ctx context.Context, req StatusRequest) (*StatusResponse, error) {
	now := s.clock.Now()
	if req.Now != nil {
		now = *req.Now
	}

	habits, err := s.habits.List(ctx, req.IncludeArchived)
	if err != nil {
		return nil, fmt.Errorf("loading habits: %w", err)
	}
	habits, err = filterHabitsByScope(habits, req.HabitScope)
	if err != nil {
		return nil, err
	}

	views := make([]HabitStatusView, 0, len(habits))
	for _, h := range habits {
		v, err := s.buildView(ctx, h, now)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	sortStatusViews(views)

	state := s.state.State()
	summary := StatusSummary{
		GeneratedAt:   now,
		CountsTotal:   len(views),
		ActiveHabitID: state.ActiveHabitID,
		PausedHabitID: state.PausedHabitID,
		LastError:     state.LastError,
	}
	for _, v := range views {
		if v.Completed {
			summary.CountsCompleted++
		} else {
			summary.CountsPending++
		}
	}
	return &StatusResponse{Summary: summary, Habits: views}, nil
}

func (s *statusService) buildView(ctx context.Context, h *domain.Habit, now time.Time) (HabitStatusView, error) {
	activity, err := s.history.PeriodActivity(ctx, h.ID, h.Frequency, now)
	if err != nil {
		return HabitStatusView{}, err
	}
	records, err := s.completions.ListByHabit(ctx, h.ID)
	if err != nil {
		return HabitStatusView{}, fmt.Errorf("loading completions: %w", err)
	}

	v := HabitStatusView{
		HabitID:    h.ID,
		Name:       h.Name,
		Frequency:  h.Frequency,
		Mode:       h.Policy.Mode,
		Archived:   h.IsArchived(),
		PeriodKey:  activity.PeriodKey,
		LoggedMs:   activity.LoggedMs,
		Sessions:   activity.Sessions,
		TimerState: decision.TimerIdle,
	}
	for _, r := range records {
		if r.PeriodKey == activity.PeriodKey {
			v.Completed = true
			break
		}
	}
	if snap, ok := s.timers.Snapshot(h.ID); ok {
		v.SessionID = snap.SessionID
		v.ElapsedMs = snap.ElapsedMs
		v.RemainingMs = snap.RemainingMs
		v.TargetMs = snap.TargetMs
		switch {
		case !snap.Running():
			v.TimerState = decision.TimerPaused
		case snap.TargetReached:
			v.TimerState = decision.TimerAtTarget
		default:
			v.TimerState = decision.TimerRunning
		}
	}
	return v, nil
}

func filterHabitsByScope(habits []*domain.Habit, scope []string) ([]*domain.Habit, error) {
	if len(scope) == 0 {
		return habits, nil
	}
	var out []*domain.Habit
	for _, ref := range scope {
		found := false
		for _, h := range habits {
			if h.ID == ref || strings.EqualFold(h.Name, ref) {
				out = append(out, h)
				found = true
				break
			}
		}
		if !found {
			return nil, &StatusError{Code: StatusErrInvalidScope, Message: fmt.Sprintf("unknown habit %q", ref)}
		}
	}
	return out, nil
}

// sortStatusViews puts running timers first, then pending habits, then
// completed ones, each by name.
func sortStatusViews(views []HabitStatusView) {
	rank := func(v HabitStatusView) int {
		switch {
		case v.TimerState != decision.TimerIdle:
			return 0
		case !v.Completed:
			return 1
		}
		return 2
	}
	sort.SliceStable(views, func(i, j int) bool {
		ri, rj := rank(views[i]), rank(views[j])
		if ri != rj {
			return ri < rj
		}
		return strings.ToLower(views[i].Name) < strings.ToLower(views[j].Name)
	})
}
