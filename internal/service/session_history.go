package service

import (
	"context"
	"fmt"
	"time"

	"github.com/alexanderramin/streak/internal/domain"
	"github.com/alexanderramin/streak/internal/repository"
)

type sessionHistory struct {
	sessions repository.TimerSessionRepo
	location *time.Location
}

func NewSessionHistory(sessions repository.TimerSessionRepo, loc *time.Location) SessionHistory {
	if loc == nil {
		loc = time.Local
	}
	return &sessionHistory{sessions: sessions, location: loc}
}

// PeriodActivity counts credited sessions started inside the period that
// contains now. Open and discarded sessions are ignored.
func (h *sessionHistory) PeriodActivity(ctx context.Context, habitID string, freq domain.Frequency, now time.Time) (PeriodActivity, error) {
	local := now.In(h.location)
	from, to := domain.PeriodBounds(freq, local)
	sessions, err := h.sessions.ListByHabitBetween(ctx, habitID, from, to)
	if err != nil {
		return PeriodActivity{}, fmt.Errorf("loading period sessions: %w", err)
	}

	activity := PeriodActivity{PeriodKey: domain.PeriodKey(freq, local)}
	for _, s := range sessions {
		if !s.Credited() {
			continue
		}
		activity.Sessions++
		activity.LoggedMs += int64(*s.DurationSeconds) * 1000
	}
	activity.TimerRan = activity.Sessions > 0
	return activity, nil
}

func (h *sessionHistory) ListByHabitBetween(ctx context.Context, habitID string, from, to time.Time) ([]*domain.TimerSession, error) {
	return h.sessions.ListByHabitBetween(ctx, habitID, from, to)
}
