package repository

import (
	"context"
	"time"

	"github.com/alexanderramin/streak/internal/domain"
)

type HabitRepo interface {
	Create(ctx context.Context, h *domain.Habit) error
	GetByID(ctx context.Context, id string) (*domain.Habit, error)
	List(ctx context.Context, includeArchived bool) ([]*domain.Habit, error)
	Update(ctx context.Context, h *domain.Habit) error
	Archive(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type TimerSessionRepo interface {
	Create(ctx context.Context, s *domain.TimerSession) error
	Update(ctx context.Context, s *domain.TimerSession) error
	GetByID(ctx context.Context, id string) (*domain.TimerSession, error)
	ListOpen(ctx context.Context) ([]*domain.TimerSession, error)
	ListByHabitBetween(ctx context.Context, habitID string, from, to time.Time) ([]*domain.TimerSession, error)
}

// CompletionRepo is the storage contract for completion records. Insert must
// be idempotent per (habit, period): a conflicting insert reports
// inserted=false instead of failing.
type CompletionRepo interface {
	Insert(ctx context.Context, c *domain.CompletionRecord) (inserted bool, err error)
	GetByPeriod(ctx context.Context, habitID, periodKey string) (*domain.CompletionRecord, error)
	Exists(ctx context.Context, habitID, periodKey string) (bool, error)
	Delete(ctx context.Context, habitID, periodKey string) (deleted bool, err error)
	ListByHabit(ctx context.Context, habitID string) ([]*domain.CompletionRecord, error)
}

type SettingsRepo interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}
