package service

import (
	"context"
	"time"

	"github.com/alexanderramin/streak/internal/decision"
	"github.com/alexanderramin/streak/internal/domain"
)

type HabitService interface {
	Create(ctx context.Context, h *domain.Habit) error
	GetByID(ctx context.Context, id string) (*domain.Habit, error)
	List(ctx context.Context, includeArchived bool) ([]*domain.Habit, error)
	Update(ctx context.Context, h *domain.Habit) error
	Archive(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	// Resolve finds a habit by ID, falling back to a case-insensitive name match.
	Resolve(ctx context.Context, ref string) (*domain.Habit, error)
}

// HabitPolicy is the read-only view of a habit the coordinator decides on.
type HabitPolicy struct {
	HabitID   string
	Name      string
	Frequency domain.Frequency
	Policy    domain.TimingPolicy
	Archived  bool
}

type PolicySource interface {
	Lookup(ctx context.Context, habitID string) (HabitPolicy, error)
	GetTimingPolicy(ctx context.Context, habitID string) (domain.TimingPolicy, error)
	Invalidate(habitID string)
}

// RecordResult reports whether a completion was written or the period was
// already satisfied. A duplicate is not an error.
type RecordResult struct {
	Inserted         bool
	AlreadyCompleted bool
	Record           *domain.CompletionRecord
}

// CompletionService is the single write path for completion records.
type CompletionService interface {
	IsCompletedForCurrentPeriod(ctx context.Context, habitID string) (bool, error)
	RecordCompletion(ctx context.Context, habitID string, durationSeconds *int, source domain.Source) (*RecordResult, error)
	RemoveCompletion(ctx context.Context, habitID, periodKey string) (bool, error)
	CurrentPeriodKey(ctx context.Context, habitID string) (string, error)
	ListByHabit(ctx context.Context, habitID string) ([]*domain.CompletionRecord, error)
}

type SettingsService interface {
	Flags(ctx context.Context) (decision.Flags, error)
	SetSingleActiveTimer(ctx context.Context, on bool) error
	SetAskBeforeSkipping(ctx context.Context, on bool) error
}

// PeriodActivity summarises a habit's timer sessions in one period.
type PeriodActivity struct {
	PeriodKey string
	Sessions  int
	TimerRan  bool
	LoggedMs  int64
}

type SessionHistory interface {
	PeriodActivity(ctx context.Context, habitID string, freq domain.Frequency, now time.Time) (PeriodActivity, error)
	ListByHabitBetween(ctx context.Context, habitID string, from, to time.Time) ([]*domain.TimerSession, error)
}
