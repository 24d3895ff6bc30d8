package service

import (
	"context"
	"fmt"
	"time"

	"github.com/alexanderramin/streak/internal/clock"
	"github.com/alexanderramin/streak/internal/db"
	"github.com/alexanderramin/streak/internal/domain"
	"github.com/alexanderramin/streak/internal/repository"
	"github.com/google/uuid"
)

type completionService struct {
	uow      db.UnitOfWork
	conn     db.DBTX
	clock    clock.Clock
	location *time.Location
	observer UseCaseObserver
}

// NewCompletionService builds the completion write path. Period keys are
// computed in loc (local time when nil) at the moment of the write.
func NewCompletionService(
	conn db.DBTX,
	uow db.UnitOfWork,
	clk clock.Clock,
	loc *time.Location,
	observers ...UseCaseObserver,
) CompletionService {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &completionService{
		uow:      uow,
		conn:     conn,
		clock:    clk,
		location: loc,
		observer: ObserverOrNoop(observers),
	}
}

func (s *completionService) IsCompletedForCurrentPeriod(ctx context.Context, habitID string) (bool, error) {
	key, err := s.CurrentPeriodKey(ctx, habitID)
	if err != nil {
		return false, err
	}
	return repository.NewSQLiteCompletionRepo(s.conn).Exists(ctx, habitID, key)
}

func (s *completionService) CurrentPeriodKey(ctx context.Context, habitID string) (string, error) {
	h, err := repository.NewSQLiteHabitRepo(s.conn).GetByID(ctx, habitID)
	if err != nil {
		return "", err
	}
	return domain.PeriodKey(h.Frequency, s.clock.Now().In(s.location)), nil
}

func (s *completionService) RecordCompletion(ctx context.Context, habitID string, durationSeconds *int, source domain.Source) (result *RecordResult, err error) {
	startedAt := time.Now()
	fields := map[string]any{
		"habit_id": habitID,
		"source":   string(source),
	}
	defer func() {
		if result != nil {
			fields["inserted"] = result.Inserted
		}
		s.observer.ObserveUseCase(ctx, UseCaseEvent{
			Name:      "record-completion",
			StartedAt: startedAt,
			Duration:  time.Since(startedAt),
			Success:   err == nil,
			Err:       err,
			Fields:    fields,
		})
	}()

	if source == "" {
		source = domain.SourceManual
	}
	if !domain.ValidSources[source] {
		return nil, fmt.Errorf("unknown completion source %q", source)
	}

	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		habits := repository.NewSQLiteHabitRepo(tx)
		completions := repository.NewSQLiteCompletionRepo(tx)

		h, err := habits.GetByID(ctx, habitID)
		if err != nil {
			return err
		}
		now := s.clock.Now().In(s.location)
		rec := &domain.CompletionRecord{
			ID:                    uuid.New().String(),
			HabitID:               habitID,
			PeriodKey:             domain.PeriodKey(h.Frequency, now),
			CompletedAt:           now.UTC(),
			DurationSecondsLogged: durationSeconds,
			Source:                source,
		}
		fields["period_key"] = rec.PeriodKey

		inserted, err := completions.Insert(ctx, rec)
		if err != nil {
			return err
		}
		if inserted {
			result = &RecordResult{Inserted: true, Record: rec}
			return nil
		}
		existing, err := completions.GetByPeriod(ctx, habitID, rec.PeriodKey)
		if err != nil {
			return err
		}
		result = &RecordResult{AlreadyCompleted: true, Record: existing}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recording completion: %w", err)
	}
	return result, nil
}

func (s *completionService) RemoveCompletion(ctx context.Context, habitID, periodKey string) (bool, error) {
	deleted, err := repository.NewSQLiteCompletionRepo(s.conn).Delete(ctx, habitID, periodKey)
	if err != nil {
		return false, fmt.Errorf("removing completion: %w", err)
	}
	return deleted, nil
}

func (s *completionService) ListByHabit(ctx context.Context, habitID string) ([]*domain.CompletionRecord, error) {
	return repository.NewSQLiteCompletionRepo(s.conn).ListByHabit(ctx, habitID)
}
