package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alexanderramin/streak/internal/domain"
	"github.com/alexanderramin/streak/internal/repository"
	"github.com/google/uuid"
)

type habitService struct {
	habits   repository.HabitRepo
	policies PolicySource
}

// NewHabitService returns the habit management service. policies may be nil;
// when set, its cached entry is dropped on every write.
func NewHabitService(habits repository.HabitRepo, policies PolicySource) HabitService {
	return &habitService{habits: habits, policies: policies}
}

func (s *habitService) Create(ctx context.Context, h *domain.Habit) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	if h.Frequency == "" {
		h.Frequency = domain.FrequencyDaily
	}
	if h.Policy.Mode == "" {
		h.Policy.Mode = domain.TimerOff
	}
	if err := h.Validate(); err != nil {
		return fmt.Errorf("invalid habit: %w", err)
	}
	now := time.Now().UTC()
	h.CreatedAt = now
	h.UpdatedAt = now
	return s.habits.Create(ctx, h)
}

func (s *habitService) GetByID(ctx context.Context, id string) (*domain.Habit, error) {
	return s.habits.GetByID(ctx, id)
}

func (s *habitService) List(ctx context.Context, includeArchived bool) ([]*domain.Habit, error) {
	return s.habits.List(ctx, includeArchived)
}

func (s *habitService) Update(ctx context.Context, h *domain.Habit) error {
	if err := h.Validate(); err != nil {
		return fmt.Errorf("invalid habit: %w", err)
	}
	h.UpdatedAt = time.Now().UTC()
	if err := s.habits.Update(ctx, h); err != nil {
		return err
	}
	s.invalidate(h.ID)
	return nil
}

func (s *habitService) Archive(ctx context.Context, id string) error {
	if err := s.habits.Archive(ctx, id); err != nil {
		return err
	}
	s.invalidate(id)
	return nil
}

func (s *habitService) Delete(ctx context.Context, id string) error {
	if err := s.habits.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(id)
	return nil
}

func (s *habitService) Resolve(ctx context.Context, ref string) (*domain.Habit, error) {
	h, err := s.habits.GetByID(ctx, ref)
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	all, err := s.habits.List(ctx, false)
	if err != nil {
		return nil, err
	}
	var matches []*domain.Habit
	for _, candidate := range all {
		if strings.EqualFold(candidate.Name, ref) {
			matches = append(matches, candidate)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("habit %q: %w", ref, repository.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("habit name %q is ambiguous (%d matches); use the ID", ref, len(matches))
	}
}

func (s *habitService) invalidate(id string) {
	if s.policies != nil {
		s.policies.Invalidate(id)
	}
}
