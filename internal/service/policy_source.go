package service

import (
	"context"
	"time"

	"github.com/alexanderramin/streak/internal/domain"
	"github.com/alexanderramin/streak/internal/repository"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultPolicyCacheSize = 128

// cachedPolicySource serves timing policies from an LRU in front of the habit
// table. Entries are dropped by HabitService on every write in this process
// and expire after ttl so edits made by another process are picked up.
type cachedPolicySource struct {
	habits repository.HabitRepo
	cache  *expirable.LRU[string, HabitPolicy]
}

// NewPolicySource builds the cache. A ttl of zero keeps entries until they
// are invalidated or evicted.
func NewPolicySource(habits repository.HabitRepo, size int, ttl time.Duration) (PolicySource, error) {
	if size <= 0 {
		size = defaultPolicyCacheSize
	}
	return &cachedPolicySource{
		habits: habits,
		cache:  expirable.NewLRU[string, HabitPolicy](size, nil, ttl),
	}, nil
}

func (s *cachedPolicySource) Lookup(ctx context.Context, habitID string) (HabitPolicy, error) {
	if p, ok := s.cache.Get(habitID); ok {
		return p, nil
	}
	h, err := s.habits.GetByID(ctx, habitID)
	if err != nil {
		return HabitPolicy{}, err
	}
	p := HabitPolicy{
		HabitID:   h.ID,
		Name:      h.Name,
		Frequency: h.Frequency,
		Policy:    h.Policy,
		Archived:  h.IsArchived(),
	}
	s.cache.Add(habitID, p)
	return p, nil
}

func (s *cachedPolicySource) GetTimingPolicy(ctx context.Context, habitID string) (domain.TimingPolicy, error) {
	p, err := s.Lookup(ctx, habitID)
	if err != nil {
		return domain.TimingPolicy{}, err
	}
	return p.Policy, nil
}

func (s *cachedPolicySource) Invalidate(habitID string) {
	s.cache.Remove(habitID)
}
