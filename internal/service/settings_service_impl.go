package service

import (
	"context"
	"errors"
	"strconv"

	"github.com/alexanderramin/streak/internal/decision"
	"github.com/alexanderramin/streak/internal/repository"
)

const (
	SettingSingleActiveTimer      = "single_active_timer"
	SettingAskBeforeSkippingTimer = "ask_before_skipping_timer"
)

type settingsService struct {
	settings repository.SettingsRepo
	defaults decision.Flags
}

// NewSettingsService reads the global policy flags. defaults apply to keys
// that are missing or unreadable.
func NewSettingsService(settings repository.SettingsRepo, defaults decision.Flags) SettingsService {
	return &settingsService{settings: settings, defaults: defaults}
}

func (s *settingsService) Flags(ctx context.Context) (decision.Flags, error) {
	single, err := s.boolSetting(ctx, SettingSingleActiveTimer, s.defaults.SingleActiveTimer)
	if err != nil {
		return decision.Flags{}, err
	}
	ask, err := s.boolSetting(ctx, SettingAskBeforeSkippingTimer, s.defaults.AskBeforeSkippingTimer)
	if err != nil {
		return decision.Flags{}, err
	}
	return decision.Flags{SingleActiveTimer: single, AskBeforeSkippingTimer: ask}, nil
}

func (s *settingsService) SetSingleActiveTimer(ctx context.Context, on bool) error {
	return s.settings.Set(ctx, SettingSingleActiveTimer, strconv.FormatBool(on))
}

func (s *settingsService) SetAskBeforeSkipping(ctx context.Context, on bool) error {
	return s.settings.Set(ctx, SettingAskBeforeSkippingTimer, strconv.FormatBool(on))
}

func (s *settingsService) boolSetting(ctx context.Context, key string, fallback bool) (bool, error) {
	raw, err := s.settings.Get(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return fallback, nil
	}
	if err != nil {
		return false, err
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback, nil
	}
	return v, nil
}
