package app

import (
	"context"

	"github.com/alexanderramin/streak/internal/coordinator"
)

type StatusUseCase interface {
	GetStatus(ctx context.Context, req StatusRequest) (*StatusResponse, error)
}

// IntentUseCase is the coordinator surface the CLI drives.
type IntentUseCase interface {
	Submit(ctx context.Context, req coordinator.Request) (coordinator.Result, error)
	Dismiss(habitID string) bool
	Undo(ctx context.Context, habitID string) error
	State() coordinator.State
}

// ActionRelay handles action strings from an out-of-process surface.
type ActionRelay interface {
	Handle(ctx context.Context, raw string) (coordinator.Result, error)
}

var _ IntentUseCase = (*coordinator.Coordinator)(nil)
