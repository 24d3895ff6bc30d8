package cli

import (
	"context"

	"github.com/alexanderramin/streak/internal/domain"
)

// resolveHabit accepts a habit ID or name.
func resolveHabit(ctx context.Context, app *App, ref string) (*domain.Habit, error) {
	return app.Habits.Resolve(ctx, ref)
}

// habitName returns the display name for id, falling back to the ID itself.
func habitName(ctx context.Context, app *App, id string) string {
	if h, err := app.Habits.GetByID(ctx, id); err == nil {
		return h.Name
	}
	return id
}
