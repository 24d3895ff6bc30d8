package cli

import (
	"context"

	"github.com/alexanderramin/streak/internal/app"
	"github.com/alexanderramin/streak/internal/coordinator"
	"github.com/alexanderramin/streak/internal/service"
	"github.com/spf13/cobra"
)

// App holds references to the use cases the CLI commands drive.
type App struct {
	Habits        service.HabitService
	Settings      service.SettingsService
	Intents       app.IntentUseCase
	Status        app.StatusUseCase
	Widget        app.ActionRelay
	Notifications app.ActionRelay

	// Run drives the session clock and auto-completion until ctx is done.
	Run func(ctx context.Context) error
	// States subscribes to coordinator state snapshots.
	States func(buffer int) (<-chan coordinator.State, func())
	// UIEvents subscribes to one-shot coordinator notices.
	UIEvents func(buffer int) (<-chan coordinator.UIEvent, func())

	// Interactive reports whether prompts may be shown. Nil means never.
	Interactive func() bool
	// Choose resolves a confirmation. Nil uses a huh select form.
	Choose ChooseFunc
}

// NewApp wires an App onto an opened runtime.
func NewApp(rt *app.Runtime) *App {
	return &App{
		Habits:        rt.Habits,
		Settings:      rt.Settings,
		Intents:       rt.Coordinator,
		Status:        rt.Status,
		Widget:        rt.Widget,
		Notifications: rt.Notifications,
		Run:           rt.Run,
		States:        rt.Coordinator.States().Subscribe,
		UIEvents:      rt.Coordinator.UIEvents().Subscribe,
	}
}

func (a *App) interactive() bool {
	return a.Interactive != nil && a.Interactive()
}

// NewRootCmd creates the top-level "streak" command and registers all
// subcommands against the provided App.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "streak",
		Short:         "Habit tracker with timed sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newHabitCmd(app),
		newIntentCmd(app, intentStart),
		newIntentCmd(app, intentPause),
		newIntentCmd(app, intentResume),
		newIntentCmd(app, intentDone),
		newIntentCmd(app, intentQuick),
		newIntentCmd(app, intentStop),
		newIntentCmd(app, intentExtend),
		newUndoCmd(app),
		newStatusCmd(app),
		newSettingsCmd(app),
		newRelayCmd(app, "widget", app.Widget),
		newRelayCmd(app, "notify", app.Notifications),
		newButtonsCmd(app),
		newWatchCmd(app),
	)

	return root
}
