package cli

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

func newWatchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [habit]",
		Short: "Live timer bar; keeps timers ticking and auto-completes on target",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Run == nil || app.States == nil || app.UIEvents == nil {
				return errors.New("watch is not available")
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			names, err := habitNames(ctx, app)
			if err != nil {
				return err
			}
			var focus string
			if len(args) == 1 {
				h, err := resolveHabit(ctx, app, args[0])
				if err != nil {
					return err
				}
				focus = h.ID
			}

			states, unsubStates := app.States(watchSubscribeBuf)
			defer unsubStates()
			events, unsubEvents := app.UIEvents(watchSubscribeBuf)
			defer unsubEvents()

			model := newWatchModel(ctx, app, names, focus, states, events)
			p := tea.NewProgram(model,
				tea.WithContext(ctx),
				tea.WithInput(cmd.InOrStdin()),
				tea.WithOutput(cmd.OutOrStdout()),
			)

			runErr := make(chan error, 1)
			go func() {
				err := app.Run(ctx)
				if err != nil && !errors.Is(err, context.Canceled) {
					p.Send(runErrMsg{err: err})
				}
				runErr <- err
			}()

			final, err := p.Run()
			cancel()
			if bgErr := <-runErr; bgErr != nil && !errors.Is(bgErr, context.Canceled) {
				return fmt.Errorf("timer loop: %w", bgErr)
			}
			if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return err
			}
			if m, ok := final.(watchModel); ok && m.err != nil {
				return m.err
			}
			return nil
		},
	}
}

func habitNames(ctx context.Context, app *App) (map[string]string, error) {
	habits, err := app.Habits.List(ctx, true)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(habits))
	for _, h := range habits {
		names[h.ID] = h.Name
	}
	return names, nil
}
