package cli

import (
	"fmt"

	"github.com/alexanderramin/streak/internal/app"
	"github.com/alexanderramin/streak/internal/cli/formatter"
	"github.com/alexanderramin/streak/internal/decision"
	"github.com/alexanderramin/streak/internal/relay"
	"github.com/spf13/cobra"
)

// newRelayCmd exposes an action relay to scripts that back a home-screen
// widget or a desktop notification.
func newRelayCmd(a *App, name string, r app.ActionRelay) *cobra.Command {
	return &cobra.Command{
		Use:     name + " <action>",
		Short:   fmt.Sprintf("Handle a %s button action such as habit:<id>:done", name),
		Args:    cobra.ExactArgs(1),
		Example: fmt.Sprintf("  streak %s habit:3f2a...:pause\n  streak %s habit:3f2a...:done:confirm", name, name),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			res, err := r.Handle(ctx, args[0])
			if err != nil {
				return err
			}
			action, _ := relay.ParseAction(args[0])
			fmt.Fprint(cmd.OutOrStdout(), formatter.FormatResult(habitName(ctx, a, action.HabitID), res))
			if res.Outcome.Kind == decision.KindDisallow {
				return errDisallowed
			}
			return nil
		},
	}
}

func newButtonsCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "buttons <habit>",
		Short: "Print the actions a widget should offer for a habit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := resolveHabit(cmd.Context(), a, args[0])
			if err != nil {
				return err
			}
			for _, action := range relay.Buttons(a.Intents.State(), h.ID) {
				fmt.Fprintln(cmd.OutOrStdout(), action.String())
			}
			return nil
		},
	}
}
