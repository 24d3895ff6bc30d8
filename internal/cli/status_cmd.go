package cli

import (
	"fmt"

	"github.com/alexanderramin/streak/internal/app"
	"github.com/alexanderramin/streak/internal/cli/formatter"
	"github.com/spf13/cobra"
)

func newStatusCmd(a *App) *cobra.Command {
	var habits []string
	var all bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show this period's habits and timers",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := app.NewStatusRequest()
			req.HabitScope = habits
			req.IncludeArchived = all

			resp, err := a.Status.GetStatus(cmd.Context(), req)
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), formatter.FormatStatus(resp))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&habits, "habit", nil, "Limit to these habits (ID or name)")
	cmd.Flags().BoolVar(&all, "all", false, "Include archived habits")

	return cmd
}
