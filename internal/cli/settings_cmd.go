package cli

import (
	"fmt"
	"strconv"

	"github.com/alexanderramin/streak/internal/cli/formatter"
	"github.com/spf13/cobra"
)

const (
	settingSingleActive = "single-active-timer"
	settingAskSkipping  = "ask-before-skipping"
)

func newSettingsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show global timer settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags, err := app.Settings.Flags(cmd.Context())
			if err != nil {
				return err
			}
			rows := [][]string{
				{settingSingleActive, onOff(flags.SingleActiveTimer), formatter.Dim("one running timer at a time")},
				{settingAskSkipping, onOff(flags.AskBeforeSkippingTimer), formatter.Dim("confirm completing a timed habit without its timer")},
			}
			fmt.Fprint(cmd.OutOrStdout(), formatter.RenderTable([]string{"SETTING", "VALUE", ""}, rows))
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:       "set <setting> <on|off>",
		Short:     "Change a global timer setting",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{settingSingleActive, settingAskSkipping},
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := parseOnOff(args[1])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			switch args[0] {
			case settingSingleActive:
				err = app.Settings.SetSingleActiveTimer(ctx, on)
			case settingAskSkipping:
				err = app.Settings.SetAskBeforeSkipping(ctx, on)
			default:
				return fmt.Errorf("unknown setting %q (want %s or %s)", args[0], settingSingleActive, settingAskSkipping)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], onOff(on))
			return nil
		},
	})

	return cmd
}

func onOff(on bool) string {
	if on {
		return formatter.StyleGreen.Render("on")
	}
	return formatter.StyleDim.Render("off")
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	on, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid value %q (want on or off)", s)
	}
	return on, nil
}
