package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/alexanderramin/streak/internal/cli/formatter"
	"github.com/alexanderramin/streak/internal/coordinator"
	"github.com/alexanderramin/streak/internal/decision"
	"github.com/alexanderramin/streak/internal/domain"
	"github.com/spf13/cobra"
)

const defaultExtendBy = 5 * time.Minute

// intentSpec describes one intent subcommand.
type intentSpec struct {
	use       string
	short     string
	intent    decision.Intent
	overrides bool
}

var (
	intentStart  = intentSpec{use: "start", short: "Start the habit's timer", intent: decision.IntentStart}
	intentPause  = intentSpec{use: "pause", short: "Pause the habit's timer", intent: decision.IntentPause}
	intentResume = intentSpec{use: "resume", short: "Resume the habit's paused timer", intent: decision.IntentResume}
	intentDone   = intentSpec{use: "done", short: "Mark the habit done for this period", intent: decision.IntentDone, overrides: true}
	intentQuick  = intentSpec{use: "quick", short: "Complete without a timer", intent: decision.IntentQuickComplete, overrides: true}
	intentStop   = intentSpec{use: "stop", short: "Stop the timer without completing", intent: decision.IntentStopWithoutComplete, overrides: true}
	intentExtend = intentSpec{use: "extend", short: "Add time to a countdown or pomodoro", intent: decision.IntentExtend}
)

func newIntentCmd(app *App, spec intentSpec) *cobra.Command {
	var (
		confirm      bool
		logPartial   bool
		dontAskAgain bool
		by           time.Duration
	)

	cmd := &cobra.Command{
		Use:   spec.use + " <habit>",
		Short: spec.short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, err := resolveHabit(ctx, app, args[0])
			if err != nil {
				return err
			}

			req := coordinator.Request{
				HabitID: h.ID,
				Intent:  spec.intent,
				Source:  domain.SourceManual,
			}
			switch {
			case confirm:
				req.Override = decision.OverrideConfirm
			case logPartial:
				req.Override = decision.OverrideLogPartial
			case dontAskAgain:
				req.Override = decision.OverrideDontAskAgain
			}
			if spec.intent == decision.IntentExtend {
				req.ExtendByMs = by.Milliseconds()
			}

			res, err := app.Intents.Submit(ctx, req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if res.Outcome.Kind == decision.KindConfirm {
				if !app.interactive() {
					fmt.Fprint(out, formatter.FormatResult(h.Name, res))
					printOverrideHint(out, res.Outcome.Confirm)
					return nil
				}
				choice, ok, err := app.choose(h.Name, res.Outcome.Confirm)
				if err != nil {
					return err
				}
				if !ok {
					app.Intents.Dismiss(h.ID)
					fmt.Fprintln(out, formatter.Dim("Cancelled."))
					return nil
				}
				req.Override = choice
				if res, err = app.Intents.Submit(ctx, req); err != nil {
					return err
				}
			}

			fmt.Fprint(out, formatter.FormatResult(h.Name, res))
			if res.Outcome.Kind == decision.KindDisallow {
				return errDisallowed
			}
			return nil
		},
	}

	if spec.overrides {
		cmd.Flags().BoolVar(&confirm, "confirm", false, "Accept the confirmation this action would ask for")
		cmd.Flags().BoolVar(&logPartial, "log-partial", false, "Log the time spent without completing")
		cmd.Flags().BoolVar(&dontAskAgain, "dont-ask-again", false, "Complete and stop asking about skipped timers")
		cmd.MarkFlagsMutuallyExclusive("confirm", "log-partial", "dont-ask-again")
	}
	if spec.intent == decision.IntentExtend {
		cmd.Flags().DurationVar(&by, "by", defaultExtendBy, "Time to add")
	}

	return cmd
}

// errDisallowed sets a non-zero exit status after the reason was printed.
var errDisallowed = errors.New("action not allowed")

func printOverrideHint(w io.Writer, confirm decision.ConfirmType) {
	for _, o := range confirm.Overrides() {
		fmt.Fprintf(w, "  %s  %s\n", formatter.Dim(overrideFlag(o)), formatter.OverrideLabel(confirm, o))
	}
}

func overrideFlag(o decision.Override) string {
	switch o {
	case decision.OverrideLogPartial:
		return "--log-partial"
	case decision.OverrideDontAskAgain:
		return "--dont-ask-again"
	}
	return "--confirm"
}

func newUndoCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "undo <habit>",
		Short: "Undo a completion made in the last few seconds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, err := resolveHabit(ctx, app, args[0])
			if err != nil {
				return err
			}
			if err := app.Intents.Undo(ctx, h.ID); err != nil {
				return fmt.Errorf("undo %s: %w", h.Name, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatter.StyleGreen.Render(h.Name+": ")+"completion undone")
			return nil
		},
	}
}
