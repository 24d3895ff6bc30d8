package cli

import (
	"fmt"
	"time"

	"github.com/alexanderramin/streak/internal/cli/formatter"
	"github.com/alexanderramin/streak/internal/domain"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newHabitCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "habit",
		Short: "Manage habits",
	}

	cmd.AddCommand(
		newHabitAddCmd(app),
		newHabitListCmd(app),
		newHabitEditCmd(app),
		newHabitArchiveCmd(app),
		newHabitDeleteCmd(app),
	)

	return cmd
}

// policyFlags are the timing policy flags shared by add and edit.
type policyFlags struct {
	frequency    string
	timer        string
	target       time.Duration
	min          time.Duration
	autoComplete bool
	requireTimer bool
}

func (f *policyFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.frequency, "frequency", string(domain.FrequencyDaily), "Period: daily, weekly or monthly")
	fs.StringVar(&f.timer, "timer", string(domain.TimerOff), "Timer mode: off, countdown, stopwatch or pomodoro")
	fs.DurationVar(&f.target, "target", 0, "Target session length, e.g. 25m")
	fs.DurationVar(&f.min, "min", 0, "Minimum session length before completing without asking")
	fs.BoolVar(&f.autoComplete, "auto-complete", false, "Complete automatically when the target is reached")
	fs.BoolVar(&f.requireTimer, "require-timer", false, "Only allow completing after a timed session")
}

// apply copies the flags the user set onto h.
func (f *policyFlags) apply(fs *pflag.FlagSet, h *domain.Habit) error {
	changed := fs.Changed
	if changed("frequency") || h.Frequency == "" {
		freq, err := domain.ParseFrequency(f.frequency)
		if err != nil {
			return err
		}
		h.Frequency = freq
	}
	if changed("timer") || h.Policy.Mode == "" {
		mode, err := domain.ParseTimerMode(f.timer)
		if err != nil {
			return err
		}
		h.Policy.Mode = mode
	}
	if changed("target") {
		h.Policy.TargetDurationSeconds = durationSeconds(f.target)
	}
	if changed("min") {
		h.Policy.MinDurationSeconds = durationSeconds(f.min)
	}
	if changed("auto-complete") {
		h.Policy.AutoCompleteOnTarget = f.autoComplete
	}
	if changed("require-timer") {
		h.Policy.RequireTimerToComplete = f.requireTimer
	}
	return nil
}

// durationSeconds maps a zero duration to "unset".
func durationSeconds(d time.Duration) *int {
	if d == 0 {
		return nil
	}
	secs := int(d / time.Second)
	return &secs
}

func newHabitAddCmd(app *App) *cobra.Command {
	var flags policyFlags

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a habit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h := &domain.Habit{Name: args[0]}
			if err := flags.apply(cmd.Flags(), h); err != nil {
				return err
			}
			if err := app.Habits.Create(cmd.Context(), h); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created habit %s %s\n", formatter.Bold(h.Name), formatter.Dim("("+formatter.TruncID(h.ID)+")"))
			return nil
		},
	}
	flags.register(cmd.Flags())

	return cmd
}

func newHabitListCmd(app *App) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List habits",
		RunE: func(cmd *cobra.Command, args []string) error {
			habits, err := app.Habits.List(cmd.Context(), all)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatter.FormatHabitList(habits))
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Include archived habits")

	return cmd
}

func newHabitEditCmd(app *App) *cobra.Command {
	var flags policyFlags
	var name string

	cmd := &cobra.Command{
		Use:   "edit <habit>",
		Short: "Change a habit's name, period or timing policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, err := resolveHabit(ctx, app, args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("name") {
				h.Name = name
			}
			if err := flags.apply(cmd.Flags(), h); err != nil {
				return err
			}
			if err := app.Habits.Update(ctx, h); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated habit %s\n", formatter.Bold(h.Name))
			return nil
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().StringVar(&name, "name", "", "New name")

	return cmd
}

func newHabitArchiveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <habit>",
		Short: "Archive a habit, keeping its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, err := resolveHabit(ctx, app, args[0])
			if err != nil {
				return err
			}
			if err := app.Habits.Archive(ctx, h.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archived habit %s\n", formatter.Bold(h.Name))
			return nil
		},
	}
}

func newHabitDeleteCmd(app *App) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <habit>",
		Short: "Delete a habit and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, err := resolveHabit(ctx, app, args[0])
			if err != nil {
				return err
			}
			if !force {
				return fmt.Errorf("deleting %s removes its completions and sessions; rerun with --force", h.Name)
			}
			if err := app.Habits.Delete(ctx, h.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted habit %s\n", formatter.Bold(h.Name))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Confirm deletion")

	return cmd
}
