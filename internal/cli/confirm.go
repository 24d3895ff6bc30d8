package cli

import (
	"errors"

	"github.com/alexanderramin/streak/internal/cli/formatter"
	"github.com/alexanderramin/streak/internal/decision"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// ChooseFunc asks the user to resolve a confirmation. ok is false when the
// user backs out.
type ChooseFunc func(habit string, confirm decision.ConfirmType) (choice decision.Override, ok bool, err error)

// choiceCancel is the select value for backing out of a confirmation.
const choiceCancel decision.Override = "cancel"

// streakHuhTheme returns a huh theme matching the Gruvbox palette.
func streakHuhTheme() *huh.Theme {
	t := huh.ThemeBase()

	t.Focused.Title = lipgloss.NewStyle().Foreground(formatter.ColorHeader).Bold(true)
	t.Focused.Description = lipgloss.NewStyle().Foreground(formatter.ColorDim)
	t.Focused.SelectSelector = lipgloss.NewStyle().Foreground(formatter.ColorHeader)
	t.Focused.SelectedOption = lipgloss.NewStyle().Foreground(formatter.ColorGreen)
	t.Focused.UnselectedOption = lipgloss.NewStyle().Foreground(formatter.ColorFg)
	t.Focused.FocusedButton = lipgloss.NewStyle().Foreground(formatter.ColorFg).Background(formatter.ColorHeader).Padding(0, 1)
	t.Focused.BlurredButton = lipgloss.NewStyle().Foreground(formatter.ColorDim).Padding(0, 1)

	t.Blurred.Title = lipgloss.NewStyle().Foreground(formatter.ColorDim)
	t.Blurred.SelectSelector = lipgloss.NewStyle().Foreground(formatter.ColorDim)
	t.Blurred.SelectedOption = lipgloss.NewStyle().Foreground(formatter.ColorDim)
	t.Blurred.UnselectedOption = lipgloss.NewStyle().Foreground(formatter.ColorDim)

	return t
}

// huhChoose shows the confirmation's overrides as a select list.
func huhChoose(habit string, confirm decision.ConfirmType) (decision.Override, bool, error) {
	title, desc := formatter.ConfirmText(confirm)

	options := make([]huh.Option[decision.Override], 0, len(confirm.Overrides())+1)
	for _, o := range confirm.Overrides() {
		options = append(options, huh.NewOption(formatter.OverrideLabel(confirm, o), o))
	}
	options = append(options, huh.NewOption("Cancel", choiceCancel))

	var choice decision.Override
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[decision.Override]().
				Title(habit + ": " + title).
				Description(desc).
				Options(options...).
				Value(&choice),
		),
	).WithTheme(streakHuhTheme())

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", false, nil
		}
		return "", false, err
	}
	if choice == choiceCancel {
		return "", false, nil
	}
	return choice, true, nil
}

func (a *App) choose(habit string, confirm decision.ConfirmType) (decision.Override, bool, error) {
	if a.Choose != nil {
		return a.Choose(habit, confirm)
	}
	return huhChoose(habit, confirm)
}
