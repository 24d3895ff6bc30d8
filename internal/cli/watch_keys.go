package cli

import "github.com/charmbracelet/bubbles/key"

type watchKeyMap struct {
	Toggle       key.Binding
	Start        key.Binding
	Done         key.Binding
	Stop         key.Binding
	Extend       key.Binding
	Undo         key.Binding
	Confirm      key.Binding
	LogPartial   key.Binding
	DontAskAgain key.Binding
	Dismiss      key.Binding
	Help         key.Binding
	Quit         key.Binding
}

var watchKeys = watchKeyMap{
	Toggle: key.NewBinding(
		key.WithKeys(" "),
		key.WithHelp("space", "pause/resume"),
	),
	Start: key.NewBinding(
		key.WithKeys("t"),
		key.WithHelp("t", "start"),
	),
	Done: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "done"),
	),
	Stop: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "stop"),
	),
	Extend: key.NewBinding(
		key.WithKeys("+"),
		key.WithHelp("+", "extend 5m"),
	),
	Undo: key.NewBinding(
		key.WithKeys("u"),
		key.WithHelp("u", "undo"),
	),
	Confirm: key.NewBinding(
		key.WithKeys("y"),
		key.WithHelp("y", "confirm"),
	),
	LogPartial: key.NewBinding(
		key.WithKeys("l"),
		key.WithHelp("l", "log time only"),
	),
	DontAskAgain: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "don't ask again"),
	),
	Dismiss: key.NewBinding(
		key.WithKeys("n", "esc"),
		key.WithHelp("n", "cancel"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Done, k.Stop, k.Help, k.Quit}
}

func (k watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.Start, k.Done, k.Stop, k.Extend, k.Undo},
		{k.Confirm, k.LogPartial, k.DontAskAgain, k.Dismiss},
		{k.Help, k.Quit},
	}
}
