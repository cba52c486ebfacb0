package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the dashboard keybindings.
type KeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Cancel key.Binding
	Quit   key.Binding
	Help   key.Binding

	New       key.Binding
	Shell     key.Binding
	Close     key.Binding
	Merge     key.Binding
	Rename    key.Binding
	Autopilot key.Binding
	Actions   key.Binding
	Answer    key.Binding

	Yes key.Binding
	No  key.Binding
}

var defaultKeys = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Select: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "view pane"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "cancel"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	New: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "new agent pane"),
	),
	Shell: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "new shell pane"),
	),
	Close: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "close pane"),
	),
	Merge: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "merge branch"),
	),
	Rename: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "rename"),
	),
	Autopilot: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "toggle autopilot"),
	),
	Actions: key.NewBinding(
		key.WithKeys("o", "tab"),
		key.WithHelp("o", "actions"),
	),
	Answer: key.NewBinding(
		key.WithKeys("y"),
		key.WithHelp("y", "answer agent"),
	),
	Yes: key.NewBinding(key.WithKeys("y", "Y")),
	No:  key.NewBinding(key.WithKeys("n", "N")),
}
