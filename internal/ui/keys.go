package ui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keybindings of the triage screen.
type KeyMap struct {
	Run    key.Binding
	Clear  key.Binding
	Up     key.Binding
	Down   key.Binding
	Quit   key.Binding
}

// DefaultKeyMap returns the default set of keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Run: key.NewBinding(
			key.WithKeys("enter", "r"),
			key.WithHelp("enter/r", "process emails"),
		),
		Clear: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "clear log"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "scroll down"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp lists the bindings shown in the footer.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Run, k.Clear, k.Quit}
}
