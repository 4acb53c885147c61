package ui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
)

// keymap defines the global key bindings used by the browser.
type keymap struct {
	nextType key.Binding
	prevType key.Binding
	enter    key.Binding
	back     key.Binding
	refresh  key.Binding
	quit     key.Binding
}

func newKeymap() keymap {
	return keymap{
		nextType: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next type")),
		prevType: key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "previous type")),
		enter:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "inspect")),
		back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		refresh:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		quit:     key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "quit")),
	}
}

// defaultKeymap provides a convenient globally accessible set of bindings.
var defaultKeymap = newKeymap()

// newDelegateKeyMap keeps navigation shortcuts for the list and disables
// everything the browser handles globally.
func newDelegateKeyMap() list.KeyMap {
	return list.KeyMap{
		CursorUp:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑", "up")),
		CursorDown:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓", "down")),
		PrevPage:      key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "prev page")),
		NextPage:      key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdown", "next page")),
		GoToStart:     key.NewBinding(key.WithKeys("home"), key.WithHelp("home", "start")),
		GoToEnd:       key.NewBinding(key.WithKeys("end"), key.WithHelp("end", "end")),
		Filter:        key.NewBinding(key.WithDisabled()),
		Quit:          key.NewBinding(key.WithDisabled()),
		ShowFullHelp:  key.NewBinding(key.WithDisabled()),
		CloseFullHelp: key.NewBinding(key.WithDisabled()),
	}
}
