package ui

import tea "github.com/charmbracelet/bubbletea"

// Layout contains the computed dimensions for both panes.
type Layout struct {
	Width  int
	Height int

	SidebarWidth  int
	DetailWidth   int
	ContentHeight int
}

// NewLayout calculates sizes for the panes based on the terminal window
// dimensions.
func NewLayout(msg tea.WindowSizeMsg) Layout {
	l := Layout{Width: msg.Width, Height: msg.Height}

	// Two bordered panes side by side cost four columns of frame.
	usableWidth := msg.Width - 4
	l.SidebarWidth = usableWidth / 3
	l.DetailWidth = usableWidth - l.SidebarWidth

	// One header line, one status line, two border rows.
	l.ContentHeight = msg.Height - 4
	if l.ContentHeight < 3 {
		l.ContentHeight = 3
	}

	return l
}
