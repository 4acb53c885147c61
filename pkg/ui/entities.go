package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/theapemachine/engram/pkg/entity"
)

// EntityList is a bubbletea component displaying the stored entities of the
// active type.
type EntityList struct {
	list list.Model
}

func NewEntityList() EntityList {
	delegate := list.NewDefaultDelegate()
	delegate.SetHeight(3)
	delegate.SetSpacing(1)
	delegate.ShortHelpFunc = func() []key.Binding { return []key.Binding{} }
	delegate.FullHelpFunc = func() [][]key.Binding { return [][]key.Binding{} }

	l := list.New(nil, delegate, 0, 0)
	l.Title = "Entities"
	l.Styles.Title = titleStyle
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()
	l.KeyMap = newDelegateKeyMap()

	return EntityList{list: l}
}

func (el EntityList) Init() tea.Cmd { return nil }

func (el EntityList) Update(msg tea.Msg) (EntityList, tea.Cmd) {
	switch m := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(m, defaultKeymap.enter) {
			if el.list.SelectedItem() == nil {
				return el, nil
			}
			if it, ok := el.list.SelectedItem().(entityItem); ok {
				return el, func() tea.Msg { return EntitySelectedMsg{Entity: it.record} }
			}
			return el, nil
		}
	}
	var cmd tea.Cmd
	el.list, cmd = el.list.Update(msg)
	return el, cmd
}

func (el EntityList) View() string { return el.list.View() }

func (el *EntityList) SetSize(w, h int) { el.list.SetSize(w, h) }

func (el *EntityList) SetTitle(entityType string, count int) {
	el.list.Title = fmt.Sprintf("%s (%d)", entityType, count)
}

func (el *EntityList) SetItems(entities []*entity.GenericEntity) {
	items := make([]list.Item, len(entities))
	for i := 0; i < len(entities); i++ {
		items[i] = entityItem{record: entities[i]}
	}
	el.list.SetItems(items)
}
