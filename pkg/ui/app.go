package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/theapemachine/engram/pkg/config"
	"github.com/theapemachine/engram/pkg/entity"
	"github.com/theapemachine/engram/pkg/query"
	"github.com/theapemachine/engram/pkg/stores"
)

const (
	focusList = iota
	focusDetail
)

/*
Browser is a read-only terminal view over the entity store. The left pane
lists the entities of one type at a time, the right pane shows the selected
record in full. Tab cycles through the known entity types.
*/
type Browser struct {
	storage   stores.Storage
	agent     string
	workspace string

	types     []string
	typeIndex int

	list   EntityList
	detail DetailView
	layout Layout
	focus  int
	err    error
}

func New(storage stores.Storage, cfg *config.Config) tea.Model {
	return Browser{
		storage:   storage,
		agent:     storage.Agent(),
		workspace: cfg.Workspace.Name,
		types:     entity.KnownTypes(),
		list:      NewEntityList(),
		detail:    NewDetailView(),
	}
}

func (browser Browser) Init() tea.Cmd {
	return browser.loadEntities()
}

// loadEntities fetches every record of the active type, newest first.
func (browser Browser) loadEntities() tea.Cmd {
	entityType := browser.types[browser.typeIndex]
	storage := browser.storage

	return func() tea.Msg {
		result, err := storage.Query(context.Background(), &query.Filter{
			EntityTypes: []string{entityType},
			SortOrder:   query.OrderDesc,
			Limit:       -1,
		})
		if err != nil {
			return errorMsg{err: err}
		}

		return entitiesLoadedMsg{entityType: entityType, entities: result.Entities}
	}
}

func (browser Browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		browser.layout = NewLayout(msg)
		browser.list.SetSize(browser.layout.SidebarWidth, browser.layout.ContentHeight)
		browser.detail.SetSize(browser.layout.DetailWidth, browser.layout.ContentHeight)
		return browser, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, defaultKeymap.quit):
			return browser, tea.Quit

		case key.Matches(msg, defaultKeymap.back):
			if browser.focus == focusDetail {
				browser.focus = focusList
				return browser, nil
			}
			return browser, tea.Quit

		case key.Matches(msg, defaultKeymap.nextType):
			browser.typeIndex = (browser.typeIndex + 1) % len(browser.types)
			browser.focus = focusList
			return browser, browser.loadEntities()

		case key.Matches(msg, defaultKeymap.prevType):
			browser.typeIndex = (browser.typeIndex + len(browser.types) - 1) % len(browser.types)
			browser.focus = focusList
			return browser, browser.loadEntities()

		case key.Matches(msg, defaultKeymap.refresh):
			return browser, browser.loadEntities()
		}

	case entitiesLoadedMsg:
		browser.err = nil
		browser.list.SetTitle(msg.entityType, len(msg.entities))
		browser.list.SetItems(msg.entities)
		return browser, nil

	case EntitySelectedMsg:
		browser.focus = focusDetail
		browser.detail.SetEntity(msg.Entity)
		return browser, nil

	case errorMsg:
		browser.err = msg.err
		return browser, nil
	}

	// Everything else goes to the focused pane.
	var cmd tea.Cmd
	if browser.focus == focusDetail {
		browser.detail, cmd = browser.detail.Update(msg)
	} else {
		browser.list, cmd = browser.list.Update(msg)
	}

	return browser, cmd
}

func (browser Browser) View() string {
	if browser.layout.Width == 0 {
		return ""
	}

	listStyle, detailStyle := activeStyle, inactiveStyle
	if browser.focus == focusDetail {
		listStyle, detailStyle = inactiveStyle, activeStyle
	}

	header := headerStyle.Width(browser.layout.Width).Render(fmt.Sprintf(
		"engram · workspace %s · agent %s", browser.workspace, browser.agent,
	))

	body := lipgloss.JoinHorizontal(
		lipgloss.Top,
		listStyle.Width(browser.layout.SidebarWidth).Height(browser.layout.ContentHeight).Render(browser.list.View()),
		detailStyle.Width(browser.layout.DetailWidth).Height(browser.layout.ContentHeight).Render(browser.detail.View()),
	)

	status := statusBarStyle.Render("tab: next type · enter: inspect · esc: back · r: refresh · q: quit")
	if browser.err != nil {
		status = errorStyle.Render("error: " + browser.err.Error())
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, status)
}
