package ui

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/theapemachine/engram/pkg/entity"
)

// DetailView shows the full selected record, payload included.
type DetailView struct {
	viewport viewport.Model
	content  string
}

func NewDetailView() DetailView {
	vp := viewport.New(0, 0)
	vp.Style = noborderStyle
	return DetailView{
		viewport: vp,
		content:  "Select an entity to inspect it.",
	}
}

func (dv DetailView) Init() tea.Cmd { return nil }

func (dv DetailView) Update(msg tea.Msg) (DetailView, tea.Cmd) {
	var cmd tea.Cmd
	dv.viewport, cmd = dv.viewport.Update(msg)
	return dv, cmd
}

func (dv DetailView) View() string { return dv.viewport.View() }

func (dv *DetailView) SetSize(w, h int) {
	dv.viewport.Width = w
	dv.viewport.Height = h
	dv.viewport.SetContent(dv.content)
}

// SetEntity renders the record into the pane and scrolls back to the top.
func (dv *DetailView) SetEntity(record *entity.GenericEntity) {
	payload := strings.TrimSpace(string(record.Data))
	if pretty, err := json.MarshalIndent(json.RawMessage(record.Data), "", "  "); err == nil {
		payload = string(pretty)
	}

	row := func(label, value string) string {
		return labelStyle.Render(fmt.Sprintf("%-7s", label)) + " " + value
	}

	dv.content = strings.Join([]string{
		titleStyle.Render(record.ID),
		"",
		row("type", record.EntityType),
		row("agent", record.Agent),
		row("stored", record.Timestamp.Format(time.RFC3339)),
		"",
		labelStyle.Render("payload"),
		payload,
	}, "\n")

	dv.viewport.SetContent(dv.content)
	dv.viewport.GotoTop()
}
