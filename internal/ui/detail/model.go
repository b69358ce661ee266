// Package detail shows one notification in full.
package detail

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	inboxsvc "github.com/nhle/malharro-cms/internal/inbox"
	"github.com/nhle/malharro-cms/internal/keys"
	"github.com/nhle/malharro-cms/internal/model"
	"github.com/nhle/malharro-cms/internal/normalize"
	"github.com/nhle/malharro-cms/internal/theme"
)

// BackMsg signals the parent to navigate back to the list view.
type BackMsg struct{}

// ActionMsg asks the parent to run an action on the shown notification.
type ActionMsg struct {
	Action       string
	Notification model.Notification
}

const (
	ActionMarkRead = "mark-read"
	ActionDelete   = "delete"
)

// Model is the notification detail view.
type Model struct {
	n        *model.Notification
	viewport viewport.Model
	keys     *keys.KeyMap
	now      func() time.Time
	width    int
	height   int
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		now:      time.Now,
		width:    width,
		height:   height,
	}
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg { return BackMsg{} }

		case key.Matches(msg, m.keys.MarkRead):
			if m.n != nil && !m.n.IsRead() {
				n := *m.n
				return m, func() tea.Msg { return ActionMsg{Action: ActionMarkRead, Notification: n} }
			}
			return m, nil

		case key.Matches(msg, m.keys.Delete):
			if m.n != nil {
				n := *m.n
				return m, func() tea.Msg { return ActionMsg{Action: ActionDelete, Notification: n} }
			}
			return m, nil
		}
	}

	// Scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	if m.n == nil {
		return theme.EmptyStyle(m.width, m.height).Render("Ninguna notificación seleccionada")
	}
	return m.viewport.View()
}

// renderContent builds the full detail content string for the viewport.
func (m Model) renderContent() string {
	if m.n == nil {
		return ""
	}
	n := m.n

	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, titleStyle.Render(n.Title))

	state := theme.UnreadMarkStyle.Render("no leída")
	if n.IsRead() {
		state = theme.DimmedStyle.Render("leída")
	}
	badge := theme.TypeLabelStyle(n.Type).Render(theme.TypeLabel(n.Type))
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, badge, "  ", state), "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	row := func(label, value string) {
		if value != "" {
			sections = append(sections, fmt.Sprintf("%-10s %s", metaStyle.Render(label), value))
		}
	}

	if n.Sender != nil {
		row("De:", senderName(n.Sender))
	}
	row("Recibida:", inboxsvc.Age(*n, m.now()))
	if n.EmittedAt != nil {
		row("Emitida:", n.EmittedAt.Local().Format("02/01/2006 15:04"))
	}
	if n.WorkItem != nil {
		row("Usina:", strings.TrimSpace(n.WorkItem.Title+" "+statusLabel(n.WorkItem.Status)))
	}
	if n.Agenda != nil {
		row("Evento:", strings.TrimSpace(n.Agenda.Title+" "+n.Agenda.Date))
	}

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 0)))
	sections = append(sections, "", separator, "")

	body := normalize.PlainText(n.Message)
	if body == "" {
		body = lipgloss.NewStyle().Foreground(theme.ColorGray).Italic(true).Render("Sin mensaje")
	}
	sections = append(sections, lipgloss.NewStyle().Width(max(m.width-4, 20)).Render(body))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetNotification updates the notification shown and re-renders.
func (m *Model) SetNotification(n model.Notification) {
	m.n = &n
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// Current returns the shown notification.
func (m Model) Current() (model.Notification, bool) {
	if m.n == nil {
		return model.Notification{}, false
	}
	return *m.n, true
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	m.viewport.SetContent(m.renderContent())
}

func senderName(u *model.UserRef) string {
	full := strings.TrimSpace(u.Name + " " + u.Surname)
	switch {
	case full != "" && u.Username != "":
		return full + " (" + u.Username + ")"
	case full != "":
		return full
	}
	return u.Username
}

func statusLabel(s model.ApprovalStatus) string {
	if s == "" {
		return ""
	}
	return "(" + string(s) + ")"
}
