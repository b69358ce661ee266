package command

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/malharro-cms/internal/inbox"
	"github.com/nhle/malharro-cms/internal/theme"
)

// CommandMsg is emitted when the user executes a command.
type CommandMsg string

// Kind is what a palette command does.
type Kind int

const (
	Unknown Kind = iota
	Refresh
	MarkAll
	Filter
	Logout
	Quit
)

// Command is a parsed palette entry.
type Command struct {
	Kind   Kind
	Filter inbox.Filter
}

var aliases = map[string]Kind{
	"actualizar":    Refresh,
	"refresh":       Refresh,
	"sync":          Refresh,
	"leer todas":    MarkAll,
	"marcar todas":  MarkAll,
	"mark all":      MarkAll,
	"cerrar sesión": Logout,
	"cerrar sesion": Logout,
	"logout":        Logout,
	"salir":         Quit,
	"quit":          Quit,
	"q":             Quit,
}

// Parse reads a palette command. "filtro <tipo>" and "filter <tipo>"
// select a type filter; unknown types select all.
func Parse(s string) Command {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	if k, ok := aliases[s]; ok {
		return Command{Kind: k}
	}
	for _, prefix := range []string{"filtro", "filter"} {
		if s == prefix {
			return Command{Kind: Filter, Filter: inbox.FilterAll}
		}
		if rest, ok := strings.CutPrefix(s, prefix+" "); ok {
			return Command{Kind: Filter, Filter: inbox.ParseFilter(rest)}
		}
	}
	return Command{Kind: Unknown}
}

// Model is the command palette view.
type Model struct {
	input  textinput.Model
	width  int
	height int
}

// New creates a new command palette model.
func New(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "escribí un comando..."
	ti.Prompt = ": "
	ti.Focus()
	ti.Width = width - 6

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "enter" {
		cmd := strings.TrimSpace(m.input.Value())
		m.input.Reset()
		if cmd == "" {
			return m, nil
		}
		return m, func() tea.Msg { return CommandMsg(cmd) }
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command palette.
func (m Model) View() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1).
		Render("Comandos")

	content := lipgloss.JoinVertical(lipgloss.Left, title, m.input.View())

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Render(content)
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}
