// Package help renders the key binding overlay.
package help

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/malharro-cms/internal/keys"
	"github.com/nhle/malharro-cms/internal/theme"
)

// sections titles the groups returned by KeyMap.FullHelp, in order.
var sections = []string{"Navegación", "General", "Filtros", "Acciones"}

var (
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(theme.ColorBlue)
	keyStyle     = lipgloss.NewStyle().Foreground(theme.ColorWhite).Width(8)
	descStyle    = lipgloss.NewStyle().Foreground(theme.ColorGray)
)

// Model is the help overlay view.
type Model struct {
	keys   *keys.KeyMap
	who    string
	width  int
	height int
}

// New creates a new help view model.
func New(keys *keys.KeyMap, width, height int) Model {
	return Model{
		keys:   keys,
		width:  width,
		height: height,
	}
}

// SetSession shows who is signed in. An empty username clears it.
func (m *Model) SetSession(username, role string) {
	if username == "" {
		m.who = ""
		return
	}
	m.who = fmt.Sprintf("Sesión: %s (%s)", username, role)
}

// Update handles messages for the help view. The overlay is static.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// View renders the help overlay.
func (m Model) View() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1).
		Render("Atajos de teclado")

	groups := m.keys.FullHelp()
	cols := make([]string, 0, len(groups))
	for i, g := range groups {
		name := ""
		if i < len(sections) {
			name = sections[i]
		}
		cols = append(cols, lipgloss.NewStyle().MarginRight(4).MarginBottom(1).Render(column(name, g)))
	}

	parts := []string{title, lipgloss.JoinHorizontal(lipgloss.Top, cols...)}
	parts = append(parts, theme.HelpStyle.Render(
		"Comandos (:)  actualizar · leer todas · filtro <todas|usina|agenda|sistema> · cerrar sesión · salir"))
	if m.who != "" {
		parts = append(parts, "", theme.DimmedStyle.Render(m.who))
	}

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Height(m.height - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func column(name string, bindings []key.Binding) string {
	lines := []string{sectionStyle.Render(name)}
	for _, b := range bindings {
		if !b.Enabled() {
			continue
		}
		h := b.Help()
		lines = append(lines, keyStyle.Render(h.Key)+descStyle.Render(h.Desc))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}
