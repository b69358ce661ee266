package inbox

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	inboxsvc "github.com/nhle/malharro-cms/internal/inbox"
	"github.com/nhle/malharro-cms/internal/model"
	"github.com/nhle/malharro-cms/internal/theme"
)

// Item wraps a notification so it can be used in a bubbles/list.
type Item struct {
	Notification model.Notification
}

// FilterValue returns the string used for fuzzy filtering.
func (i Item) FilterValue() string { return i.Notification.Title }

// ItemDelegate renders one notification per line.
type ItemDelegate struct {
	now func() time.Time
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single list item line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}
	fmt.Fprint(w, d.line(it.Notification, index == m.Index()))
}

func (d ItemDelegate) line(n model.Notification, selected bool) string {
	mark := " "
	if !n.IsRead() {
		mark = theme.UnreadMarkStyle.Render("●")
	}

	badge := theme.TypeLabelStyle(n.Type).Render(theme.TypeLabel(n.Type))

	from := ""
	if n.Sender != nil && n.Sender.Username != "" {
		from = lipgloss.NewStyle().Foreground(theme.ColorGray).Render(" · " + n.Sender.Username)
	}

	age := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(inboxsvc.Age(n, d.now()))

	title := n.Title
	if n.IsRead() {
		title = theme.DimmedStyle.Render(title)
	} else {
		title = lipgloss.NewStyle().Bold(true).Render(title)
	}

	line := fmt.Sprintf("%s %s %s%s  %s", mark, badge, title, from, age)

	if selected {
		return theme.SelectedItemStyle.Render(line)
	}
	return theme.ListItemStyle.Render(line)
}
