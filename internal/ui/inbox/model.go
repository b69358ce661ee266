// Package inbox is the terminal view of the notification inbox. It reads
// from the local cache and asks the parent to run CMS operations.
package inbox

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	inboxsvc "github.com/nhle/malharro-cms/internal/inbox"
	"github.com/nhle/malharro-cms/internal/keys"
	"github.com/nhle/malharro-cms/internal/model"
	"github.com/nhle/malharro-cms/internal/store"
	"github.com/nhle/malharro-cms/internal/theme"
)

// ItemsLoadedMsg is sent when notifications have been read from the cache.
type ItemsLoadedMsg struct {
	Items  []model.Notification
	Unread int
	Err    error
}

// SelectedMsg asks the parent to open a notification.
type SelectedMsg struct {
	Notification model.Notification
}

// MarkReadMsg asks the parent to mark a notification read.
type MarkReadMsg struct {
	Notification model.Notification
}

// MarkAllMsg asks the parent to mark every listed notification read.
type MarkAllMsg struct {
	Items []model.Notification
}

// DeleteMsg asks the parent to delete a notification.
type DeleteMsg struct {
	Notification model.Notification
}

// filterCycle is the order tab walks through.
var filterCycle = []inboxsvc.Filter{
	inboxsvc.FilterAll,
	inboxsvc.FilterWorkItem,
	inboxsvc.FilterAgenda,
	inboxsvc.FilterSystem,
}

// Model is the notification list view.
type Model struct {
	list      list.Model
	store     store.Store
	keys      *keys.KeyMap
	recipient int64
	pageSize  int
	filter    inboxsvc.Filter
	unread    int
	width     int
	height    int
}

// New creates the list for recipient's cached notifications.
func New(s store.Store, k *keys.KeyMap, recipient int64, pageSize, width, height int) Model {
	delegate := ItemDelegate{now: time.Now}
	l := list.New([]list.Item{}, delegate, width, height-2)
	l.Title = "Notificaciones"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle
	l.SetStatusBarItemName("notificación", "notificaciones")

	return Model{
		list:      l,
		store:     s,
		keys:      k,
		recipient: recipient,
		pageSize:  pageSize,
		filter:    inboxsvc.FilterAll,
		width:     width,
		height:    height,
	}
}

// Init loads the cached notifications.
func (m Model) Init() tea.Cmd {
	return m.Load()
}

// Update handles messages for the list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ItemsLoadedMsg:
		if msg.Err != nil {
			return m, nil
		}
		m.unread = msg.Unread
		items := make([]list.Item, len(msg.Items))
		for i, n := range msg.Items {
			items[i] = Item{Notification: n}
		}
		return m, m.list.SetItems(items)

	case tea.KeyMsg:
		return m.handleKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Select):
		if n, ok := m.Selected(); ok {
			return m, func() tea.Msg { return SelectedMsg{Notification: n} }
		}
		return m, nil

	case key.Matches(msg, m.keys.MarkRead):
		if n, ok := m.Selected(); ok && !n.IsRead() {
			return m, func() tea.Msg { return MarkReadMsg{Notification: n} }
		}
		return m, nil

	case key.Matches(msg, m.keys.MarkAllRead):
		items := m.Items()
		if inboxsvc.UnreadCount(items) == 0 {
			return m, nil
		}
		return m, func() tea.Msg { return MarkAllMsg{Items: items} }

	case key.Matches(msg, m.keys.Delete):
		if n, ok := m.Selected(); ok {
			return m, func() tea.Msg { return DeleteMsg{Notification: n} }
		}
		return m, nil

	case key.Matches(msg, m.keys.FilterAll):
		return m, m.SetFilter(inboxsvc.FilterAll)
	case key.Matches(msg, m.keys.FilterWorkItem):
		return m, m.SetFilter(inboxsvc.FilterWorkItem)
	case key.Matches(msg, m.keys.FilterAgenda):
		return m, m.SetFilter(inboxsvc.FilterAgenda)
	case key.Matches(msg, m.keys.FilterSystem):
		return m, m.SetFilter(inboxsvc.FilterSystem)

	case key.Matches(msg, m.keys.CycleFilter):
		next := inboxsvc.FilterAll
		for i, f := range filterCycle {
			if f == m.filter {
				next = filterCycle[(i+1)%len(filterCycle)]
			}
		}
		return m, m.SetFilter(next)
	}

	// Navigation keys go to the list.
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// SetFilter selects a type filter and reloads.
func (m *Model) SetFilter(f inboxsvc.Filter) tea.Cmd {
	m.filter = f
	m.list.Title = "Notificaciones"
	if f != inboxsvc.FilterAll {
		m.list.Title = fmt.Sprintf("Notificaciones · %s", f)
	}
	return m.Load()
}

// Filter returns the active type filter.
func (m Model) Filter() inboxsvc.Filter { return m.filter }

// Unread returns the recipient's unread count across all types.
func (m Model) Unread() int { return m.unread }

// Selected returns the focused notification.
func (m Model) Selected() (model.Notification, bool) {
	it, ok := m.list.SelectedItem().(Item)
	if !ok {
		return model.Notification{}, false
	}
	return it.Notification, true
}

// Items returns the listed notifications.
func (m Model) Items() []model.Notification {
	items := m.list.Items()
	out := make([]model.Notification, 0, len(items))
	for _, it := range items {
		if n, ok := it.(Item); ok {
			out = append(out, n.Notification)
		}
	}
	return out
}

// View renders the list view.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		if m.filter != inboxsvc.FilterAll {
			return theme.EmptyStyle(m.width, m.height).Render(
				"No hay notificaciones de este tipo.\nPresioná 0 para ver todas.")
		}
		return theme.EmptyStyle(m.width, m.height).Render("No tenés notificaciones.")
	}
	return m.list.View()
}

// Load returns a tea.Cmd that reads the cache with the current filter.
func (m Model) Load() tea.Cmd {
	s := m.store
	filter := store.NotificationFilter{Limit: m.pageSize}
	recipient := m.recipient
	filter.RecipientID = &recipient
	if m.filter != inboxsvc.FilterAll {
		t := model.NotificationType(m.filter)
		filter.Type = &t
	}
	return func() tea.Msg {
		ctx := context.Background()
		items, err := s.ListNotifications(ctx, filter)
		if err != nil {
			return ItemsLoadedMsg{Err: err}
		}
		unread, err := s.UnreadCount(ctx, recipient)
		if err != nil {
			return ItemsLoadedMsg{Err: err}
		}
		return ItemsLoadedMsg{Items: items, Unread: unread}
	}
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
}
