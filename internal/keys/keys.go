package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the global keybindings for the application.
type KeyMap struct {
	// Navigation
	Down key.Binding
	Up   key.Binding

	// Selection
	Select key.Binding

	// Back / Quit
	Back key.Binding
	Quit key.Binding

	// Command palette
	Command key.Binding

	// Help toggle
	Help key.Binding

	// Manual refresh
	Refresh key.Binding

	// Type filters
	FilterAll      key.Binding
	FilterWorkItem key.Binding
	FilterAgenda   key.Binding
	FilterSystem   key.Binding
	CycleFilter    key.Binding

	// Actions
	MarkRead    key.Binding
	MarkAllRead key.Binding
	Delete      key.Binding
}

// DefaultKeyMap returns the default set of keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "abajo"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "arriba"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "abrir"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "volver"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "salir"),
		),
		Command: key.NewBinding(
			key.WithKeys(":"),
			key.WithHelp(":", "comandos"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "ayuda"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "actualizar"),
		),
		FilterAll: key.NewBinding(
			key.WithKeys("0"),
			key.WithHelp("0", "todas"),
		),
		FilterWorkItem: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "usinas"),
		),
		FilterAgenda: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "agenda"),
		),
		FilterSystem: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "sistema"),
		),
		CycleFilter: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "siguiente filtro"),
		),
		MarkRead: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "marcar leída"),
		),
		MarkAllRead: key.NewBinding(
			key.WithKeys("M"),
			key.WithHelp("M", "marcar todas"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "eliminar"),
		),
	}
}

// ShortHelp returns the most essential keybindings for the compact help view.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.Select, k.MarkRead, k.MarkAllRead, k.Delete,
		k.CycleFilter, k.Refresh, k.Help, k.Quit,
	}
}

// FullHelp returns all keybindings grouped by category for the expanded
// help view.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Select, k.Back, k.Quit},
		{k.Command, k.Help, k.Refresh},
		{k.FilterAll, k.FilterWorkItem, k.FilterAgenda, k.FilterSystem, k.CycleFilter},
		{k.MarkRead, k.MarkAllRead, k.Delete},
	}
}
