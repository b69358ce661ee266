package command

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/malharro-cms/internal/inbox"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want Command
	}{
		{"actualizar", Command{Kind: Refresh}},
		{"  Leer   Todas ", Command{Kind: MarkAll}},
		{"filtro usina", Command{Kind: Filter, Filter: inbox.FilterWorkItem}},
		{"filter agenda", Command{Kind: Filter, Filter: inbox.FilterAgenda}},
		{"filtro", Command{Kind: Filter, Filter: inbox.FilterAll}},
		{"filtro cualquiera", Command{Kind: Filter, Filter: inbox.FilterAll}},
		{"cerrar sesión", Command{Kind: Logout}},
		{"salir", Command{Kind: Quit}},
		{"borrar todo", Command{Kind: Unknown}},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			if got := Parse(tc.in); got != tc.want {
				t.Fatalf("Parse(%q) = %+v, want %+v", tc.in, got, tc.want)
			}
		})
	}
}

func TestEnterEmitsCommand(t *testing.T) {
	m := New(80, 24)
	for _, r := range "salir" {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatalf("expected a command")
	}
	if msg, ok := cmd().(CommandMsg); !ok || msg != "salir" {
		t.Fatalf("unexpected message %v", cmd())
	}

	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Fatalf("empty input should not emit")
	}
}
