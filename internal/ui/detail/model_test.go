package detail

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/malharro-cms/internal/keys"
	"github.com/nhle/malharro-cms/internal/model"
)

func shown(state model.ReadState) Model {
	m := New(keys.DefaultKeyMap(), 80, 24)
	m.now = func() time.Time { return time.Date(2026, 5, 10, 13, 0, 0, 0, time.UTC) }
	m.SetNotification(model.Notification{
		ID:        5,
		Title:     "Usina aprobada",
		Message:   "<p>Tu obra fue <b>aprobada</b></p>",
		Type:      model.NotificationWorkItem,
		State:     state,
		CreatedAt: time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC),
		Sender:    &model.UserRef{ID: 2, Username: "profe", Name: "Ana", Surname: "Paz"},
	})
	return m
}

func TestViewShowsPlainMessage(t *testing.T) {
	view := shown(model.Unread).View()
	for _, want := range []string{"Usina aprobada", "Tu obra fue aprobada", "Ana Paz (profe)"} {
		if !strings.Contains(view, want) {
			t.Fatalf("expected %q in view:\n%s", want, view)
		}
	}
	if strings.Contains(view, "<b>") {
		t.Fatalf("markup should be stripped:\n%s", view)
	}
}

func TestKeysEmitActions(t *testing.T) {
	cases := []struct {
		name   string
		state  model.ReadState
		key    tea.KeyMsg
		expect tea.Msg
	}{
		{"mark read", model.Unread, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("m")}, ActionMsg{Action: ActionMarkRead}},
		{"mark read ignored when read", model.Read, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("m")}, nil},
		{"delete", model.Read, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")}, ActionMsg{Action: ActionDelete}},
		{"back", model.Read, tea.KeyMsg{Type: tea.KeyEsc}, BackMsg{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, cmd := shown(tc.state).Update(tc.key)
			if tc.expect == nil {
				if cmd != nil {
					t.Fatalf("expected no command, got %#v", cmd())
				}
				return
			}
			if cmd == nil {
				t.Fatalf("expected a command")
			}
			switch got := cmd().(type) {
			case ActionMsg:
				want := tc.expect.(ActionMsg)
				if got.Action != want.Action || got.Notification.ID != 5 {
					t.Fatalf("unexpected action %+v", got)
				}
			case BackMsg:
				if _, ok := tc.expect.(BackMsg); !ok {
					t.Fatalf("unexpected back")
				}
			default:
				t.Fatalf("unexpected message %#v", got)
			}
		})
	}
}
