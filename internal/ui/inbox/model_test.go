package inbox

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	inboxsvc "github.com/nhle/malharro-cms/internal/inbox"
	"github.com/nhle/malharro-cms/internal/keys"
	"github.com/nhle/malharro-cms/internal/model"
	"github.com/nhle/malharro-cms/tests/testutil"
)

func loaded(t *testing.T) Model {
	t.Helper()
	s := testutil.NewTestStore(t)
	base := testutil.BaseTime
	testutil.SeedNotifications(t, s,
		model.Notification{ID: 1, DocumentID: "a", Title: "Usina aprobada", Type: model.NotificationWorkItem, State: model.Unread,
			CreatedAt: base, Recipient: &model.UserRef{ID: 7}},
		model.Notification{ID: 2, DocumentID: "b", Title: "Evento nuevo", Type: model.NotificationAgenda, State: model.Read,
			CreatedAt: base.Add(-time.Hour), Recipient: &model.UserRef{ID: 7}},
		model.Notification{ID: 3, DocumentID: "c", Title: "Bienvenida", Type: model.NotificationSystem, State: model.Unread,
			CreatedAt: base.Add(-2 * time.Hour), Recipient: &model.UserRef{ID: 7}},
		model.Notification{ID: 4, DocumentID: "d", Title: "Ajena", Type: model.NotificationSystem, State: model.Unread,
			CreatedAt: base, Recipient: &model.UserRef{ID: 8}},
	)

	m := New(s, keys.DefaultKeyMap(), 7, 200, 80, 24)
	return run(t, m, m.Init())
}

// run executes cmd and feeds its message back into m.
func run(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		t.Fatalf("expected a command")
	}
	m, _ = m.Update(cmd())
	return m
}

func press(m Model, k string) (Model, tea.Msg) {
	var msg tea.KeyMsg
	switch k {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	m, cmd := m.Update(msg)
	if cmd == nil {
		return m, nil
	}
	return m, cmd()
}

func TestLoadListsRecipientNewestFirst(t *testing.T) {
	m := loaded(t)
	items := m.Items()
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].Title != "Usina aprobada" || items[2].Title != "Bienvenida" {
		t.Fatalf("unexpected order %q..%q", items[0].Title, items[2].Title)
	}
	if m.Unread() != 2 {
		t.Fatalf("expected 2 unread, got %d", m.Unread())
	}
}

func TestFilterKeys(t *testing.T) {
	m := loaded(t)
	cases := []struct {
		key    string
		filter inboxsvc.Filter
		count  int
	}{
		{"1", inboxsvc.FilterWorkItem, 1},
		{"2", inboxsvc.FilterAgenda, 1},
		{"3", inboxsvc.FilterSystem, 1},
		{"0", inboxsvc.FilterAll, 3},
		{"tab", inboxsvc.FilterWorkItem, 1},
	}
	for _, tc := range cases {
		var msg tea.Msg
		m, msg = press(m, tc.key)
		if m.Filter() != tc.filter {
			t.Fatalf("%s: expected filter %s, got %s", tc.key, tc.filter, m.Filter())
		}
		m, _ = m.Update(msg)
		if got := len(m.Items()); got != tc.count {
			t.Fatalf("%s: expected %d items, got %d", tc.key, tc.count, got)
		}
	}
}

func TestActionKeys(t *testing.T) {
	m := loaded(t)

	_, msg := press(m, "enter")
	if sel, ok := msg.(SelectedMsg); !ok || sel.Notification.DocumentID != "a" {
		t.Fatalf("expected SelectedMsg for a, got %#v", msg)
	}

	_, msg = press(m, "m")
	if mr, ok := msg.(MarkReadMsg); !ok || mr.Notification.DocumentID != "a" {
		t.Fatalf("expected MarkReadMsg for a, got %#v", msg)
	}

	_, msg = press(m, "M")
	if all, ok := msg.(MarkAllMsg); !ok || len(all.Items) != 3 {
		t.Fatalf("expected MarkAllMsg with 3 items, got %#v", msg)
	}

	_, msg = press(m, "d")
	if del, ok := msg.(DeleteMsg); !ok || del.Notification.DocumentID != "a" {
		t.Fatalf("expected DeleteMsg for a, got %#v", msg)
	}

	// The second row is already read.
	m, _ = press(m, "down")
	if _, msg = press(m, "m"); msg != nil {
		t.Fatalf("expected no message for a read notification, got %#v", msg)
	}
}

func TestRenderLine(t *testing.T) {
	d := ItemDelegate{now: func() time.Time { return time.Date(2026, 5, 10, 12, 30, 0, 0, time.UTC) }}
	line := d.line(model.Notification{
		Title:     "Usina aprobada",
		Type:      model.NotificationWorkItem,
		State:     model.Unread,
		CreatedAt: time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC),
		Sender:    &model.UserRef{Username: "profe"},
	}, false)
	for _, want := range []string{"●", "USINA", "Usina aprobada", "profe", "hace 30 min"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}
