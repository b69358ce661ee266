package app

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/malharro-cms/internal/inbox"
	"github.com/nhle/malharro-cms/internal/model"
	"github.com/nhle/malharro-cms/internal/notice"
	"github.com/nhle/malharro-cms/internal/session"
	"github.com/nhle/malharro-cms/internal/ui/login"
)

// actionTimeout bounds one user-triggered CMS operation.
const actionTimeout = 30 * time.Second

type loginResultMsg struct {
	sess *session.Session
	err  error
}

// actionResultMsg reports a finished inbox operation.
type actionResultMsg struct {
	notice  notice.Notice
	updated *model.Notification
	deleted bool
}

func (m Model) authenticate(req login.SubmitMsg) tea.Cmd {
	accounts := m.deps.Accounts
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		var (
			sess *session.Session
			err  error
		)
		if req.Mode == login.ModeRegister {
			sess, err = accounts.Register(ctx, req.Username, req.Email, req.Password)
		} else {
			sess, err = accounts.Login(ctx, req.Identifier, req.Password)
		}
		return loginResultMsg{sess: sess, err: err}
	}
}

// markRead marks n read in the CMS and then in the cache.
func (m Model) markRead(n model.Notification) tea.Cmd {
	svc, s, sess, log := m.deps.Inbox, m.deps.Store, m.sess, m.deps.Log
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		updated, err := svc.MarkRead(ctx, sess, n)
		if err != nil {
			log.Warn("mark read failed", "id", n.ID, "doc", n.DocumentID, "err", err)
			return actionResultMsg{notice: inbox.ErrorNotice(err)}
		}
		if err := s.MarkNotificationRead(ctx, n); err != nil {
			log.Warn("updating cache failed", "err", err)
		}
		return actionResultMsg{
			notice:  notice.Success("Notificación marcada como leída"),
			updated: &updated,
		}
	}
}

// markAllRead marks every unread item read. Failures are reported but
// the cache shows every item read, as the list does.
func (m Model) markAllRead(items []model.Notification) tea.Cmd {
	svc, s, sess, log := m.deps.Inbox, m.deps.Store, m.sess, m.deps.Log
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		_, report := svc.MarkAllRead(ctx, sess, items)
		for _, n := range items {
			if n.IsRead() {
				continue
			}
			if err := s.MarkNotificationRead(ctx, n); err != nil {
				log.Warn("updating cache failed", "err", err)
			}
		}

		switch {
		case report.Marked == 0 && report.Failed == 0:
			return actionResultMsg{notice: notice.Notice{Level: notice.LevelInfo, Message: "No hay notificaciones sin leer"}}
		case report.Failed > 0:
			return actionResultMsg{notice: notice.Warning(
				"Se marcaron %d notificaciones; %d no se pudieron actualizar en el servidor",
				report.Marked, report.Failed)}
		}
		return actionResultMsg{notice: notice.Success("Se marcaron %d notificaciones como leídas", report.Marked)}
	}
}

func (m Model) deleteNotification(n model.Notification) tea.Cmd {
	svc, s, sess, log := m.deps.Inbox, m.deps.Store, m.sess, m.deps.Log
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		res := svc.Delete(ctx, sess, n)
		if !res.OK() {
			log.Warn("delete failed", "id", n.ID, "doc", n.DocumentID, "err", res.Err())
			return actionResultMsg{notice: notice.FromResult(res, "")}
		}
		if err := s.DeleteNotification(ctx, n); err != nil {
			log.Warn("updating cache failed", "err", err)
		}
		return actionResultMsg{
			notice:  notice.FromResult(res, fmt.Sprintf("Notificación \"%s\" eliminada", n.Title)),
			deleted: true,
		}
	}
}

func sameNotification(a, b model.Notification) bool {
	if a.DocumentID != "" && a.DocumentID == b.DocumentID {
		return true
	}
	return a.ID != 0 && a.ID == b.ID
}
