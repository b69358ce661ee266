package app

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/malharro-cms/internal/account"
	"github.com/nhle/malharro-cms/internal/inbox"
	"github.com/nhle/malharro-cms/internal/keys"
	"github.com/nhle/malharro-cms/internal/model"
	"github.com/nhle/malharro-cms/internal/notice"
	"github.com/nhle/malharro-cms/internal/session"
	"github.com/nhle/malharro-cms/internal/store"
	appsync "github.com/nhle/malharro-cms/internal/sync"
	"github.com/nhle/malharro-cms/internal/ui"
	"github.com/nhle/malharro-cms/internal/ui/command"
	"github.com/nhle/malharro-cms/internal/ui/detail"
	helpview "github.com/nhle/malharro-cms/internal/ui/help"
	inboxview "github.com/nhle/malharro-cms/internal/ui/inbox"
	"github.com/nhle/malharro-cms/internal/ui/login"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewLogin ViewState = iota
	ViewInbox
	ViewDetail
	ViewHelp
	ViewCommand
)

// Deps are the services the TUI drives.
type Deps struct {
	Config   *model.AppConfig
	Accounts *account.Service
	Inbox    *inbox.Service
	Store    store.Store
	Log      *slog.Logger
}

// Model is the root Bubble Tea model that manages view routing,
// layout, and the signed-in session.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	deps         Deps
	keys         *keys.KeyMap
	sess         *session.Session

	loginView   login.Model
	inboxView   inboxview.Model
	detail      detail.Model
	helpView    helpview.Model
	commandView command.Model
	shortHelp   help.Model
	poller      *appsync.Poller

	notice           *notice.Notice
	authErrorMessage string
	ready            bool
}

// New creates the root model. A nil or anonymous session starts at the
// login form.
func New(d Deps, sess *session.Session) Model {
	if d.Log == nil {
		d.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if d.Config == nil {
		d.Config = &model.AppConfig{}
	}
	k := keys.DefaultKeyMap()
	m := Model{
		currentView: ViewLogin,
		deps:        d,
		keys:        k,
		loginView:   login.New(80, 24),
		detail:      detail.New(k, 80, 24),
		helpView:    helpview.New(k, 80, 24),
		commandView: command.New(80, 24),
		shortHelp:   help.New(),
	}
	if sess.Authenticated() {
		m.signIn(sess)
	}
	return m
}

// signIn switches to the inbox of sess and prepares its poller.
func (m *Model) signIn(sess *session.Session) {
	m.sess = sess
	m.authErrorMessage = ""
	m.currentView = ViewInbox
	w, h := 80, 24
	if m.ready {
		w, h = m.layout.ContentWidth(), m.layout.ContentHeight()
	}
	m.inboxView = inboxview.New(m.deps.Store, m.keys, sess.UserID(), m.deps.Config.Inbox.PageSize, w, h)
	interval := time.Duration(m.deps.Config.Inbox.PollIntervalSec) * time.Second
	m.poller = appsync.New(m.deps.Inbox, m.deps.Store, sess, interval, m.deps.Log)
	if sess.User != nil {
		m.helpView.SetSession(sess.User.Username, sess.Role)
	}
}

// Init loads the cache and starts polling, or shows the login form.
func (m Model) Init() tea.Cmd {
	if m.currentView == ViewLogin {
		return m.loginView.Start(login.ModeLogin)
	}
	return tea.Batch(m.inboxView.Init(), m.poller.Start())
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.loginView.SetSize(w, h)
		if m.sess != nil {
			m.inboxView.SetSize(w, h)
		}
		m.detail.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.commandView.SetSize(w, h)
		// Forward to the active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case login.SubmitMsg:
		return m, m.authenticate(msg)

	case login.CancelMsg:
		return m, tea.Quit

	case loginResultMsg:
		if msg.err != nil {
			m.loginView.SetError(notice.FromError(msg.err).Message)
			return m, m.loginView.Start(m.loginView.Mode())
		}
		m.signIn(msg.sess)
		return m, tea.Batch(m.inboxView.Init(), m.poller.Start())

	case appsync.SyncResultMsg:
		if m.sess == nil {
			return m, nil
		}
		switch {
		case msg.AuthError != nil:
			m.authErrorMessage = msg.AuthError.Message
		case msg.Error != nil:
			n := notice.FromError(msg.Error)
			m.notice = &n
		default:
			m.authErrorMessage = ""
			if msg.NewCount > 0 {
				n := notice.Notice{Level: notice.LevelInfo,
					Message: fmt.Sprintf("%d notificaciones nuevas", msg.NewCount)}
				m.notice = &n
			}
		}
		if m.poller == nil {
			return m, nil
		}
		return m, tea.Batch(m.inboxView.Load(), m.poller.WaitForNextResult())

	case inboxview.SelectedMsg:
		m.previousView = ViewInbox
		m.currentView = ViewDetail
		m.detail.SetNotification(msg.Notification)
		if !msg.Notification.IsRead() {
			return m, m.markRead(msg.Notification)
		}
		return m, nil

	case inboxview.MarkReadMsg:
		return m, m.markRead(msg.Notification)

	case inboxview.MarkAllMsg:
		return m, m.markAllRead(msg.Items)

	case inboxview.DeleteMsg:
		return m, m.deleteNotification(msg.Notification)

	case detail.ActionMsg:
		switch msg.Action {
		case detail.ActionMarkRead:
			return m, m.markRead(msg.Notification)
		case detail.ActionDelete:
			return m, m.deleteNotification(msg.Notification)
		}
		return m, nil

	case detail.BackMsg:
		m.currentView = ViewInbox
		return m, m.inboxView.Load()

	case actionResultMsg:
		m.notice = &msg.notice
		if msg.updated != nil && m.currentView == ViewDetail {
			if cur, ok := m.detail.Current(); ok && sameNotification(cur, *msg.updated) {
				m.detail.SetNotification(*msg.updated)
			}
		}
		if msg.deleted && m.currentView == ViewDetail {
			m.currentView = ViewInbox
		}
		return m, m.inboxView.Load()

	case command.CommandMsg:
		m.currentView = m.previousView
		return m.executeCommand(string(msg))

	case tea.KeyMsg:
		if m.currentView == ViewLogin {
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			break
		}

		// Any key dismisses the last notice.
		m.notice = nil

		switch msg.String() {
		case "ctrl+c":
			m.stopPoller()
			return m, tea.Quit

		case "q":
			if m.currentView == ViewInbox {
				m.stopPoller()
				return m, tea.Quit
			}

		case "?":
			if m.currentView == ViewCommand {
				break
			}
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewHelp
			return m, nil

		case ":":
			if m.currentView == ViewCommand {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewCommand
			return m, m.commandView.Focus()

		case "esc":
			if m.currentView == ViewHelp || m.currentView == ViewCommand {
				m.currentView = m.previousView
				return m, nil
			}

		case "r":
			if m.currentView == ViewInbox {
				m.poller.Refresh()
				return m, m.inboxView.Load()
			}
		}
	}

	return m.updateActiveView(msg)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewLogin:
		m.loginView, cmd = m.loginView.Update(msg)
	case ViewInbox:
		m.inboxView, cmd = m.inboxView.Update(msg)
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	}

	return m, cmd
}

// executeCommand handles a command string from the command palette.
func (m Model) executeCommand(s string) (tea.Model, tea.Cmd) {
	c := command.Parse(s)
	switch c.Kind {
	case command.Refresh:
		m.poller.Refresh()
		return m, m.inboxView.Load()
	case command.MarkAll:
		return m, m.markAllRead(m.inboxView.Items())
	case command.Filter:
		m.currentView = ViewInbox
		return m, m.inboxView.SetFilter(c.Filter)
	case command.Logout:
		m.stopPoller()
		if err := m.deps.Accounts.Logout(); err != nil {
			m.deps.Log.Warn("clearing credentials failed", "err", err)
		}
		m.sess = nil
		m.poller = nil
		m.helpView.SetSession("", "")
		m.currentView = ViewLogin
		return m, m.loginView.Start(login.ModeLogin)
	case command.Quit:
		m.stopPoller()
		return m, tea.Quit
	}
	n := notice.Notice{Level: notice.LevelWarning, Message: fmt.Sprintf("Comando desconocido: %s", s)}
	m.notice = &n
	return m, nil
}

func (m *Model) stopPoller() {
	if m.poller != nil {
		m.poller.Stop()
	}
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Cargando..."
	}

	title := "Malharro"
	if m.currentView != ViewLogin {
		if u := m.inboxView.Unread(); u > 0 {
			title = fmt.Sprintf("Malharro [%d sin leer]", u)
		}
	}
	header := m.layout.RenderHeader(title, m.syncStatus())

	var bottom string
	switch {
	case m.notice != nil:
		bottom = m.layout.RenderNotice(*m.notice)
	case m.authErrorMessage != "" && m.currentView == ViewInbox:
		bottom = m.layout.RenderNotice(notice.Notice{Level: notice.LevelError, Message: m.authErrorMessage})
	default:
		bottom = m.layout.RenderStatusBar(m.keyHints())
	}

	return m.layout.RenderWithFrame(header, m.renderContent(), bottom)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewLogin:
		return m.loginView.View()
	case ViewInbox:
		return m.inboxView.View()
	case ViewDetail:
		return m.detail.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	default:
		return ""
	}
}

// syncStatus returns a short string describing the poll state.
func (m Model) syncStatus() string {
	if m.sess == nil || m.poller == nil {
		return ""
	}
	st := m.poller.Status()
	switch st.State {
	case appsync.SyncRunning:
		return "actualizando…"
	case appsync.SyncError:
		return "⚠ sin conexión con el servidor"
	}
	who := ""
	if m.sess.User != nil {
		who = m.sess.User.Username + " · "
	}
	if st.LastSync.IsZero() {
		return who + "sin actualizar"
	}
	return who + "actualizado " + st.LastSync.Format("15:04")
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewLogin:
		return "enter continuar | ctrl+c salir"
	case ViewHelp:
		return "? cerrar ayuda | esc volver"
	case ViewCommand:
		return "enter ejecutar | esc volver"
	case ViewDetail:
		return "esc volver | m marcar leída | d eliminar | j/k desplazar"
	default:
		return m.shortHelp.ShortHelpView(m.keys.ShortHelp())
	}
}
