package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/nhle/malharro-cms/internal/account"
	"github.com/nhle/malharro-cms/internal/agenda"
	"github.com/nhle/malharro-cms/internal/app"
	"github.com/nhle/malharro-cms/internal/cms"
	"github.com/nhle/malharro-cms/internal/credential"
	"github.com/nhle/malharro-cms/internal/inbox"
	"github.com/nhle/malharro-cms/internal/media"
	"github.com/nhle/malharro-cms/internal/model"
	"github.com/nhle/malharro-cms/internal/mutation"
	"github.com/nhle/malharro-cms/internal/notice"
	"github.com/nhle/malharro-cms/internal/notify"
	"github.com/nhle/malharro-cms/internal/session"
	"github.com/nhle/malharro-cms/internal/store"
	appsync "github.com/nhle/malharro-cms/internal/sync"
	"github.com/nhle/malharro-cms/internal/theme"
	"github.com/nhle/malharro-cms/internal/usina"
)

const commandTimeout = time.Minute

// env holds the services shared by every command.
type env struct {
	cfg      *model.AppConfig
	log      *slog.Logger
	client   *cms.Client
	writer   *mutation.Coordinator
	notifier *notify.Notifier
	accounts *account.Service
	cache    *store.SQLiteStore
}

func newEnv(cfg *model.AppConfig, log *slog.Logger, dataDir string) (*env, error) {
	if cfg.CMS.BaseURL == "" {
		return nil, errors.New("falta cms.base_url (o MALHARRO_API_URL)")
	}
	creds, err := credential.Open(dataDir)
	if err != nil {
		return nil, err
	}
	client := cms.NewClient(cfg.CMS.BaseURL, cfg.CMS.Timeout(), cms.WithLogger(log))
	return &env{
		cfg:      cfg,
		log:      log,
		client:   client,
		writer:   mutation.NewCoordinator(client, log),
		notifier: notify.NewNotifier(client, cfg.Roles.Staff, log),
		accounts: account.NewService(client, creds, log),
	}, nil
}

func (e *env) close() {
	if e.cache != nil {
		if err := e.cache.Close(); err != nil {
			e.log.Warn("closing cache", "err", err)
		}
	}
}

func (e *env) openCache() (*store.SQLiteStore, error) {
	if e.cache == nil {
		s, err := store.NewSQLiteStore(e.cfg.Cache.Path)
		if err != nil {
			return nil, err
		}
		e.cache = s
	}
	return e.cache, nil
}

func (e *env) inboxService() *inbox.Service {
	return inbox.NewService(e.client, e.writer, e.cfg.Inbox.PageSize, e.cfg.FallbacksFor(inbox.Collection), e.log)
}

// restore returns the saved session, or nil when there is none or it
// can no longer be used.
func (e *env) restore(ctx context.Context) *session.Session {
	sess, err := e.accounts.Restore(ctx)
	switch {
	case errors.Is(err, credential.ErrNoCredentials):
		return nil
	case err != nil:
		e.log.Warn("saved session unusable", "err", err)
		return nil
	}
	return sess
}

// browsing returns the saved session or an anonymous one carrying the
// public API token.
func (e *env) browsing(ctx context.Context) *session.Session {
	if sess := e.restore(ctx); sess != nil {
		return sess
	}
	return session.Anonymous(e.cfg.CMS.PublicToken)
}

func (e *env) inbox() error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	sess := e.restore(ctx)
	cancel()

	s, err := e.openCache()
	if err != nil {
		return err
	}
	m := app.New(app.Deps{
		Config:   e.cfg,
		Accounts: e.accounts,
		Inbox:    e.inboxService(),
		Store:    s,
		Log:      e.log,
	}, sess)

	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func (e *env) login() error {
	var identifier, password string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Email o usuario").Value(&identifier),
			huh.NewInput().Title("Contraseña").EchoMode(huh.EchoModePassword).Value(&password),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	sess, err := e.accounts.Login(ctx, identifier, password)
	if err != nil {
		return errors.New(notice.FromError(err).Message)
	}
	fmt.Printf("Sesión iniciada como %s (%s)\n", sess.User.Username, sess.Role)
	return nil
}

func (e *env) logout() error {
	if err := e.accounts.Logout(); err != nil {
		return err
	}
	fmt.Println("Sesión cerrada")
	return nil
}

func (e *env) whoami() error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	sess, err := e.accounts.Restore(ctx)
	if errors.Is(err, credential.ErrNoCredentials) {
		fmt.Println("No hay sesión iniciada")
		return nil
	}
	if err != nil {
		return errors.New(notice.FromError(err).Message)
	}
	fmt.Printf("%s <%s> rol %s\n", sess.User.Username, sess.User.Email, sess.Role)
	return nil
}

func (e *env) sync() error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	sess := e.restore(ctx)
	if !sess.Authenticated() {
		return errors.New("iniciá sesión con 'malharro login'")
	}
	s, err := e.openCache()
	if err != nil {
		return err
	}

	res := appsync.New(e.inboxService(), s, sess, 0, e.log).Poll(ctx)
	switch {
	case res.AuthError != nil:
		return errors.New(res.AuthError.Message)
	case res.Error != nil:
		return errors.New(inbox.ErrorNotice(res.Error).Message)
	}

	unread, err := s.UnreadCount(ctx, sess.UserID())
	if err != nil {
		return err
	}
	fmt.Printf("%d notificaciones, %d nuevas, %d sin leer\n", len(res.Items), res.NewCount, unread)
	if res.Dropped > 0 {
		fmt.Printf("%d no se pudieron cargar\n", res.Dropped)
	}
	return nil
}

func (e *env) usina(opts options) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	sess := e.browsing(ctx)
	svc := usina.NewService(e.client, e.writer, e.notifier, e.cfg.Roles, e.cfg.FallbacksFor(usina.Collection), e.log)

	var (
		items []model.WorkItem
		err   error
	)
	if opts.mine {
		items, err = svc.Mine(ctx, sess)
	} else {
		items, err = svc.List(ctx, sess, usina.ListFilter{Status: model.StatusApproved, Program: opts.program})
	}
	if err != nil {
		return errors.New(notice.FromError(err).Message)
	}

	resolver := media.NewResolver(e.cfg.CMS.Origin, e.cfg.Media.Placeholder)
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, []string{
			strconv.FormatInt(it.ID, 10),
			it.Title,
			it.Program,
			creatorName(it.Creator),
			it.Status.Label(),
			resolver.Resolve(it.Media).FullURL,
		})
	}
	printTable([]string{"ID", "Título", "Carrera", "Autor", "Estado", "Media"}, rows)
	return nil
}

func (e *env) agenda(opts options) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	sess := e.browsing(ctx)
	svc := agenda.NewService(e.client, e.writer, e.notifier, e.cfg.Roles, e.cfg.FallbacksFor(agenda.Collection), e.log)

	var (
		items []model.AgendaItem
		err   error
	)
	switch {
	case opts.mine:
		items, err = svc.Mine(ctx, sess)
	case opts.all:
		items, err = svc.List(ctx, sess)
	default:
		items, err = svc.Upcoming(ctx, sess)
	}
	if err != nil {
		return errors.New(notice.FromError(err).Message)
	}

	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, []string{
			it.Date.Format("02/01/2006"),
			it.Title,
			creatorName(it.Creator),
		})
	}
	printTable([]string{"Fecha", "Actividad", "Creador"}, rows)
	return nil
}

func creatorName(u *model.UserRef) string {
	if u == nil {
		return "-"
	}
	if full := strings.TrimSpace(u.Name + " " + u.Surname); full != "" {
		return full
	}
	return u.Username
}

func printTable(headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Println(theme.DimmedStyle.Render("Sin resultados"))
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.ColorGray)).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return theme.HeaderStyle
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...).
		Rows(rows...)
	fmt.Println(t)
}
