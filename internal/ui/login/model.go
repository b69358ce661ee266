// Package login is the sign-in and registration form.
package login

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/malharro-cms/internal/account"
	"github.com/nhle/malharro-cms/internal/model"
	"github.com/nhle/malharro-cms/internal/theme"
)

// Mode selects the form's fields.
type Mode int

const (
	ModeLogin Mode = iota
	ModeRegister
)

// SubmitMsg is dispatched when the form is completed.
type SubmitMsg struct {
	Mode       Mode
	Identifier string
	Username   string
	Email      string
	Password   string
}

// CancelMsg is dispatched when the user aborts the form.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	identifier string
	username   string
	email      string
	password   string
	confirm    string
}

// Model is the Bubble Tea model for the login form.
type Model struct {
	form    *huh.Form
	fb      *formBindings
	mode    Mode
	err     string
	busy    bool
	spinner spinner.Model
	width   int
	height  int
}

// New creates a new login form model.
func New(width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		fb:      &formBindings{},
		spinner: sp,
		width:   width,
		height:  height,
	}
}

// Start resets the form in the given mode. The identifier is kept so a
// failed attempt does not have to be retyped.
func (m *Model) Start(mode Mode) tea.Cmd {
	m.mode = mode
	m.busy = false
	m.fb.password = ""
	m.fb.confirm = ""
	if mode == ModeLogin {
		m.form = m.buildLoginForm()
	} else {
		m.form = m.buildRegisterForm()
	}
	return m.form.Init()
}

// SetError shows msg above the form.
func (m *Model) SetError(msg string) {
	m.err = msg
	m.busy = false
}

// Busy reports whether a submitted form is waiting for the CMS.
func (m Model) Busy() bool { return m.busy }

// Mode returns the current form mode.
func (m Model) Mode() Mode { return m.mode }

// Update handles messages for the form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	if _, ok := msg.(spinner.TickMsg); ok {
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	if m.busy {
		return m, nil
	}

	if k, ok := msg.(tea.KeyMsg); ok && k.String() == "ctrl+r" {
		next := ModeRegister
		if m.mode == ModeRegister {
			next = ModeLogin
		}
		m.err = ""
		return m, m.Start(next)
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.err = ""
		m.busy = true
		return m, tea.Batch(m.spinner.Tick, m.submit())
	case huh.StateAborted:
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

func (m Model) submit() tea.Cmd {
	out := SubmitMsg{
		Mode:       m.mode,
		Identifier: strings.TrimSpace(m.fb.identifier),
		Username:   strings.TrimSpace(m.fb.username),
		Email:      strings.TrimSpace(m.fb.email),
		Password:   m.fb.password,
	}
	return func() tea.Msg { return out }
}

// View renders the form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleText := "Iniciar sesión"
	hint := "ctrl+r crear cuenta"
	if m.mode == ModeRegister {
		titleText = "Crear cuenta"
		hint = "ctrl+r ya tengo cuenta"
	}

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1).
		Render(titleText)

	parts := []string{title}
	if m.err != "" {
		parts = append(parts, lipgloss.NewStyle().Foreground(theme.ColorRed).Render(m.err), "")
	}
	if m.busy {
		parts = append(parts, fmt.Sprintf("%s Conectando con el servidor...", m.spinner.View()))
	} else {
		parts = append(parts, m.form.View(), theme.HelpStyle.Render(hint))
	}

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildLoginForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email o usuario").
				Value(&m.fb.identifier).
				Validate(required("Ingresá tu email o usuario.")),
			huh.NewInput().
				Title("Contraseña").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.password).
				Validate(required("Ingresá tu contraseña.")),
		),
	).WithWidth(m.formWidth())
}

func (m *Model) buildRegisterForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Usuario").
				Value(&m.fb.username).
				Validate(fieldMessage(account.ValidateUsername)),
			huh.NewInput().
				Title("Email").
				Value(&m.fb.email).
				Validate(fieldMessage(account.ValidateEmail)),
			huh.NewInput().
				Title("Contraseña").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.password).
				Validate(fieldMessage(account.ValidatePassword)),
			huh.NewInput().
				Title("Repetí la contraseña").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.confirm).
				Validate(func(s string) error {
					if s != m.fb.password {
						return errors.New("Las contraseñas no coinciden.")
					}
					return nil
				}),
		),
	).WithWidth(m.formWidth())
}

func (m Model) formWidth() int {
	return min(max(m.width-4, 40), 80)
}

func required(msg string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New(msg)
		}
		return nil
	}
}

// fieldMessage adapts a validator so huh shows only its user message.
func fieldMessage(validate func(string) error) func(string) error {
	return func(s string) error {
		err := validate(strings.TrimSpace(s))
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			return errors.New(verr.Message)
		}
		return err
	}
}
