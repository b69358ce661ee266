// Package account signs users in and out of the CMS: local login and
// registration, OAuth identity relay, password setup and restoring a
// saved session.
package account

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/nhle/malharro-cms/internal/cms"
	"github.com/nhle/malharro-cms/internal/credential"
	"github.com/nhle/malharro-cms/internal/model"
	"github.com/nhle/malharro-cms/internal/normalize"
	"github.com/nhle/malharro-cms/internal/session"
)

// ErrPasswordSetupRequired is returned when an OAuth account has no
// local password yet. Use errors.As with *SetupRequiredError for the
// details.
var ErrPasswordSetupRequired = errors.New("account needs a local password")

// SetupRequiredError carries what SetPassword needs after an OAuth
// sign-in that the CMS did not complete.
type SetupRequiredError struct {
	Email    string
	Provider Provider

	// Token is the provisional token the CMS issued, if any. It is not
	// saved.
	Token string
}

func (e *SetupRequiredError) Error() string {
	return fmt.Sprintf("%s account %s needs a local password", e.Provider, e.Email)
}

func (e *SetupRequiredError) Is(target error) bool { return target == ErrPasswordSetupRequired }

// authResponse is the body of every endpoint that issues a token.
type authResponse struct {
	JWT  string         `json:"jwt"`
	User map[string]any `json:"user"`
}

// Service runs account operations. Sessions are persisted to creds when
// it is non-nil.
type Service struct {
	client *cms.Client
	creds  *credential.Store
	now    func() time.Time
	log    *slog.Logger
}

// NewService returns a Service.
func NewService(client *cms.Client, creds *credential.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{client: client, creds: creds, now: time.Now, log: log}
}

// Login signs in with an email or username and a password.
func (s *Service) Login(ctx context.Context, identifier, password string) (*session.Session, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, model.Invalid("identifier", "Ingresá tu email o usuario.")
	}
	if password == "" {
		return nil, model.Invalid("password", "Ingresá tu contraseña.")
	}

	var resp authResponse
	body := map[string]any{"identifier": identifier, "password": password}
	if err := s.client.Post(ctx, "", "/auth/local", body, &resp); err != nil {
		return nil, fmt.Errorf("logging in: %w", err)
	}
	return s.establish(ctx, resp)
}

// Register creates a local account and signs it in.
func (s *Service) Register(ctx context.Context, username, email, password string) (*session.Session, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	var resp authResponse
	body := map[string]any{"username": username, "email": email, "password": password}
	if err := s.client.Post(ctx, "", "/auth/local/register", body, &resp); err != nil {
		return nil, fmt.Errorf("registering %s: %w", email, err)
	}
	s.log.Info("account registered", "username", username)
	return s.establish(ctx, resp)
}

// EmailTaken reports whether an account already uses email. The lookup
// is authorized with token, usually the public API token.
func (s *Service) EmailTaken(ctx context.Context, token, email string) (bool, error) {
	var users []map[string]any
	q := cms.NewQuery().Filter("email", cms.OpEq, strings.TrimSpace(email))
	if err := s.client.Get(ctx, token, "/users", q, &users); err != nil {
		return false, fmt.Errorf("checking email: %w", err)
	}
	return len(users) > 0, nil
}

// Me returns the user token belongs to, with its role.
func (s *Service) Me(ctx context.Context, token string) (model.User, error) {
	var raw map[string]any
	if err := s.client.Get(ctx, token, "/users/me", cms.NewQuery().Set("populate", "role"), &raw); err != nil {
		return model.User{}, fmt.Errorf("fetching current user: %w", err)
	}
	return decodeUser(raw)
}

// SignInWithProvider relays a verified OAuth identity to the CMS. When
// the account has no local password yet the CMS token is not kept and a
// *SetupRequiredError is returned.
func (s *Service) SignInWithProvider(ctx context.Context, id Identity) (*session.Session, error) {
	if id.Email == "" {
		return nil, model.Invalid("email", "El proveedor no compartió un email.")
	}

	var resp authResponse
	if err := s.client.Post(ctx, "", id.Provider.loginPath(), id.relayBody(), &resp); err != nil {
		return nil, fmt.Errorf("relaying %s identity: %w", id.Provider, err)
	}

	user, err := decodeUser(resp.User)
	if err != nil {
		return nil, err
	}
	if user.LoginMethods != "both" {
		s.log.Info("password setup required", "provider", id.Provider, "email", user.Email)
		email := user.Email
		if email == "" {
			email = id.Email
		}
		return nil, &SetupRequiredError{Email: email, Provider: id.Provider, Token: resp.JWT}
	}
	return s.establish(ctx, resp)
}

// SetPassword gives an OAuth account a username and local password so
// it can also sign in with Login.
func (s *Service) SetPassword(ctx context.Context, email, username, password string, provider Provider) error {
	if err := ValidateUsername(username); err != nil {
		return err
	}
	if err := ValidatePassword(password); err != nil {
		return err
	}
	body := map[string]any{
		"email":    email,
		"username": strings.TrimSpace(username),
		"password": password,
	}
	if provider != "" {
		body["provider"] = string(provider)
	}
	if err := s.client.Post(ctx, "", "/set-password", body, nil); err != nil {
		return fmt.Errorf("setting password for %s: %w", email, err)
	}
	return nil
}

// Restore loads the saved session. An expired or rejected token is
// cleared and its error returned.
func (s *Service) Restore(ctx context.Context) (*session.Session, error) {
	if s.creds == nil {
		return nil, credential.ErrNoCredentials
	}
	token, role, err := s.creds.Load()
	if err != nil {
		return nil, err
	}

	if err := session.CheckExpiry(token, s.now()); errors.Is(err, session.ErrExpired) {
		s.log.Info("saved session expired")
		_ = s.creds.Clear()
		return nil, err
	}

	user, err := s.Me(ctx, token)
	if cms.IsUnauthorized(err) {
		_ = s.creds.Clear()
		return nil, err
	}
	if err != nil {
		// Offline: keep the cached role so the caller can still show
		// something.
		s.log.Warn("could not refresh user", "err", err)
		sess := session.Anonymous(token)
		sess.Role = role
		return sess, err
	}

	sess := session.New(token, &user)
	if sess.Role == "" {
		sess.Role = role
	}
	if sess.Role != role {
		if err := s.creds.Save(token, sess.Role); err != nil {
			s.log.Warn("could not update cached role", "err", err)
		}
	}
	return sess, nil
}

// Logout forgets the saved session.
func (s *Service) Logout() error {
	if s.creds == nil {
		return nil
	}
	return s.creds.Clear()
}

// establish loads the full user for a fresh token and saves the session.
func (s *Service) establish(ctx context.Context, resp authResponse) (*session.Session, error) {
	if resp.JWT == "" {
		return nil, &cms.MalformedError{Reason: "response has no token"}
	}

	user, err := s.Me(ctx, resp.JWT)
	if err != nil {
		s.log.Debug("falling back to user from auth response", "err", err)
		user, err = decodeUser(resp.User)
		if err != nil {
			return nil, err
		}
	}

	sess := session.New(resp.JWT, &user)
	if sess.Role == "" {
		sess.Role = model.RoleAuthenticated
	}
	if s.creds != nil {
		if err := s.creds.Save(sess.Token, sess.Role); err != nil {
			return nil, fmt.Errorf("saving session: %w", err)
		}
	}
	s.log.Info("signed in", "user", user.Username, "role", sess.Role)
	return sess, nil
}

func decodeUser(raw map[string]any) (model.User, error) {
	rec, err := normalize.Normalize(raw, normalize.Schema{})
	if err != nil {
		return model.User{}, &cms.MalformedError{Reason: "user: " + err.Error()}
	}
	var u model.User
	if err := normalize.Decode(rec, &u); err != nil {
		return model.User{}, &cms.MalformedError{Reason: "user: " + err.Error()}
	}
	return u, nil
}
