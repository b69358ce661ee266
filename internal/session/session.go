// Package session carries the caller's identity into every data-access
// call instead of reading it from ambient storage.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nhle/malharro-cms/internal/model"
)

// ErrExpired is returned when the bearer token's exp claim has passed.
var ErrExpired = errors.New("session expired")

// Session is the authenticated context of one user. A zero Session is
// anonymous.
type Session struct {
	Token string
	User  *model.User

	// Role is the cached role name. It is used when User was not loaded.
	Role string
}

// New returns a session for user authenticated with token.
func New(token string, user *model.User) *Session {
	s := &Session{Token: token, User: user}
	if user != nil {
		s.Role = user.RoleName()
	}
	return s
}

// Anonymous returns a session that sends token (possibly empty) without
// a signed-in user.
func Anonymous(token string) *Session {
	return &Session{Token: token}
}

// Authenticated reports whether a user is signed in.
func (s *Session) Authenticated() bool {
	return s != nil && s.User != nil && s.User.ID != 0
}

// UserID returns the signed-in user's id or zero.
func (s *Session) UserID() int64 {
	if s == nil || s.User == nil {
		return 0
	}
	return s.User.ID
}

// BearerToken returns the token to send, or "" for a nil session.
func (s *Session) BearerToken() string {
	if s == nil {
		return ""
	}
	return s.Token
}

// HasRole reports whether the session's role is one of names.
func (s *Session) HasRole(names []string) bool {
	if s == nil {
		return false
	}
	if s.User != nil && s.User.Role != nil {
		return s.User.HasRole(names)
	}
	return model.User{Role: &model.RoleRef{Name: s.Role}}.HasRole(names)
}

// Owns reports whether the signed-in user is creatorID.
func (s *Session) Owns(creatorID int64) bool {
	return creatorID != 0 && s.UserID() == creatorID
}

// Claims are the fields read from the CMS-issued token.
type Claims struct {
	UserID    int64
	ExpiresAt time.Time
}

// Inspect reads the token's claims without verifying its signature. The
// CMS holds the signing secret; this is only used to notice expiry early.
func Inspect(token string) (Claims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Claims{}, fmt.Errorf("parsing token: %w", err)
	}

	var out Claims
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	if id, ok := claims["id"].(float64); ok {
		out.UserID = int64(id)
	}
	return out, nil
}

// CheckExpiry returns ErrExpired when token carries an exp claim in the
// past relative to now. Tokens that cannot be parsed are left to the CMS
// to reject.
func CheckExpiry(token string, now time.Time) error {
	c, err := Inspect(token)
	if err != nil || c.ExpiresAt.IsZero() {
		return nil
	}
	if !now.Before(c.ExpiresAt) {
		return ErrExpired
	}
	return nil
}
