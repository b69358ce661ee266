package model

import "strings"

// Role names as configured in the CMS.
const (
	RolePublic        = "Public"
	RoleAuthenticated = "Authenticated"
	RoleStudent       = "Estudiante"
	RoleTeacher       = "Profesor"
	RoleAdmin         = "Administrador"
	RoleSuperAdmin    = "SuperAdministrador"
)

// RoleRef is the populated role relation of a user.
type RoleRef struct {
	ID   int64  `mapstructure:"id" json:"id"`
	Name string `mapstructure:"name" json:"name"`
	Type string `mapstructure:"type" json:"type"`
}

// User is a CMS account.
type User struct {
	ID        int64    `mapstructure:"id" json:"id"`
	Username  string   `mapstructure:"username" json:"username"`
	Email     string   `mapstructure:"email" json:"email"`
	Name      string   `mapstructure:"name" json:"name,omitempty"`
	Surname   string   `mapstructure:"surname" json:"surname,omitempty"`
	Program   string   `mapstructure:"carrera" json:"carrera,omitempty"`
	Avatar    *Media   `mapstructure:"avatar" json:"avatar,omitempty"`
	Blocked   bool     `mapstructure:"blocked" json:"blocked"`
	Confirmed bool     `mapstructure:"confirmed" json:"confirmed"`
	Role      *RoleRef `mapstructure:"role" json:"role,omitempty"`

	// LoginMethods is "both" once an OAuth account also has a password.
	LoginMethods string `mapstructure:"loginMethods" json:"loginMethods,omitempty"`
}

// RoleName returns the role name, falling back to the role type.
func (u User) RoleName() string {
	if u.Role == nil {
		return ""
	}
	if u.Role.Name != "" {
		return u.Role.Name
	}
	return u.Role.Type
}

// DisplayName returns "Name Surname" when both are set, else the username.
func (u User) DisplayName() string {
	full := strings.TrimSpace(u.Name + " " + u.Surname)
	if u.Name != "" && u.Surname != "" {
		return full
	}
	if u.Username != "" {
		return u.Username
	}
	return full
}

// HasRole reports whether the user's role is one of names.
func (u User) HasRole(names []string) bool {
	role := u.RoleName()
	for _, n := range names {
		if strings.EqualFold(role, n) {
			return true
		}
	}
	return false
}

// UserRef is the reduced user shape embedded in relations.
type UserRef struct {
	ID       int64  `mapstructure:"id" json:"id"`
	Username string `mapstructure:"username" json:"username,omitempty"`
	Name     string `mapstructure:"name" json:"name,omitempty"`
	Surname  string `mapstructure:"surname" json:"surname,omitempty"`
	Program  string `mapstructure:"carrera" json:"carrera,omitempty"`
}
