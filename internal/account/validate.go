package account

import (
	"regexp"

	"github.com/nhle/malharro-cms/internal/model"
)

var (
	emailPattern    = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9._%+-]*@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	usernamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9._]{2,19}$`)
	passwordPattern = regexp.MustCompile(`^[A-Za-z\d]{6,}$`)
	letterPattern   = regexp.MustCompile(`[A-Za-z]`)
	digitPattern    = regexp.MustCompile(`\d`)
)

// ValidateEmail checks an address starts with a letter and has a domain
// with a top-level part of two or more letters.
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return model.Invalid("email", "Ingresá un email válido.")
	}
	return nil
}

// ValidateUsername checks for 3 to 20 letters, digits, dots or
// underscores, starting with a letter.
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return model.Invalid("username",
			"El usuario debe tener entre 3 y 20 caracteres, empezar con una letra y usar solo letras, números, puntos o guiones bajos.")
	}
	return nil
}

// ValidatePassword checks for at least six letters and digits with at
// least one of each.
func ValidatePassword(password string) error {
	if !passwordPattern.MatchString(password) ||
		!letterPattern.MatchString(password) ||
		!digitPattern.MatchString(password) {
		return model.Invalid("password",
			"La contraseña debe tener al menos 6 caracteres, solo letras y números, con al menos una letra y un número.")
	}
	return nil
}
