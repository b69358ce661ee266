package model

import "errors"

// ErrNotAllowed is returned when the session's user may not perform an
// action, before anything is sent to the CMS.
var ErrNotAllowed = errors.New("action not allowed for this user")

// ValidationError rejects user input. Message is shown to the user.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Invalid returns a ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
