package cms

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// ErrorKind classifies a failed CMS call.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindTransport
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindMethodNotAllowed
	KindValidation
	KindServer
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindMethodNotAllowed:
		return "method_not_allowed"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// kindForStatus maps an HTTP status code to an ErrorKind.
func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusMethodNotAllowed:
		return KindMethodNotAllowed
	case status == http.StatusBadRequest:
		return KindValidation
	case status >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}

// ErrorBody is the CMS error envelope:
// {"data": null, "error": {"status": 400, "name": "...", "message": "..."}}.
type ErrorBody struct {
	Error struct {
		Status  int            `json:"status"`
		Name    string         `json:"name"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	} `json:"error"`
}

// APIError is returned for any non-2xx CMS response.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Kind    ErrorKind
	Name    string
	Message string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("cms %s %s: %d %s", e.Method, e.Path, e.Status, msg)
}

// TransportError wraps a network-level failure.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("cms %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedError reports a 2xx response whose body did not have the
// expected shape.
type MalformedError struct {
	Path   string
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("cms %s: malformed response: %s", e.Path, e.Reason)
}

// KindOf returns the ErrorKind of err, or KindUnknown when err did not
// come from the CMS client.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	var tErr *TransportError
	if errors.As(err, &tErr) {
		return KindTransport
	}
	var mErr *MalformedError
	if errors.As(err, &mErr) {
		return KindMalformed
	}
	return KindUnknown
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the CMS.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsForbidden reports whether err is a 403 from the CMS.
func IsForbidden(err error) bool { return KindOf(err) == KindForbidden }

// IsUnauthorized reports whether err is a 401 from the CMS.
func IsUnauthorized(err error) bool { return KindOf(err) == KindUnauthorized }

// IsMethodNotAllowed reports whether err is a 405 from the CMS.
func IsMethodNotAllowed(err error) bool { return KindOf(err) == KindMethodNotAllowed }

// relationPattern matches the CMS message for links to missing records,
// e.g. "1 relation(s) of type api::usina.usina associated with this
// entity do not exist".
var relationPattern = regexp.MustCompile(`(?i)relation\(s\).+do not exist`)

// IsRelationError reports whether err is a validation error caused by a
// relation that could not be linked.
func IsRelationError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		return false
	}
	if relationPattern.MatchString(apiErr.Message) {
		return true
	}
	return strings.EqualFold(apiErr.Name, "ValidationError") &&
		strings.Contains(strings.ToLower(apiErr.Message), "relation")
}
