// Package notice turns operation outcomes into the messages shown to the
// user.
package notice

import (
	"errors"
	"fmt"

	"github.com/nhle/malharro-cms/internal/cms"
	"github.com/nhle/malharro-cms/internal/model"
	"github.com/nhle/malharro-cms/internal/mutation"
	"github.com/nhle/malharro-cms/internal/resolve"
	"github.com/nhle/malharro-cms/internal/session"
)

// Level is the severity of a notice.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notice is a user-visible message.
type Notice struct {
	Level   Level
	Message string
}

func (n Notice) String() string { return n.Message }

// Success returns a success notice.
func Success(format string, args ...any) Notice {
	return Notice{Level: LevelSuccess, Message: fmt.Sprintf(format, args...)}
}

// Warning returns a notice for a secondary action that failed without
// undoing the primary one.
func Warning(format string, args ...any) Notice {
	return Notice{Level: LevelWarning, Message: fmt.Sprintf(format, args...)}
}

// FromError returns an actionable error notice for err. Permission,
// missing record, expired session, unresolved identifier and upload
// failures each get their own wording.
func FromError(err error) Notice {
	msg := "Ocurrió un error inesperado. Intentá de nuevo."

	var upload *mutation.UploadFailedError
	var invalid *model.ValidationError
	switch {
	case err == nil:
		return Notice{Level: LevelInfo}
	case errors.As(err, &invalid):
		msg = invalid.Message
	case errors.Is(err, model.ErrNotAllowed):
		msg = "No tenés permisos para realizar esta acción."
	case errors.As(err, &upload):
		msg = "No se pudo subir el archivo: " + upload.Message
	case errors.Is(err, resolve.ErrIdentifierUnresolved):
		msg = "No se pudo identificar el registro en el servidor. Recargá la lista e intentá de nuevo."
	case errors.Is(err, session.ErrExpired):
		msg = "Tu sesión expiró. Iniciá sesión de nuevo."
	default:
		switch cms.KindOf(err) {
		case cms.KindForbidden:
			msg = "No tenés permisos para realizar esta acción."
		case cms.KindNotFound:
			msg = "El registro no existe en este entorno."
		case cms.KindUnauthorized:
			msg = "Tu sesión no es válida. Iniciá sesión de nuevo."
		case cms.KindTransport:
			msg = "No se pudo conectar con el servidor."
		case cms.KindValidation:
			var apiErr *cms.APIError
			if errors.As(err, &apiErr) && apiErr.Message != "" {
				msg = "Datos inválidos: " + apiErr.Message
			} else {
				msg = "Datos inválidos."
			}
		case cms.KindMalformed:
			msg = "El servidor devolvió una respuesta inesperada."
		case cms.KindServer:
			msg = "El servidor no pudo completar la operación."
		}
	}
	return Notice{Level: LevelError, Message: msg}
}

// FromResult returns success for an applied result and the error notice
// otherwise.
func FromResult(r mutation.Result, success string) Notice {
	if r.OK() {
		return Notice{Level: LevelSuccess, Message: success}
	}
	return FromError(r.Err())
}
