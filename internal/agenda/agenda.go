// Package agenda implements calendar events: creation with date rules,
// edits and deletions that notify the creator, and upcoming listings.
package agenda

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nhle/malharro-cms/internal/cms"
	"github.com/nhle/malharro-cms/internal/model"
	"github.com/nhle/malharro-cms/internal/mutation"
	"github.com/nhle/malharro-cms/internal/normalize"
	"github.com/nhle/malharro-cms/internal/notify"
	"github.com/nhle/malharro-cms/internal/session"
)

// Collection is the CMS collection of agenda items.
const Collection = "agendas"

// ImageField is the relation holding the event image.
const ImageField = "imagen"

// Limits on user input.
const (
	MinTitleLength = 3
	MaxTitleLength = 80
	MinBodyLength  = 10
	MaxImageBytes  = 3 << 20
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/avif": true,
}

// Schema normalizes agenda items.
var Schema = normalize.Schema{
	TitleField: "tituloActividad",
	Aliases: map[string]string{
		"titulo":      "tituloActividad",
		"contenido":   "contenidoActividad",
		"descripcion": "contenidoActividad",
		"portada":     "imagen",
	},
	Fallbacks: map[string]any{
		"tituloActividad":    "Sin título",
		"contenidoActividad": "",
	},
}

// Image is a new image to upload with its size, which the upload
// reader alone cannot report.
type Image struct {
	File cms.UploadFile
	Size int64
}

// Draft is the editable content of an agenda item.
type Draft struct {
	Title string
	Body  string
	Date  time.Time
	Image *Image
}

// clean returns the draft with markup stripped from text fields.
func (d Draft) clean() Draft {
	d.Title = normalize.PlainText(d.Title)
	d.Body = normalize.PlainText(d.Body)
	return d
}

func (d Draft) validate(hasImage bool) error {
	switch n := utf8.RuneCountInString(d.Title); {
	case n == 0:
		return model.Invalid("tituloActividad", "El título es obligatorio.")
	case n < MinTitleLength:
		return model.Invalid("tituloActividad", fmt.Sprintf("Usá al menos %d caracteres.", MinTitleLength))
	case n > MaxTitleLength:
		return model.Invalid("tituloActividad", fmt.Sprintf("Máximo %d caracteres.", MaxTitleLength))
	}
	switch n := utf8.RuneCountInString(d.Body); {
	case n == 0:
		return model.Invalid("contenidoActividad", "La descripción es obligatoria.")
	case n < MinBodyLength:
		return model.Invalid("contenidoActividad", fmt.Sprintf("Describí un poco más (mín. %d).", MinBodyLength))
	}
	if d.Date.IsZero() {
		return model.Invalid("fecha", "La fecha es obligatoria.")
	}
	if d.Image != nil {
		if !allowedImageTypes[d.Image.File.ContentType] {
			return model.Invalid("imagen", "Formato inválido (JPG, PNG, WEBP o AVIF).")
		}
		if d.Image.Size > MaxImageBytes {
			return model.Invalid("imagen", "La imagen supera los 3 MB.")
		}
	} else if !hasImage {
		return model.Invalid("imagen", "La agenda debe tener una imagen.")
	}
	return nil
}

func (d Draft) payload() map[string]any {
	return map[string]any{
		"tituloActividad":    d.Title,
		"contenidoActividad": d.Body,
		"fecha":              d.Date.Format(time.DateOnly),
	}
}

func (d Draft) attachment() *mutation.Attachment {
	if d.Image == nil {
		return nil
	}
	return &mutation.Attachment{Field: ImageField, File: d.Image.File}
}

// Service runs agenda operations.
type Service struct {
	client   *cms.Client
	writer   *mutation.Coordinator
	notifier *notify.Notifier
	editors  []string
	schema   normalize.Schema
	now      func() time.Time
	log      *slog.Logger
}

// NewService returns a Service. Users with a moderator role may create
// agenda items and manage everyone's.
func NewService(
	client *cms.Client,
	writer *mutation.Coordinator,
	notifier *notify.Notifier,
	roles model.RolesConfig,
	fallbacks map[string]any,
	log *slog.Logger,
) *Service {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	schema := Schema
	schema.Fallbacks = map[string]any{}
	for k, v := range Schema.Fallbacks {
		schema.Fallbacks[k] = v
	}
	for k, v := range fallbacks {
		schema.Fallbacks[k] = v
	}
	return &Service{
		client:   client,
		writer:   writer,
		notifier: notifier,
		editors:  roles.Moderators,
		schema:   schema,
		now:      time.Now,
		log:      log,
	}
}

// Create adds an agenda item owned by the signed-in user. The date may
// not be before today.
func (s *Service) Create(ctx context.Context, sess *session.Session, d Draft) mutation.Result {
	if !sess.Authenticated() || !sess.HasRole(s.editors) {
		return mutation.Failed(model.ErrNotAllowed)
	}
	d = d.clean()
	if err := d.validate(false); err != nil {
		return mutation.Failed(err)
	}
	if dateOnly(d.Date).Before(dateOnly(s.now())) {
		return mutation.Failed(model.Invalid("fecha", "La fecha no puede estar en el pasado."))
	}

	payload := d.payload()
	payload["creador"] = map[string]any{"connect": []any{map[string]any{"id": sess.UserID()}}}

	return s.writer.Submit(ctx, sess, mutation.Write{
		Collection: Collection,
		Payload:    payload,
		Schema:     s.schema,
	}, d.attachment())
}

// Update applies d to item. Editing someone else's item requires a
// reason, which is sent to the creator. Changing the date also tells
// every user the event was rescheduled.
func (s *Service) Update(
	ctx context.Context,
	sess *session.Session,
	item model.AgendaItem,
	d Draft,
	reason string,
) notify.Outcome {
	owner := item.OwnedBy(sess.UserID())
	if !owner && !sess.HasRole(s.editors) {
		return notify.Outcome{Result: mutation.Failed(model.ErrNotAllowed)}
	}
	d = d.clean()
	reason = normalize.PlainText(reason)
	if err := d.validate(item.Image != nil); err != nil {
		return notify.Outcome{Result: mutation.Failed(err)}
	}
	if !owner && reason == "" {
		return notify.Outcome{Result: mutation.Failed(model.Invalid("motivo", "Debés indicar el motivo de la modificación."))}
	}

	changes := changedFields(item, d)
	res := s.writer.Submit(ctx, sess, mutation.Write{
		Collection:    Collection,
		Key:           mutation.Key{ID: item.ID, DocumentID: item.DocumentID},
		Payload:       d.payload(),
		Schema:        s.schema,
		DocumentFirst: true,
	}, d.attachment())
	if !res.OK() {
		return notify.Outcome{Result: res}
	}

	report := &notify.Report{Event: notify.EventContentEdited}
	if !owner && item.Creator != nil {
		detail := "Sin cambios sustanciales."
		if len(changes) > 0 {
			detail = "Cambios: " + strings.Join(changes, ", ") + "."
		}
		r := s.notifier.Notify(ctx, sess, notify.EventContentEdited, notify.Owner(item.Creator.ID), notify.Payload{
			Title: "Tu agenda fue modificada",
			Message: fmt.Sprintf("Tu agenda \"%s\" fue modificada %s. %s Motivo: %s",
				item.Title, s.stamp(sess), detail, reason),
			Type:     model.NotificationAgenda,
			AgendaID: item.ID,
		})
		merge(report, r)
	}

	if !dateOnly(item.Date).Equal(dateOnly(d.Date)) {
		everyone, err := s.notifier.Everyone(ctx, sess)
		if err != nil {
			s.log.Warn("could not list users for reschedule notice", "err", err)
			merge(report, *notify.Failed(notify.EventContentEdited, err))
		} else {
			r := s.notifier.Notify(ctx, sess, notify.EventContentEdited, everyone, notify.Payload{
				Title:    "Evento reprogramado",
				Message:  fmt.Sprintf("El evento \"%s\" cambió su fecha a %s.", d.Title, d.Date.Format("02/01/2006")),
				Type:     model.NotificationAgenda,
				AgendaID: item.ID,
			})
			merge(report, r)
		}
	}
	return notify.Outcome{Result: res, Report: report}
}

// Delete removes item. Deleting someone else's item requires a reason;
// the creator is notified before the record disappears so the
// notification can still link to it.
func (s *Service) Delete(ctx context.Context, sess *session.Session, item model.AgendaItem, reason string) notify.Outcome {
	owner := item.OwnedBy(sess.UserID())
	if !owner && !sess.HasRole(s.editors) {
		return notify.Outcome{Result: mutation.Failed(model.ErrNotAllowed)}
	}
	reason = normalize.PlainText(reason)
	if !owner && reason == "" {
		return notify.Outcome{Result: mutation.Failed(model.Invalid("motivo", "Debés indicar el motivo."))}
	}

	var report *notify.Report
	if !owner && item.Creator != nil {
		r := s.notifier.Notify(ctx, sess, notify.EventContentEdited, notify.Owner(item.Creator.ID), notify.Payload{
			Title: "Tu agenda fue eliminada",
			Message: fmt.Sprintf("Tu agenda \"%s\" fue eliminada %s. Motivo: %s",
				item.Title, s.stamp(sess), reason),
			Type:     model.NotificationAgenda,
			AgendaID: item.ID,
		})
		report = &r
	}

	res := s.writer.DeleteWithFallback(ctx, sess, Collection, mutation.Key{ID: item.ID, DocumentID: item.DocumentID})
	return notify.Outcome{Result: res, Report: report}
}

// List returns every agenda item sorted by date.
func (s *Service) List(ctx context.Context, sess *session.Session) ([]model.AgendaItem, error) {
	return s.list(ctx, sess, cms.NewQuery())
}

// Upcoming returns the items dated today or later, soonest first.
func (s *Service) Upcoming(ctx context.Context, sess *session.Session) ([]model.AgendaItem, error) {
	today := dateOnly(s.now()).Format(time.DateOnly)
	return s.list(ctx, sess, cms.NewQuery().Filter("fecha", cms.OpGte, today))
}

// Mine returns the items created by the signed-in user.
func (s *Service) Mine(ctx context.Context, sess *session.Session) ([]model.AgendaItem, error) {
	if !sess.Authenticated() {
		return nil, model.ErrNotAllowed
	}
	return s.list(ctx, sess, cms.NewQuery().Filter("creador.id", cms.OpEq, sess.UserID()))
}

// Decode converts a record returned by a write into an AgendaItem.
func (s *Service) Decode(rec normalize.Record) (model.AgendaItem, error) {
	var item model.AgendaItem
	if err := normalize.Decode(rec, &item); err != nil {
		return model.AgendaItem{}, err
	}
	return item, nil
}

func (s *Service) list(ctx context.Context, sess *session.Session, q *cms.Query) ([]model.AgendaItem, error) {
	q.Populate(ImageField, "creador").Sort("fecha", false).PageSize(200)
	resp, err := s.client.List(ctx, sess.BearerToken(), cms.CollectionPath(Collection), q)
	if err != nil {
		return nil, fmt.Errorf("listing agenda: %w", err)
	}
	items := make([]model.AgendaItem, 0, len(resp.Data))
	for _, raw := range resp.Data {
		rec, err := normalize.Normalize(raw, s.schema)
		if err != nil {
			continue
		}
		item, err := s.Decode(rec)
		if err != nil {
			s.log.Warn("skipping malformed agenda item", "err", err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Service) stamp(sess *session.Session) string {
	now := s.now()
	editor := "Administrador"
	if sess.User != nil && sess.User.DisplayName() != "" {
		editor = sess.User.DisplayName()
	}
	return fmt.Sprintf("el %s a las %s por %s", now.Format("02/01/2006"), now.Format("15:04"), editor)
}

func changedFields(item model.AgendaItem, d Draft) []string {
	var out []string
	if normalize.PlainText(item.Title) != d.Title {
		out = append(out, "título")
	}
	if normalize.PlainText(item.Body) != d.Body {
		out = append(out, "descripción")
	}
	if !dateOnly(item.Date).Equal(dateOnly(d.Date)) {
		out = append(out, "fecha")
	}
	if d.Image != nil {
		out = append(out, "imagen")
	}
	return out
}

func merge(dst *notify.Report, r notify.Report) {
	dst.Sent += r.Sent
	dst.Unlinked += r.Unlinked
	dst.Failed = append(dst.Failed, r.Failed...)
}

// dateOnly keeps the calendar day of t in its own location.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
