// Package usina implements the student work gallery: submission, owner
// edits, moderation and listing.
package usina

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

// Collection is the CMS collection of work items.
const Collection = "usinas"

// MaxReasonLength bounds a rejection reason.
const MaxReasonLength = 500

// MediaField is the relation that holds the work's file.
const MediaField = "media"

// Schema normalizes work items. Older entries use "nombre" for the title,
// "imagen" for the media and "estado" for the status.
var Schema = normalize.Schema{
	TitleField: "titulo",
	Aliases: map[string]string{
		"nombre": "titulo",
		"imagen": "media",
		"estado": "aprobado",
	},
	Fallbacks: map[string]any{
		"titulo":   "Sin título",
		"aprobado": string(model.StatusPending),
	},
}

// Draft is the owner-editable content of a work item.
type Draft struct {
	Title   string
	Program string
	Link    string

	// Attachment is uploaded and linked as the media when set.
	Attachment *cms.UploadFile
}

func (d Draft) validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return model.Invalid("titulo", "El título es obligatorio.")
	}
	if strings.TrimSpace(d.Program) == "" {
		return model.Invalid("carrera", "La carrera es obligatoria.")
	}
	return nil
}

func (d Draft) payload() map[string]any {
	return map[string]any{
		"titulo":  strings.TrimSpace(d.Title),
		"carrera": strings.TrimSpace(d.Program),
		"link":    strings.TrimSpace(d.Link),
	}
}

func (d Draft) attachment() *mutation.Attachment {
	if d.Attachment == nil {
		return nil
	}
	return &mutation.Attachment{Field: MediaField, File: *d.Attachment}
}

// ListFilter narrows a listing. Zero values match everything.
type ListFilter struct {
	Status    model.ApprovalStatus
	CreatorID int64
	Program   string

	// Oldest sorts by creation time ascending instead of newest first.
	Oldest bool
}

// Service runs work item operations.
type Service struct {
	client     *cms.Client
	writer     *mutation.Coordinator
	notifier   *notify.Notifier
	moderators []string
	schema     normalize.Schema
	now        func() time.Time
	log        *slog.Logger
}

// NewService returns a Service. fallbacks are merged over the built-in
// placeholder values.
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
		client:     client,
		writer:     writer,
		notifier:   notifier,
		moderators: roles.Moderators,
		schema:     schema,
		now:        time.Now,
		log:        log,
	}
}

// List returns work items matching f.
func (s *Service) List(ctx context.Context, sess *session.Session, f ListFilter) ([]model.WorkItem, error) {
	q := cms.NewQuery().
		Populate(MediaField, "creador").
		Sort("createdAt", !f.Oldest).
		PageSize(200)
	if f.Status != "" {
		q.Filter("aprobado", cms.OpEq, string(f.Status))
	}
	if f.CreatorID != 0 {
		q.Filter("creador.id", cms.OpEq, f.CreatorID)
	}
	if f.Program != "" {
		q.Filter("carrera", cms.OpEq, f.Program)
	}

	resp, err := s.client.List(ctx, sess.BearerToken(), cms.CollectionPath(Collection), q)
	if err != nil {
		return nil, fmt.Errorf("listing work items: %w", err)
	}

	items := make([]model.WorkItem, 0, len(resp.Data))
	for _, raw := range resp.Data {
		item, err := s.decode(raw)
		if err != nil {
			s.log.Warn("skipping malformed work item", "err", err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// Gallery returns approved work items, optionally for one program.
func (s *Service) Gallery(ctx context.Context, sess *session.Session, program string, oldest bool) ([]model.WorkItem, error) {
	return s.List(ctx, sess, ListFilter{Status: model.StatusApproved, Program: program, Oldest: oldest})
}

// Mine returns the signed-in user's work items.
func (s *Service) Mine(ctx context.Context, sess *session.Session) ([]model.WorkItem, error) {
	if !sess.Authenticated() {
		return nil, model.ErrNotAllowed
	}
	return s.List(ctx, sess, ListFilter{CreatorID: sess.UserID()})
}

// Get fetches one work item.
func (s *Service) Get(ctx context.Context, sess *session.Session, key mutation.Key) (model.WorkItem, error) {
	raw, err := s.client.One(ctx, sess.BearerToken(), cms.CollectionPath(Collection, key.Segment()),
		cms.NewQuery().Populate(MediaField, "creador"))
	if err != nil {
		return model.WorkItem{}, fmt.Errorf("fetching work item %s: %w", key, err)
	}
	return s.decode(raw)
}

// Submit creates a pending work item owned by the signed-in user and
// tells staff it needs review.
func (s *Service) Submit(ctx context.Context, sess *session.Session, d Draft) notify.Outcome {
	if !sess.Authenticated() {
		return notify.Outcome{Result: mutation.Failed(model.ErrNotAllowed)}
	}
	if err := d.validate(); err != nil {
		return notify.Outcome{Result: mutation.Failed(err)}
	}

	payload := d.payload()
	payload["aprobado"] = string(model.StatusPending)
	payload["creador"] = map[string]any{"connect": []any{map[string]any{"id": sess.UserID()}}}

	res := s.writer.Submit(ctx, sess, mutation.Write{
		Collection: Collection,
		Payload:    payload,
		Schema:     s.schema,
	}, d.attachment())
	if !res.OK() {
		return notify.Outcome{Result: res}
	}

	title := strings.TrimSpace(d.Title)
	report := s.notifyStaff(ctx, sess, notify.EventCreatedPending, notify.Payload{
		Title:      "Nueva usina pendiente",
		Message:    fmt.Sprintf("%s envió la usina \"%s\" para revisión.", actorName(sess), title),
		Type:       model.NotificationWorkItem,
		WorkItemID: res.Applied.Key.ID,
	})
	return notify.Outcome{Result: res, Report: report}
}

// Edit applies the owner's changes. Any edit sends the item back to
// pending and tells staff to review it again.
func (s *Service) Edit(ctx context.Context, sess *session.Session, item model.WorkItem, d Draft) notify.Outcome {
	if !item.OwnedBy(sess.UserID()) {
		return notify.Outcome{Result: mutation.Failed(model.ErrNotAllowed)}
	}
	if err := d.validate(); err != nil {
		return notify.Outcome{Result: mutation.Failed(err)}
	}

	payload := d.payload()
	payload["aprobado"] = string(model.StatusAfterOwnerEdit(item.Status))
	payload["motivoRechazo"] = nil

	res := s.writer.Submit(ctx, sess, mutation.Write{
		Collection: Collection,
		Key:        mutation.ByID(item.ID),
		Payload:    payload,
		Schema:     s.schema,
	}, d.attachment())
	if !res.OK() {
		return notify.Outcome{Result: res}
	}

	report := s.notifyStaff(ctx, sess, notify.EventContentEdited, notify.Payload{
		Title:      "Usina editada",
		Message:    fmt.Sprintf("%s editó la usina \"%s\"; vuelve a estar pendiente.", actorName(sess), strings.TrimSpace(d.Title)),
		Type:       model.NotificationWorkItem,
		WorkItemID: item.ID,
	})
	return notify.Outcome{Result: res, Report: report}
}

// UpdateStatus moves a work item to status on behalf of a moderator and
// notifies its owner. Rejections need a reason of at most 500
// characters.
func (s *Service) UpdateStatus(
	ctx context.Context,
	sess *session.Session,
	item model.WorkItem,
	status model.ApprovalStatus,
	reason string,
) notify.Outcome {
	if !sess.HasRole(s.moderators) {
		return notify.Outcome{Result: mutation.Failed(model.ErrNotAllowed)}
	}
	from := item.Status
	if from == "" {
		from = model.StatusPending
	}
	if !model.CanTransition(from, status) {
		return notify.Outcome{Result: mutation.Failed(model.Invalid("aprobado",
			fmt.Sprintf("No se puede pasar de %s a %s.", from.Label(), status.Label())))}
	}

	reason = strings.TrimSpace(reason)
	payload := map[string]any{"aprobado": string(status), "motivoRechazo": nil}
	if status == model.StatusRejected {
		if reason == "" {
			return notify.Outcome{Result: mutation.Failed(model.Invalid("motivoRechazo", "Escribí el motivo del rechazo."))}
		}
		if utf8.RuneCountInString(reason) > MaxReasonLength {
			return notify.Outcome{Result: mutation.Failed(model.Invalid("motivoRechazo",
				fmt.Sprintf("El motivo no puede superar %d caracteres.", MaxReasonLength)))}
		}
		payload["motivoRechazo"] = reason
	}

	res := s.writer.CreateOrUpdateWithMedia(ctx, sess, mutation.Write{
		Collection: Collection,
		Key:        mutation.ByID(item.ID),
		Payload:    payload,
		Schema:     s.schema,
	}, nil)
	if !res.OK() {
		return notify.Outcome{Result: res}
	}

	if item.Creator == nil || item.Creator.ID == 0 {
		s.log.Info("work item has no owner to notify", "id", item.ID)
		return notify.Outcome{Result: res}
	}

	report := s.notifier.Notify(ctx, sess, notify.EventStatusChanged, notify.Owner(item.Creator.ID), notify.Payload{
		Title:      "Tu usina fue " + status.Label(),
		Message:    s.statusMessage(sess, item.Title, status, reason),
		Type:       model.NotificationWorkItem,
		WorkItemID: item.ID,
	})
	return notify.Outcome{Result: res, Report: &report}
}

// Delete removes a work item. Owners may delete their own; moderators
// may delete any.
func (s *Service) Delete(ctx context.Context, sess *session.Session, item model.WorkItem) mutation.Result {
	if !item.OwnedBy(sess.UserID()) && !sess.HasRole(s.moderators) {
		return mutation.Failed(model.ErrNotAllowed)
	}
	return s.writer.Delete(ctx, sess, Collection, mutation.ByID(item.ID))
}

// Decode converts a record returned by a write into a WorkItem.
func (s *Service) Decode(rec normalize.Record) (model.WorkItem, error) {
	var item model.WorkItem
	if err := normalize.Decode(rec, &item); err != nil {
		return model.WorkItem{}, err
	}
	return item, nil
}

func (s *Service) decode(raw map[string]any) (model.WorkItem, error) {
	rec, err := normalize.Normalize(raw, s.schema)
	if err != nil {
		return model.WorkItem{}, err
	}
	return s.Decode(rec)
}

func (s *Service) notifyStaff(ctx context.Context, sess *session.Session, ev notify.Event, p notify.Payload) *notify.Report {
	staff, err := s.notifier.Staff(ctx, sess)
	if err != nil {
		s.log.Warn("could not list staff to notify", "err", err)
		return notify.Failed(ev, err)
	}
	report := s.notifier.Notify(ctx, sess, ev, staff, p)
	return &report
}

func (s *Service) statusMessage(sess *session.Session, title string, status model.ApprovalStatus, reason string) string {
	now := s.now()
	msg := fmt.Sprintf("Tu usina \"%s\" fue %s el %s a las %s por %s.",
		title, status.Label(), now.Format("02/01/2006"), now.Format("15:04"), actorName(sess))
	if status == model.StatusRejected {
		msg += "\nMotivo: " + reason
	}
	return msg
}

func actorName(sess *session.Session) string {
	if sess == nil || sess.User == nil {
		return "Administrador"
	}
	if name := sess.User.DisplayName(); name != "" {
		return name
	}
	return "Administrador"
}
