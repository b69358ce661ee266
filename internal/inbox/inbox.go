// Package inbox lists the signed-in user's notifications and marks them
// read or deletes them.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nhle/malharro-cms/internal/cms"
	"github.com/nhle/malharro-cms/internal/model"
	"github.com/nhle/malharro-cms/internal/mutation"
	"github.com/nhle/malharro-cms/internal/normalize"
	"github.com/nhle/malharro-cms/internal/notice"
	"github.com/nhle/malharro-cms/internal/notify"
	"github.com/nhle/malharro-cms/internal/resolve"
	"github.com/nhle/malharro-cms/internal/session"
)

// Collection is the CMS collection of notifications.
const Collection = notify.Collection

// DefaultPageSize is how many notifications a listing asks for.
const DefaultPageSize = 200

// Schema fills the fields older or trimmed responses leave out.
var Schema = normalize.Schema{
	TitleField: "titulo",
	Fallbacks: map[string]any{
		"titulo":  "Notificación",
		"mensaje": "",
		"tipo":    string(model.NotificationSystem),
		"leida":   string(model.Unread),
	},
}

// contentFields are the fields a usable listing row carries.
var contentFields = []string{"titulo", "mensaje", "tipo", "leida"}

// Variant names the listing query that produced a page.
type Variant int

const (
	// VariantFields selects explicit fields and relation fields.
	VariantFields Variant = iota

	// VariantPopulateAll populates every first-level relation.
	VariantPopulateAll

	// VariantPerItem lists identifiers and fetches each record.
	VariantPerItem
)

func (v Variant) String() string {
	switch v {
	case VariantFields:
		return "fields"
	case VariantPopulateAll:
		return "populate-all"
	case VariantPerItem:
		return "per-item"
	}
	return fmt.Sprintf("Variant(%d)", int(v))
}

// Page is one load of the inbox, newest first.
type Page struct {
	Items   []model.Notification
	Variant Variant

	// Dropped counts records whose detail fetch failed.
	Dropped int
}

// Filter selects notifications by type.
type Filter string

const (
	FilterAll      Filter = "todas"
	FilterWorkItem Filter = Filter(model.NotificationWorkItem)
	FilterAgenda   Filter = Filter(model.NotificationAgenda)
	FilterSystem   Filter = Filter(model.NotificationSystem)
)

// ParseFilter returns the filter named s. Unknown names select all.
func ParseFilter(s string) Filter {
	switch f := Filter(s); f {
	case FilterWorkItem, FilterAgenda, FilterSystem:
		return f
	}
	return FilterAll
}

// MarkAllReport counts the outcome of MarkAllRead.
type MarkAllReport struct {
	Marked int
	Failed int
}

// Service runs inbox operations.
type Service struct {
	client      *cms.Client
	writer      *mutation.Coordinator
	resolver    *resolve.Resolver
	schema      normalize.Schema
	pageSize    int
	concurrency int
	log         *slog.Logger
}

// NewService returns a Service. A pageSize of zero uses DefaultPageSize
// and fallbacks are merged over the built-in placeholders.
func NewService(
	client *cms.Client,
	writer *mutation.Coordinator,
	pageSize int,
	fallbacks map[string]any,
	log *slog.Logger,
) *Service {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
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
		client:      client,
		writer:      writer.WithPatchRetry(),
		resolver:    resolve.NewResolver(client, Collection, log),
		schema:      schema,
		pageSize:    pageSize,
		concurrency: 4,
		log:         log,
	}
}

// List loads the signed-in user's notifications. The field-selecting
// query runs first. When it fails, returns nothing, or returns rows with
// none of the content fields, the populate-all query runs instead, and
// when that fails too each record is fetched on its own.
func (s *Service) List(ctx context.Context, sess *session.Session) (Page, error) {
	if !sess.Authenticated() {
		return Page{}, model.ErrNotAllowed
	}
	uid := sess.UserID()

	recs, err := s.list(ctx, sess, s.fieldsQuery(uid))
	switch {
	case err != nil:
		s.log.Debug("inbox field query failed", "err", err)
	case len(recs) > 0 && !looksEmpty(recs):
		return s.page(recs, VariantFields, 0), nil
	default:
		s.log.Debug("inbox field query returned no content", "rows", len(recs))
	}

	recs, err = s.list(ctx, sess, s.baseQuery(uid).PopulateAll())
	if err == nil {
		return s.page(recs, VariantPopulateAll, 0), nil
	}
	s.log.Warn("inbox populate query failed, fetching records one by one", "err", err)

	recs, dropped, err := s.perItem(ctx, sess, uid)
	if err != nil {
		return Page{}, fmt.Errorf("listing notifications: %w", err)
	}
	return s.page(recs, VariantPerItem, dropped), nil
}

func (s *Service) baseQuery(uid int64) *cms.Query {
	return cms.NewQuery().
		Filter("receptor.id", cms.OpEq, uid).
		Sort("createdAt", true).
		PageSize(s.pageSize)
}

func (s *Service) fieldsQuery(uid int64) *cms.Query {
	return s.baseQuery(uid).
		Fields("id", "documentId", "titulo", "mensaje", "tipo", "leida", "createdAt", "fechaEmision").
		PopulateFields("emisor", "id", "username", "name", "surname").
		PopulateFields("receptor", "id").
		PopulateFields("usinaAfectada", "titulo", "aprobado").
		PopulateFields("agendaAfectada", "tituloActividad", "fecha")
}

func (s *Service) list(ctx context.Context, sess *session.Session, q *cms.Query) ([]normalize.Record, error) {
	resp, err := s.client.List(ctx, sess.BearerToken(), cms.CollectionPath(Collection), q)
	if err != nil {
		return nil, err
	}
	return normalize.NormalizeList(resp.Data, normalize.Schema{})
}

// perItem lists identifiers only and fetches every record with its
// relations. Records whose fetch fails are dropped.
func (s *Service) perItem(ctx context.Context, sess *session.Session, uid int64) ([]normalize.Record, int, error) {
	q := cms.NewQuery().
		Filter("receptor.id", cms.OpEq, uid).
		Fields("id", "documentId").
		PageSize(s.pageSize)
	rows, err := s.list(ctx, sess, q)
	if err != nil {
		return nil, 0, err
	}

	full := make([]normalize.Record, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, row := range rows {
		key := mutation.KeyOf(row)
		if key.IsZero() {
			continue
		}
		g.Go(func() error {
			raw, err := s.client.One(gctx, sess.BearerToken(),
				cms.CollectionPath(Collection, key.Segment()), cms.NewQuery().PopulateAll())
			if err != nil {
				s.log.Debug("dropping notification", "key", key, "err", err)
				return nil
			}
			if rec, err := normalize.Normalize(raw, normalize.Schema{}); err == nil {
				full[i] = rec
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]normalize.Record, 0, len(full))
	for _, rec := range full {
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, len(rows) - len(out), nil
}

// looksEmpty reports whether every row lacks all content fields, which
// happens when the CMS ignores the requested field list.
func looksEmpty(recs []normalize.Record) bool {
	for _, rec := range recs {
		for _, f := range contentFields {
			if v, ok := rec[f]; ok && v != nil && v != "" && v != false {
				return false
			}
		}
	}
	return true
}

func (s *Service) page(recs []normalize.Record, v Variant, dropped int) Page {
	items := make([]model.Notification, 0, len(recs))
	for _, rec := range recs {
		n, err := s.decode(rec)
		if err != nil {
			s.log.Warn("skipping malformed notification", "err", err)
			dropped++
			continue
		}
		items = append(items, n)
	}
	s.log.Debug("inbox loaded", "variant", v, "items", len(items), "dropped", dropped)
	return Page{Items: items, Variant: v, Dropped: dropped}
}

func (s *Service) decode(rec normalize.Record) (model.Notification, error) {
	rec, err := normalize.Normalize(rec, s.schema)
	if err != nil {
		return model.Notification{}, err
	}
	var n model.Notification
	if err := normalize.Decode(rec, &n); err != nil {
		return model.Notification{}, err
	}
	return n, nil
}

// MarkRead marks n read. A notification already read is returned as is.
// The record is addressed by document id, then numeric id; when both
// answer 404 its numeric id is resolved and the update retried once.
// The returned copy carries the read state and any resolved id.
func (s *Service) MarkRead(ctx context.Context, sess *session.Session, n model.Notification) (model.Notification, error) {
	if n.IsRead() {
		return n, nil
	}
	if !sess.Authenticated() {
		return n, model.ErrNotAllowed
	}

	payload := map[string]any{"leida": string(model.Read)}
	key := mutation.Key{ID: n.ID, DocumentID: n.DocumentID}

	var raw map[string]any
	err := cms.ErrNoIdentifier
	if !key.IsZero() {
		raw, err = s.writer.UpdateWithFallback(ctx, sess, Collection, key, payload)
	}
	if err != nil && !cms.IsNotFound(err) && !errors.Is(err, cms.ErrNoIdentifier) {
		return n, fmt.Errorf("marking notification %s read: %w", key, err)
	}

	if err != nil {
		res, rerr := s.resolve(ctx, sess, n)
		if rerr != nil {
			return n, fmt.Errorf("marking notification %s read: %w", key, rerr)
		}
		raw, err = s.writer.Update(ctx, sess, Collection, mutation.ByID(res.ID), payload)
		if err != nil {
			return n, fmt.Errorf("marking notification %d read: %w", res.ID, err)
		}
	}

	out := n
	out.State = model.Read
	if rec, err := normalize.Normalize(raw, normalize.Schema{}); err == nil {
		if id := rec.ID(); id != 0 {
			out.ID = id
		}
		if doc := rec.DocumentID(); doc != "" {
			out.DocumentID = doc
		}
	}
	return out, nil
}

// MarkAllRead marks every unread notification concurrently. Individual
// failures are counted but do not stop the others, and the returned list
// shows every item read.
func (s *Service) MarkAllRead(
	ctx context.Context,
	sess *session.Session,
	items []model.Notification,
) ([]model.Notification, MarkAllReport) {
	out := make([]model.Notification, len(items))
	copy(out, items)

	var (
		marked = make([]bool, len(items))
		g      errgroup.Group
	)
	g.SetLimit(s.concurrency)
	for i, n := range items {
		if n.IsRead() {
			continue
		}
		g.Go(func() error {
			updated, err := s.MarkRead(ctx, sess, n)
			if err != nil {
				s.log.Warn("could not mark notification read", "id", n.ID, "doc", n.DocumentID, "err", err)
				return nil
			}
			out[i] = updated
			marked[i] = true
			return nil
		})
	}
	_ = g.Wait()

	var report MarkAllReport
	for i, n := range items {
		if n.IsRead() {
			continue
		}
		if marked[i] {
			report.Marked++
		} else {
			report.Failed++
		}
	}
	for i := range out {
		out[i].State = model.Read
	}
	return out, report
}

// Delete removes n, by document id first and on 404 by numeric id. When
// both answer 404 its numeric id is resolved and the delete retried once.
func (s *Service) Delete(ctx context.Context, sess *session.Session, n model.Notification) mutation.Result {
	if !sess.Authenticated() {
		return mutation.Failed(model.ErrNotAllowed)
	}
	key := mutation.Key{ID: n.ID, DocumentID: n.DocumentID}
	res := s.writer.DeleteWithFallback(ctx, sess, Collection, key)
	if res.OK() || (res.Failed.Kind != cms.KindNotFound && !errors.Is(res.Err(), cms.ErrNoIdentifier)) {
		return res
	}

	found, err := s.resolve(ctx, sess, n)
	if err != nil {
		return mutation.Failed(fmt.Errorf("deleting notification %s: %w", key, err))
	}
	res = s.writer.Delete(ctx, sess, Collection, mutation.ByID(found.ID))
	if res.Applied != nil {
		res.Applied.Key = key
	}
	return res
}

func (s *Service) resolve(ctx context.Context, sess *session.Session, n model.Notification) (resolve.Resolution, error) {
	return s.resolver.Resolve(ctx, sess, resolve.Lookup{
		DocumentID:  n.DocumentID,
		RecipientID: sess.UserID(),
		Title:       n.Title,
		ApproxTime:  n.CreatedAt,
	})
}

// FilterByType returns the items of the selected type.
func FilterByType(items []model.Notification, f Filter) []model.Notification {
	if f == FilterAll || f == "" {
		return items
	}
	out := make([]model.Notification, 0, len(items))
	for _, n := range items {
		if Filter(n.Type) == f {
			out = append(out, n)
		}
	}
	return out
}

// UnreadCount returns how many items are unread.
func UnreadCount(items []model.Notification) int {
	c := 0
	for _, n := range items {
		if !n.IsRead() {
			c++
		}
	}
	return c
}

// ErrorNotice returns the notice for a failed mark-read.
func ErrorNotice(err error) notice.Notice {
	switch {
	case cms.IsForbidden(err):
		return notice.Notice{Level: notice.LevelError,
			Message: "Sin permisos para actualizar notificaciones. Pedí que habiliten la actualización para usuarios autenticados."}
	case cms.IsNotFound(err):
		return notice.Notice{Level: notice.LevelError,
			Message: "No se encontró la notificación en el servidor."}
	case cms.IsMethodNotAllowed(err):
		return notice.Notice{Level: notice.LevelError,
			Message: "Método no permitido: el servidor no acepta PUT ni PATCH para notificaciones."}
	}
	return notice.FromError(err)
}

// Age formats how long ago a notification was created.
func Age(n model.Notification, now time.Time) string {
	if n.CreatedAt.IsZero() {
		return ""
	}
	d := now.Sub(n.CreatedAt)
	switch {
	case d < time.Minute:
		return "recién"
	case d < time.Hour:
		return fmt.Sprintf("hace %d min", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("hace %d h", int(d.Hours()))
	}
	return n.CreatedAt.Local().Format("02/01/2006 15:04")
}
