package inbox

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nhle/malharro-cms/internal/cms"
	"github.com/nhle/malharro-cms/internal/cms/cmstest"
	"github.com/nhle/malharro-cms/internal/model"
	"github.com/nhle/malharro-cms/internal/mutation"
	"github.com/nhle/malharro-cms/internal/notice"
	"github.com/nhle/malharro-cms/internal/resolve"
	"github.com/nhle/malharro-cms/internal/session"
)

type fixture struct {
	srv    *cmstest.Server
	svc    *Service
	sess   *session.Session
	userID int64
	other  int64
}

func setup(t *testing.T) *fixture {
	t.Helper()
	srv := cmstest.New(t)
	srv.Relate(Collection, "receptor", "users")
	srv.Relate(Collection, "emisor", "users")
	srv.Relate(Collection, "usinaAfectada", "usinas")
	srv.Relate(Collection, "agendaAfectada", "agendas")

	uid := srv.AddUser("alumno", model.RoleStudent)
	other := srv.AddUser("profe", model.RoleTeacher)

	client := cms.NewClient(srv.URL, 5*time.Second)
	svc := NewService(client, mutation.NewCoordinator(client, nil), 0, nil, nil)
	sess := session.New("tok", &model.User{ID: uid, Username: "alumno", Role: &model.RoleRef{Name: model.RoleStudent}})
	return &fixture{srv: srv, svc: svc, sess: sess, userID: uid, other: other}
}

func (f *fixture) seed(title, tipo, leida, created string, recipient int64) map[string]any {
	return f.srv.Seed(Collection, map[string]any{
		"titulo":    title,
		"mensaje":   "mensaje de " + title,
		"tipo":      tipo,
		"leida":     leida,
		"createdAt": created,
		"receptor":  recipient,
		"emisor":    f.other,
	})
}

func (f *fixture) seedInbox() {
	f.seed("Tu usina fue aprobada", "usina", "no-leida", "2025-06-01T10:00:00.000Z", f.userID)
	f.seed("Evento reprogramado", "agenda", "leida", "2025-06-02T10:00:00.000Z", f.userID)
	f.seed("Bienvenida", "sistema", "no-leida", "2025-06-03T10:00:00.000Z", f.userID)
	f.seed("Nueva usina pendiente", "usina", "no-leida", "2025-06-03T11:00:00.000Z", f.other)
}

func isListing(r cmstest.Request) bool {
	return r.Method == http.MethodGet && r.Path == "/"+Collection
}

func TestListFieldsVariant(t *testing.T) {
	f := setup(t)
	f.seedInbox()

	page, err := f.svc.List(context.Background(), f.sess)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Variant != VariantFields {
		t.Fatalf("expected fields variant, got %s", page.Variant)
	}
	if len(page.Items) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(page.Items))
	}
	if page.Items[0].Title != "Bienvenida" || page.Items[2].Title != "Tu usina fue aprobada" {
		t.Fatalf("expected newest first, got %q .. %q", page.Items[0].Title, page.Items[2].Title)
	}
	first := page.Items[0]
	if first.Sender == nil || first.Sender.Username != "profe" {
		t.Fatalf("expected sender profe, got %+v", first.Sender)
	}
	if first.RecipientID() != f.userID {
		t.Fatalf("expected recipient %d, got %d", f.userID, first.RecipientID())
	}
	if first.DocumentID == "" || first.ID == 0 {
		t.Fatalf("expected both identifiers, got %d/%q", first.ID, first.DocumentID)
	}

	reqs := f.srv.RequestsTo(http.MethodGet, "/"+Collection)
	if len(reqs) != 1 {
		t.Fatalf("expected a single listing request, got %d", len(reqs))
	}
	q := reqs[0].Query
	if q.Get("populate[emisor][fields][1]") != "username" || q.Get("pagination[pageSize]") != "200" {
		t.Fatalf("unexpected listing query: %v", q)
	}
}

func TestListNestedShape(t *testing.T) {
	f := setup(t)
	f.srv.SetShape(cmstest.Nested)
	f.seedInbox()

	page, err := f.svc.List(context.Background(), f.sess)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Variant != VariantFields || len(page.Items) != 3 {
		t.Fatalf("expected 3 items from fields variant, got %d (%s)", len(page.Items), page.Variant)
	}
	if s := page.Items[0].Sender; s == nil || s.ID != f.other {
		t.Fatalf("expected sender %d unwrapped from envelope, got %+v", f.other, s)
	}
	if page.Items[0].Type != model.NotificationSystem {
		t.Fatalf("expected system type, got %q", page.Items[0].Type)
	}
}

func TestListFallsBackWhenRowsLookEmpty(t *testing.T) {
	f := setup(t)
	f.seedInbox()
	for _, field := range contentFields {
		f.srv.HideInList(Collection, field)
	}

	page, err := f.svc.List(context.Background(), f.sess)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Variant != VariantPopulateAll {
		t.Fatalf("expected populate-all variant, got %s", page.Variant)
	}
	if len(page.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(page.Items))
	}
	n := page.Items[0]
	if n.Title != "Notificación" || n.Type != model.NotificationSystem || n.State != model.Unread {
		t.Fatalf("expected placeholders, got %q %q %q", n.Title, n.Type, n.State)
	}
}

func TestListFallsBackWhenFieldQueryFails(t *testing.T) {
	f := setup(t)
	f.seedInbox()
	f.srv.Hook(func(r cmstest.Request) *cmstest.Failure {
		if isListing(r) && r.Query.Get("fields[2]") != "" {
			return &cmstest.Failure{Status: http.StatusBadRequest, Name: "ValidationError", Message: "Invalid key fechaEmision"}
		}
		return nil
	})

	page, err := f.svc.List(context.Background(), f.sess)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Variant != VariantPopulateAll || len(page.Items) != 3 {
		t.Fatalf("expected 3 items from populate-all, got %d (%s)", len(page.Items), page.Variant)
	}
	if page.Items[0].Title != "Bienvenida" {
		t.Fatalf("expected real titles, got %q", page.Items[0].Title)
	}
}

func TestListFetchesEachRecordAsLastResort(t *testing.T) {
	f := setup(t)
	f.seedInbox()
	f.srv.Hook(func(r cmstest.Request) *cmstest.Failure {
		if isListing(r) && (r.Query.Get("fields[2]") != "" || r.Query.Get("populate") == "*") {
			return &cmstest.Failure{Status: http.StatusInternalServerError, Name: "InternalServerError", Message: "boom"}
		}
		return nil
	})
	f.srv.Fail(http.MethodGet, "/"+Collection+"/1", http.StatusNotFound, "Not Found")

	page, err := f.svc.List(context.Background(), f.sess)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Variant != VariantPerItem {
		t.Fatalf("expected per-item variant, got %s", page.Variant)
	}
	if len(page.Items) != 2 || page.Dropped != 1 {
		t.Fatalf("expected 2 items and 1 dropped, got %d and %d", len(page.Items), page.Dropped)
	}
	for _, n := range page.Items {
		if n.ID == 1 {
			t.Fatalf("failed record should be dropped")
		}
		if n.Sender == nil {
			t.Fatalf("expected detail fetch to populate relations")
		}
	}
}

func TestListErrorWhenEveryVariantFails(t *testing.T) {
	f := setup(t)
	f.srv.Fail(http.MethodGet, "/"+Collection, http.StatusForbidden, "Forbidden")

	_, err := f.svc.List(context.Background(), f.sess)
	if !cms.IsForbidden(err) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestListRequiresSession(t *testing.T) {
	f := setup(t)
	if _, err := f.svc.List(context.Background(), session.Anonymous("")); !errors.Is(err, model.ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed, got %v", err)
	}
}

func TestMarkRead(t *testing.T) {
	f := setup(t)
	rec := f.seed("Bienvenida", "sistema", "no-leida", "2025-06-03T10:00:00.000Z", f.userID)
	doc := rec["documentId"].(string)

	n := model.Notification{ID: rec["id"].(int64), DocumentID: doc, Title: "Bienvenida", State: model.Unread}
	got, err := f.svc.MarkRead(context.Background(), f.sess, n)
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if !got.IsRead() {
		t.Fatalf("expected returned notification to be read")
	}
	if stored := f.srv.Record(Collection, n.ID); stored["leida"] != "leida" {
		t.Fatalf("expected stored leida, got %v", stored["leida"])
	}
	puts := f.srv.RequestsTo(http.MethodPut, "/"+Collection)
	if len(puts) != 1 || puts[0].Path != "/"+Collection+"/"+doc {
		t.Fatalf("expected one PUT by document id, got %+v", puts)
	}
	if data := puts[0].Data(); len(data) != 1 || data["leida"] != "leida" {
		t.Fatalf("expected only the read flag in the payload, got %v", data)
	}
}

func TestMarkReadSkipsReadItems(t *testing.T) {
	f := setup(t)
	n := model.Notification{ID: 9, Title: "x", State: model.Read}
	if _, err := f.svc.MarkRead(context.Background(), f.sess, n); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if len(f.srv.Requests()) != 0 {
		t.Fatalf("expected no requests for a read notification")
	}
}

func TestMarkReadPatchesWhenPutNotAllowed(t *testing.T) {
	f := setup(t)
	rec := f.seed("Bienvenida", "sistema", "no-leida", "2025-06-03T10:00:00.000Z", f.userID)
	id := rec["id"].(int64)
	f.srv.Fail(http.MethodPut, "/"+Collection+"/"+strconv.FormatInt(id, 10), http.StatusMethodNotAllowed, "Method Not Allowed")

	if _, err := f.svc.MarkRead(context.Background(), f.sess, model.Notification{ID: id, State: model.Unread}); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if len(f.srv.RequestsTo(http.MethodPatch, "/"+Collection)) != 1 {
		t.Fatalf("expected a PATCH retry")
	}
	if f.srv.Record(Collection, id)["leida"] != "leida" {
		t.Fatalf("expected record marked read")
	}
}

// documentPathsNotFound makes the CMS reject updates addressed by
// document id, as older deployments do.
func documentPathsNotFound(r cmstest.Request) *cmstest.Failure {
	if r.Method != http.MethodPut {
		return nil
	}
	seg := r.Path[strings.LastIndex(r.Path, "/")+1:]
	if _, err := strconv.ParseInt(seg, 10, 64); err != nil {
		return &cmstest.Failure{Status: http.StatusNotFound, Name: "NotFoundError", Message: "Not Found"}
	}
	return nil
}

func TestMarkReadResolvesIDByDocument(t *testing.T) {
	f := setup(t)
	rec := f.seed("Bienvenida", "sistema", "no-leida", "2025-06-03T10:00:00.000Z", f.userID)
	f.srv.Hook(documentPathsNotFound)

	n := model.Notification{DocumentID: rec["documentId"].(string), Title: "Bienvenida", State: model.Unread}
	got, err := f.svc.MarkRead(context.Background(), f.sess, n)
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	id := rec["id"].(int64)
	if got.ID != id {
		t.Fatalf("expected resolved id %d, got %d", id, got.ID)
	}
	if f.srv.Record(Collection, id)["leida"] != "leida" {
		t.Fatalf("expected record marked read")
	}
}

func TestMarkReadResolvesIDByTimeWindow(t *testing.T) {
	f := setup(t)
	rec := f.seed("Tu agenda fue modificada", "agenda", "no-leida", "2025-06-03T10:00:00.000Z", f.userID)
	f.seed("Tu agenda fue modificada", "agenda", "no-leida", "2025-06-03T10:00:00.000Z", f.other)

	n := model.Notification{
		DocumentID: "stale-document-id",
		Title:      "Tu agenda fue modificada",
		State:      model.Unread,
		CreatedAt:  time.Date(2025, 6, 3, 10, 20, 0, 0, time.UTC),
	}
	got, err := f.svc.MarkRead(context.Background(), f.sess, n)
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if got.ID != rec["id"].(int64) {
		t.Fatalf("expected the recipient's record %v, got %d", rec["id"], got.ID)
	}
}

func TestMarkReadUnresolved(t *testing.T) {
	f := setup(t)
	n := model.Notification{
		DocumentID: "stale-document-id",
		Title:      "No existe",
		State:      model.Unread,
		CreatedAt:  time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC),
	}
	_, err := f.svc.MarkRead(context.Background(), f.sess, n)
	if !errors.Is(err, resolve.ErrIdentifierUnresolved) {
		t.Fatalf("expected ErrIdentifierUnresolved, got %v", err)
	}
	unresolved := ErrorNotice(err)
	notFound := ErrorNotice(&cms.APIError{Status: http.StatusNotFound, Kind: cms.KindNotFound, Message: "Not Found"})
	if unresolved.Level != notice.LevelError || unresolved.Message == notFound.Message {
		t.Fatalf("unresolved identifier must not read as a 404: %q", unresolved.Message)
	}
	if unresolved.Message != notice.FromError(resolve.ErrIdentifierUnresolved).Message {
		t.Fatalf("unexpected notice %q", unresolved.Message)
	}
}

func TestMarkReadForbiddenPropagates(t *testing.T) {
	f := setup(t)
	rec := f.seed("Bienvenida", "sistema", "no-leida", "2025-06-03T10:00:00.000Z", f.userID)
	doc := rec["documentId"].(string)
	f.srv.Fail(http.MethodPut, "/"+Collection+"/"+doc, http.StatusForbidden, "Forbidden")

	_, err := f.svc.MarkRead(context.Background(), f.sess, model.Notification{
		ID: rec["id"].(int64), DocumentID: doc, State: model.Unread,
	})
	if !cms.IsForbidden(err) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if n := ErrorNotice(err); n.Level != notice.LevelError || !strings.Contains(n.Message, "permisos") {
		t.Fatalf("unexpected notice %+v", n)
	}
	if len(f.srv.RequestsTo(http.MethodGet, "/"+Collection)) != 0 {
		t.Fatalf("forbidden must not trigger resolution")
	}
}

func TestMarkAllRead(t *testing.T) {
	f := setup(t)
	f.seedInbox()
	page, err := f.svc.List(context.Background(), f.sess)
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	var blocked model.Notification
	for _, n := range page.Items {
		if n.Title == "Bienvenida" {
			blocked = n
		}
	}
	f.srv.Fail(http.MethodPut, "/"+Collection+"/"+blocked.DocumentID, http.StatusForbidden, "Forbidden")

	items, report := f.svc.MarkAllRead(context.Background(), f.sess, page.Items)
	if report.Marked != 1 || report.Failed != 1 {
		t.Fatalf("expected 1 marked and 1 failed, got %+v", report)
	}
	if UnreadCount(items) != 0 {
		t.Fatalf("expected every item shown read")
	}
	if len(f.srv.RequestsTo(http.MethodPut, "/"+Collection)) != 2 {
		t.Fatalf("expected only unread items to be updated")
	}
	if f.srv.Record(Collection, blocked.ID)["leida"] != "no-leida" {
		t.Fatalf("blocked item must stay unread in the CMS")
	}
}

func TestDelete(t *testing.T) {
	f := setup(t)
	rec := f.seed("Bienvenida", "sistema", "no-leida", "2025-06-03T10:00:00.000Z", f.userID)
	n := model.Notification{ID: rec["id"].(int64), DocumentID: rec["documentId"].(string)}

	res := f.svc.Delete(context.Background(), f.sess, n)
	if !res.OK() {
		t.Fatalf("Delete: %v", res.Err())
	}
	if res.Applied.Op != mutation.OpRemove {
		t.Fatalf("expected remove patch, got %s", res.Applied.Op)
	}
	if len(f.srv.All(Collection)) != 0 {
		t.Fatalf("expected notification deleted")
	}
}

func TestDeleteResolvesStaleDocumentID(t *testing.T) {
	f := setup(t)
	rec := f.seed("Tu agenda fue modificada", "agenda", "no-leida", "2025-06-03T10:00:00.000Z", f.userID)
	f.seed("Tu agenda fue modificada", "agenda", "no-leida", "2025-06-03T10:00:00.000Z", f.other)

	n := model.Notification{
		DocumentID: "stale-document-id",
		Title:      "Tu agenda fue modificada",
		CreatedAt:  time.Date(2025, 6, 3, 10, 20, 0, 0, time.UTC),
	}
	res := f.svc.Delete(context.Background(), f.sess, n)
	if !res.OK() {
		t.Fatalf("Delete: %v", res.Err())
	}
	if res.Applied.Key.DocumentID != "stale-document-id" {
		t.Fatalf("expected patch keyed by the local identifiers, got %+v", res.Applied.Key)
	}
	if f.srv.Record(Collection, rec["id"].(int64)) != nil {
		t.Fatalf("expected the recipient's record deleted")
	}
	if len(f.srv.All(Collection)) != 1 {
		t.Fatalf("expected the other recipient's record kept")
	}
}

func TestDeleteUnresolved(t *testing.T) {
	f := setup(t)
	f.seed("Bienvenida", "sistema", "no-leida", "2025-06-03T10:00:00.000Z", f.userID)

	res := f.svc.Delete(context.Background(), f.sess, model.Notification{
		DocumentID: "stale-document-id",
		Title:      "No existe",
		CreatedAt:  time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC),
	})
	if !errors.Is(res.Err(), resolve.ErrIdentifierUnresolved) {
		t.Fatalf("expected ErrIdentifierUnresolved, got %v", res.Err())
	}
	if len(f.srv.All(Collection)) != 1 {
		t.Fatalf("nothing should be deleted")
	}
}

func TestFilterByType(t *testing.T) {
	items := []model.Notification{
		{Title: "a", Type: model.NotificationWorkItem},
		{Title: "b", Type: model.NotificationAgenda, State: model.Read},
		{Title: "c", Type: model.NotificationSystem},
		{Title: "d", Type: model.NotificationWorkItem},
	}
	cases := []struct {
		filter string
		want   int
	}{
		{"todas", 4},
		{"usina", 2},
		{"agenda", 1},
		{"sistema", 1},
		{"desconocido", 4},
	}
	for _, tc := range cases {
		t.Run(tc.filter, func(t *testing.T) {
			if got := len(FilterByType(items, ParseFilter(tc.filter))); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
	if UnreadCount(items) != 3 {
		t.Fatalf("expected 3 unread, got %d", UnreadCount(items))
	}
}
