package cms_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/nhle/malharro-cms/internal/cms"
	"github.com/nhle/malharro-cms/internal/cms/cmstest"
)

func newClient(srv *cmstest.Server) *cms.Client {
	return cms.NewClient(srv.URL, 5*time.Second)
}

func TestListAndOne(t *testing.T) {
	srv := cmstest.New(t)
	srv.Seed("usinas", map[string]any{"titulo": "Mural", "aprobado": "aprobada"})
	srv.Seed("usinas", map[string]any{"titulo": "Corto", "aprobado": "pendiente"})
	c := newClient(srv)
	ctx := context.Background()

	resp, err := c.List(ctx, "", "/usinas", cms.NewQuery().Filter("aprobado", cms.OpEq, "aprobada"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0]["titulo"] != "Mural" {
		t.Fatalf("expected only Mural, got %v", resp.Data)
	}
	if resp.Meta.Pagination.Total != 1 {
		t.Fatalf("expected total 1, got %d", resp.Meta.Pagination.Total)
	}

	rec, err := c.One(ctx, "", cms.CollectionPath("usinas", "2"), nil)
	if err != nil {
		t.Fatalf("One: %v", err)
	}
	if rec["titulo"] != "Corto" {
		t.Fatalf("expected Corto, got %v", rec["titulo"])
	}
}

func TestBearerOnlyWhenTokenPresent(t *testing.T) {
	srv := cmstest.New(t)
	c := newClient(srv)
	ctx := context.Background()

	if _, err := c.List(ctx, "", "/agendas", nil); err != nil {
		t.Fatalf("List anonymous: %v", err)
	}
	if _, err := c.List(ctx, "tok", "/agendas", nil); err != nil {
		t.Fatalf("List authed: %v", err)
	}

	reqs := srv.RequestsTo(http.MethodGet, "/agendas")
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	if reqs[0].Token != "" {
		t.Fatalf("expected no token on anonymous request, got %q", reqs[0].Token)
	}
	if reqs[1].Token != "tok" {
		t.Fatalf("expected bearer tok, got %q", reqs[1].Token)
	}
}

func TestErrorClassification(t *testing.T) {
	srv := cmstest.New(t)
	srv.Fail(http.MethodGet, "/forbidden", http.StatusForbidden, "Forbidden")
	srv.Fail(http.MethodPut, "/notificaciones/abc", http.StatusMethodNotAllowed, "nope")
	c := newClient(srv)
	ctx := context.Background()

	cases := []struct {
		name string
		call func() error
		kind cms.ErrorKind
	}{
		{
			name: "forbidden",
			call: func() error { return c.Get(ctx, "", "/forbidden", nil, nil) },
			kind: cms.KindForbidden,
		},
		{
			name: "not found",
			call: func() error { _, err := c.One(ctx, "", "/usinas/99", nil); return err },
			kind: cms.KindNotFound,
		},
		{
			name: "method not allowed",
			call: func() error { return c.Put(ctx, "", "/notificaciones/abc", cms.Wrap(nil), nil) },
			kind: cms.KindMethodNotAllowed,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := cms.KindOf(err); got != tc.kind {
				t.Fatalf("KindOf = %v, want %v (err=%v)", got, tc.kind, err)
			}
		})
	}
}

func TestTransportError(t *testing.T) {
	c := cms.NewClient("http://127.0.0.1:1", time.Second)
	err := c.Get(context.Background(), "", "/usinas", nil, nil)

	var te *cms.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %T %v", err, err)
	}
	if cms.KindOf(err) != cms.KindTransport {
		t.Fatalf("expected transport kind, got %v", cms.KindOf(err))
	}
}

func TestRelationErrorDetected(t *testing.T) {
	srv := cmstest.New(t)
	srv.Relate("notificaciones", "usinaAfectada", "usinas")
	c := newClient(srv)

	_, err := c.Write(context.Background(), http.MethodPost, "", "/notificaciones", map[string]any{
		"titulo":        "x",
		"usinaAfectada": 42,
	})
	if !cms.IsRelationError(err) {
		t.Fatalf("expected relation error, got %v", err)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	srv := cmstest.New(t)
	c := newClient(srv)
	ctx := context.Background()

	created, err := c.Write(ctx, http.MethodPost, "tok", "/agendas", map[string]any{"tituloActividad": "Charla"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	doc, _ := created["documentId"].(string)
	if doc == "" {
		t.Fatalf("expected documentId in %v", created)
	}

	updated, err := c.Write(ctx, http.MethodPut, "tok", cms.CollectionPath("agendas", doc), map[string]any{"tituloActividad": "Charla 2"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated["tituloActividad"] != "Charla 2" {
		t.Fatalf("expected updated title, got %v", updated["tituloActividad"])
	}

	reqs := srv.RequestsTo(http.MethodPut, "/agendas/")
	if len(reqs) != 1 || reqs[0].Data()["tituloActividad"] != "Charla 2" {
		t.Fatalf("expected data envelope in update body, got %+v", reqs)
	}
}

func TestUpload(t *testing.T) {
	srv := cmstest.New(t)
	c := newClient(srv)

	files, err := c.Upload(context.Background(), "tok", cms.UploadFile{
		Name:        "foto.jpg",
		ContentType: "image/jpeg",
		Content:     bytes.NewReader([]byte("jpeg")),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected one file, got %d", len(files))
	}
	if !strings.HasSuffix(files[0]["url"].(string), "foto.jpg") {
		t.Fatalf("unexpected url %v", files[0]["url"])
	}
	if files[0]["mime"] != "image/jpeg" {
		t.Fatalf("unexpected mime %v", files[0]["mime"])
	}
}

func TestQueryEncoding(t *testing.T) {
	at := time.Date(2025, 3, 4, 10, 30, 15, 999, time.FixedZone("ART", -3*3600))
	q := cms.NewQuery().
		AndFilter(0, "receptor.id", cms.OpEq, int64(7)).
		AndFilter(1, "createdAt", cms.OpGte, at).
		Fields("id").
		Sort("createdAt", true).
		PageSize(10)

	v := q.Values()
	if got := v.Get("filters[$and][0][receptor][id][$eq]"); got != "7" {
		t.Fatalf("receptor filter = %q", got)
	}
	if got := v.Get("filters[$and][1][createdAt][$gte]"); got != "2025-03-04T13:30:15.000Z" {
		t.Fatalf("time filter = %q", got)
	}
	if got := v.Get("sort"); got != "createdAt:desc" {
		t.Fatalf("sort = %q", got)
	}
	if got := v.Get("fields[0]"); got != "id" {
		t.Fatalf("fields = %q", got)
	}
	if got := v.Get("pagination[pageSize]"); got != "10" {
		t.Fatalf("pageSize = %q", got)
	}
}
