package sync

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nhle/malharro-cms/internal/cms"
	"github.com/nhle/malharro-cms/internal/cms/cmstest"
	"github.com/nhle/malharro-cms/internal/inbox"
	"github.com/nhle/malharro-cms/internal/model"
	"github.com/nhle/malharro-cms/internal/mutation"
	"github.com/nhle/malharro-cms/internal/session"
	"github.com/nhle/malharro-cms/internal/store"
	"github.com/nhle/malharro-cms/tests/testutil"
)

func setup(t *testing.T) (*cmstest.Server, *Poller, *store.SQLiteStore, int64) {
	t.Helper()
	srv := cmstest.New(t)
	srv.Relate(inbox.Collection, "receptor", "users")
	uid := srv.AddUser("alumno", model.RoleStudent)

	client := cms.NewClient(srv.URL, 5*time.Second)
	svc := inbox.NewService(client, mutation.NewCoordinator(client, nil), 0, nil, nil)
	sess := session.New("tok", &model.User{ID: uid, Username: "alumno"})
	s := testutil.NewTestStore(t)
	return srv, New(svc, s, sess, time.Minute, nil), s, uid
}

func seed(srv *cmstest.Server, title, created string, recipient int64) map[string]any {
	return srv.Seed(inbox.Collection, map[string]any{
		"titulo":    title,
		"mensaje":   title,
		"tipo":      "sistema",
		"leida":     "no-leida",
		"createdAt": created,
		"receptor":  recipient,
	})
}

func TestPollCachesAndCountsNew(t *testing.T) {
	srv, p, s, uid := setup(t)
	seed(srv, "Bienvenida", "2025-06-01T10:00:00.000Z", uid)
	seed(srv, "Aviso", "2025-06-02T10:00:00.000Z", uid)

	res := p.Poll(context.Background())
	if res.Error != nil {
		t.Fatalf("Poll: %v", res.Error)
	}
	if res.NewCount != 2 || len(res.Items) != 2 {
		t.Fatalf("expected 2 new of 2, got %d of %d", res.NewCount, len(res.Items))
	}

	seed(srv, "Otro aviso", "2025-06-03T10:00:00.000Z", uid)
	res = p.Poll(context.Background())
	if res.NewCount != 1 {
		t.Fatalf("expected 1 new, got %d", res.NewCount)
	}

	if n, err := s.UnreadCount(context.Background(), uid); err != nil || n != 3 {
		t.Fatalf("UnreadCount = %d, %v", n, err)
	}
	st, err := s.GetSyncState(context.Background(), uid)
	if err != nil || st == nil || st.Variant != inbox.VariantFields.String() {
		t.Fatalf("unexpected sync state %+v, %v", st, err)
	}
	if got := p.Status(); got.State != SyncIdle || got.LastSync.IsZero() {
		t.Fatalf("unexpected status %+v", got)
	}
}

func TestPollPrunesRemoved(t *testing.T) {
	srv, p, s, uid := setup(t)
	seed(srv, "Bienvenida", "2025-06-01T10:00:00.000Z", uid)
	gone := seed(srv, "Aviso", "2025-06-02T10:00:00.000Z", uid)

	if res := p.Poll(context.Background()); res.Error != nil {
		t.Fatalf("Poll: %v", res.Error)
	}

	client := cms.NewClient(srv.URL, 5*time.Second)
	path := cms.CollectionPath(inbox.Collection, strconv.FormatInt(asID(gone["id"]), 10))
	if err := client.Delete(context.Background(), "tok", path, nil); err != nil {
		t.Fatalf("deleting from the CMS: %v", err)
	}

	res := p.Poll(context.Background())
	if res.Error != nil || res.Pruned != 1 || res.NewCount != 0 {
		t.Fatalf("expected 1 pruned, got %+v", res)
	}
	cached, _ := s.ListNotifications(context.Background(), store.NotificationFilter{})
	if len(cached) != 1 || cached[0].Title != "Bienvenida" {
		t.Fatalf("unexpected cache %+v", cached)
	}
}

func asID(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func TestPollReportsAuthErrors(t *testing.T) {
	cases := []struct {
		name  string
		token func(t *testing.T) string
		fail  bool
	}{
		{"expired token", expiredToken, false},
		{"rejected token", func(*testing.T) string { return "tok" }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, p, _, _ := setup(t)
			p.sess.Token = tc.token(t)
			if tc.fail {
				srv.Fail(http.MethodGet, "/"+inbox.Collection, http.StatusUnauthorized, "Missing or invalid credentials")
			}

			res := p.Poll(context.Background())
			if res.Error == nil || res.AuthError == nil {
				t.Fatalf("expected auth error, got %+v", res)
			}
			if p.Status().State != SyncError {
				t.Fatalf("expected error state")
			}
		})
	}
}

func TestPollKeepsCacheOnFailure(t *testing.T) {
	srv, p, s, uid := setup(t)
	seed(srv, "Bienvenida", "2025-06-01T10:00:00.000Z", uid)
	if res := p.Poll(context.Background()); res.Error != nil {
		t.Fatalf("Poll: %v", res.Error)
	}

	srv.Fail(http.MethodGet, "/"+inbox.Collection, http.StatusForbidden, "Forbidden")
	res := p.Poll(context.Background())
	if !cms.IsForbidden(res.Error) || res.AuthError != nil {
		t.Fatalf("expected forbidden without auth error, got %+v", res)
	}
	if n, _ := s.UnreadCount(context.Background(), uid); n != 1 {
		t.Fatalf("expected cached notification kept, got %d", n)
	}
	st, _ := s.GetSyncState(context.Background(), uid)
	if st == nil || st.LastError == "" {
		t.Fatalf("expected last error recorded, got %+v", st)
	}
}

func TestStartDeliversFirstResult(t *testing.T) {
	srv, p, _, uid := setup(t)
	seed(srv, "Bienvenida", "2025-06-01T10:00:00.000Z", uid)

	cmd := p.Start()
	defer p.Stop()
	if p.Start() != nil {
		t.Fatalf("second Start should be a no-op")
	}

	msg, ok := cmd().(SyncResultMsg)
	if !ok {
		t.Fatalf("expected SyncResultMsg")
	}
	if msg.Error != nil || msg.NewCount != 1 {
		t.Fatalf("unexpected first result %+v", msg)
	}

	p.Refresh()
	next, _ := p.WaitForNextResult()().(SyncResultMsg)
	if next.Error != nil || next.NewCount != 0 {
		t.Fatalf("unexpected refresh result %+v", next)
	}
}

type failingLister struct{ err error }

func (f failingLister) List(context.Context, *session.Session) (inbox.Page, error) {
	return inbox.Page{}, f.err
}

func TestPollWithoutStore(t *testing.T) {
	boom := errors.New("boom")
	p := New(failingLister{err: boom}, nil, session.Anonymous(""), 0, nil)
	if p.interval != DefaultInterval {
		t.Fatalf("expected default interval, got %s", p.interval)
	}
	if res := p.Poll(context.Background()); !errors.Is(res.Error, boom) {
		t.Fatalf("expected boom, got %v", res.Error)
	}
}

func expiredToken(t *testing.T) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  1,
		"exp": time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	return tok
}
