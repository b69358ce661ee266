package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/nhle/malharro-cms/internal/model"
	"github.com/nhle/malharro-cms/internal/store"
	"github.com/nhle/malharro-cms/tests/testutil"
)

func TestUpsertCountsNewNotifications(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	first := []model.Notification{
		testutil.Notification(1, "a", 7, model.NotificationWorkItem, model.Unread, time.Hour),
		testutil.Notification(2, "b", 7, model.NotificationAgenda, model.Unread, 2*time.Hour),
		{Title: "sin identificador"},
	}
	created, err := s.UpsertNotifications(ctx, first)
	if err != nil {
		t.Fatalf("UpsertNotifications: %v", err)
	}
	if created != 2 {
		t.Fatalf("expected 2 new, got %d", created)
	}

	second := []model.Notification{
		testutil.Notification(1, "a", 7, model.NotificationWorkItem, model.Read, time.Hour),
		testutil.Notification(3, "c", 7, model.NotificationSystem, model.Unread, 0),
	}
	created, err = s.UpsertNotifications(ctx, second)
	if err != nil {
		t.Fatalf("UpsertNotifications: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 new, got %d", created)
	}

	recipient := int64(7)
	items, err := s.ListNotifications(ctx, store.NotificationFilter{RecipientID: &recipient})
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 cached, got %d", len(items))
	}
	if items[0].DocumentID != "c" || items[2].DocumentID != "b" {
		t.Fatalf("expected newest first, got %s..%s", items[0].DocumentID, items[2].DocumentID)
	}
	if !items[1].IsRead() {
		t.Fatalf("expected updated state for a")
	}
	if items[1].Recipient == nil || items[1].Recipient.ID != 7 {
		t.Fatalf("expected recipient to round-trip, got %+v", items[1].Recipient)
	}
}

func TestListNotificationsFilter(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	_, err := s.UpsertNotifications(ctx, []model.Notification{
		testutil.Notification(1, "a", 7, model.NotificationWorkItem, model.Unread, time.Hour),
		testutil.Notification(2, "b", 7, model.NotificationAgenda, model.Read, 2*time.Hour),
		testutil.Notification(3, "c", 7, model.NotificationWorkItem, model.Read, 3*time.Hour),
		testutil.Notification(4, "d", 8, model.NotificationWorkItem, model.Unread, 0),
	})
	if err != nil {
		t.Fatalf("UpsertNotifications: %v", err)
	}

	recipient := int64(7)
	workItem := model.NotificationWorkItem
	yes, no := true, false
	cases := []struct {
		name   string
		filter store.NotificationFilter
		want   []string
	}{
		{"all", store.NotificationFilter{}, []string{"d", "a", "b", "c"}},
		{"recipient", store.NotificationFilter{RecipientID: &recipient}, []string{"a", "b", "c"}},
		{"type", store.NotificationFilter{RecipientID: &recipient, Type: &workItem}, []string{"a", "c"}},
		{"unread", store.NotificationFilter{RecipientID: &recipient, Unread: &yes}, []string{"a"}},
		{"read", store.NotificationFilter{RecipientID: &recipient, Unread: &no}, []string{"b", "c"}},
		{"page", store.NotificationFilter{Limit: 2, Offset: 1}, []string{"a", "b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			items, err := s.ListNotifications(ctx, tc.filter)
			if err != nil {
				t.Fatalf("ListNotifications: %v", err)
			}
			if len(items) != len(tc.want) {
				t.Fatalf("expected %v, got %d items", tc.want, len(items))
			}
			for i, doc := range tc.want {
				if items[i].DocumentID != doc {
					t.Fatalf("item %d: expected %s, got %s", i, doc, items[i].DocumentID)
				}
			}
		})
	}
}

func TestMarkReadDeleteAndPrune(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	a := testutil.Notification(1, "a", 7, model.NotificationWorkItem, model.Unread, time.Hour)
	b := testutil.Notification(2, "", 7, model.NotificationAgenda, model.Unread, 2*time.Hour)
	c := testutil.Notification(3, "c", 7, model.NotificationSystem, model.Unread, 3*time.Hour)
	if _, err := s.UpsertNotifications(ctx, []model.Notification{a, b, c}); err != nil {
		t.Fatalf("UpsertNotifications: %v", err)
	}

	if n, err := s.UnreadCount(ctx, 7); err != nil || n != 3 {
		t.Fatalf("UnreadCount = %d, %v", n, err)
	}
	if err := s.MarkNotificationRead(ctx, b); err != nil {
		t.Fatalf("MarkNotificationRead: %v", err)
	}
	if n, _ := s.UnreadCount(ctx, 7); n != 2 {
		t.Fatalf("expected 2 unread after marking by id, got %d", n)
	}

	if err := s.DeleteNotification(ctx, c); err != nil {
		t.Fatalf("DeleteNotification: %v", err)
	}
	pruned, err := s.PruneNotifications(ctx, 7, []model.Notification{a})
	if err != nil {
		t.Fatalf("PruneNotifications: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected b pruned, got %d", pruned)
	}
	items, _ := s.ListNotifications(ctx, store.NotificationFilter{})
	if len(items) != 1 || items[0].DocumentID != "a" {
		t.Fatalf("expected only a left, got %+v", items)
	}

	if err := s.MarkNotificationRead(ctx, model.Notification{}); err == nil {
		t.Fatalf("expected error for notification without identifier")
	}
}

func TestSyncState(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	got, err := s.GetSyncState(ctx, 7)
	if err != nil || got != nil {
		t.Fatalf("expected no state, got %+v, %v", got, err)
	}

	when := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	for _, st := range []store.SyncState{
		{RecipientID: 7, LastSync: when.Add(-time.Hour), Variant: "fields"},
		{RecipientID: 7, LastSync: when, Variant: "per-item", Dropped: 2, LastError: "forbidden"},
	} {
		if err := s.SaveSyncState(ctx, st); err != nil {
			t.Fatalf("SaveSyncState: %v", err)
		}
	}

	got, err = s.GetSyncState(ctx, 7)
	if err != nil {
		t.Fatalf("GetSyncState: %v", err)
	}
	if !got.LastSync.Equal(when) || got.Variant != "per-item" || got.Dropped != 2 || got.LastError != "forbidden" {
		t.Fatalf("unexpected state %+v", got)
	}
}

func TestCacheKey(t *testing.T) {
	cases := []struct {
		n    model.Notification
		want string
	}{
		{model.Notification{ID: 4, DocumentID: "x"}, "doc:x"},
		{model.Notification{ID: 4}, "id:4"},
		{model.Notification{}, ""},
	}
	for _, tc := range cases {
		if got := store.CacheKey(tc.n); got != tc.want {
			t.Fatalf("CacheKey(%+v) = %q, want %q", tc.n, got, tc.want)
		}
	}
}
