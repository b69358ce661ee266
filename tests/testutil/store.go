package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/nhle/malharro-cms/internal/model"
	"github.com/nhle/malharro-cms/internal/store"
)

// BaseTime is the reference creation time of Notification fixtures.
var BaseTime = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// Notification builds a cached notification fixture titled "Aviso <doc>"
// created age before BaseTime.
func Notification(id int64, doc string, recipient int64, typ model.NotificationType, state model.ReadState, age time.Duration) model.Notification {
	return model.Notification{
		ID:         id,
		DocumentID: doc,
		Title:      "Aviso " + doc,
		Message:    "mensaje",
		Type:       typ,
		State:      state,
		CreatedAt:  BaseTime.Add(-age),
		Recipient:  &model.UserRef{ID: recipient},
	}
}

// SeedNotifications upserts items into s and fails the test on error.
func SeedNotifications(t *testing.T, s store.Store, items ...model.Notification) {
	t.Helper()
	if _, err := s.UpsertNotifications(context.Background(), items); err != nil {
		t.Fatalf("seeding notifications: %v", err)
	}
}
