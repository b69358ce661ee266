// Package store is the local read cache. Every row is a possibly stale
// copy of a CMS record; the CMS stays authoritative.
package store

import (
	"context"
	"time"

	"github.com/nhle/malharro-cms/internal/model"
)

// NotificationFilter specifies optional criteria for listing cached
// notifications. Nil pointer fields are ignored.
type NotificationFilter struct {
	RecipientID *int64
	Type        *model.NotificationType
	Unread      *bool
	Limit       int
	Offset      int
}

// SyncState records the outcome of the last inbox poll for a recipient.
type SyncState struct {
	RecipientID int64     `db:"recipient_id"`
	LastSync    time.Time `db:"-"`
	Variant     string    `db:"variant"`
	Dropped     int       `db:"dropped"`
	LastError   string    `db:"last_error"`
}

// Store defines the cache operations used by the poller and the TUI.
type Store interface {
	// Notifications
	UpsertNotifications(ctx context.Context, items []model.Notification) (int, error)
	ListNotifications(ctx context.Context, filter NotificationFilter) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, n model.Notification) error
	DeleteNotification(ctx context.Context, n model.Notification) error
	PruneNotifications(ctx context.Context, recipientID int64, keep []model.Notification) (int, error)
	UnreadCount(ctx context.Context, recipientID int64) (int, error)

	// Sync state
	SaveSyncState(ctx context.Context, st SyncState) error
	GetSyncState(ctx context.Context, recipientID int64) (*SyncState, error)

	Close() error
}
