package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/malharro-cms/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and
	// serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// CacheKey identifies a notification across polls. The document
// identifier wins when both are known. It returns "" when the record
// carries neither.
func CacheKey(n model.Notification) string {
	switch {
	case n.DocumentID != "":
		return "doc:" + n.DocumentID
	case n.ID != 0:
		return "id:" + strconv.FormatInt(n.ID, 10)
	default:
		return ""
	}
}

// UpsertNotifications stores a batch of notifications and returns how
// many were not cached before. Records without any identifier are
// skipped.
func (s *SQLiteStore) UpsertNotifications(ctx context.Context, items []model.Notification) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	insert, err := tx.PreparexContext(ctx, `
		INSERT INTO notifications (
			id, cache_key, cms_id, document_id, recipient_id,
			title, message, type, state,
			created_at, fetched_at, raw_data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer insert.Close()

	update, err := tx.PreparexContext(ctx, `
		UPDATE notifications SET
			cms_id = ?, document_id = ?, recipient_id = ?,
			title = ?, message = ?, type = ?, state = ?,
			created_at = ?, fetched_at = ?, raw_data = ?
		WHERE cache_key = ?`)
	if err != nil {
		return 0, fmt.Errorf("preparing update: %w", err)
	}
	defer update.Close()

	fetched := s.now().UnixMilli()
	created := 0
	for _, n := range items {
		key := CacheKey(n)
		if key == "" {
			continue
		}
		raw, err := json.Marshal(n)
		if err != nil {
			return 0, fmt.Errorf("marshaling notification %s: %w", key, err)
		}

		res, err := insert.ExecContext(ctx,
			uuid.NewString(), key, n.ID, n.DocumentID, n.RecipientID(),
			n.Title, n.Message, string(n.Type), string(n.State),
			n.CreatedAt.UnixMilli(), fetched, string(raw),
		)
		if err != nil {
			return 0, fmt.Errorf("inserting notification %s: %w", key, err)
		}
		if rows, _ := res.RowsAffected(); rows > 0 {
			created++
			continue
		}

		_, err = update.ExecContext(ctx,
			n.ID, n.DocumentID, n.RecipientID(),
			n.Title, n.Message, string(n.Type), string(n.State),
			n.CreatedAt.UnixMilli(), fetched, string(raw),
			key,
		)
		if err != nil {
			return 0, fmt.Errorf("updating notification %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing notifications: %w", err)
	}
	return created, nil
}

type notificationRow struct {
	State string `db:"state"`
	Raw   string `db:"raw_data"`
}

// ListNotifications returns cached notifications matching the filter,
// newest first.
func (s *SQLiteStore) ListNotifications(ctx context.Context, filter NotificationFilter) ([]model.Notification, error) {
	q := sq.Select("state", "raw_data").
		From("notifications").
		OrderBy("created_at DESC", "cms_id DESC")

	if filter.RecipientID != nil {
		q = q.Where(sq.Eq{"recipient_id": *filter.RecipientID})
	}
	if filter.Type != nil {
		q = q.Where(sq.Eq{"type": string(*filter.Type)})
	}
	if filter.Unread != nil {
		if *filter.Unread {
			q = q.Where(sq.NotEq{"state": string(model.Read)})
		} else {
			q = q.Where(sq.Eq{"state": string(model.Read)})
		}
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building notification query: %w", err)
	}

	var rows []notificationRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}

	items := make([]model.Notification, 0, len(rows))
	for _, r := range rows {
		var n model.Notification
		if err := json.Unmarshal([]byte(r.Raw), &n); err != nil {
			return nil, fmt.Errorf("unmarshaling cached notification: %w", err)
		}
		n.State = model.ReadState(r.State)
		items = append(items, n)
	}
	return items, nil
}

// MarkNotificationRead flags a cached notification as read.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, n model.Notification) error {
	key := CacheKey(n)
	if key == "" {
		return fmt.Errorf("notification has no identifier")
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET state = ? WHERE cache_key = ?", string(model.Read), key)
	if err != nil {
		return fmt.Errorf("marking notification %s read: %w", key, err)
	}
	return nil
}

// DeleteNotification removes a notification from the cache.
func (s *SQLiteStore) DeleteNotification(ctx context.Context, n model.Notification) error {
	key := CacheKey(n)
	if key == "" {
		return fmt.Errorf("notification has no identifier")
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM notifications WHERE cache_key = ?", key); err != nil {
		return fmt.Errorf("deleting notification %s: %w", key, err)
	}
	return nil
}

// PruneNotifications deletes the recipient's cached notifications that
// are not in keep, i.e. those the CMS no longer returns.
func (s *SQLiteStore) PruneNotifications(ctx context.Context, recipientID int64, keep []model.Notification) (int, error) {
	keys := make([]string, 0, len(keep))
	for _, n := range keep {
		if k := CacheKey(n); k != "" {
			keys = append(keys, k)
		}
	}

	q := sq.Delete("notifications").Where(sq.Eq{"recipient_id": recipientID})
	if len(keys) > 0 {
		q = q.Where(sq.NotEq{"cache_key": keys})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("building prune query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("pruning notifications: %w", err)
	}
	rows, _ := res.RowsAffected()
	return int(rows), nil
}

// UnreadCount returns the number of cached unread notifications for a
// recipient.
func (s *SQLiteStore) UnreadCount(ctx context.Context, recipientID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND state != ?",
		recipientID, string(model.Read))
	if err != nil {
		return 0, fmt.Errorf("counting unread notifications: %w", err)
	}
	return count, nil
}

// SaveSyncState records the outcome of a poll.
func (s *SQLiteStore) SaveSyncState(ctx context.Context, st SyncState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (recipient_id, last_sync, variant, dropped, last_error)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(recipient_id) DO UPDATE SET
			last_sync = excluded.last_sync,
			variant = excluded.variant,
			dropped = excluded.dropped,
			last_error = excluded.last_error`,
		st.RecipientID, st.LastSync.UnixMilli(), st.Variant, st.Dropped, st.LastError,
	)
	if err != nil {
		return fmt.Errorf("saving sync state for %d: %w", st.RecipientID, err)
	}
	return nil
}

// GetSyncState returns the last poll outcome for a recipient, or nil if
// it was never polled.
func (s *SQLiteStore) GetSyncState(ctx context.Context, recipientID int64) (*SyncState, error) {
	var row struct {
		SyncState
		LastSync int64 `db:"last_sync"`
	}
	err := s.db.GetContext(ctx, &row,
		"SELECT recipient_id, last_sync, variant, dropped, last_error FROM sync_state WHERE recipient_id = ?",
		recipientID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting sync state for %d: %w", recipientID, err)
	}
	st := row.SyncState
	st.LastSync = time.UnixMilli(row.LastSync)
	return &st, nil
}
