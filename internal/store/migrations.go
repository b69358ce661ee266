package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id           TEXT PRIMARY KEY,
	cache_key    TEXT NOT NULL UNIQUE,
	cms_id       INTEGER NOT NULL DEFAULT 0,
	document_id  TEXT NOT NULL DEFAULT '',
	recipient_id INTEGER NOT NULL DEFAULT 0,
	title        TEXT NOT NULL DEFAULT '',
	message      TEXT NOT NULL DEFAULT '',
	type         TEXT NOT NULL DEFAULT 'sistema',
	state        TEXT NOT NULL DEFAULT 'no-leida',
	created_at   INTEGER NOT NULL DEFAULT 0,
	fetched_at   INTEGER NOT NULL DEFAULT 0,
	raw_data     TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, created_at);
CREATE INDEX IF NOT EXISTS idx_notifications_state ON notifications(recipient_id, state);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS sync_state (
	recipient_id INTEGER PRIMARY KEY,
	last_sync    INTEGER NOT NULL DEFAULT 0,
	variant      TEXT NOT NULL DEFAULT '',
	dropped      INTEGER NOT NULL DEFAULT 0,
	last_error   TEXT NOT NULL DEFAULT ''
);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
