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

CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS notifications (
	id                  TEXT PRIMARY KEY,
	user_id             TEXT NOT NULL DEFAULT '',
	type                TEXT NOT NULL DEFAULT '',
	context             TEXT NOT NULL DEFAULT 'SYSTEM',
	priority            TEXT NOT NULL DEFAULT 'NORMAL',
	priority_rank       INTEGER NOT NULL DEFAULT 2,
	title               TEXT NOT NULL DEFAULT '',
	message             TEXT NOT NULL DEFAULT '',
	action_url          TEXT NOT NULL DEFAULT '',
	action_text         TEXT NOT NULL DEFAULT '',
	scope               TEXT NOT NULL DEFAULT 'USER',
	target_role         TEXT NOT NULL DEFAULT '',
	related_project_id  TEXT NOT NULL DEFAULT '',
	related_entity_id   TEXT NOT NULL DEFAULT '',
	related_entity_type TEXT NOT NULL DEFAULT '',
	is_read             INTEGER NOT NULL DEFAULT 0 CHECK(is_read IN (0, 1)),
	read_at             DATETIME,
	created_at          DATETIME NOT NULL,
	updated_at          DATETIME NOT NULL,
	cached_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id);
CREATE INDEX IF NOT EXISTS idx_notifications_read ON notifications(is_read);
CREATE INDEX IF NOT EXISTS idx_notifications_created ON notifications(created_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_notifications_user_read_created
	ON notifications(user_id, is_read, created_at);

CREATE INDEX IF NOT EXISTS idx_notifications_context
	ON notifications(context);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
