package processor

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations for SQLiteSink.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	key         TEXT PRIMARY KEY,
	uid         INTEGER NOT NULL,
	sender      TEXT NOT NULL,
	folder      TEXT NOT NULL DEFAULT '',
	subject     TEXT NOT NULL,
	plain_text  TEXT NOT NULL DEFAULT '',
	plain_html  TEXT NOT NULL DEFAULT '',
	html        TEXT NOT NULL DEFAULT '',
	scraped_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS attachments (
	message_key TEXT NOT NULL REFERENCES messages(key) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	path        TEXT NOT NULL,
	PRIMARY KEY (message_key, position)
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender);
CREATE INDEX IF NOT EXISTS idx_messages_scraped_at ON messages(scraped_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
