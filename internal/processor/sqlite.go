package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/meko-christian/mail-listener/internal/listener"
)

// StoredMessage is a row of the messages table.
type StoredMessage struct {
	Key       string    `db:"key"`
	UID       uint32    `db:"uid"`
	Sender    string    `db:"sender"`
	Folder    string    `db:"folder"`
	Subject   string    `db:"subject"`
	PlainText string    `db:"plain_text"`
	PlainHTML string    `db:"plain_html"`
	HTML      string    `db:"html"`
	ScrapedAt time.Time `db:"scraped_at"`
}

// SQLiteSink stores scraped records in a local SQLite database.
type SQLiteSink struct {
	db *sqlx.DB
}

// NewSQLiteSink opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteSink(dbPath string) (*SQLiteSink, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteSink{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteSink) runMigrations() error {
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

// Process implements listener.Handler. Records whose key is already stored
// are left untouched.
func (s *SQLiteSink) Process(ctx context.Context, session *listener.Session, results listener.ResultSet) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const insertMessage = `
		INSERT OR IGNORE INTO messages (
			key, uid, sender, folder, subject,
			plain_text, plain_html, html, scraped_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	const insertAttachment = `
		INSERT INTO attachments (message_key, position, path) VALUES (?, ?, ?)`

	now := time.Now().UTC()
	inserted := 0

	for _, key := range sortedKeys(results) {
		rec := results[key]

		res, err := tx.ExecContext(ctx, insertMessage,
			key, rec.UID, rec.From, session.Folder(), rec.Subject,
			rec.PlainText, rec.PlainHTML, rec.HTML, now,
		)
		if err != nil {
			return fmt.Errorf("inserting message %s: %w", key, err)
		}
		if rows, _ := res.RowsAffected(); rows == 0 {
			slog.Debug("Message already stored", "key", key)
			continue
		}
		inserted++

		for i, path := range rec.Attachments {
			if _, err := tx.ExecContext(ctx, insertAttachment, key, i, path); err != nil {
				return fmt.Errorf("inserting attachment %d of %s: %w", i, key, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing messages: %w", err)
	}

	slog.Info("Stored scraped messages", "count", inserted, "skipped", len(results)-inserted)
	return nil
}

// Messages returns every stored message, oldest first.
func (s *SQLiteSink) Messages(ctx context.Context) ([]StoredMessage, error) {
	var msgs []StoredMessage
	err := s.db.SelectContext(ctx, &msgs,
		"SELECT key, uid, sender, folder, subject, plain_text, plain_html, html, scraped_at FROM messages ORDER BY scraped_at, key")
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	return msgs, nil
}

// Attachments returns the attachment paths stored for key, in message order.
func (s *SQLiteSink) Attachments(ctx context.Context, key string) ([]string, error) {
	var paths []string
	err := s.db.SelectContext(ctx, &paths,
		"SELECT path FROM attachments WHERE message_key = ? ORDER BY position", key)
	if err != nil {
		return nil, fmt.Errorf("querying attachments of %s: %w", key, err)
	}
	return paths, nil
}
