// Package sqlite implements the store.Driver on a local SQLite file.
// A single support.db holds the message log and the escalation tracking
// table. WAL mode is enabled for concurrent read performance.
package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.
	"github.com/pkg/errors"

	"github.com/christried/GilgesBA/pkg/support/store"
)

// schema is the DDL executed on every startup (idempotent via IF NOT EXISTS).
const schema = `
-- Conversation log (append-only, one row per turn).
CREATE TABLE IF NOT EXISTS message (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL,
    role            TEXT NOT NULL,
    content         TEXT NOT NULL,
    thread_id       TEXT NOT NULL DEFAULT '',
    created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_message_conversation ON message(conversation_id);

-- Escalation tracking (one row per forwarded conversation).
CREATE TABLE IF NOT EXISTS escalation (
    conversation_id TEXT PRIMARY KEY,
    card_id         TEXT NOT NULL,
    card_url        TEXT NOT NULL DEFAULT '',
    saved_at        TEXT NOT NULL
);
`

// DB is the SQLite-backed store driver.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at the given path, enables WAL
// mode and creates all tables.
func Open(path string) (*DB, error) {
	if path == "" {
		path = "./data/support.db"
	}

	// Ensure parent directory exists.
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create database directory %q", dir)
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open database %q", path)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create schema")
	}

	return &DB{db: db}, nil
}

// Close releases the database handle.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error) {
	if create.CreatedAt.IsZero() {
		create.CreatedAt = time.Now().UTC()
	}
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO message (conversation_id, role, content, thread_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		create.ConversationID,
		create.Role,
		create.Content,
		create.ThreadID,
		create.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, errors.Wrap(err, "insert message")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "message id")
	}
	create.ID = id
	return create, nil
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.ConversationID; v != nil {
		where, args = append(where, "conversation_id = ?"), append(args, *v)
	}
	order := "DESC"
	if find.Ascending {
		order = "ASC"
	}
	query := `
		SELECT id, conversation_id, role, content, thread_id, created_at
		FROM message WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_at ` + order + `, id ` + order

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list messages")
	}
	defer rows.Close()

	var list []*store.Message
	for rows.Next() {
		m := &store.Message{}
		var createdAt string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.ThreadID, &createdAt); err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

func (d *DB) ListConversationIDs(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT DISTINCT conversation_id FROM message ORDER BY conversation_id`)
	if err != nil {
		return nil, errors.Wrap(err, "list conversations")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan conversation id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (d *DB) ThreadForConversation(ctx context.Context, conversationID string) (string, error) {
	var threadID string
	err := d.db.QueryRowContext(ctx, `
		SELECT thread_id FROM message
		WHERE conversation_id = ? AND thread_id != ''
		ORDER BY id ASC LIMIT 1`, conversationID).Scan(&threadID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "thread lookup")
	}
	return threadID, nil
}

func (d *DB) GetEscalation(ctx context.Context, conversationID string) (*store.Escalation, error) {
	e := &store.Escalation{}
	var savedAt string
	err := d.db.QueryRowContext(ctx, `
		SELECT conversation_id, card_id, card_url, saved_at
		FROM escalation WHERE conversation_id = ?`, conversationID).
		Scan(&e.ConversationID, &e.CardID, &e.CardURL, &savedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get escalation")
	}
	if e.SavedAt, err = parseTime(savedAt); err != nil {
		return nil, err
	}
	return e, nil
}

func (d *DB) CreateEscalationIfAbsent(ctx context.Context, create *store.Escalation) (bool, error) {
	if create.SavedAt.IsZero() {
		create.SavedAt = time.Now().UTC()
	}
	res, err := d.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO escalation (conversation_id, card_id, card_url, saved_at)
		VALUES (?, ?, ?, ?)`,
		create.ConversationID,
		create.CardID,
		create.CardURL,
		create.SavedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, errors.Wrap(err, "insert escalation")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "escalation rows affected")
	}
	return n > 0, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse timestamp %q", s)
	}
	return t, nil
}
