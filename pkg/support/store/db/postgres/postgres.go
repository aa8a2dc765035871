// Package postgres implements the store.Driver on PostgreSQL via the
// pgx stdlib adapter. Schema mirrors the sqlite driver.
package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver.
	"github.com/pkg/errors"

	"github.com/christried/GilgesBA/pkg/support/store"
)

// DB is the PostgreSQL-backed store driver.
type DB struct {
	db *sql.DB
}

// Open connects to the database described by the DSN and creates all
// tables.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	d := &DB{db: db}
	if err := d.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS message (
			id              BIGSERIAL PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role            TEXT NOT NULL,
			content         TEXT NOT NULL,
			thread_id       TEXT NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_message_conversation ON message(conversation_id)`,
		`CREATE TABLE IF NOT EXISTS escalation (
			conversation_id TEXT PRIMARY KEY,
			card_id         TEXT NOT NULL,
			card_url        TEXT NOT NULL DEFAULT '',
			saved_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, s := range stmts {
		if _, err := d.db.ExecContext(ctx, s); err != nil {
			return errors.Wrap(err, "create schema")
		}
	}
	return nil
}

// Close releases the database handle.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error) {
	if create.CreatedAt.IsZero() {
		create.CreatedAt = time.Now().UTC()
	}
	err := d.db.QueryRowContext(ctx, `
		INSERT INTO message (conversation_id, role, content, thread_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		create.ConversationID,
		create.Role,
		create.Content,
		create.ThreadID,
		create.CreatedAt.UTC(),
	).Scan(&create.ID)
	if err != nil {
		return nil, errors.Wrap(err, "insert message")
	}
	return create, nil
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.ConversationID; v != nil {
		where, args = append(where, "conversation_id = $1"), append(args, *v)
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
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.ThreadID, &m.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan message")
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
		WHERE conversation_id = $1 AND thread_id != ''
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
	err := d.db.QueryRowContext(ctx, `
		SELECT conversation_id, card_id, card_url, saved_at
		FROM escalation WHERE conversation_id = $1`, conversationID).
		Scan(&e.ConversationID, &e.CardID, &e.CardURL, &e.SavedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get escalation")
	}
	return e, nil
}

func (d *DB) CreateEscalationIfAbsent(ctx context.Context, create *store.Escalation) (bool, error) {
	if create.SavedAt.IsZero() {
		create.SavedAt = time.Now().UTC()
	}
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO escalation (conversation_id, card_id, card_url, saved_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (conversation_id) DO NOTHING`,
		create.ConversationID,
		create.CardID,
		create.CardURL,
		create.SavedAt.UTC(),
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
