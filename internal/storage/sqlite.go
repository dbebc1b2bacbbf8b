// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/copilot-engine/internal/model"
)

// SchemaVersion tracks the database schema version for migrations.
const SchemaVersion = 1

// sqliteSchema creates the conversation tables. Times are stored as Unix
// nanoseconds; actions and payload are JSON columns.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    surface TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    preview TEXT NOT NULL DEFAULT '',
    turn_count INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_surface ON conversations(surface);
CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);

CREATE TABLE IF NOT EXISTS turns (
    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    actions TEXT,
    payload TEXT,
    timestamp INTEGER NOT NULL,
    PRIMARY KEY (conversation_id, seq)
);
`

// =============================================================================
// SQLITE PERSISTER
// =============================================================================

// SQLitePersister stores conversations in a SQLite database.
type SQLitePersister struct {
	db *sql.DB

	// MaxConversations limits stored conversations (0 = unlimited)
	MaxConversations int
}

// NewSQLitePersister opens (or creates) the database at path.
func NewSQLitePersister(path string) (*SQLitePersister, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	p := &SQLitePersister{db: db, MaxConversations: DefaultMaxConversations}
	if err := p.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return p, nil
}

func (p *SQLitePersister) initSchema() error {
	if _, err := p.db.Exec(sqliteSchema); err != nil {
		return err
	}
	_, err := p.db.Exec(
		"INSERT INTO metadata (key, value) VALUES ('schema_version', ?) ON CONFLICT(key) DO NOTHING",
		fmt.Sprint(SchemaVersion))
	return err
}

// Save replaces the conversation row and all of its turns in one transaction.
func (p *SQLitePersister) Save(ctx context.Context, conv *model.Conversation) error {
	if !validID(conv.ID) {
		return ErrInvalidID
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, surface, title, preview, turn_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			surface = excluded.surface,
			title = excluded.title,
			preview = excluded.preview,
			turn_count = excluded.turn_count,
			updated_at = excluded.updated_at`,
		conv.ID, conv.Surface, conv.Title, conv.Preview(), len(conv.Turns),
		conv.CreatedAt.UnixNano(), conv.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM turns WHERE conversation_id = ?", conv.ID); err != nil {
		return fmt.Errorf("clear turns: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO turns (conversation_id, seq, id, role, content, actions, payload, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare turn insert: %w", err)
	}
	defer stmt.Close()

	for seq, t := range conv.Turns {
		actions, payload, err := encodeTurnExtras(t)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, conv.ID, seq, t.ID, string(t.Role), t.Content,
			actions, payload, t.Timestamp.UnixNano()); err != nil {
			return fmt.Errorf("insert turn %d: %w", seq, err)
		}
	}

	if p.MaxConversations > 0 {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM conversations WHERE id NOT IN (
				SELECT id FROM conversations ORDER BY updated_at DESC LIMIT ?
			)`, p.MaxConversations)
		if err != nil {
			return fmt.Errorf("enforce limit: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM turns WHERE conversation_id NOT IN (SELECT id FROM conversations)"); err != nil {
			return fmt.Errorf("remove orphaned turns: %w", err)
		}
	}

	return tx.Commit()
}

func encodeTurnExtras(t *model.Turn) (actions, payload sql.NullString, err error) {
	if len(t.Actions) > 0 {
		data, err := json.Marshal(t.Actions)
		if err != nil {
			return actions, payload, fmt.Errorf("encode actions: %w", err)
		}
		actions = sql.NullString{String: string(data), Valid: true}
	}
	if t.Payload != nil {
		data, err := json.Marshal(t.Payload)
		if err != nil {
			return actions, payload, fmt.Errorf("encode payload: %w", err)
		}
		payload = sql.NullString{String: string(data), Valid: true}
	}
	return actions, payload, nil
}

// Load reads one conversation with its turns in seq order.
func (p *SQLitePersister) Load(ctx context.Context, id string) (*model.Conversation, error) {
	var (
		conv             model.Conversation
		created, updated int64
	)
	err := p.db.QueryRowContext(ctx,
		"SELECT id, surface, title, created_at, updated_at FROM conversations WHERE id = ?", id).
		Scan(&conv.ID, &conv.Surface, &conv.Title, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	conv.CreatedAt = time.Unix(0, created)
	conv.UpdatedAt = time.Unix(0, updated)

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, role, content, actions, payload, timestamp
		FROM turns WHERE conversation_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}
	defer rows.Close()

	conv.Turns = make([]*model.Turn, 0)
	for rows.Next() {
		var (
			t                model.Turn
			role             string
			actions, payload sql.NullString
			ts               int64
		)
		if err := rows.Scan(&t.ID, &role, &t.Content, &actions, &payload, &ts); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Role = model.Role(role)
		t.Timestamp = time.Unix(0, ts)
		if actions.Valid {
			if err := json.Unmarshal([]byte(actions.String), &t.Actions); err != nil {
				return nil, fmt.Errorf("decode actions: %w", err)
			}
		}
		if payload.Valid {
			t.Payload = &model.Payload{}
			if err := json.Unmarshal([]byte(payload.String), t.Payload); err != nil {
				return nil, fmt.Errorf("decode payload: %w", err)
			}
		}
		conv.Turns = append(conv.Turns, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &conv, nil
}

// List returns metadata, most recently updated first.
func (p *SQLitePersister) List(ctx context.Context) ([]model.ConversationMeta, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, surface, title, preview, turn_count, created_at, updated_at
		FROM conversations ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	metas := make([]model.ConversationMeta, 0)
	for rows.Next() {
		var (
			m                model.ConversationMeta
			created, updated int64
		)
		if err := rows.Scan(&m.ID, &m.Surface, &m.Title, &m.Preview, &m.TurnCount, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		if m.Title == "" {
			m.Title = model.DefaultTitle
		}
		m.CreatedAt = time.Unix(0, created)
		m.UpdatedAt = time.Unix(0, updated)
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

// Delete removes a conversation and its turns.
func (p *SQLitePersister) Delete(ctx context.Context, id string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM turns WHERE conversation_id = ?", id); err != nil {
		return fmt.Errorf("delete turns: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConversationNotFound
	}
	return tx.Commit()
}

// Close closes the database.
func (p *SQLitePersister) Close() error {
	return p.db.Close()
}
