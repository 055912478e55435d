// Package sqlite provides a SQLite-backed Store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/marketstead/chatstream/pkg/llm"
)

const schema = `
CREATE TABLE IF NOT EXISTS turns (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    TEXT NOT NULL,
	topic      TEXT NOT NULL,
	role       TEXT NOT NULL,
	text       TEXT NOT NULL,
	image_ref  TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns (user_id, topic, id);
`

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite-backed store. The dbPath can be a file path or
// ":memory:" for an in-memory database.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite-specific pragmas
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// SaveTurn appends a turn to the conversation.
func (s *Store) SaveTurn(ctx context.Context, ref llm.ConversationRef, turn llm.Turn) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (user_id, topic, role, text, image_ref) VALUES (?, ?, ?, ?, ?)`,
		ref.UserID, ref.Topic, string(turn.Role), turn.Text, turn.ImageRef,
	)
	if err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}

	return nil
}

// LoadHistory returns up to limit of the most recent turns, oldest first.
func (s *Store) LoadHistory(ctx context.Context, ref llm.ConversationRef, limit int) ([]llm.Turn, error) {
	// Select the newest rows, then reverse into ascending order.
	query := `SELECT role, text, image_ref FROM turns WHERE user_id = ? AND topic = ? ORDER BY id DESC`
	args := []any{ref.UserID, ref.Topic}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var turns []llm.Turn
	for rows.Next() {
		var role, text, imageRef string
		if err := rows.Scan(&role, &text, &imageRef); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		turns = append(turns, llm.Turn{Role: llm.Role(role), Text: text, ImageRef: imageRef})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}

	return turns, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
