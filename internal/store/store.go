// Package store is the durable side of the relay: rooms and their turns in
// PostgreSQL. Every operation is independently idempotent; the coordinator
// treats all of them as best-effort and never requires atomicity across
// calls.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/streamrelay/chat-relay/internal/protocol"
)

// Room is a persisted chat room. Name is empty until the first exchange
// completes and a title has been generated.
type Room struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	UserID string `json:"user_id"`
}

// Store manages rooms and messages in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL and verifies the connection.
func Open(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: postgres connection failed: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStore wraps an existing database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveInitialExchange writes the sender's turn and the empty assistant
// placeholder before streaming begins. Re-running it for the same ids is a
// no-op. The room row may not exist yet; messages are written first by
// design and the room is upserted at finalization.
func (s *Store) SaveInitialExchange(ctx context.Context, userTurn, assistantTurn protocol.Turn, roomID string) error {
	const query = `
		INSERT INTO messages (id, content, author, file, chatroom_id)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5), ($6, $7, $8, NULL, $5)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query,
		userTurn.ID, userTurn.Text, userTurn.Author, userTurn.File, roomID,
		assistantTurn.ID, assistantTurn.Text, assistantTurn.Author,
	)
	if err != nil {
		return fmt.Errorf("store: save initial exchange: %w", err)
	}
	return nil
}

// FinalizeAssistantTurn upserts the assistant turn's final text once
// streaming has ended.
func (s *Store) FinalizeAssistantTurn(ctx context.Context, turnID, finalText, roomID string) error {
	const query = `
		INSERT INTO messages (id, content, author, chatroom_id)
		VALUES ($1, $2, 'assistant', $3)
		ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content`

	if _, err := s.db.ExecContext(ctx, query, turnID, finalText, roomID); err != nil {
		return fmt.Errorf("store: finalize assistant turn: %w", err)
	}
	return nil
}

// UpsertRoom creates the room row if it does not exist. Existing rooms are
// left untouched so a rename is never overwritten.
func (s *Store) UpsertRoom(ctx context.Context, roomID, ownerUserID string) error {
	const query = `
		INSERT INTO chatrooms (id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, query, roomID, ownerUserID); err != nil {
		return fmt.Errorf("store: upsert room: %w", err)
	}
	return nil
}

// RenameRoom sets the room's display name.
func (s *Store) RenameRoom(ctx context.Context, roomID, name string) error {
	const query = `UPDATE chatrooms SET name = $2 WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, roomID, name); err != nil {
		return fmt.Errorf("store: rename room: %w", err)
	}
	return nil
}

// DeleteMessage removes a single turn. Deleting an unknown id succeeds.
func (s *Store) DeleteMessage(ctx context.Context, turnID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, turnID); err != nil {
		return fmt.Errorf("store: delete message: %w", err)
	}
	return nil
}

// DeleteRoom removes a room and all of its turns.
func (s *Store) DeleteRoom(ctx context.Context, roomID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE chatroom_id = $1`, roomID); err != nil {
		return fmt.Errorf("store: delete room messages: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chatrooms WHERE id = $1`, roomID); err != nil {
		return fmt.Errorf("store: delete room: %w", err)
	}
	return nil
}

// ListRoomsForUser returns the user's rooms, newest first. Room ids embed
// their creation time, so ordering by id is ordering by age.
func (s *Store) ListRoomsForUser(ctx context.Context, userID string) ([]Room, error) {
	const query = `
		SELECT id, COALESCE(name, ''), user_id
		FROM chatrooms
		WHERE user_id = $1
		ORDER BY id DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list rooms: %w", err)
	}
	defer rows.Close()

	rooms := []Room{}
	for rows.Next() {
		var r Room
		if err := rows.Scan(&r.ID, &r.Name, &r.UserID); err != nil {
			return nil, fmt.Errorf("store: scan room: %w", err)
		}
		rooms = append(rooms, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list rooms: %w", err)
	}
	return rooms, nil
}
