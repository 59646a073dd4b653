package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the PostgreSQL-backed Querier.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store over the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const chatColumns = "id, owner_id, title, last_message_at, created_at, updated_at"

func scanChat(row pgx.Row) (Chat, error) {
	var c Chat
	err := row.Scan(&c.ID, &c.OwnerID, &c.Title, &c.LastMessageAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Chat{}, ErrNotFound
	}
	if err != nil {
		return Chat{}, fmt.Errorf("scanning chat: %w", err)
	}
	return c, nil
}

func (s *Store) CreateChat(ctx context.Context, ownerID uuid.UUID, title string) (Chat, error) {
	row := s.pool.QueryRow(ctx,
		"INSERT INTO chats (owner_id, title) VALUES ($1, $2) RETURNING "+chatColumns,
		ownerID, title)
	return scanChat(row)
}

func (s *Store) ChatByID(ctx context.Context, id uuid.UUID) (Chat, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+chatColumns+" FROM chats WHERE id = $1", id)
	return scanChat(row)
}

// ChatForOwner is the owner-scoped lookup: a chat owned by someone else
// comes back as ErrNotFound.
func (s *Store) ChatForOwner(ctx context.Context, id, ownerID uuid.UUID) (Chat, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+chatColumns+" FROM chats WHERE id = $1 AND owner_id = $2", id, ownerID)
	return scanChat(row)
}

func (s *Store) ChatsByOwner(ctx context.Context, ownerID uuid.UUID) ([]Chat, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+chatColumns+" FROM chats WHERE owner_id = $1 ORDER BY last_message_at DESC",
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing chats: %w", err)
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

func (s *Store) RenameChat(ctx context.Context, id uuid.UUID, title string) (Chat, error) {
	row := s.pool.QueryRow(ctx,
		"UPDATE chats SET title = $2, updated_at = now() WHERE id = $1 RETURNING "+chatColumns,
		id, title)
	return scanChat(row)
}

func (s *Store) DeleteChat(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM chats WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const messageColumns = "id, chat_id, role, content, sequence_number, created_at"

// appendAttempts bounds retries when concurrent appends to the same chat
// race for the next sequence number.
const appendAttempts = 3

// AppendMessage writes the next session log entry atomically: the
// sequence number is computed and inserted in one statement, and the
// unique (chat_id, sequence_number) constraint turns a concurrent race
// into a retry instead of an interleaved log.
func (s *Store) AppendMessage(ctx context.Context, chatID uuid.UUID, role, content string) (ChatMessage, error) {
	var lastErr error
	for attempt := 0; attempt < appendAttempts; attempt++ {
		msg, err := s.appendMessage(ctx, chatID, role, content)
		if err == nil {
			return msg, nil
		}
		lastErr = err
		if !isUniqueViolation(err) {
			return ChatMessage{}, err
		}
	}
	return ChatMessage{}, fmt.Errorf("appending message after %d attempts: %w", appendAttempts, lastErr)
}

func (s *Store) appendMessage(ctx context.Context, chatID uuid.UUID, role, content string) (ChatMessage, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("beginning append: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var m ChatMessage
	err = tx.QueryRow(ctx, `
		INSERT INTO chat_messages (chat_id, role, content, sequence_number)
		SELECT $1, $2, $3, COALESCE(MAX(sequence_number), 0) + 1
		FROM chat_messages WHERE chat_id = $1
		RETURNING `+messageColumns,
		chatID, role, content).
		Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.SequenceNumber, &m.CreatedAt)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("inserting message: %w", err)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE chats SET last_message_at = now(), updated_at = now() WHERE id = $1",
		chatID); err != nil {
		return ChatMessage{}, fmt.Errorf("touching chat: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return ChatMessage{}, fmt.Errorf("committing append: %w", err)
	}
	return m, nil
}

func (s *Store) MessagesByChat(ctx context.Context, chatID uuid.UUID) ([]ChatMessage, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+messageColumns+" FROM chat_messages WHERE chat_id = $1 ORDER BY sequence_number",
		chatID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var messages []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.SequenceNumber, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
