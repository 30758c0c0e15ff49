package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jsralgo/fxvault/internal/model"
)

const chatColumns = `id, user_id, role, content, created_at`

func scanChatMessage(row pgx.Row) (model.ChatMessage, error) {
	var m model.ChatMessage
	err := row.Scan(&m.ID, &m.UserID, &m.Role, &m.Content, &m.CreatedAt)
	return m, err
}

// SaveChatMessage appends one turn to a user's conversation log.
func (db *DB) SaveChatMessage(ctx context.Context, userID int64, role model.ChatRole, content string) (model.ChatMessage, error) {
	m, err := scanChatMessage(db.pool.QueryRow(ctx,
		`INSERT INTO chat_messages (user_id, role, content)
		 VALUES ($1, $2, $3)
		 RETURNING `+chatColumns,
		userID, role, content,
	))
	if err != nil {
		return model.ChatMessage{}, fmt.Errorf("storage: save chat message: %w", err)
	}
	return m, nil
}

// ChatHistory returns a user's full conversation log in chronological order.
func (db *DB) ChatHistory(ctx context.Context, userID int64) ([]model.ChatMessage, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+chatColumns+` FROM chat_messages WHERE user_id = $1 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: chat history: %w", err)
	}
	defer rows.Close()
	return collectChatMessages(rows)
}

// RecentChatMessages returns the trailing n messages of a user's
// conversation in chronological order. This is the model context window.
func (db *DB) RecentChatMessages(ctx context.Context, userID int64, n int) ([]model.ChatMessage, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+chatColumns+` FROM (
		   SELECT `+chatColumns+` FROM chat_messages
		   WHERE user_id = $1 ORDER BY id DESC LIMIT $2
		 ) recent ORDER BY id`,
		userID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: recent chat messages: %w", err)
	}
	defer rows.Close()
	return collectChatMessages(rows)
}

// ClearChatHistory deletes a user's conversation log.
func (db *DB) ClearChatHistory(ctx context.Context, userID int64) (int64, error) {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM chat_messages WHERE user_id = $1`, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("storage: clear chat history: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectChatMessages(rows pgx.Rows) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	for rows.Next() {
		m, err := scanChatMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan chat message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
