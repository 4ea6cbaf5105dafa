package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hrygo/channelwatch/store"
)

const chatColumns = `id, user_id, title, summary, is_active, created_ts, updated_ts`

func scanChat(row interface{ Scan(...any) error }) (*store.AIChat, error) {
	chat := &store.AIChat{}
	if err := row.Scan(&chat.ID, &chat.UserID, &chat.Title, &chat.Summary, &chat.IsActive, &chat.CreatedTs, &chat.UpdatedTs); err != nil {
		return nil, err
	}
	return chat, nil
}

// GetOrCreateActiveChat returns the user's active chat, creating one inside a
// transaction when none exists. Exactly one chat is active after the call.
func (d *DB) GetOrCreateActiveChat(ctx context.Context, userID int32) (*store.AIChat, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	chat, err := scanChat(tx.QueryRowContext(ctx,
		`SELECT `+chatColumns+` FROM ai_chats WHERE user_id = $1 AND is_active ORDER BY id DESC LIMIT 1`, userID))
	if err == sql.ErrNoRows {
		now := time.Now().Unix()
		chat, err = scanChat(tx.QueryRowContext(ctx,
			`INSERT INTO ai_chats (user_id, title, is_active, created_ts, updated_ts)
			VALUES ($1, $2, TRUE, $3, $3)
			RETURNING `+chatColumns, userID, store.PlaceholderChatTitle, now))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get or create active chat: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit tx: %w", err)
	}
	return chat, nil
}

// CreateChat inserts a new chat and makes it the single active one.
func (d *DB) CreateChat(ctx context.Context, userID int32, title string) (*store.AIChat, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE ai_chats SET is_active = FALSE WHERE user_id = $1 AND is_active`, userID); err != nil {
		return nil, fmt.Errorf("failed to demote active chats: %w", err)
	}
	now := time.Now().Unix()
	chat, err := scanChat(tx.QueryRowContext(ctx,
		`INSERT INTO ai_chats (user_id, title, is_active, created_ts, updated_ts)
		VALUES ($1, $2, TRUE, $3, $3)
		RETURNING `+chatColumns, userID, title, now))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit tx: %w", err)
	}
	return chat, nil
}

// SetActiveChat demotes every active chat of the user and promotes the given
// one, all inside a single transaction.
func (d *DB) SetActiveChat(ctx context.Context, userID, chatID int32) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE ai_chats SET is_active = FALSE WHERE user_id = $1 AND is_active`, userID); err != nil {
		return fmt.Errorf("failed to demote active chats: %w", err)
	}
	result, err := tx.ExecContext(ctx,
		`UPDATE ai_chats SET is_active = TRUE, updated_ts = $1 WHERE id = $2 AND user_id = $3`,
		time.Now().Unix(), chatID, userID)
	if err != nil {
		return fmt.Errorf("failed to promote chat: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}

func (d *DB) GetChat(ctx context.Context, userID, chatID int32) (*store.AIChat, error) {
	chat, err := scanChat(d.db.QueryRowContext(ctx,
		`SELECT `+chatColumns+` FROM ai_chats WHERE id = $1 AND user_id = $2`, chatID, userID))
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return chat, nil
}

func (d *DB) ListChats(ctx context.Context, userID int32) ([]*store.AIChat, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+chatColumns+` FROM ai_chats WHERE user_id = $1 ORDER BY updated_ts DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	list := make([]*store.AIChat, 0)
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		list = append(list, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chats: %w", err)
	}
	return list, nil
}

func (d *DB) DeleteChat(ctx context.Context, userID, chatID int32) error {
	result, err := d.db.ExecContext(ctx,
		`DELETE FROM ai_chats WHERE id = $1 AND user_id = $2`, chatID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (d *DB) UpdateChatTitle(ctx context.Context, chatID int32, title string) error {
	if _, err := d.db.ExecContext(ctx,
		`UPDATE ai_chats SET title = $1, updated_ts = $2 WHERE id = $3`,
		title, time.Now().Unix(), chatID); err != nil {
		return fmt.Errorf("failed to update chat title: %w", err)
	}
	return nil
}

func (d *DB) UpdateChatSummary(ctx context.Context, chatID int32, summary string) error {
	if _, err := d.db.ExecContext(ctx,
		`UPDATE ai_chats SET summary = $1, updated_ts = $2 WHERE id = $3`,
		summary, time.Now().Unix(), chatID); err != nil {
		return fmt.Errorf("failed to update chat summary: %w", err)
	}
	return nil
}

// SaveMessage appends a message and bumps the chat's updated_ts in the same
// transaction.
func (d *DB) SaveMessage(ctx context.Context, chatID int32, role, content string) (*store.AIMessage, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	message := &store.AIMessage{ChatID: chatID, Role: role, Content: content, CreatedTs: now}
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO ai_messages (chat_id, role, content, created_ts) VALUES ($1, $2, $3, $4) RETURNING id`,
		chatID, role, content, now).Scan(&message.ID); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE ai_chats SET updated_ts = $1 WHERE id = $2`, now, chatID); err != nil {
		return nil, fmt.Errorf("failed to bump chat updated_ts: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit tx: %w", err)
	}
	return message, nil
}

// ListMessages returns the most recent limit messages in chronological order.
// A non-positive limit returns the full thread.
func (d *DB) ListMessages(ctx context.Context, chatID int32, limit int) ([]*store.AIMessage, error) {
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = d.db.QueryContext(ctx,
			`SELECT id, chat_id, role, content, created_ts FROM ai_messages WHERE chat_id = $1 ORDER BY id DESC LIMIT $2`,
			chatID, limit)
	} else {
		rows, err = d.db.QueryContext(ctx,
			`SELECT id, chat_id, role, content, created_ts FROM ai_messages WHERE chat_id = $1 ORDER BY id`, chatID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	list := make([]*store.AIMessage, 0)
	for rows.Next() {
		m := &store.AIMessage{}
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.CreatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	if limit > 0 {
		// Undo the DESC ordering used to pick the tail of the thread.
		for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
			list[i], list[j] = list[j], list[i]
		}
	}
	return list, nil
}

func (d *DB) CountMessages(ctx context.Context, chatID int32) (int, error) {
	var count int
	if err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ai_messages WHERE chat_id = $1`, chatID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

func (d *DB) ClearMessages(ctx context.Context, chatID int32) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM ai_messages WHERE chat_id = $1`, chatID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	return nil
}

func (d *DB) GetAISettings(ctx context.Context, userID int32) (*store.AISettings, error) {
	settings := &store.AISettings{}
	err := d.db.QueryRowContext(ctx,
		`SELECT user_id, provider, model, updated_ts FROM ai_settings WHERE user_id = $1`, userID).Scan(
		&settings.UserID, &settings.Provider, &settings.Model, &settings.UpdatedTs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ai settings: %w", err)
	}
	return settings, nil
}

func (d *DB) UpsertAISettings(ctx context.Context, settings *store.AISettings) (*store.AISettings, error) {
	stmt := `INSERT INTO ai_settings (user_id, provider, model, updated_ts)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET provider = EXCLUDED.provider, model = EXCLUDED.model, updated_ts = EXCLUDED.updated_ts`
	if _, err := d.db.ExecContext(ctx, stmt,
		settings.UserID, settings.Provider, settings.Model, settings.UpdatedTs); err != nil {
		return nil, fmt.Errorf("failed to upsert ai settings: %w", err)
	}
	return settings, nil
}
