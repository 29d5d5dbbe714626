package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/genegpt-server/internal/domain"
)

// sqlStore holds the queries shared by the SQLite and Postgres stores.
// Queries are written with "?" placeholders and rebound per dialect.
type sqlStore struct {
	db       *sql.DB
	numbered bool
}

// maxExportChats bounds a single export.
const maxExportChats = 100000

func (s *sqlStore) bind(query string) string {
	if !s.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanChat(s scanner) (*Chat, error) {
	chat := &Chat{}
	if err := s.Scan(&chat.ID, &chat.UserID, &chat.Title, &chat.CreatedAt, &chat.UpdatedAt); err != nil {
		return nil, err
	}
	return chat, nil
}

func scanMessage(s scanner) (*Message, error) {
	msg := &Message{}
	var role string
	if err := s.Scan(&msg.ID, &msg.ChatID, &role, &msg.Content, &msg.CreatedAt); err != nil {
		return nil, err
	}
	msg.Role = domain.Role(role)
	return msg, nil
}

func (s *sqlStore) CreateChat(ctx context.Context, userID, title string) (*Chat, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.NewValidationError("user_id", "user id is required", userID)
	}
	now := time.Now().UTC()
	chat := &Chat{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     normalizeTitle(title),
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx, s.bind(`
		INSERT INTO chats (id, user_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`), chat.ID, chat.UserID, chat.Title, chat.CreatedAt, chat.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert chat: %w", err)
	}
	return chat, nil
}

func (s *sqlStore) ListChats(ctx context.Context, userID string, limit, offset int) ([]*Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, s.bind(`
		SELECT id, user_id, title, created_at, updated_at
		FROM chats
		WHERE user_id = ?
		ORDER BY updated_at DESC, created_at DESC
		LIMIT ? OFFSET ?
	`), userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()

	chats := []*Chat{}
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

// ownedChat loads a chat header and checks that userID owns it.
func (s *sqlStore) ownedChat(ctx context.Context, userID, chatID string) (*Chat, error) {
	row := s.db.QueryRowContext(ctx, s.bind(`
		SELECT id, user_id, title, created_at, updated_at
		FROM chats
		WHERE id = ?
	`), chatID)

	chat, err := scanChat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chat: %w", err)
	}
	if chat.UserID != userID {
		return nil, ErrForbidden
	}
	return chat, nil
}

func (s *sqlStore) messages(ctx context.Context, chatID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, s.bind(`
		SELECT id, chat_id, role, content, created_at
		FROM messages
		WHERE chat_id = ?
		ORDER BY id ASC
	`), chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []*Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *sqlStore) GetChat(ctx context.Context, userID, chatID string) (*Chat, error) {
	chat, err := s.ownedChat(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	chat.Messages, err = s.messages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return chat, nil
}

func (s *sqlStore) RenameChat(ctx context.Context, userID, chatID, title string) (*Chat, error) {
	chat, err := s.ownedChat(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	chat.Title = normalizeTitle(title)
	chat.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, s.bind(`UPDATE chats SET title = ?, updated_at = ? WHERE id = ?`),
		chat.Title, chat.UpdatedAt, chat.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to rename chat: %w", err)
	}
	return chat, nil
}

func (s *sqlStore) DeleteChat(ctx context.Context, userID, chatID string) error {
	if _, err := s.ownedChat(ctx, userID, chatID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, s.bind(`DELETE FROM messages WHERE chat_id = ?`), chatID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.bind(`DELETE FROM chats WHERE id = ?`), chatID); err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	return tx.Commit()
}

func (s *sqlStore) AppendMessage(ctx context.Context, userID, chatID string, role domain.Role, content string) (*Message, error) {
	if role != domain.RoleUser && role != domain.RoleAssistant {
		return nil, domain.NewValidationError("role", "role must be user or assistant", role)
	}
	chat, err := s.ownedChat(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	msg := &Message{ChatID: chatID, Role: role, Content: content, CreatedAt: now}

	title := chat.Title
	if role == domain.RoleUser && title == DefaultTitle {
		title = TitleFromMessage(content)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	err = tx.QueryRowContext(ctx, s.bind(`
		INSERT INTO messages (chat_id, role, content, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`), chatID, string(role), content, now).Scan(&msg.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	_, err = tx.ExecContext(ctx, s.bind(`UPDATE chats SET title = ?, updated_at = ? WHERE id = ?`), title, now, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to touch chat: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}
	return msg, nil
}

func (s *sqlStore) RecentTurns(ctx context.Context, userID, chatID string, n int) ([]domain.Turn, error) {
	if _, err := s.ownedChat(ctx, userID, chatID); err != nil {
		return nil, err
	}
	messages, err := s.messages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(messages) > n {
		messages = messages[len(messages)-n:]
	}
	return Turns(messages), nil
}

func (s *sqlStore) ExportJSON(ctx context.Context, userID string, w io.Writer) error {
	chats, err := s.ListChats(ctx, userID, maxExportChats, 0)
	if err != nil {
		return fmt.Errorf("failed to list chats: %w", err)
	}
	for _, chat := range chats {
		chat.Messages, err = s.messages(ctx, chat.ID)
		if err != nil {
			return err
		}
	}

	export := &Export{
		Version:    "1.0",
		ExportedAt: time.Now().UTC(),
		UserID:     userID,
		Count:      len(chats),
		Chats:      chats,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
