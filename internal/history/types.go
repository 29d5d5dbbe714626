// Package history persists per-user chat conversations so that a client can
// resume a chat and the server can replay its recent turns as history.
package history

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/genegpt-server/internal/domain"
)

// DefaultTitle names a chat until its first user message arrives.
const DefaultTitle = "New Chat"

const maxTitleLength = 50

var (
	// ErrNotFound is returned when a chat does not exist.
	ErrNotFound = errors.New("chat not found")
	// ErrForbidden is returned when a chat exists but belongs to another user.
	ErrForbidden = errors.New("chat belongs to another user")
)

// Chat is one conversation owned by a user.
type Chat struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Messages  []*Message `json:"messages,omitempty"`
}

// Message is a single stored turn.
type Message struct {
	ID        int64       `json:"id"`
	ChatID    string      `json:"chat_id"`
	Role      domain.Role `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

// Store defines chat history storage operations. Every operation that
// names a chat checks ownership and returns ErrNotFound or ErrForbidden.
type Store interface {
	// CreateChat starts an empty chat. An empty title becomes DefaultTitle.
	CreateChat(ctx context.Context, userID, title string) (*Chat, error)

	// ListChats returns a user's chats without messages, most recently updated first.
	ListChats(ctx context.Context, userID string, limit, offset int) ([]*Chat, error)

	// GetChat returns a chat with all of its messages in order.
	GetChat(ctx context.Context, userID, chatID string) (*Chat, error)

	RenameChat(ctx context.Context, userID, chatID, title string) (*Chat, error)

	// DeleteChat removes a chat and its messages.
	DeleteChat(ctx context.Context, userID, chatID string) error

	// AppendMessage stores a turn and advances the chat's updated_at. The
	// first user message replaces a default title.
	AppendMessage(ctx context.Context, userID, chatID string, role domain.Role, content string) (*Message, error)

	// RecentTurns returns the last n turns oldest first; n <= 0 returns all.
	RecentTurns(ctx context.Context, userID, chatID string, n int) ([]domain.Turn, error)

	// ExportJSON writes every chat of a user, with messages, to w.
	ExportJSON(ctx context.Context, userID string, w io.Writer) error

	Close() error
}

// Export is the JSON document written by ExportJSON.
type Export struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	UserID     string    `json:"user_id"`
	Count      int       `json:"count"`
	Chats      []*Chat   `json:"chats"`
}

// TitleFromMessage derives a chat title from the first user message.
func TitleFromMessage(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	if title == "" {
		return DefaultTitle
	}
	runes := []rune(title)
	if len(runes) > maxTitleLength {
		return strings.TrimSpace(string(runes[:maxTitleLength])) + "..."
	}
	return title
}

// Turns converts stored messages into conversation history.
func Turns(messages []*Message) []domain.Turn {
	turns := make([]domain.Turn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, domain.Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}

func normalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return DefaultTitle
	}
	return title
}
