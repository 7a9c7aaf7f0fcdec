package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/datachat-engine/pkg/apperrors"
	"github.com/ekaya-inc/datachat-engine/pkg/database"
	"github.com/ekaya-inc/datachat-engine/pkg/models"
)

// ChatRepository provides data access for chats and their messages.
type ChatRepository interface {
	CreateChat(ctx context.Context, chat *models.Chat) error
	GetChat(ctx context.Context, chatID uuid.UUID) (*models.Chat, error)

	// GetMessages returns up to limit most recent messages in chronological
	// order. limit <= 0 means no limit.
	GetMessages(ctx context.Context, chatID uuid.UUID, limit int) ([]*models.ChatMessage, error)
	AppendMessage(ctx context.Context, chatID uuid.UUID, role models.ChatRole, content string) (*models.ChatMessage, error)
}

type chatRepository struct {
	db *database.DB
}

// NewChatRepository creates a new ChatRepository.
func NewChatRepository(db *database.DB) ChatRepository {
	return &chatRepository{db: db}
}

var _ ChatRepository = (*chatRepository)(nil)

func (r *chatRepository) CreateChat(ctx context.Context, chat *models.Chat) error {
	if chat.ID == uuid.Nil {
		chat.ID = uuid.New()
	}
	chat.CreatedAt = time.Now()

	sql := `INSERT INTO chats (id, project_id, title, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.Exec(ctx, sql, chat.ID, chat.ProjectID, chat.Title, chat.CreatedAt); err != nil {
		return fmt.Errorf("failed to create chat: %w", err)
	}
	return nil
}

func (r *chatRepository) GetChat(ctx context.Context, chatID uuid.UUID) (*models.Chat, error) {
	sql := `SELECT id, project_id, title, created_at FROM chats WHERE id = $1`

	var chat models.Chat
	err := r.db.QueryRow(ctx, sql, chatID).Scan(&chat.ID, &chat.ProjectID, &chat.Title, &chat.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return &chat, nil
}

func (r *chatRepository) GetMessages(ctx context.Context, chatID uuid.UUID, limit int) ([]*models.ChatMessage, error) {
	// The newest messages win the limit; the outer ordering restores
	// chronological order for prompt assembly.
	sql := `
		SELECT id, chat_id, role, content, created_at FROM (
			SELECT id, chat_id, role, content, created_at
			FROM chat_messages
			WHERE chat_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) AS recent
		ORDER BY created_at ASC`

	var limitArg any
	if limit > 0 {
		limitArg = limit
	}

	rows, err := r.db.Query(ctx, sql, chatID, limitArg)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return messages, nil
}

func (r *chatRepository) AppendMessage(ctx context.Context, chatID uuid.UUID, role models.ChatRole, content string) (*models.ChatMessage, error) {
	if !models.IsValidChatRole(role) {
		return nil, fmt.Errorf("invalid chat role %q", role)
	}

	message := &models.ChatMessage{
		ID:        uuid.New(),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}

	sql := `INSERT INTO chat_messages (id, chat_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.Exec(ctx, sql, message.ID, message.ChatID, message.Role, message.Content, message.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	return message, nil
}
