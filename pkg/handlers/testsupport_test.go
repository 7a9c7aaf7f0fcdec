package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datachat-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/datachat-engine/pkg/apperrors"
	"github.com/ekaya-inc/datachat-engine/pkg/assistant"
	"github.com/ekaya-inc/datachat-engine/pkg/cache"
	"github.com/ekaya-inc/datachat-engine/pkg/config"
	"github.com/ekaya-inc/datachat-engine/pkg/models"
	"github.com/ekaya-inc/datachat-engine/pkg/repositories"
)

// projectRepoStub is a function-field fake for ProjectRepository.
type projectRepoStub struct {
	GetByIDFunc            func(ctx context.Context, id uuid.UUID) (*models.Project, error)
	GetBySlugFunc          func(ctx context.Context, slug string) (*models.Project, error)
	UpdateTablesFunc       func(ctx context.Context, id uuid.UUID, tables []string) error
	UpdateBusinessRuleFunc func(ctx context.Context, id uuid.UUID, rule *string) error

	UpdateTablesCalls       int
	UpdateBusinessRuleCalls int
}

var _ repositories.ProjectRepository = (*projectRepoStub)(nil)

func (s *projectRepoStub) GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	if s.GetByIDFunc != nil {
		return s.GetByIDFunc(ctx, id)
	}
	return nil, apperrors.ErrNotFound
}

func (s *projectRepoStub) GetBySlug(ctx context.Context, slug string) (*models.Project, error) {
	if s.GetBySlugFunc != nil {
		return s.GetBySlugFunc(ctx, slug)
	}
	return nil, apperrors.ErrNotFound
}

func (s *projectRepoStub) UpdateTables(ctx context.Context, id uuid.UUID, tables []string) error {
	s.UpdateTablesCalls++
	if s.UpdateTablesFunc != nil {
		return s.UpdateTablesFunc(ctx, id, tables)
	}
	return nil
}

func (s *projectRepoStub) UpdateBusinessRule(ctx context.Context, id uuid.UUID, rule *string) error {
	s.UpdateBusinessRuleCalls++
	if s.UpdateBusinessRuleFunc != nil {
		return s.UpdateBusinessRuleFunc(ctx, id, rule)
	}
	return nil
}

// chatRepoStub is a function-field fake for ChatRepository.
type chatRepoStub struct {
	CreateChatFunc    func(ctx context.Context, chat *models.Chat) error
	GetChatFunc       func(ctx context.Context, chatID uuid.UUID) (*models.Chat, error)
	GetMessagesFunc   func(ctx context.Context, chatID uuid.UUID, limit int) ([]*models.ChatMessage, error)
	AppendMessageFunc func(ctx context.Context, chatID uuid.UUID, role models.ChatRole, content string) (*models.ChatMessage, error)

	AppendedMessages []string
}

var _ repositories.ChatRepository = (*chatRepoStub)(nil)

func (s *chatRepoStub) CreateChat(ctx context.Context, chat *models.Chat) error {
	if s.CreateChatFunc != nil {
		return s.CreateChatFunc(ctx, chat)
	}
	chat.ID = uuid.New()
	chat.CreatedAt = time.Now()
	return nil
}

func (s *chatRepoStub) GetChat(ctx context.Context, chatID uuid.UUID) (*models.Chat, error) {
	if s.GetChatFunc != nil {
		return s.GetChatFunc(ctx, chatID)
	}
	return nil, apperrors.ErrNotFound
}

func (s *chatRepoStub) GetMessages(ctx context.Context, chatID uuid.UUID, limit int) ([]*models.ChatMessage, error) {
	if s.GetMessagesFunc != nil {
		return s.GetMessagesFunc(ctx, chatID, limit)
	}
	return nil, nil
}

func (s *chatRepoStub) AppendMessage(ctx context.Context, chatID uuid.UUID, role models.ChatRole, content string) (*models.ChatMessage, error) {
	s.AppendedMessages = append(s.AppendedMessages, string(role)+": "+content)
	if s.AppendMessageFunc != nil {
		return s.AppendMessageFunc(ctx, chatID, role, content)
	}
	return &models.ChatMessage{ID: uuid.New(), ChatID: chatID, Role: role, Content: content}, nil
}

type noopSink struct{}

func (noopSink) Append(ctx context.Context, entry *models.QueryLogEntry) error { return nil }

// newTestRegistry builds a real registry; tests exercising only eviction and
// release never reach gateway or datasource construction.
func newTestRegistry(t *testing.T) *assistant.Registry {
	t.Helper()

	connections := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{}, zap.NewNop())
	registry := assistant.NewRegistry(connections, cache.NewNoopCache(), noopSink{},
		config.AIConfig{Provider: "openai", Model: "gpt-4o", FastModel: "gpt-4o-mini"},
		config.AssistantConfig{InstanceTTLMinutes: 15},
		zap.NewNop())
	t.Cleanup(func() {
		registry.Close()
		_ = connections.Close()
	})
	return registry
}

func testProject(id uuid.UUID) *models.Project {
	return &models.Project{
		ID:     id,
		Slug:   "orders-demo",
		Name:   "Orders Demo",
		Tables: []string{"orders", "customers"},
		DBConfig: models.DBConfig{
			Type: "postgres", Host: "localhost", Port: 5432,
			User: "app", Password: "secret", Database: "appdata",
		},
	}
}
