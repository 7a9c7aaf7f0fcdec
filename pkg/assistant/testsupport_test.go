package assistant

import (
	"context"
	"errors"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datachat-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/datachat-engine/pkg/apperrors"
	"github.com/ekaya-inc/datachat-engine/pkg/llm"
	"github.com/ekaya-inc/datachat-engine/pkg/models"
)

// memCache is an in-memory Cache with a failure toggle for outage tests.
type memCache struct {
	mu      sync.Mutex
	data    map[string]string
	failing bool
	gets    int
	sets    int
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string]string)}
}

func (c *memCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.failing {
		return "", apperrors.NewCacheError("get", key, errors.New("cache down"))
	}
	v, ok := c.data[key]
	if !ok {
		return "", apperrors.ErrNotFound
	}
	return v, nil
}

func (c *memCache) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if c.failing {
		return apperrors.NewCacheError("set", key, errors.New("cache down"))
	}
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return apperrors.NewCacheError("delete", key, errors.New("cache down"))
	}
	delete(c.data, key)
	return nil
}

func (c *memCache) DeletePattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return apperrors.NewCacheError("delete_pattern", pattern, errors.New("cache down"))
	}
	for key := range c.data {
		if ok, _ := path.Match(pattern, key); ok {
			delete(c.data, key)
		}
	}
	return nil
}

// recordingSink captures audit entries for assertion.
type recordingSink struct {
	mu      sync.Mutex
	entries []*models.QueryLogEntry
	err     error
}

func (s *recordingSink) Append(ctx context.Context, entry *models.QueryLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *recordingSink) all() []*models.QueryLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.QueryLogEntry(nil), s.entries...)
}

// textStream is a GenerateStreamFunc returning the given text as one chunk
// plus trailing usage.
func textStream(text string) func(context.Context, *llm.GenerateRequest, []llm.ToolDefinition) (<-chan llm.Chunk, error) {
	return func(context.Context, *llm.GenerateRequest, []llm.ToolDefinition) (<-chan llm.Chunk, error) {
		return llm.StreamOf(
			llm.Chunk{Kind: llm.ChunkText, Text: text},
			llm.Chunk{Kind: llm.ChunkUsage, Usage: &models.TokenUsage{PromptTokens: 10, CandidateTokens: 5, TotalTokens: 15}},
		), nil
	}
}

// newTestAssistant wires an assistant over mocks for orchestrator tests.
func newTestAssistant(gateway, fastGateway *llm.MockGateway, connector *datasource.MockConnector, sink QueryLogSink, tables []string) *Assistant {
	logger := zap.NewNop()
	c := newMemCache()
	projectID := uuid.New()

	return NewAssistant(
		NewContextEvaluator(fastGateway, logger),
		NewSchemaProvider(connector, c, projectID, time.Minute, time.Minute, logger),
		NewBusinessRuleProvider(c, projectID, "", time.Minute, logger),
		NewQueryEngine(gateway, connector, "PostgreSQL", logger),
		NewResponder(gateway, logger),
		sink,
		projectID,
		tables,
		logger,
	)
}

// collect drains a stream into a slice.
func collect(stream <-chan models.StreamEvent) []models.StreamEvent {
	var events []models.StreamEvent
	for event := range stream {
		events = append(events, event)
	}
	return events
}

// eventTypes extracts the type sequence from collected events.
func eventTypes(events []models.StreamEvent) []models.StreamEventType {
	types := make([]models.StreamEventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}
