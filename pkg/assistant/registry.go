package assistant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datachat-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/datachat-engine/pkg/cache"
	"github.com/ekaya-inc/datachat-engine/pkg/config"
	"github.com/ekaya-inc/datachat-engine/pkg/llm"
	"github.com/ekaya-inc/datachat-engine/pkg/models"
)

// registrySweepInterval is how often idle instances are checked for
// eviction.
const registrySweepInterval = time.Minute

// registryEntry is one live assistant with its reference count. lastUsed is
// only consulted when refs is zero.
type registryEntry struct {
	assistant *Assistant
	projectID uuid.UUID
	refs      int
	lastUsed  time.Time
}

// Registry keeps one assistant instance per (project, model) pair alive
// across requests. Acquire/Release bracket each request; an instance whose
// reference count has been zero for longer than the TTL is evicted by the
// background sweeper. Datasource connectors are pinned in the connection
// manager while their assistant is registered, so the manager's own idle
// cleanup cannot close a pool a live instance still holds; eviction lifts
// the pin and hands the connector back to the manager's TTL.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry

	connections *datasource.ConnectionManager
	cache       cache.Cache
	logSink     QueryLogSink
	aiCfg       config.AIConfig
	asstCfg     config.AssistantConfig
	logger      *zap.Logger
	done        chan struct{}
	closeOnce   sync.Once
}

// NewRegistry creates the registry and starts its eviction sweeper.
func NewRegistry(
	connections *datasource.ConnectionManager,
	c cache.Cache,
	logSink QueryLogSink,
	aiCfg config.AIConfig,
	asstCfg config.AssistantConfig,
	logger *zap.Logger,
) *Registry {
	r := &Registry{
		entries:     make(map[string]*registryEntry),
		connections: connections,
		cache:       c,
		logSink:     logSink,
		aiCfg:       aiCfg,
		asstCfg:     asstCfg,
		logger:      logger.Named("registry"),
	}
	r.done = make(chan struct{})
	go r.sweep()
	return r
}

func registryKey(projectID uuid.UUID, model string) string {
	return fmt.Sprintf("%s:%s", projectID, model)
}

// Acquire returns the assistant for the project, building it on first use,
// and pins it against eviction until the matching Release. The model key
// comes from the AI configuration, so distinct model rollouts get distinct
// instances.
func (r *Registry) Acquire(ctx context.Context, project *models.Project) (*Assistant, error) {
	key := registryKey(project.ID, r.aiCfg.Model)

	r.mu.Lock()
	if entry, ok := r.entries[key]; ok {
		entry.refs++
		r.mu.Unlock()
		return entry.assistant, nil
	}
	r.mu.Unlock()

	// Built outside the lock: gateway and connector construction do I/O.
	assistant, err := r.build(ctx, project)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[key]; ok {
		// Lost the race; the concurrently built instance wins.
		entry.refs++
		return entry.assistant, nil
	}
	r.entries[key] = &registryEntry{assistant: assistant, projectID: project.ID, refs: 1, lastUsed: time.Now()}
	r.logger.Info("assistant instance created",
		zap.String("project_id", project.ID.String()),
		zap.String("model", r.aiCfg.Model))
	return assistant, nil
}

// Release unpins an assistant acquired for one request and stamps its idle
// time.
func (r *Registry) Release(projectID uuid.UUID) {
	key := registryKey(projectID, r.aiCfg.Model)

	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[key]
	if !ok {
		return
	}
	if entry.refs > 0 {
		entry.refs--
	}
	if entry.refs == 0 {
		entry.lastUsed = time.Now()
	}
}

// Evict drops the project's assistant instance immediately, regardless of
// idle time, and removes its datasource connection. Used by the disconnect
// endpoint alongside schema cache invalidation.
func (r *Registry) Evict(projectID uuid.UUID) {
	key := registryKey(projectID, r.aiCfg.Model)

	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()

	r.connections.Remove(projectID)
}

// Count returns the number of live instances.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close stops the sweeper and drops all instances.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.mu.Lock()
		r.entries = make(map[string]*registryEntry)
		r.mu.Unlock()
	})
}

func (r *Registry) build(ctx context.Context, project *models.Project) (*Assistant, error) {
	gateway, err := llm.NewGateway(&llm.Config{
		Provider: r.aiCfg.Provider,
		BaseURL:  r.aiCfg.BaseURL,
		APIKey:   r.aiCfg.APIKey,
		Model:    r.aiCfg.Model,
	}, r.logger)
	if err != nil {
		return nil, fmt.Errorf("creating model gateway: %w", err)
	}

	fastGateway, err := llm.NewGateway(&llm.Config{
		Provider: r.aiCfg.Provider,
		BaseURL:  r.aiCfg.BaseURL,
		APIKey:   r.aiCfg.APIKey,
		Model:    r.aiCfg.FastModel,
	}, r.logger)
	if err != nil {
		return nil, fmt.Errorf("creating fast model gateway: %w", err)
	}

	connector, err := r.connections.GetOrCreate(ctx, project.ID, &project.DBConfig)
	if err != nil {
		return nil, err
	}
	// The assistant holds the connector directly, bypassing GetOrCreate on
	// the query path. Pin it so the manager's idle cleanup cannot close it
	// while this instance is alive; the pin is lifted when the instance is
	// evicted.
	r.connections.Pin(project.ID)

	rule := ""
	if project.HasBusinessRule() {
		rule = *project.BusinessRule
	}

	schema := NewSchemaProvider(connector, r.cache, project.ID,
		r.asstCfg.SchemaTTL(), r.asstCfg.TablesTTL(), r.logger)
	rules := NewBusinessRuleProvider(r.cache, project.ID, rule,
		r.asstCfg.BusinessRuleTTL(), r.logger)
	evaluator := NewContextEvaluator(fastGateway, r.logger)
	engine := NewQueryEngine(gateway, connector, DialectName(project.DBConfig.EffectiveType()), r.logger)
	responder := NewResponder(gateway, r.logger)

	return NewAssistant(evaluator, schema, rules, engine, responder,
		r.logSink, project.ID, project.Tables, r.logger), nil
}

// sweep evicts instances that have sat unreferenced past the TTL.
func (r *Registry) sweep() {
	ticker := time.NewTicker(registrySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.evictIdle()
		case <-r.done:
			return
		}
	}
}

func (r *Registry) evictIdle() {
	ttl := r.asstCfg.InstanceTTL()
	cutoff := time.Now().Add(-ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	for key, entry := range r.entries {
		if entry.refs == 0 && entry.lastUsed.Before(cutoff) {
			delete(r.entries, key)
			r.connections.Unpin(entry.projectID)
			r.logger.Debug("evicted idle assistant instance", zap.String("key", key))
		}
	}
}
