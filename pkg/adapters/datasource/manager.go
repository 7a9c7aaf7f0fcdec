package datasource

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datachat-engine/pkg/logging"
	"github.com/ekaya-inc/datachat-engine/pkg/models"
	"github.com/ekaya-inc/datachat-engine/pkg/retry"
)

const (
	DefaultConnectionTTLMinutes = 5
	DefaultCleanupInterval      = 1 * time.Minute
	DefaultPoolMaxConns         = 10
)

// ConnectionManagerConfig holds configuration for the connection manager.
type ConnectionManagerConfig struct {
	TTLMinutes   int
	PoolMaxConns int32
}

// ConnectionManager keeps one Connector per project with TTL-based eviction.
// Connectors idle past the TTL are closed by a background cleanup goroutine.
type ConnectionManager struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]*managedConnection
	ttl         time.Duration
	maxConns    int32
	stopped     bool
	stopChan    chan struct{}
	logger      *zap.Logger
}

type managedConnection struct {
	connector Connector
	lastUsed  time.Time
	// pinned exempts the connector from TTL cleanup while a longer-lived
	// holder (the assistant registry) keeps a direct reference to it.
	pinned bool
	mu     sync.Mutex
}

// NewConnectionManager creates a connection manager with the given
// configuration. Starts a background cleanup goroutine that runs until
// Close() is called.
func NewConnectionManager(cfg ConnectionManagerConfig, logger *zap.Logger) *ConnectionManager {
	if cfg.TTLMinutes <= 0 {
		cfg.TTLMinutes = DefaultConnectionTTLMinutes
	}
	if cfg.PoolMaxConns <= 0 {
		cfg.PoolMaxConns = DefaultPoolMaxConns
	}

	manager := &ConnectionManager{
		connections: make(map[uuid.UUID]*managedConnection),
		ttl:         time.Duration(cfg.TTLMinutes) * time.Minute,
		maxConns:    cfg.PoolMaxConns,
		stopChan:    make(chan struct{}),
		logger:      logger,
	}

	go manager.cleanupExpiredConnections()
	return manager
}

// GetOrCreate returns a healthy Connector for the project, creating one on
// first use and recreating it when a health check fails.
func (m *ConnectionManager) GetOrCreate(ctx context.Context, projectID uuid.UUID, cfg *models.DBConfig) (Connector, error) {
	m.mu.RLock()
	managed, exists := m.connections[projectID]
	m.mu.RUnlock()

	if exists {
		managed.mu.Lock()

		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := retry.Do(healthCtx, retry.DefaultConfig(), func() error {
			return managed.connector.Ping(healthCtx)
		})
		cancel()

		if err != nil {
			m.logger.Warn("datasource connection unhealthy, recreating",
				zap.String("project_id", projectID.String()),
				zap.String("error", logging.SanitizeError(err)),
			)
			managed.mu.Unlock()
			m.Remove(projectID)
			return m.createConnector(ctx, projectID, cfg)
		}

		managed.lastUsed = time.Now()
		managed.mu.Unlock()
		return managed.connector, nil
	}

	return m.createConnector(ctx, projectID, cfg)
}

func (m *ConnectionManager) createConnector(ctx context.Context, projectID uuid.UUID, cfg *models.DBConfig) (Connector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Another goroutine may have created it while we waited for the lock.
	if managed, exists := m.connections[projectID]; exists && managed != nil {
		managed.mu.Lock()
		managed.lastUsed = time.Now()
		managed.mu.Unlock()
		return managed.connector, nil
	}

	connector, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (Connector, error) {
		return NewConnector(ctx, cfg, m.maxConns)
	})
	if err != nil {
		m.logger.Error("failed to create datasource connector",
			zap.String("project_id", projectID.String()),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, err
	}

	m.connections[projectID] = &managedConnection{
		connector: connector,
		lastUsed:  time.Now(),
	}

	m.logger.Info("created datasource connector",
		zap.String("project_id", projectID.String()),
		zap.String("type", cfg.EffectiveType()),
	)

	return connector, nil
}

// Pin marks the project's connector as held by a long-lived owner. A pinned
// connector is never closed by TTL cleanup; it stays alive until Unpin,
// Remove or Close. Queries go through the held reference, so lastUsed is not
// a liveness signal while pinned.
func (m *ConnectionManager) Pin(projectID uuid.UUID) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if managed, exists := m.connections[projectID]; exists && managed != nil {
		managed.mu.Lock()
		managed.pinned = true
		managed.mu.Unlock()
	}
}

// Unpin returns the project's connector to TTL eviction, restarting its idle
// clock. No-op for unknown projects.
func (m *ConnectionManager) Unpin(projectID uuid.UUID) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if managed, exists := m.connections[projectID]; exists && managed != nil {
		managed.mu.Lock()
		managed.pinned = false
		managed.lastUsed = time.Now()
		managed.mu.Unlock()
	}
}

// Remove closes and forgets the project's connector, if any. Used by the
// disconnect endpoint and by health-check recovery.
func (m *ConnectionManager) Remove(projectID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if managed, exists := m.connections[projectID]; exists && managed != nil {
		if managed.connector != nil {
			managed.connector.Close()
		}
		delete(m.connections, projectID)
		m.logger.Debug("removed datasource connector",
			zap.String("project_id", projectID.String()),
		)
	}
}

func (m *ConnectionManager) cleanupExpiredConnections() {
	ticker := time.NewTicker(DefaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.performCleanup()
		case <-m.stopChan:
			return
		}
	}
}

func (m *ConnectionManager) performCleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}

	now := time.Now()
	var expired []uuid.UUID

	for projectID, managed := range m.connections {
		if managed == nil {
			continue
		}
		managed.mu.Lock()
		idle := now.Sub(managed.lastUsed)
		pinned := managed.pinned
		managed.mu.Unlock()

		if !pinned && idle > m.ttl {
			expired = append(expired, projectID)
		}
	}

	for _, projectID := range expired {
		if managed, exists := m.connections[projectID]; exists && managed != nil {
			if managed.connector != nil {
				managed.connector.Close()
			}
			delete(m.connections, projectID)
		}
	}

	if len(expired) > 0 {
		m.logger.Info("cleaned up expired datasource connectors",
			zap.Int("count", len(expired)),
			zap.Int("remaining", len(m.connections)),
		)
	}
}

// Close closes all connectors and stops the cleanup goroutine. Idempotent.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil
	}

	m.stopped = true
	close(m.stopChan)

	for _, managed := range m.connections {
		if managed != nil && managed.connector != nil {
			managed.connector.Close()
		}
	}

	m.connections = make(map[uuid.UUID]*managedConnection)
	m.logger.Info("connection manager closed")
	return nil
}

// Count returns the number of live connectors. Used by tests and stats.
func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}
