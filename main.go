package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datachat-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/datachat-engine/pkg/assistant"
	"github.com/ekaya-inc/datachat-engine/pkg/cache"
	"github.com/ekaya-inc/datachat-engine/pkg/config"
	"github.com/ekaya-inc/datachat-engine/pkg/crypto"
	"github.com/ekaya-inc/datachat-engine/pkg/database"
	"github.com/ekaya-inc/datachat-engine/pkg/handlers"
	"github.com/ekaya-inc/datachat-engine/pkg/middleware"
	"github.com/ekaya-inc/datachat-engine/pkg/repositories"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("database", cfg.Database.Host),
		zap.String("redis", cfg.Redis.Host),
		zap.String("ai_provider", cfg.AI.Provider),
		zap.String("ai_model", cfg.AI.Model),
	)

	ctx := context.Background()

	// Engine storage: projects, chats, query log.
	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to engine database", zap.Error(err))
	}
	defer db.Close()

	// Migrations run over database/sql; the pool above stays pgx-native.
	migrationDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(migrationDB, "migrations", logger); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	// Cache is advisory: no Redis host means no caching, not a failure.
	var appCache cache.Cache
	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, running without cache", zap.Error(err))
		appCache = cache.NewNoopCache()
	} else if redisClient == nil {
		logger.Info("no redis configured, running without cache")
		appCache = cache.NewNoopCache()
	} else {
		defer func() { _ = redisClient.Close() }()
		appCache = cache.NewRedisCache(redisClient)
	}

	connections := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{
		PoolMaxConns: cfg.Assistant.PoolMaxConns,
	}, logger.Named("datasource"))
	defer func() { _ = connections.Close() }()

	// Datasource passwords are decrypted on read when a key is configured.
	var encryptor *crypto.CredentialEncryptor
	if cfg.EncryptionKey != "" {
		encryptor, err = crypto.NewCredentialEncryptor(cfg.EncryptionKey)
		if err != nil {
			logger.Fatal("failed to initialize credential encryptor", zap.Error(err))
		}
	} else {
		logger.Warn("no encryption key configured, datasource passwords read as plaintext")
	}

	projectRepo := repositories.NewProjectRepository(db, encryptor)
	chatRepo := repositories.NewChatRepository(db)
	queryLogRepo := repositories.NewQueryLogRepository(db)

	registry := assistant.NewRegistry(connections, appCache, queryLogRepo,
		cfg.AI, cfg.Assistant, logger)
	defer registry.Close()

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewChatHandler(projectRepo, chatRepo, registry,
		cfg.Assistant.HistoryLimit, logger.Named("chat")).RegisterRoutes(mux)
	handlers.NewProjectHandler(projectRepo, registry, appCache,
		logger.Named("projects")).RegisterRoutes(mux)

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("starting datachat-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// newLogger builds a production logger outside local development.
func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
