// Package testhelpers provides shared infrastructure for integration tests.
package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datachat-engine/pkg/config"
	"github.com/ekaya-inc/datachat-engine/pkg/database"
)

// PostgresTestImage is the PostgreSQL image used for integration tests.
const PostgresTestImage = "postgres:16-alpine"

const (
	testDBName     = "datachat_engine_test"
	testDBUser     = "datachat"
	testDBPassword = "test_password"
)

// EngineDB holds a shared test database with migrations applied. Use this
// for testing repositories and handlers against a real database.
type EngineDB struct {
	Container testcontainers.Container
	DB        *database.DB
	Config    *config.DatabaseConfig
}

var (
	sharedEngineDB     *EngineDB
	sharedEngineDBOnce sync.Once
	sharedEngineDBErr  error
)

// GetEngineDB returns a shared PostgreSQL container with the engine schema
// migrated. The container is created once and reused across all tests in the
// run.
func GetEngineDB(t *testing.T) *EngineDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedEngineDBOnce.Do(func() {
		sharedEngineDB, sharedEngineDBErr = setupEngineDB()
	})

	if sharedEngineDBErr != nil {
		t.Fatalf("Failed to setup engine database: %v", sharedEngineDBErr)
	}

	return sharedEngineDB
}

func setupEngineDB() (*EngineDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresTestImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       testDBName,
			"POSTGRES_USER":     testDBUser,
			"POSTGRES_PASSWORD": testDBPassword,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	portNum, err := strconv.Atoi(port.Port())
	if err != nil {
		return nil, fmt.Errorf("failed to parse container port: %w", err)
	}

	cfg := &config.DatabaseConfig{
		Host:           host,
		Port:           portNum,
		User:           testDBUser,
		Password:       testDBPassword,
		Database:       testDBName,
		MaxConnections: 5,
		SSLMode:        "disable",
	}

	// The container can accept connections slightly after the ready log line.
	var db *database.DB
	for i := 0; i < 10; i++ {
		db, err = database.NewConnection(ctx, cfg)
		if err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to engine database: %w", err)
	}

	// Run migrations using database/sql (required by golang-migrate).
	sqlDB, err := sql.Open("pgx", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open sql connection: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, migrationsDir(), zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &EngineDB{
		Container: container,
		DB:        db,
		Config:    cfg,
	}, nil
}

// migrationsDir resolves the migrations directory relative to this source
// file, so integration tests work from any package directory.
func migrationsDir() string {
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "migrations")
}
