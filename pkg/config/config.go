// Package config loads datachat-engine configuration.
package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for datachat-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3500"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Engine storage (projects, chats, query log) - PostgreSQL
	Database DatabaseConfig `yaml:"database"`

	// Redis cache for schema snapshots and business rules
	Redis RedisConfig `yaml:"redis"`

	// AI provider configuration
	AI AIConfig `yaml:"ai"`

	// Cache TTLs and assistant registry settings
	Assistant AssistantConfig `yaml:"assistant"`

	// EncryptionKey decrypts datasource passwords stored on project rows.
	// Empty means passwords are stored in plaintext (local development only).
	EncryptionKey string `yaml:"-" env:"ENCRYPTION_KEY"` // Secret - not in YAML
}

// DatabaseConfig holds engine PostgreSQL configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"datachat"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"datachat_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis cache configuration.
// An empty host disables caching; providers fall back to live computation.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// AIConfig holds language-model provider settings. Provider selects the
// gateway family; unsupported values fail at construction.
type AIConfig struct {
	// Provider is "openai" or "anthropic".
	Provider string `yaml:"provider" env:"AI_PROVIDER" env-default:"openai"`
	// BaseURL overrides the provider endpoint (OpenAI-compatible gateways).
	BaseURL string `yaml:"base_url" env:"AI_BASE_URL" env-default:""`
	APIKey  string `yaml:"-" env:"AI_API_KEY"` // Secret - not in YAML
	// Model answers questions and generates SQL.
	Model string `yaml:"model" env:"AI_MODEL" env-default:"gpt-4o"`
	// FastModel is the lighter model used for context-sufficiency checks.
	FastModel string `yaml:"fast_model" env:"AI_FAST_MODEL" env-default:"gpt-4o-mini"`
}

// AssistantConfig holds cache TTLs and assistant registry settings.
type AssistantConfig struct {
	// SchemaTTLMinutes is how long cached schema snapshots stay fresh.
	SchemaTTLMinutes int `yaml:"schema_ttl_minutes" env:"ASSISTANT_SCHEMA_TTL_MINUTES" env-default:"10"`
	// TablesTTLMinutes is how long the cached live table list stays fresh.
	TablesTTLMinutes int `yaml:"tables_ttl_minutes" env:"ASSISTANT_TABLES_TTL_MINUTES" env-default:"5"`
	// BusinessRuleTTLMinutes is how long cached business rules stay fresh.
	BusinessRuleTTLMinutes int `yaml:"business_rule_ttl_minutes" env:"ASSISTANT_BUSINESS_RULE_TTL_MINUTES" env-default:"30"`
	// InstanceTTLMinutes is how long idle assistant instances are kept alive.
	InstanceTTLMinutes int `yaml:"instance_ttl_minutes" env:"ASSISTANT_INSTANCE_TTL_MINUTES" env-default:"15"`
	// PoolMaxConns is the maximum number of connections per project datasource pool.
	PoolMaxConns int32 `yaml:"pool_max_conns" env:"ASSISTANT_POOL_MAX_CONNS" env-default:"10"`
	// HistoryLimit is how many stored messages are loaded as conversation context.
	HistoryLimit int `yaml:"history_limit" env:"ASSISTANT_HISTORY_LIMIT" env-default:"20"`
}

// SchemaTTL returns the schema cache TTL as a duration.
func (c *AssistantConfig) SchemaTTL() time.Duration {
	return time.Duration(c.SchemaTTLMinutes) * time.Minute
}

// TablesTTL returns the table-list cache TTL as a duration.
func (c *AssistantConfig) TablesTTL() time.Duration {
	return time.Duration(c.TablesTTLMinutes) * time.Minute
}

// BusinessRuleTTL returns the business-rule cache TTL as a duration.
func (c *AssistantConfig) BusinessRuleTTL() time.Duration {
	return time.Duration(c.BusinessRuleTTLMinutes) * time.Minute
}

// InstanceTTL returns the assistant registry TTL as a duration.
func (c *AssistantConfig) InstanceTTL() time.Duration {
	return time.Duration(c.InstanceTTLMinutes) * time.Minute
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	return cfg, nil
}
