// Package models contains domain types for datachat-engine.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Project represents a configured data project: which tables the assistant
// may query, an optional business-rule block injected into prompts, and the
// connection descriptor for the project's own database.
type Project struct {
	ID           uuid.UUID `json:"id"`
	Slug         string    `json:"slug"`
	Name         string    `json:"name"`
	Tables       []string  `json:"tables"`
	BusinessRule *string   `json:"business_rule,omitempty"`
	DBConfig     DBConfig  `json:"db_config"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Supported datasource types.
const (
	DatasourceTypePostgres = "postgres"
	DatasourceTypeMSSQL    = "mssql"
)

// DBConfig describes how to reach a project's database. Stored as JSONB on
// the project row; the pool opened from it is separate from the engine's own
// storage pool.
type DBConfig struct {
	Type     string `json:"type"` // "postgres" (default) or "mssql"
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

// EffectiveType returns the datasource type, defaulting to postgres.
func (c *DBConfig) EffectiveType() string {
	if c.Type == "" {
		return DatasourceTypePostgres
	}
	return c.Type
}

// HasBusinessRule reports whether a non-empty business rule is configured.
func (p *Project) HasBusinessRule() bool {
	return p.BusinessRule != nil && *p.BusinessRule != ""
}
