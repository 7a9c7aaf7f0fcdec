// Package repositories provides data access for engine storage: projects,
// chats and the query audit log.
package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/datachat-engine/pkg/apperrors"
	"github.com/ekaya-inc/datachat-engine/pkg/crypto"
	"github.com/ekaya-inc/datachat-engine/pkg/database"
	"github.com/ekaya-inc/datachat-engine/pkg/models"
)

// ProjectRepository provides data access for projects.
type ProjectRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
	GetBySlug(ctx context.Context, slug string) (*models.Project, error)
	UpdateTables(ctx context.Context, id uuid.UUID, tables []string) error
	UpdateBusinessRule(ctx context.Context, id uuid.UUID, rule *string) error
}

type projectRepository struct {
	db        *database.DB
	encryptor *crypto.CredentialEncryptor
}

// NewProjectRepository creates a new ProjectRepository. encryptor may be nil,
// in which case datasource passwords are read as stored.
func NewProjectRepository(db *database.DB, encryptor *crypto.CredentialEncryptor) ProjectRepository {
	return &projectRepository{db: db, encryptor: encryptor}
}

var _ ProjectRepository = (*projectRepository)(nil)

const projectColumns = `id, slug, name, tables, business_rule, db_config, created_at, updated_at`

func (r *projectRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	sql := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	return r.scanProject(r.db.QueryRow(ctx, sql, id))
}

func (r *projectRepository) GetBySlug(ctx context.Context, slug string) (*models.Project, error) {
	sql := `SELECT ` + projectColumns + ` FROM projects WHERE slug = $1`
	return r.scanProject(r.db.QueryRow(ctx, sql, slug))
}

func (r *projectRepository) UpdateTables(ctx context.Context, id uuid.UUID, tables []string) error {
	sql := `UPDATE projects SET tables = $2, updated_at = now() WHERE id = $1`
	tag, err := r.db.Exec(ctx, sql, id, tables)
	if err != nil {
		return fmt.Errorf("failed to update project tables: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *projectRepository) UpdateBusinessRule(ctx context.Context, id uuid.UUID, rule *string) error {
	sql := `UPDATE projects SET business_rule = $2, updated_at = now() WHERE id = $1`
	tag, err := r.db.Exec(ctx, sql, id, rule)
	if err != nil {
		return fmt.Errorf("failed to update business rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *projectRepository) scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	err := row.Scan(&p.ID, &p.Slug, &p.Name, &p.Tables, &p.BusinessRule, &p.DBConfig, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	if r.encryptor != nil {
		password, err := r.encryptor.Decrypt(p.DBConfig.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt datasource password for project %s: %w", p.ID, err)
		}
		p.DBConfig.Password = password
	}

	return &p, nil
}
