package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/datachat-engine/pkg/database"
	"github.com/ekaya-inc/datachat-engine/pkg/models"
)

// QueryLogRepository persists and reads the query audit log.
type QueryLogRepository interface {
	Append(ctx context.Context, entry *models.QueryLogEntry) error
	ListByProject(ctx context.Context, projectID uuid.UUID, limit int) ([]*models.QueryLogEntry, error)
}

type queryLogRepository struct {
	db *database.DB
}

// NewQueryLogRepository creates a new QueryLogRepository.
func NewQueryLogRepository(db *database.DB) QueryLogRepository {
	return &queryLogRepository{db: db}
}

var _ QueryLogRepository = (*queryLogRepository)(nil)

func (r *queryLogRepository) Append(ctx context.Context, entry *models.QueryLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	sql := `
		INSERT INTO query_logs (
			id, chat_id, project_id, question, generated_sql,
			context_eval_ms, schema_fetch_ms, sql_generation_ms, execution_ms, response_gen_ms,
			row_count, token_usage, status, error_message, rag_skipped, rag_reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := r.db.Exec(ctx, sql,
		entry.ID, entry.ChatID, entry.ProjectID, entry.Question, entry.GeneratedSQL,
		entry.ContextEvalMs, entry.SchemaFetchMs, entry.SQLGenerationMs, entry.ExecutionMs, entry.ResponseGenMs,
		entry.RowCount, entry.TokenUsage, entry.Status, entry.ErrorMsg, entry.RAGSkipped, entry.RAGReason, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append query log entry: %w", err)
	}
	return nil
}

func (r *queryLogRepository) ListByProject(ctx context.Context, projectID uuid.UUID, limit int) ([]*models.QueryLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	sql := `
		SELECT id, chat_id, project_id, question, generated_sql,
		       context_eval_ms, schema_fetch_ms, sql_generation_ms, execution_ms, response_gen_ms,
		       row_count, token_usage, status, error_message, rag_skipped, rag_reason, created_at
		FROM query_logs
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, sql, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list query log entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.QueryLogEntry
	for rows.Next() {
		var e models.QueryLogEntry
		err := rows.Scan(
			&e.ID, &e.ChatID, &e.ProjectID, &e.Question, &e.GeneratedSQL,
			&e.ContextEvalMs, &e.SchemaFetchMs, &e.SQLGenerationMs, &e.ExecutionMs, &e.ResponseGenMs,
			&e.RowCount, &e.TokenUsage, &e.Status, &e.ErrorMsg, &e.RAGSkipped, &e.RAGReason, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan query log entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read query log entries: %w", err)
	}
	return entries, nil
}
