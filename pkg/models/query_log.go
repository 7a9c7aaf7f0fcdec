package models

import (
	"time"

	"github.com/google/uuid"
)

// Query log statuses.
const (
	QueryLogStatusSuccess = "success"
	QueryLogStatusError   = "error"
	QueryLogStatusNoData  = "no_data"
)

// Sentinel values recorded in GeneratedSQL when no statement ran.
const (
	QueryLogSQLSkipped        = "SKIPPED_CONTEXT_SUFFICIENT"
	QueryLogSQLNoRelevantData = "NO_RELEVANT_DATA"
	QueryLogSQLNone           = "N/A"
)

// TokenUsage holds token accounting from a single model call.
type TokenUsage struct {
	PromptTokens    int `json:"prompt_tokens"`
	CandidateTokens int `json:"candidate_tokens"`
	CachedTokens    int `json:"cached_tokens"`
	TotalTokens     int `json:"total_tokens"`
}

// Add accumulates usage from another call into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CandidateTokens += other.CandidateTokens
	u.CachedTokens += other.CachedTokens
	u.TotalTokens += other.TotalTokens
}

// IsZero reports whether no tokens were recorded.
func (u TokenUsage) IsZero() bool {
	return u.TotalTokens == 0 && u.PromptTokens == 0 && u.CandidateTokens == 0
}

// QueryLogEntry is the audit record written once at the end of every
// orchestrated question, whichever path it took. Stage durations are nil when
// the stage did not run; they are milliseconds of wall-clock time.
type QueryLogEntry struct {
	ID           uuid.UUID  `json:"id"`
	ChatID       *uuid.UUID `json:"chat_id,omitempty"`
	ProjectID    uuid.UUID  `json:"project_id"`
	Question     string     `json:"question"`
	GeneratedSQL string     `json:"generated_sql"`

	ContextEvalMs   *int64 `json:"context_eval_ms,omitempty"`
	SchemaFetchMs   *int64 `json:"schema_fetch_ms,omitempty"`
	SQLGenerationMs *int64 `json:"sql_generation_ms,omitempty"`
	ExecutionMs     *int64 `json:"execution_ms,omitempty"`
	ResponseGenMs   *int64 `json:"response_gen_ms,omitempty"`

	RowCount   int         `json:"row_count"`
	TokenUsage *TokenUsage `json:"token_usage,omitempty"`
	Status     string      `json:"status"` // success, error, no_data
	ErrorMsg   *string     `json:"error_message,omitempty"`
	RAGSkipped bool        `json:"rag_skipped"`
	RAGReason  *string     `json:"rag_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
