package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/ekaya-inc/datachat-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/datachat-engine/pkg/apperrors"
	"github.com/ekaya-inc/datachat-engine/pkg/llm"
	"github.com/ekaya-inc/datachat-engine/pkg/models"
	"github.com/ekaya-inc/datachat-engine/pkg/prompts"
)

func TestExtractSQLQuery(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"bare statement", "SELECT 1", "SELECT 1"},
		{"fenced with language", "```sql\nSELECT * FROM orders\n```", "SELECT * FROM orders"},
		{"fenced without language", "```\nSELECT 1\n```", "SELECT 1"},
		{"fence amid prose", "Here you go:\n```sql\nSELECT 1\n```\nLet me know!", "SELECT 1"},
		{"query label", "Query: SELECT 1", "SELECT 1"},
		{"sql query label", "SQL Query:\nSELECT 1", "SELECT 1"},
		{"surrounding whitespace", "  SELECT 1  ", "SELECT 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractSQLQuery(tt.text); got != tt.want {
				t.Errorf("ExtractSQLQuery(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestIsNoRelevantData(t *testing.T) {
	if !IsNoRelevantData("NO_RELEVANT_DATA") {
		t.Error("sentinel not detected")
	}
	if !IsNoRelevantData("There is no relevant data for this question.") {
		t.Error("prose variant not detected")
	}
	if IsNoRelevantData("SELECT * FROM orders") {
		t.Error("ordinary SQL misdetected")
	}
}

func genReturning(texts ...string) func(context.Context, *llm.GenerateRequest) (*llm.GenerateResult, error) {
	i := 0
	return func(context.Context, *llm.GenerateRequest) (*llm.GenerateResult, error) {
		text := texts[len(texts)-1]
		if i < len(texts) {
			text = texts[i]
		}
		i++
		return &llm.GenerateResult{Text: text, Usage: models.TokenUsage{PromptTokens: 100, CandidateTokens: 20, TotalTokens: 120}}, nil
	}
}

func TestGenerateAndExecuteSentinelSkipsExecution(t *testing.T) {
	gateway := llm.NewMockGateway()
	gateway.GenerateFunc = genReturning("NO_RELEVANT_DATA")
	conn := datasource.NewMockConnector()
	engine := NewQueryEngine(gateway, conn, "PostgreSQL", zap.NewNop())

	outcome, err := engine.GenerateAndExecute(context.Background(), []string{"orders"}, "schema", "", "", "question", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.SQL != prompts.NoRelevantDataSentinel {
		t.Errorf("SQL = %q, want sentinel", outcome.SQL)
	}
	if len(outcome.Rows) != 0 {
		t.Errorf("expected zero rows, got %d", len(outcome.Rows))
	}
	if outcome.ExecutionTime != 0 {
		t.Errorf("expected zero execution time, got %v", outcome.ExecutionTime)
	}
	if conn.QueryCalls != 0 {
		t.Errorf("sentinel must not reach execution, got %d query calls", conn.QueryCalls)
	}
}

func TestGenerateAndExecuteSuccess(t *testing.T) {
	gateway := llm.NewMockGateway()
	gateway.GenerateFunc = genReturning("```sql\nSELECT COUNT(*) AS cnt FROM orders\n```")
	conn := datasource.NewMockConnector()
	conn.QueryFunc = func(ctx context.Context, sqlQuery string) (*datasource.QueryResult, error) {
		return &datasource.QueryResult{
			Columns:  []string{"cnt"},
			Rows:     []map[string]any{{"cnt": int64(42)}},
			RowCount: 1,
		}, nil
	}
	engine := NewQueryEngine(gateway, conn, "PostgreSQL", zap.NewNop())

	executeNotified := false
	outcome, err := engine.GenerateAndExecute(context.Background(), []string{"orders"}, "schema", "", "", "How many orders?",
		func() { executeNotified = true })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.SQL != "SELECT COUNT(*) AS cnt FROM orders" {
		t.Errorf("SQL = %q", outcome.SQL)
	}
	if len(outcome.Rows) != 1 {
		t.Errorf("expected 1 row, got %d", len(outcome.Rows))
	}
	if !executeNotified {
		t.Error("execution callback not invoked")
	}
	if outcome.Usage.TotalTokens != 120 {
		t.Errorf("usage not carried through: %+v", outcome.Usage)
	}
}

func TestGenerateAndExecuteRetriesOnce(t *testing.T) {
	gateway := llm.NewMockGateway()
	gateway.GenerateFunc = genReturning(
		"SELECT * FROM order",
		"SELECT * FROM orders",
	)
	conn := datasource.NewMockConnector()
	conn.QueryFunc = func(ctx context.Context, sqlQuery string) (*datasource.QueryResult, error) {
		if sqlQuery == "SELECT * FROM order" {
			return nil, apperrors.NewQueryExecutionError(sqlQuery, errors.New(`relation "order" does not exist`))
		}
		return &datasource.QueryResult{Rows: []map[string]any{{"id": 1}}, RowCount: 1}, nil
	}
	engine := NewQueryEngine(gateway, conn, "PostgreSQL", zap.NewNop())

	outcome, err := engine.GenerateAndExecute(context.Background(), []string{"orders"}, "schema", "", "", "list orders", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.SQL != "SELECT * FROM orders" {
		t.Errorf("SQL = %q, want regenerated statement", outcome.SQL)
	}
	if conn.QueryCalls != 2 {
		t.Errorf("expected exactly 2 executions, got %d", conn.QueryCalls)
	}
	if gateway.GenerateCalls != 2 {
		t.Errorf("expected exactly 2 generations, got %d", gateway.GenerateCalls)
	}

	// The retry prompt must carry the failed statement and its error.
	retryPrompt := gateway.GenerateRequests[1].Prompt
	if !strings.Contains(retryPrompt, "SELECT * FROM order") {
		t.Errorf("retry prompt missing failed statement:\n%s", retryPrompt)
	}
	if !strings.Contains(retryPrompt, `relation "order" does not exist`) {
		t.Errorf("retry prompt missing execution error:\n%s", retryPrompt)
	}

	// Usage from both generation calls accumulates.
	if outcome.Usage.TotalTokens != 240 {
		t.Errorf("usage = %+v, want both calls aggregated", outcome.Usage)
	}
}

func TestGenerateAndExecuteSecondFailurePropagates(t *testing.T) {
	gateway := llm.NewMockGateway()
	gateway.GenerateFunc = genReturning("SELECT * FROM order", "SELECT * FROM ordes")
	conn := datasource.NewMockConnector()
	conn.QueryFunc = func(ctx context.Context, sqlQuery string) (*datasource.QueryResult, error) {
		return nil, apperrors.NewQueryExecutionError(sqlQuery, errors.New("relation does not exist"))
	}
	engine := NewQueryEngine(gateway, conn, "PostgreSQL", zap.NewNop())

	_, err := engine.GenerateAndExecute(context.Background(), []string{"orders"}, "schema", "", "", "list orders", nil)
	if err == nil {
		t.Fatal("expected error after second failure")
	}

	var execErr *apperrors.QueryExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected QueryExecutionError, got %T", err)
	}
	if execErr.SQL != "SELECT * FROM ordes" {
		t.Errorf("error carries %q, want the second statement", execErr.SQL)
	}
	if conn.QueryCalls != 2 {
		t.Errorf("expected exactly 2 executions, got %d", conn.QueryCalls)
	}
	if gateway.GenerateCalls != 2 {
		t.Errorf("no further regeneration allowed, got %d generations", gateway.GenerateCalls)
	}
}

func TestGenerateSQLQueryRejectsDisallowedStatement(t *testing.T) {
	gateway := llm.NewMockGateway()
	gateway.GenerateFunc = genReturning("DROP TABLE orders")
	engine := NewQueryEngine(gateway, datasource.NewMockConnector(), "PostgreSQL", zap.NewNop())

	_, _, err := engine.GenerateSQLQuery(context.Background(), []string{"orders"}, "schema", "", "", "drop it", "", "")
	if err == nil {
		t.Fatal("expected validation error")
	}
	var execErr *apperrors.QueryExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected QueryExecutionError, got %T", err)
	}
}

func TestDialectName(t *testing.T) {
	if got := DialectName(models.DatasourceTypeMSSQL); got != "SQL Server" {
		t.Errorf("mssql dialect = %q", got)
	}
	if got := DialectName(models.DatasourceTypePostgres); got != "PostgreSQL" {
		t.Errorf("postgres dialect = %q", got)
	}
}
