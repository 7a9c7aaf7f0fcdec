package assistant

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/datachat-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/datachat-engine/pkg/apperrors"
	"github.com/ekaya-inc/datachat-engine/pkg/llm"
	"github.com/ekaya-inc/datachat-engine/pkg/logging"
	"github.com/ekaya-inc/datachat-engine/pkg/models"
	"github.com/ekaya-inc/datachat-engine/pkg/prompts"
	sqlvalidate "github.com/ekaya-inc/datachat-engine/pkg/sql"
)

// sqlGenTemperature keeps generated SQL deterministic.
const sqlGenTemperature = 0.0

var (
	codeFencePattern = regexp.MustCompile("(?is)```(?:sql)?\\s*(.*?)\\s*```")
	labelPattern     = regexp.MustCompile(`(?i)^(?:sql query:?|query:?)\s*`)
)

// ExtractSQLQuery pulls the SQL statement out of a model response,
// stripping markdown fencing and leading "query:" labels.
func ExtractSQLQuery(text string) string {
	if match := codeFencePattern.FindStringSubmatch(text); match != nil {
		return strings.TrimSpace(match[1])
	}
	return strings.TrimSpace(labelPattern.ReplaceAllString(strings.TrimSpace(text), ""))
}

// IsNoRelevantData reports whether a model response signals that no
// configured table is relevant to the question.
func IsNoRelevantData(sql string) bool {
	return strings.Contains(sql, prompts.NoRelevantDataSentinel) ||
		strings.Contains(strings.ToLower(sql), "no relevant data")
}

// DialectName maps a datasource type to the database name used in prompts.
func DialectName(datasourceType string) string {
	if datasourceType == models.DatasourceTypeMSSQL {
		return "SQL Server"
	}
	return "PostgreSQL"
}

// QueryEngine turns questions into SQL via the gateway and executes the
// result against the project datasource.
type QueryEngine struct {
	gateway   llm.Gateway
	connector datasource.Connector
	dialect   string
	logger    *zap.Logger
}

// NewQueryEngine creates a query engine. dialect is the human-readable
// database name embedded into the generation prompt.
func NewQueryEngine(gateway llm.Gateway, connector datasource.Connector, dialect string, logger *zap.Logger) *QueryEngine {
	return &QueryEngine{
		gateway:   gateway,
		connector: connector,
		dialect:   dialect,
		logger:    logger.Named("sqlgen"),
	}
}

// GenerateSQLQuery issues one generation call and returns the extracted,
// validated statement. The NO_RELEVANT_DATA sentinel is returned verbatim.
// A statement that fails validation raises a query execution error carrying
// the offending text.
func (q *QueryEngine) GenerateSQLQuery(
	ctx context.Context,
	tableNames []string,
	schema, businessRules, chatHistory, question string,
	lastFailedSQL, lastError string,
) (string, models.TokenUsage, error) {
	result, err := q.gateway.Generate(ctx, &llm.GenerateRequest{
		System:      prompts.SQLGenerationSystemInstruction(q.dialect, businessRules),
		Prompt:      prompts.BuildSQLGenerationPrompt(tableNames, schema, chatHistory, question, lastFailedSQL, lastError),
		Temperature: sqlGenTemperature,
	})
	if err != nil {
		return "", models.TokenUsage{}, err
	}

	extracted := ExtractSQLQuery(result.Text)

	if IsNoRelevantData(extracted) {
		return prompts.NoRelevantDataSentinel, result.Usage, nil
	}

	validation := sqlvalidate.ValidateAndNormalize(extracted)
	if validation.Error != nil {
		return "", result.Usage, apperrors.NewQueryExecutionError(extracted, validation.Error)
	}

	q.logger.Info("generated SQL", zap.String("sql", logging.TruncateQuery(validation.NormalizedSQL)))
	return validation.NormalizedSQL, result.Usage, nil
}

// ExecuteQuery runs the statement against the project datasource.
func (q *QueryEngine) ExecuteQuery(ctx context.Context, sqlQuery string) ([]map[string]any, error) {
	result, err := q.connector.Query(ctx, sqlQuery)
	if err != nil {
		return nil, err
	}
	return result.Rows, nil
}

// ExecOutcome is the result of GenerateAndExecute.
type ExecOutcome struct {
	SQL            string
	Rows           []map[string]any
	GenerationTime time.Duration
	ExecutionTime  time.Duration
	Usage          models.TokenUsage
}

// GenerateAndExecute coordinates generation and execution. A sentinel
// generation returns immediately with zero rows and zero execution time.
// On execution failure the SQL is regenerated exactly once with the failed
// statement and error fed back into the prompt; a second execution failure
// propagates. ExecutionTime covers the (possibly retried) execution only.
// onExecute, when non-nil, is invoked once right before the first execution
// attempt; the sentinel path never reaches it.
func (q *QueryEngine) GenerateAndExecute(
	ctx context.Context,
	tableNames []string,
	schema, businessRules, chatHistory, question string,
	onExecute func(),
) (*ExecOutcome, error) {
	outcome := &ExecOutcome{}

	genStart := time.Now()
	sqlQuery, usage, err := q.GenerateSQLQuery(ctx, tableNames, schema, businessRules, chatHistory, question, "", "")
	outcome.GenerationTime = time.Since(genStart)
	outcome.Usage.Add(usage)
	if err != nil {
		return outcome, err
	}
	outcome.SQL = sqlQuery

	if sqlQuery == prompts.NoRelevantDataSentinel {
		outcome.Rows = []map[string]any{}
		return outcome, nil
	}

	if onExecute != nil {
		onExecute()
	}

	execStart := time.Now()
	rows, execErr := q.ExecuteQuery(ctx, sqlQuery)
	if execErr == nil {
		outcome.ExecutionTime = time.Since(execStart)
		outcome.Rows = rows
		return outcome, nil
	}

	q.logger.Warn("execution failed, regenerating SQL once",
		zap.String("sql", logging.TruncateQuery(sqlQuery)),
		zap.String("error", logging.SanitizeError(execErr)))

	genStart = time.Now()
	retrySQL, retryUsage, err := q.GenerateSQLQuery(ctx, tableNames, schema, businessRules, chatHistory, question, sqlQuery, execErr.Error())
	outcome.GenerationTime += time.Since(genStart)
	outcome.Usage.Add(retryUsage)
	if err != nil {
		return outcome, err
	}
	outcome.SQL = retrySQL

	if retrySQL == prompts.NoRelevantDataSentinel {
		outcome.Rows = []map[string]any{}
		outcome.ExecutionTime = 0
		return outcome, nil
	}

	execStart = time.Now()
	rows, execErr = q.ExecuteQuery(ctx, retrySQL)
	outcome.ExecutionTime = time.Since(execStart)
	if execErr != nil {
		return outcome, execErr
	}

	outcome.Rows = rows
	return outcome, nil
}
