package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datachat-engine/pkg/apperrors"
	"github.com/ekaya-inc/datachat-engine/pkg/audit"
	"github.com/ekaya-inc/datachat-engine/pkg/models"
	"github.com/ekaya-inc/datachat-engine/pkg/prompts"
	sqlvalidate "github.com/ekaya-inc/datachat-engine/pkg/sql"
)

// Status messages emitted before each expensive pipeline stage.
const (
	StatusEvaluatingContext = "Evaluating conversation context..."
	StatusAnalyzingSchema   = "Analyzing database schema..."
	StatusGeneratingSQL     = "Generating SQL query..."
	StatusExecutingSQL      = "Executing SQL query..."
	StatusFormulating       = "Formulating response..."
)

// Fixed answer texts for the terminal no-data outcomes.
const (
	MsgNoRelevantData = "I couldn't find relevant data in the table for your query."
	MsgNoResults      = "Your query executed successfully, but no results were found."
)

// QueryLogSink persists one audit record per orchestrated question. Append
// is fire-and-forget from the orchestrator's perspective.
type QueryLogSink interface {
	Append(ctx context.Context, entry *models.QueryLogEntry) error
}

// Assistant orchestrates one project's question pipeline: context
// evaluation, schema retrieval, SQL generation and execution, response
// composition. One instance serves one (project, model) pair and is safe
// for concurrent runs.
type Assistant struct {
	evaluator *ContextEvaluator
	schema    *SchemaProvider
	rules     *BusinessRuleProvider
	engine    *QueryEngine
	responder *Responder
	logSink   QueryLogSink
	auditor   *audit.SecurityAuditor
	projectID uuid.UUID
	tables    []string
	logger    *zap.Logger
}

// NewAssistant wires the pipeline components for one project.
func NewAssistant(
	evaluator *ContextEvaluator,
	schema *SchemaProvider,
	rules *BusinessRuleProvider,
	engine *QueryEngine,
	responder *Responder,
	logSink QueryLogSink,
	projectID uuid.UUID,
	tables []string,
	logger *zap.Logger,
) *Assistant {
	return &Assistant{
		evaluator: evaluator,
		schema:    schema,
		rules:     rules,
		engine:    engine,
		responder: responder,
		logSink:   logSink,
		auditor:   audit.NewSecurityAuditor(logger),
		projectID: projectID,
		tables:    tables,
		logger:    logger.Named("assistant"),
	}
}

// AvailableTables lists the live tables of the project datasource, served
// from cache when fresh.
func (a *Assistant) AvailableTables(ctx context.Context) ([]string, error) {
	return a.schema.GetAvailableTables(ctx)
}

// AskRequest is one question against a project's data. History is the
// formatted prior transcript, with the current question already separated
// out by the caller.
type AskRequest struct {
	ChatID   *uuid.UUID
	Question string
	History  string
}

// Ask runs the pipeline in buffered mode and returns only the final answer
// text. Domain errors (connection, schema, execution, model) are rendered
// into the answer rather than propagated; the audit entry is still written.
func (a *Assistant) Ask(ctx context.Context, req *AskRequest) string {
	var b strings.Builder
	a.run(ctx, req, func(event models.StreamEvent) {
		switch event.Type {
		case models.StreamEventContent:
			b.WriteString(event.Content)
		case models.StreamEventError:
			b.Reset()
			b.WriteString(event.Content)
		}
	})
	return b.String()
}

// AskStream runs the pipeline and streams events as stages complete. The
// returned channel is closed after the terminal done or error event. A
// cancelled context stops further writes; calls already in flight run to
// completion and their results are discarded.
func (a *Assistant) AskStream(ctx context.Context, req *AskRequest) <-chan models.StreamEvent {
	out := make(chan models.StreamEvent, 16)
	go func() {
		defer close(out)
		a.run(ctx, req, func(event models.StreamEvent) {
			select {
			case out <- event:
			case <-ctx.Done():
			}
		})
	}()
	return out
}

// runRecord accumulates the fields of the single audit entry every run
// produces, whichever path it takes.
type runRecord struct {
	sql        string
	rowCount   int
	usage      models.TokenUsage
	status     string
	errorMsg   *string
	ragSkipped bool
	ragReason  *string

	contextEvalMs *int64
	schemaFetchMs *int64
	sqlGenMs      *int64
	executionMs   *int64
	responseGenMs *int64
}

// run executes the pipeline, emitting events through emit. Exactly one
// terminal event (done or error) is emitted, and exactly one audit entry is
// written, on every path.
func (a *Assistant) run(ctx context.Context, req *AskRequest, emit func(models.StreamEvent)) {
	rec := &runRecord{sql: models.QueryLogSQLNone, status: models.QueryLogStatusSuccess}
	defer a.finishRun(ctx, req, rec)

	if check := sqlvalidate.CheckQuestionForInjection(req.Question); check != nil && check.IsSQLi {
		a.auditor.LogInjectionFlag(a.projectID, req.ChatID, audit.InjectionFlagDetails{
			Question:    req.Question,
			Fingerprint: check.Fingerprint,
		})
	}

	if strings.TrimSpace(req.History) != "" {
		emit(models.NewStatusEvent(StatusEvaluatingContext))
		evalStart := time.Now()
		eval := a.evaluator.Evaluate(ctx, req.Question, req.History)
		rec.contextEvalMs = durationMs(time.Since(evalStart))
		rec.usage.Add(eval.Usage)
		rec.ragReason = &eval.Reasoning

		if eval.Sufficient {
			a.respondFromHistory(ctx, req, rec, emit)
			return
		}
	}

	emit(models.NewStatusEvent(StatusAnalyzingSchema))
	schemaStart := time.Now()
	schemaCSV, err := a.schema.GetSchemaCSV(ctx, a.tables)
	if err != nil {
		a.fail(rec, emit, err)
		return
	}
	businessRules := a.rules.FormatForPrompt(ctx)
	rec.schemaFetchMs = durationMs(time.Since(schemaStart))

	emit(models.NewStatusEvent(StatusGeneratingSQL))
	outcome, err := a.engine.GenerateAndExecute(ctx, a.tables, schemaCSV, businessRules, req.History, req.Question,
		func() { emit(models.NewStatusEvent(StatusExecutingSQL)) })
	rec.usage.Add(outcome.Usage)
	rec.sqlGenMs = durationMs(outcome.GenerationTime)
	if outcome.SQL != "" {
		rec.sql = outcome.SQL
	}
	if err != nil {
		a.auditValidationFailure(req, err)
		a.fail(rec, emit, err)
		return
	}

	if outcome.SQL == prompts.NoRelevantDataSentinel {
		rec.status = models.QueryLogStatusNoData
		emit(models.NewContentEvent(MsgNoRelevantData))
		emit(models.NewDoneEvent())
		return
	}

	rec.executionMs = durationMs(outcome.ExecutionTime)
	rec.rowCount = len(outcome.Rows)

	if len(outcome.Rows) == 0 {
		rec.status = models.QueryLogStatusNoData
		emit(models.NewContentEvent(MsgNoResults))
		emit(models.NewDoneEvent())
		return
	}

	emit(models.NewStatusEvent(StatusFormulating))
	respStart := time.Now()
	stream, err := a.responder.GenerateResponseStream(ctx, outcome.Rows, req.History, req.Question)
	if err != nil {
		a.fail(rec, emit, err)
		return
	}
	err = a.drain(stream, rec, emit)
	rec.responseGenMs = durationMs(time.Since(respStart))
	if err != nil {
		a.fail(rec, emit, err)
		return
	}

	emit(models.NewMetadataEvent(models.AnswerMetadata{
		SQL:      outcome.SQL,
		RowCount: len(outcome.Rows),
	}))
	emit(models.NewDoneEvent())
}

// respondFromHistory is the context-sufficient fast path: no schema fetch,
// no SQL, the answer is composed from the transcript alone.
func (a *Assistant) respondFromHistory(ctx context.Context, req *AskRequest, rec *runRecord, emit func(models.StreamEvent)) {
	rec.ragSkipped = true
	rec.sql = models.QueryLogSQLSkipped

	emit(models.NewStatusEvent(StatusFormulating))
	respStart := time.Now()
	stream, err := a.responder.GenerateResponseFromHistoryStream(ctx, req.History, req.Question)
	if err != nil {
		a.fail(rec, emit, err)
		return
	}
	err = a.drain(stream, rec, emit)
	rec.responseGenMs = durationMs(time.Since(respStart))
	if err != nil {
		a.fail(rec, emit, err)
		return
	}

	emit(models.NewMetadataEvent(models.AnswerMetadata{RAGSkipped: true}))
	emit(models.NewDoneEvent())
}

// drain forwards response chunks as content/chart events and folds trailing
// usage into the record.
func (a *Assistant) drain(stream <-chan ResponseChunk, rec *runRecord, emit func(models.StreamEvent)) error {
	for chunk := range stream {
		switch {
		case chunk.Err != nil:
			return chunk.Err
		case chunk.Text != "":
			emit(models.NewContentEvent(chunk.Text))
		case chunk.Chart != nil:
			emit(models.NewChartEvent(chunk.Chart))
		case chunk.Usage != nil:
			rec.usage.Add(*chunk.Usage)
		}
	}
	return nil
}

// fail emits the terminal error event with the user-facing rendering of err
// and marks the record. Domain errors surface their own message; anything
// else gets the generic rendering.
func (a *Assistant) fail(rec *runRecord, emit func(models.StreamEvent), err error) {
	rec.status = models.QueryLogStatusError
	msg := err.Error()
	rec.errorMsg = &msg

	rendered := fmt.Sprintf("An unexpected error occurred: %v", err)
	if apperrors.IsDomainError(err) {
		rendered = fmt.Sprintf("Error: %v", err)
	}

	a.logger.Error("pipeline run failed", zap.Error(err))
	emit(models.NewErrorEvent(rendered))
}

// auditValidationFailure records a statement the validator refused.
func (a *Assistant) auditValidationFailure(req *AskRequest, err error) {
	if !errors.Is(err, sqlvalidate.ErrDisallowedStatement) && !errors.Is(err, sqlvalidate.ErrMultipleStatements) {
		return
	}
	statement := ""
	var execErr *apperrors.QueryExecutionError
	if errors.As(err, &execErr) {
		statement = execErr.SQL
	}
	a.auditor.LogStatementRejected(a.projectID, req.ChatID, audit.StatementRejectedDetails{
		Statement: statement,
		Reason:    err.Error(),
	})
}

// finishRun writes the single audit entry for the run. Sink failures are
// logged and swallowed; they never affect the user-facing answer. The write
// uses a detached context so a dropped client still gets its entry.
func (a *Assistant) finishRun(ctx context.Context, req *AskRequest, rec *runRecord) {
	entry := &models.QueryLogEntry{
		ID:           uuid.New(),
		ChatID:       req.ChatID,
		ProjectID:    a.projectID,
		Question:     req.Question,
		GeneratedSQL: rec.sql,

		ContextEvalMs:   rec.contextEvalMs,
		SchemaFetchMs:   rec.schemaFetchMs,
		SQLGenerationMs: rec.sqlGenMs,
		ExecutionMs:     rec.executionMs,
		ResponseGenMs:   rec.responseGenMs,

		RowCount:   rec.rowCount,
		Status:     rec.status,
		ErrorMsg:   rec.errorMsg,
		RAGSkipped: rec.ragSkipped,
		RAGReason:  rec.ragReason,
		CreatedAt:  time.Now().UTC(),
	}
	if !rec.usage.IsZero() {
		usage := rec.usage
		entry.TokenUsage = &usage
	}

	if err := a.logSink.Append(context.WithoutCancel(ctx), entry); err != nil {
		a.logger.Warn("audit log append failed", zap.Error(err))
	}
}

// durationMs converts a stage duration to the nullable millisecond form
// stored on the audit entry.
func durationMs(d time.Duration) *int64 {
	ms := d.Milliseconds()
	return &ms
}
