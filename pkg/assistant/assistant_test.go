package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ekaya-inc/datachat-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/datachat-engine/pkg/apperrors"
	"github.com/ekaya-inc/datachat-engine/pkg/llm"
	"github.com/ekaya-inc/datachat-engine/pkg/models"
)

func TestAskStreamSuccessSequence(t *testing.T) {
	gateway := llm.NewMockGateway()
	gateway.GenerateFunc = genReturning("```sql\nSELECT COUNT(*) AS cnt FROM orders\n```")
	gateway.GenerateStreamFunc = textStream("There are 42 orders.")

	conn := ordersConnector()
	conn.QueryFunc = func(ctx context.Context, sqlQuery string) (*datasource.QueryResult, error) {
		return &datasource.QueryResult{Rows: []map[string]any{{"cnt": int64(42)}}, RowCount: 1}, nil
	}

	sink := &recordingSink{}
	assistant := newTestAssistant(gateway, llm.NewMockGateway(), conn, sink, []string{"orders"})

	events := collect(assistant.AskStream(context.Background(), &AskRequest{Question: "How many orders are there?"}))

	// At least one status before any content.
	firstContent, firstStatus := -1, -1
	var metadataIdx, doneIdx int
	metadataCount := 0
	for i, e := range events {
		switch e.Type {
		case models.StreamEventStatus:
			if firstStatus == -1 {
				firstStatus = i
			}
		case models.StreamEventContent:
			if firstContent == -1 {
				firstContent = i
			}
		case models.StreamEventMetadata:
			metadataCount++
			metadataIdx = i
		case models.StreamEventDone:
			doneIdx = i
		}
	}
	if firstStatus == -1 || firstContent == -1 || firstStatus > firstContent {
		t.Fatalf("expected status before content, got %v", eventTypes(events))
	}
	if metadataCount != 1 {
		t.Fatalf("expected exactly one metadata event, got %d", metadataCount)
	}
	if doneIdx != metadataIdx+1 {
		t.Errorf("metadata must immediately precede done, got %v", eventTypes(events))
	}
	if doneIdx != len(events)-1 {
		t.Errorf("done must be the final event, got %v", eventTypes(events))
	}

	md := events[metadataIdx].Metadata
	if md.SQL != "SELECT COUNT(*) AS cnt FROM orders" {
		t.Errorf("metadata.SQL = %q", md.SQL)
	}
	if md.RowCount != 1 {
		t.Errorf("metadata.RowCount = %d, want 1", md.RowCount)
	}
	if md.RAGSkipped {
		t.Error("full pipeline run must not report rag_skipped")
	}

	entries := sink.all()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one audit entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Status != models.QueryLogStatusSuccess {
		t.Errorf("status = %q", entry.Status)
	}
	if entry.GeneratedSQL != "SELECT COUNT(*) AS cnt FROM orders" {
		t.Errorf("generated SQL = %q", entry.GeneratedSQL)
	}
	if entry.RowCount != 1 {
		t.Errorf("row count = %d", entry.RowCount)
	}
	if entry.ContextEvalMs != nil {
		t.Error("no history means no context evaluation timing")
	}
	if entry.SchemaFetchMs == nil || entry.SQLGenerationMs == nil || entry.ExecutionMs == nil || entry.ResponseGenMs == nil {
		t.Error("measured stages must carry timings")
	}
	if entry.TokenUsage == nil || entry.TokenUsage.TotalTokens == 0 {
		t.Errorf("token usage missing: %+v", entry.TokenUsage)
	}
}

func TestAskStreamNoRelevantData(t *testing.T) {
	gateway := llm.NewMockGateway()
	gateway.GenerateFunc = genReturning("NO_RELEVANT_DATA")
	conn := ordersConnector()
	sink := &recordingSink{}
	assistant := newTestAssistant(gateway, llm.NewMockGateway(), conn, sink, []string{"orders"})

	events := collect(assistant.AskStream(context.Background(), &AskRequest{Question: "What is the weather?"}))

	var contents, metadatas, dones int
	for _, e := range events {
		switch e.Type {
		case models.StreamEventContent:
			contents++
			if e.Content != MsgNoRelevantData {
				t.Errorf("content = %q", e.Content)
			}
		case models.StreamEventMetadata:
			metadatas++
		case models.StreamEventDone:
			dones++
		case models.StreamEventError:
			t.Errorf("no-data outcome is not an error, got error event %q", e.Content)
		}
	}
	if contents != 1 || dones != 1 {
		t.Errorf("expected one content and one done, got %v", eventTypes(events))
	}
	if metadatas != 0 {
		t.Errorf("no-data path must not emit metadata, got %v", eventTypes(events))
	}
	if conn.QueryCalls != 0 {
		t.Errorf("sentinel must not execute, got %d query calls", conn.QueryCalls)
	}

	entries := sink.all()
	if len(entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(entries))
	}
	if entries[0].Status != models.QueryLogStatusNoData {
		t.Errorf("status = %q", entries[0].Status)
	}
	if entries[0].GeneratedSQL != models.QueryLogSQLNoRelevantData {
		t.Errorf("generated SQL = %q", entries[0].GeneratedSQL)
	}
	if entries[0].ExecutionMs != nil {
		t.Error("execution never ran, timing must be absent")
	}
}

func TestAskStreamEmptyRows(t *testing.T) {
	gateway := llm.NewMockGateway()
	gateway.GenerateFunc = genReturning("SELECT * FROM orders WHERE id = -1")
	conn := ordersConnector()
	sink := &recordingSink{}
	assistant := newTestAssistant(gateway, llm.NewMockGateway(), conn, sink, []string{"orders"})

	events := collect(assistant.AskStream(context.Background(), &AskRequest{Question: "Find order -1"}))

	sawExpectedContent := false
	for _, e := range events {
		if e.Type == models.StreamEventContent && e.Content == MsgNoResults {
			sawExpectedContent = true
		}
		if e.Type == models.StreamEventMetadata {
			t.Error("empty-rows path must not emit metadata")
		}
	}
	if !sawExpectedContent {
		t.Errorf("missing fixed empty-results message, got %v", events)
	}

	entries := sink.all()
	if len(entries) != 1 || entries[0].Status != models.QueryLogStatusNoData {
		t.Fatalf("expected one no_data entry, got %+v", entries)
	}
	if entries[0].ExecutionMs == nil {
		t.Error("execution ran, timing must be present")
	}
}

func TestAskStreamHistoryFastPath(t *testing.T) {
	fastGateway := llm.NewMockGateway()
	fastGateway.GenerateFunc = func(context.Context, *llm.GenerateRequest) (*llm.GenerateResult, error) {
		return &llm.GenerateResult{
			Text:  "DECISION: SUFFICIENT\nREASONING: Count already present.",
			Usage: models.TokenUsage{PromptTokens: 30, CandidateTokens: 8, TotalTokens: 38},
		}, nil
	}
	gateway := llm.NewMockGateway()
	gateway.GenerateStreamFunc = textStream("As mentioned, there are 42 orders.")

	conn := ordersConnector()
	sink := &recordingSink{}
	assistant := newTestAssistant(gateway, fastGateway, conn, sink, []string{"orders"})

	events := collect(assistant.AskStream(context.Background(), &AskRequest{
		Question: "How many was that again?",
		History:  "user: how many orders?\nassistant: There are 42 orders.\n",
	}))

	var md *models.AnswerMetadata
	for _, e := range events {
		if e.Type == models.StreamEventMetadata {
			md = e.Metadata
		}
	}
	if md == nil {
		t.Fatalf("fast path must still emit metadata, got %v", eventTypes(events))
	}
	if !md.RAGSkipped {
		t.Error("metadata must mark rag_skipped")
	}
	if conn.GetColumnsCalls != 0 || conn.QueryCalls != 0 {
		t.Error("fast path must not touch the datasource")
	}
	if gateway.GenerateCalls != 0 {
		t.Error("fast path must not generate SQL")
	}

	entries := sink.all()
	if len(entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.GeneratedSQL != models.QueryLogSQLSkipped {
		t.Errorf("generated SQL = %q", entry.GeneratedSQL)
	}
	if !entry.RAGSkipped {
		t.Error("entry must mark rag_skipped")
	}
	if entry.RAGReason == nil || *entry.RAGReason != "Count already present." {
		t.Errorf("rag reason = %v", entry.RAGReason)
	}
	if entry.ContextEvalMs == nil || entry.ResponseGenMs == nil {
		t.Error("evaluation and response timings must be present")
	}
	if entry.SchemaFetchMs != nil || entry.SQLGenerationMs != nil || entry.ExecutionMs != nil {
		t.Error("skipped stages must have absent timings")
	}
}

func TestAskStreamChartEvent(t *testing.T) {
	gateway := llm.NewMockGateway()
	gateway.GenerateFunc = genReturning("SELECT month, total FROM monthly_totals")
	gateway.GenerateStreamFunc = func(context.Context, *llm.GenerateRequest, []llm.ToolDefinition) (<-chan llm.Chunk, error) {
		return llm.StreamOf(
			llm.Chunk{Kind: llm.ChunkText, Text: "Here is the trend."},
			llm.Chunk{Kind: llm.ChunkFunctionCall, FunctionCall: &llm.FunctionCall{
				Name:      llm.ChartToolName,
				Arguments: `{"type":"line","title":"Monthly totals","data":[{"month":"Jan","total":10}],"xKey":"month","yKeys":["total"]}`,
			}},
			llm.Chunk{Kind: llm.ChunkUsage, Usage: &models.TokenUsage{TotalTokens: 9}},
		), nil
	}
	conn := ordersConnector()
	conn.QueryFunc = func(ctx context.Context, sqlQuery string) (*datasource.QueryResult, error) {
		return &datasource.QueryResult{Rows: []map[string]any{{"month": "Jan", "total": 10}}, RowCount: 1}, nil
	}
	assistant := newTestAssistant(gateway, llm.NewMockGateway(), conn, &recordingSink{}, []string{"monthly_totals"})

	events := collect(assistant.AskStream(context.Background(), &AskRequest{Question: "Chart monthly totals"}))

	var chart *models.ChartSpec
	for _, e := range events {
		if e.Type == models.StreamEventChart {
			chart = e.Chart
		}
	}
	if chart == nil {
		t.Fatalf("expected a chart event, got %v", eventTypes(events))
	}
	if chart.Type != "line" || chart.Title != "Monthly totals" || chart.XKey != "month" {
		t.Errorf("chart spec = %+v", chart)
	}
}

func TestAskStreamDomainErrorRendering(t *testing.T) {
	gateway := llm.NewMockGateway()
	gateway.GenerateFunc = genReturning("SELECT * FROM orders")
	conn := ordersConnector()
	conn.QueryFunc = func(ctx context.Context, sqlQuery string) (*datasource.QueryResult, error) {
		return nil, apperrors.NewQueryExecutionError(sqlQuery, errors.New("permission denied"))
	}
	sink := &recordingSink{}
	assistant := newTestAssistant(gateway, llm.NewMockGateway(), conn, sink, []string{"orders"})

	events := collect(assistant.AskStream(context.Background(), &AskRequest{Question: "list orders"}))

	last := events[len(events)-1]
	if last.Type != models.StreamEventError {
		t.Fatalf("expected terminal error event, got %v", eventTypes(events))
	}
	if !strings.HasPrefix(last.Content, "Error: ") {
		t.Errorf("domain error rendering = %q", last.Content)
	}

	entries := sink.all()
	if len(entries) != 1 || entries[0].Status != models.QueryLogStatusError {
		t.Fatalf("expected one error entry, got %+v", entries)
	}
	if entries[0].ErrorMsg == nil {
		t.Error("error entry must carry the message")
	}
}

func TestAskBufferedReturnsAnswerText(t *testing.T) {
	gateway := llm.NewMockGateway()
	gateway.GenerateFunc = genReturning("SELECT COUNT(*) AS cnt FROM orders")
	gateway.GenerateStreamFunc = func(context.Context, *llm.GenerateRequest, []llm.ToolDefinition) (<-chan llm.Chunk, error) {
		return llm.StreamOf(
			llm.Chunk{Kind: llm.ChunkText, Text: "There are "},
			llm.Chunk{Kind: llm.ChunkText, Text: "42 orders."},
		), nil
	}
	conn := ordersConnector()
	conn.QueryFunc = func(ctx context.Context, sqlQuery string) (*datasource.QueryResult, error) {
		return &datasource.QueryResult{Rows: []map[string]any{{"cnt": int64(42)}}, RowCount: 1}, nil
	}
	sink := &recordingSink{}
	assistant := newTestAssistant(gateway, llm.NewMockGateway(), conn, sink, []string{"orders"})

	answer := assistant.Ask(context.Background(), &AskRequest{Question: "How many orders are there?"})
	if answer != "There are 42 orders." {
		t.Errorf("answer = %q", answer)
	}

	// Buffered mode writes the same single audit entry as streaming mode.
	if len(sink.all()) != 1 {
		t.Fatalf("expected one audit entry from buffered mode, got %d", len(sink.all()))
	}
}

func TestAskBufferedRendersUnexpectedError(t *testing.T) {
	gateway := llm.NewMockGateway()
	gateway.GenerateFunc = func(context.Context, *llm.GenerateRequest) (*llm.GenerateResult, error) {
		return nil, errors.New("boom")
	}
	assistant := newTestAssistant(gateway, llm.NewMockGateway(), ordersConnector(), &recordingSink{}, []string{"orders"})

	answer := assistant.Ask(context.Background(), &AskRequest{Question: "q"})
	if !strings.HasPrefix(answer, "An unexpected error occurred: ") {
		t.Errorf("answer = %q", answer)
	}
}

func TestAskStreamSinkFailureDoesNotAffectAnswer(t *testing.T) {
	gateway := llm.NewMockGateway()
	gateway.GenerateFunc = genReturning("SELECT COUNT(*) AS cnt FROM orders")
	gateway.GenerateStreamFunc = textStream("There are 42 orders.")
	conn := ordersConnector()
	conn.QueryFunc = func(ctx context.Context, sqlQuery string) (*datasource.QueryResult, error) {
		return &datasource.QueryResult{Rows: []map[string]any{{"cnt": int64(42)}}, RowCount: 1}, nil
	}
	sink := &recordingSink{err: errors.New("sink down")}
	assistant := newTestAssistant(gateway, llm.NewMockGateway(), conn, sink, []string{"orders"})

	events := collect(assistant.AskStream(context.Background(), &AskRequest{Question: "How many orders?"}))
	if events[len(events)-1].Type != models.StreamEventDone {
		t.Errorf("sink failure must not break the run, got %v", eventTypes(events))
	}
}

// End-to-end: configured table orders, no business rule, count question.
func TestAskStreamEndToEndOrdersCount(t *testing.T) {
	gateway := llm.NewMockGateway()
	gateway.GenerateFunc = genReturning("```sql\nSELECT COUNT(*) AS cnt FROM orders\n```")
	gateway.GenerateStreamFunc = textStream("There are 42 orders in total.")

	conn := ordersConnector()
	conn.QueryFunc = func(ctx context.Context, sqlQuery string) (*datasource.QueryResult, error) {
		if sqlQuery != "SELECT COUNT(*) AS cnt FROM orders" {
			t.Errorf("executed %q", sqlQuery)
		}
		return &datasource.QueryResult{Columns: []string{"cnt"}, Rows: []map[string]any{{"cnt": int64(42)}}, RowCount: 1}, nil
	}

	assistant := newTestAssistant(gateway, llm.NewMockGateway(), conn, &recordingSink{}, []string{"orders"})
	events := collect(assistant.AskStream(context.Background(), &AskRequest{Question: "How many orders are there?"}))

	var md *models.AnswerMetadata
	dones := 0
	for _, e := range events {
		if e.Type == models.StreamEventMetadata {
			md = e.Metadata
		}
		if e.Type == models.StreamEventDone {
			dones++
		}
	}
	if md == nil || md.SQL != "SELECT COUNT(*) AS cnt FROM orders" || md.RowCount != 1 {
		t.Errorf("metadata = %+v", md)
	}
	if dones != 1 {
		t.Errorf("expected exactly one done event, got %d", dones)
	}
}
