package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/ekaya-inc/datachat-engine/pkg/jsonutil"
	"github.com/ekaya-inc/datachat-engine/pkg/llm"
	"github.com/ekaya-inc/datachat-engine/pkg/models"
	"github.com/ekaya-inc/datachat-engine/pkg/prompts"
)

// responseTemperature allows some stylistic variety in the final answer.
const responseTemperature = 0.3

// Responder turns query results (or chat history alone) into the natural
// language answer streamed back to the user.
type Responder struct {
	gateway llm.Gateway
	logger  *zap.Logger
}

// NewResponder creates a responder over the main model gateway.
func NewResponder(gateway llm.Gateway, logger *zap.Logger) *Responder {
	return &Responder{
		gateway: gateway,
		logger:  logger.Named("responder"),
	}
}

// GenerateResponse produces the complete answer text in one call. Used by
// the non-streaming ask path.
func (r *Responder) GenerateResponse(ctx context.Context, rows []map[string]any, chatHistory, question string) (string, models.TokenUsage, error) {
	result, err := r.gateway.Generate(ctx, &llm.GenerateRequest{
		System:      prompts.ResponseSystemInstruction,
		Prompt:      prompts.BuildResponsePrompt(serializeRows(rows), chatHistory, question),
		Temperature: responseTemperature,
	})
	if err != nil {
		return "", models.TokenUsage{}, err
	}
	return result.Text, result.Usage, nil
}

// ResponseChunk is one piece of a streamed answer: text, an optional chart,
// and trailing usage.
type ResponseChunk struct {
	Text  string
	Chart *models.ChartSpec
	Usage *models.TokenUsage
	Err   error
}

// GenerateResponseStream streams the answer, offering the chart tool so the
// model can attach a visualization when the result shape warrants one.
func (r *Responder) GenerateResponseStream(ctx context.Context, rows []map[string]any, chatHistory, question string) (<-chan ResponseChunk, error) {
	stream, err := r.gateway.GenerateStream(ctx, &llm.GenerateRequest{
		System:      prompts.ResponseSystemInstruction,
		Prompt:      prompts.BuildResponsePrompt(serializeRows(rows), chatHistory, question),
		Temperature: responseTemperature,
	}, llm.GetChartTools())
	if err != nil {
		return nil, err
	}
	return r.relay(stream), nil
}

// GenerateResponseFromHistoryStream streams an answer grounded only in the
// conversation so far. Used when the context evaluation decided no new query
// is needed.
func (r *Responder) GenerateResponseFromHistoryStream(ctx context.Context, chatHistory, question string) (<-chan ResponseChunk, error) {
	stream, err := r.gateway.GenerateStream(ctx, &llm.GenerateRequest{
		System:      prompts.HistoryResponseSystemInstruction,
		Prompt:      prompts.BuildHistoryResponsePrompt(chatHistory, question),
		Temperature: responseTemperature,
	}, nil)
	if err != nil {
		return nil, err
	}
	return r.relay(stream), nil
}

// relay converts gateway chunks into response chunks, decoding chart tool
// calls along the way. Malformed chart payloads are dropped with a warning;
// the text answer still stands on its own.
func (r *Responder) relay(stream <-chan llm.Chunk) <-chan ResponseChunk {
	out := make(chan ResponseChunk)

	go func() {
		defer close(out)
		for chunk := range stream {
			switch chunk.Kind {
			case llm.ChunkText:
				out <- ResponseChunk{Text: chunk.Text}
			case llm.ChunkFunctionCall:
				spec, err := parseChartCall(chunk.FunctionCall)
				if err != nil {
					r.logger.Warn("discarding malformed chart tool call", zap.Error(err))
					continue
				}
				if spec != nil {
					out <- ResponseChunk{Chart: spec}
				}
			case llm.ChunkUsage:
				out <- ResponseChunk{Usage: chunk.Usage}
			case llm.ChunkError:
				out <- ResponseChunk{Err: chunk.Err}
				return
			}
		}
	}()

	return out
}

// rawChartArgs mirrors ChartSpec with loose field types. Models routinely
// emit numbers where strings were declared, or a bare string where an array
// was asked for.
type rawChartArgs struct {
	Type        json.RawMessage  `json:"type"`
	Title       json.RawMessage  `json:"title"`
	Description json.RawMessage  `json:"description"`
	Data        []map[string]any `json:"data"`
	XKey        json.RawMessage  `json:"xKey"`
	YKeys       json.RawMessage  `json:"yKeys"`
	Colors      json.RawMessage  `json:"colors"`
}

// parseChartCall decodes a generate_chart invocation. Tool calls with other
// names are ignored.
func parseChartCall(call *llm.FunctionCall) (*models.ChartSpec, error) {
	if call == nil || call.Name != llm.ChartToolName {
		return nil, nil
	}

	var raw rawChartArgs
	if err := json.Unmarshal([]byte(call.Arguments), &raw); err != nil {
		return nil, fmt.Errorf("decoding chart arguments: %w", err)
	}

	spec := models.ChartSpec{
		Type:        jsonutil.FlexibleString(raw.Type),
		Title:       jsonutil.FlexibleString(raw.Title),
		Description: jsonutil.FlexibleString(raw.Description),
		Data:        raw.Data,
		XKey:        jsonutil.FlexibleString(raw.XKey),
		YKeys:       jsonutil.FlexibleStringSlice(raw.YKeys),
		Colors:      jsonutil.FlexibleStringSlice(raw.Colors),
	}
	if !slices.Contains(models.ValidChartTypes, spec.Type) {
		return nil, fmt.Errorf("unknown chart type %q", spec.Type)
	}
	if spec.Title == "" || len(spec.Data) == 0 {
		return nil, fmt.Errorf("chart missing title or data")
	}
	return &spec, nil
}

// serializeRows renders query results as indented JSON for the response
// prompt. Rows that cannot marshal fall back to their Go string form.
func serializeRows(rows []map[string]any) string {
	if rows == nil {
		rows = []map[string]any{}
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Sprint(rows)
	}
	return string(data)
}
