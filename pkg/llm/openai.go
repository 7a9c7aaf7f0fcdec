package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datachat-engine/pkg/apperrors"
	"github.com/ekaya-inc/datachat-engine/pkg/models"
)

// openaiGateway serves OpenAI and OpenAI-compatible endpoints.
type openaiGateway struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

var _ Gateway = (*openaiGateway)(nil)

func newOpenAIGateway(cfg *Config, logger *zap.Logger) (*openaiGateway, error) {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}

	return &openaiGateway{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
		logger: logger.Named("llm"),
	}, nil
}

func (g *openaiGateway) Model() string {
	return g.model
}

func (g *openaiGateway) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	messages := g.buildMessages(req)

	g.logger.Debug("LLM request",
		zap.String("model", g.model),
		zap.Int("message_count", len(messages)),
		zap.Float64("temperature", req.Temperature))

	start := time.Now()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		g.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, apperrors.NewAIServiceError(ProviderOpenAI, err)
	}

	if len(resp.Choices) == 0 {
		return nil, apperrors.NewAIServiceError(ProviderOpenAI, fmt.Errorf("no choices in response"))
	}

	g.logger.Info("LLM request completed",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &GenerateResult{
		Text: resp.Choices[0].Message.Content,
		Usage: models.TokenUsage{
			PromptTokens:    resp.Usage.PromptTokens,
			CandidateTokens: resp.Usage.CompletionTokens,
			TotalTokens:     resp.Usage.TotalTokens,
		},
	}, nil
}

func (g *openaiGateway) GenerateStream(ctx context.Context, req *GenerateRequest, tools []ToolDefinition) (<-chan Chunk, error) {
	stream, err := g.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    g.buildMessages(req),
		Tools:       g.buildTools(tools),
		Temperature: float32(req.Temperature),
		Stream:      true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	})
	if err != nil {
		g.logger.Error("Failed to create stream", zap.Error(err))
		return nil, apperrors.NewAIServiceError(ProviderOpenAI, err)
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		defer stream.Close()

		start := time.Now()
		var usage *models.TokenUsage
		toolCalls := make(map[int]*FunctionCall)
		maxIdx := -1

		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				g.logger.Error("Stream receive error", zap.Error(err))
				out <- Chunk{Kind: ChunkError, Err: apperrors.NewAIServiceError(ProviderOpenAI, err)}
				return
			}

			if response.Usage != nil {
				usage = &models.TokenUsage{
					PromptTokens:    response.Usage.PromptTokens,
					CandidateTokens: response.Usage.CompletionTokens,
					TotalTokens:     response.Usage.TotalTokens,
				}
			}

			if len(response.Choices) == 0 {
				continue
			}

			delta := response.Choices[0].Delta

			if delta.Content != "" {
				out <- Chunk{Kind: ChunkText, Text: delta.Content}
			}

			// Tool call arguments arrive fragmented across chunks;
			// accumulate by index until the stream ends.
			for _, tc := range delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				if idx > maxIdx {
					maxIdx = idx
				}

				if existing, exists := toolCalls[idx]; !exists {
					toolCalls[idx] = &FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					}
				} else {
					existing.Arguments += tc.Function.Arguments
				}
			}
		}

		for i := 0; i <= maxIdx; i++ {
			if fc, ok := toolCalls[i]; ok {
				out <- Chunk{Kind: ChunkFunctionCall, FunctionCall: fc}
			}
		}

		if usage != nil {
			out <- Chunk{Kind: ChunkUsage, Usage: usage}
		}

		g.logger.Info("Stream completed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Int("tool_calls", len(toolCalls)))
	}()

	return out, nil
}

func (g *openaiGateway) buildMessages(req *GenerateRequest) []openai.ChatCompletionMessage {
	var result []openai.ChatCompletionMessage

	if req.System != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	if len(req.Messages) > 0 {
		for _, msg := range req.Messages {
			result = append(result, openai.ChatCompletionMessage{
				Role:    msg.Role,
				Content: msg.Content,
			})
		}
		return result
	}

	return append(result, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})
}

func (g *openaiGateway) buildTools(tools []ToolDefinition) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}

	result := make([]openai.Tool, len(tools))
	for i, def := range tools {
		paramsJSON, _ := json.Marshal(def.Parameters)
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  json.RawMessage(paramsJSON),
			},
		}
	}

	return result
}
