package llm

import (
	"context"
	"time"

	anthropic "github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datachat-engine/pkg/apperrors"
	"github.com/ekaya-inc/datachat-engine/pkg/models"
)

const anthropicMaxTokens = 4096

// anthropicGateway serves the Anthropic Messages API.
type anthropicGateway struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

var _ Gateway = (*anthropicGateway)(nil)

func newAnthropicGateway(cfg *Config, logger *zap.Logger) (*anthropicGateway, error) {
	return &anthropicGateway{
		client: anthropic.NewClient(cfg.APIKey),
		model:  cfg.Model,
		logger: logger.Named("llm"),
	}, nil
}

func (g *anthropicGateway) Model() string {
	return g.model
}

func (g *anthropicGateway) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	temperature := float32(req.Temperature)

	g.logger.Debug("LLM request",
		zap.String("model", g.model),
		zap.Float64("temperature", req.Temperature))

	start := time.Now()

	resp, err := g.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(g.model),
		MaxTokens:   anthropicMaxTokens,
		System:      req.System,
		Temperature: &temperature,
		Messages:    g.buildMessages(req),
	})
	if err != nil {
		g.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, apperrors.NewAIServiceError(ProviderAnthropic, err)
	}

	text := ""
	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
			text += *block.Text
		}
	}

	g.logger.Info("LLM request completed",
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &GenerateResult{
		Text: text,
		Usage: models.TokenUsage{
			PromptTokens:    resp.Usage.InputTokens,
			CandidateTokens: resp.Usage.OutputTokens,
			TotalTokens:     resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}

func (g *anthropicGateway) GenerateStream(ctx context.Context, req *GenerateRequest, tools []ToolDefinition) (<-chan Chunk, error) {
	temperature := float32(req.Temperature)

	streamReq := anthropic.MessagesStreamRequest{
		MessagesRequest: anthropic.MessagesRequest{
			Model:       anthropic.Model(g.model),
			MaxTokens:   anthropicMaxTokens,
			System:      req.System,
			Temperature: &temperature,
			Messages:    g.buildMessages(req),
			Tools:       g.buildTools(tools),
		},
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)

		start := time.Now()

		streamReq.OnContentBlockDelta = func(data anthropic.MessagesEventContentBlockDeltaData) {
			if data.Delta.Text != nil && *data.Delta.Text != "" {
				out <- Chunk{Kind: ChunkText, Text: *data.Delta.Text}
			}
		}

		// CreateMessagesStream returns the fully accumulated response,
		// so tool_use blocks carry complete input by the time it returns.
		resp, err := g.client.CreateMessagesStream(ctx, streamReq)
		if err != nil {
			g.logger.Error("Stream failed", zap.Error(err))
			out <- Chunk{Kind: ChunkError, Err: apperrors.NewAIServiceError(ProviderAnthropic, err)}
			return
		}

		toolCalls := 0
		for _, block := range resp.Content {
			if block.Type != anthropic.MessagesContentTypeToolUse || block.MessageContentToolUse == nil {
				continue
			}
			toolCalls++
			out <- Chunk{Kind: ChunkFunctionCall, FunctionCall: &FunctionCall{
				Name:      block.MessageContentToolUse.Name,
				Arguments: string(block.MessageContentToolUse.Input),
			}}
		}

		out <- Chunk{Kind: ChunkUsage, Usage: &models.TokenUsage{
			PromptTokens:    resp.Usage.InputTokens,
			CandidateTokens: resp.Usage.OutputTokens,
			TotalTokens:     resp.Usage.InputTokens + resp.Usage.OutputTokens,
		}}

		g.logger.Info("Stream completed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Int("tool_calls", toolCalls))
	}()

	return out, nil
}

func (g *anthropicGateway) buildMessages(req *GenerateRequest) []anthropic.Message {
	if len(req.Messages) > 0 {
		result := make([]anthropic.Message, 0, len(req.Messages))
		for _, msg := range req.Messages {
			switch msg.Role {
			case RoleAssistant:
				result = append(result, anthropic.NewAssistantTextMessage(msg.Content))
			default:
				result = append(result, anthropic.NewUserTextMessage(msg.Content))
			}
		}
		return result
	}

	return []anthropic.Message{anthropic.NewUserTextMessage(req.Prompt)}
}

func (g *anthropicGateway) buildTools(tools []ToolDefinition) []anthropic.ToolDefinition {
	if len(tools) == 0 {
		return nil
	}

	result := make([]anthropic.ToolDefinition, len(tools))
	for i, def := range tools {
		result[i] = anthropic.ToolDefinition{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.Parameters,
		}
	}

	return result
}
