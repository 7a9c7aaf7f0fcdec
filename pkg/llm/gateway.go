// Package llm provides the language-model gateway used by the assistant.
// Two provider families are supported: OpenAI-compatible endpoints and
// Anthropic. A gateway instance is bound to one provider and one model.
package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/datachat-engine/pkg/models"
)

// Provider name constants.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// GenerateRequest is a single-turn completion request. When Messages is
// non-empty it is sent as the conversation; otherwise Prompt becomes the
// sole user message. System is always sent as the system instruction.
type GenerateRequest struct {
	System      string
	Prompt      string
	Messages    []Message
	Temperature float64
}

// Message is one turn of a model conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Message role constants.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// GenerateResult carries the model's text plus the token usage of the call.
// Usage is always populated on success so callers can aggregate per run.
type GenerateResult struct {
	Text  string
	Usage models.TokenUsage
}

// ChunkKind discriminates streamed gateway chunks.
type ChunkKind string

const (
	// ChunkText carries a fragment of assistant prose.
	ChunkText ChunkKind = "text"
	// ChunkFunctionCall carries one complete tool invocation.
	ChunkFunctionCall ChunkKind = "function_call"
	// ChunkUsage carries the token usage of the whole stream. At most one
	// is emitted, after all text and function-call chunks.
	ChunkUsage ChunkKind = "usage"
	// ChunkError terminates the stream with a failure.
	ChunkError ChunkKind = "error"
)

// Chunk is one element of a gateway stream. Exactly one field beyond Kind
// is meaningful per chunk. The channel is closed after the last chunk.
type Chunk struct {
	Kind         ChunkKind
	Text         string
	FunctionCall *FunctionCall
	Usage        *models.TokenUsage
	Err          error
}

// FunctionCall is a fully accumulated tool invocation from the model.
type FunctionCall struct {
	Name      string
	Arguments string
}

// Gateway is the model access layer. Implementations classify transport
// failures into apperrors.AIServiceError.
type Gateway interface {
	// Generate performs a blocking completion and returns text plus usage.
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error)

	// GenerateStream performs a streaming completion. Text arrives as
	// ChunkText fragments; tool invocations arrive as ChunkFunctionCall
	// once their arguments are complete. The returned channel is closed
	// when the stream ends.
	GenerateStream(ctx context.Context, req *GenerateRequest, tools []ToolDefinition) (<-chan Chunk, error)

	// Model returns the model name this gateway is bound to.
	Model() string
}

// Config holds settings for constructing a gateway.
type Config struct {
	Provider string // "openai" or "anthropic"
	BaseURL  string // Optional endpoint override (OpenAI-compatible only)
	APIKey   string
	Model    string
}

// NewGateway constructs a gateway for the configured provider. Unsupported
// provider names fail here, at startup, rather than on first use.
func NewGateway(cfg *Config, logger *zap.Logger) (Gateway, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	switch cfg.Provider {
	case ProviderOpenAI, "":
		return newOpenAIGateway(cfg, logger)
	case ProviderAnthropic:
		return newAnthropicGateway(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported AI provider %q (supported: openai, anthropic)", cfg.Provider)
	}
}
