package assistant

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/datachat-engine/pkg/llm"
	"github.com/ekaya-inc/datachat-engine/pkg/models"
	"github.com/ekaya-inc/datachat-engine/pkg/prompts"
)

// contextEvalTemperature keeps the classification deterministic.
const contextEvalTemperature = 0.0

// EvalResult is the outcome of a context sufficiency check.
type EvalResult struct {
	// Sufficient is true when the chat history already answers the question.
	Sufficient bool
	// Reasoning is the model's one-line justification, or a description of
	// the parse/error cause when the conservative default was taken.
	Reasoning string
	// Usage is the token usage of the evaluation call, zero when no call
	// was made.
	Usage models.TokenUsage
}

// ContextEvaluator classifies whether the expensive schema+SQL path can be
// skipped. It uses the lighter, faster model.
type ContextEvaluator struct {
	gateway llm.Gateway
	logger  *zap.Logger
}

// NewContextEvaluator creates an evaluator over the fast model gateway.
func NewContextEvaluator(gateway llm.Gateway, logger *zap.Logger) *ContextEvaluator {
	return &ContextEvaluator{
		gateway: gateway,
		logger:  logger.Named("eval"),
	}
}

// Evaluate decides whether chat history suffices to answer the question.
// Empty history short-circuits to insufficient without a model call. Any
// call failure or unparseable output defaults conservatively to
// insufficient: re-querying is cheaper than hallucinating from stale
// context.
func (e *ContextEvaluator) Evaluate(ctx context.Context, question, chatHistory string) EvalResult {
	if strings.TrimSpace(chatHistory) == "" {
		return EvalResult{
			Sufficient: false,
			Reasoning:  "no prior conversation context",
		}
	}

	result, err := e.gateway.Generate(ctx, &llm.GenerateRequest{
		System:      prompts.ContextEvalSystemInstruction,
		Prompt:      prompts.BuildContextEvalPrompt(question, chatHistory),
		Temperature: contextEvalTemperature,
	})
	if err != nil {
		e.logger.Warn("context evaluation call failed, defaulting to re-query", zap.Error(err))
		return EvalResult{
			Sufficient: false,
			Reasoning:  "evaluation call failed: " + err.Error(),
		}
	}

	decision, reasoning, ok := parseEvalResponse(result.Text)
	if !ok {
		e.logger.Warn("unparseable context evaluation response, defaulting to re-query",
			zap.String("response", result.Text))
		return EvalResult{
			Sufficient: false,
			Reasoning:  "unparseable evaluation response",
			Usage:      result.Usage,
		}
	}

	return EvalResult{
		Sufficient: decision == prompts.DecisionSufficient,
		Reasoning:  reasoning,
		Usage:      result.Usage,
	}
}

// parseEvalResponse extracts the DECISION and REASONING lines from the
// model's two-line response. Extra surrounding text is tolerated as long
// as a DECISION line with a known value is present.
func parseEvalResponse(text string) (decision, reasoning string, ok bool) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if rest, found := strings.CutPrefix(line, "DECISION:"); found {
			value := strings.ToUpper(strings.TrimSpace(rest))
			switch value {
			case prompts.DecisionSufficient, prompts.DecisionNeedMoreData:
				decision = value
			}
		} else if rest, found := strings.CutPrefix(line, "REASONING:"); found {
			reasoning = strings.TrimSpace(rest)
		}
	}

	if decision == "" {
		return "", "", false
	}
	return decision, reasoning, true
}
