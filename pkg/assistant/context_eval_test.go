package assistant

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/ekaya-inc/datachat-engine/pkg/llm"
	"github.com/ekaya-inc/datachat-engine/pkg/models"
)

func TestEvaluateEmptyHistorySkipsGateway(t *testing.T) {
	gateway := llm.NewMockGateway()
	evaluator := NewContextEvaluator(gateway, zap.NewNop())

	result := evaluator.Evaluate(context.Background(), "How many orders?", "   \n")
	if result.Sufficient {
		t.Error("empty history must be insufficient")
	}
	if gateway.GenerateCalls != 0 {
		t.Errorf("empty history made %d gateway calls, want 0", gateway.GenerateCalls)
	}
	if !result.Usage.IsZero() {
		t.Errorf("no call means zero usage, got %+v", result.Usage)
	}
}

func TestEvaluateSufficient(t *testing.T) {
	gateway := llm.NewMockGateway()
	gateway.GenerateFunc = func(context.Context, *llm.GenerateRequest) (*llm.GenerateResult, error) {
		return &llm.GenerateResult{
			Text:  "DECISION: SUFFICIENT\nREASONING: The count is already in the history.",
			Usage: models.TokenUsage{PromptTokens: 50, CandidateTokens: 10, TotalTokens: 60},
		}, nil
	}
	evaluator := NewContextEvaluator(gateway, zap.NewNop())

	result := evaluator.Evaluate(context.Background(), "And how many was that?", "user: how many orders?\nassistant: There are 42 orders.\n")
	if !result.Sufficient {
		t.Error("expected sufficient")
	}
	if result.Reasoning != "The count is already in the history." {
		t.Errorf("reasoning = %q", result.Reasoning)
	}
	if result.Usage.TotalTokens != 60 {
		t.Errorf("usage = %+v", result.Usage)
	}
}

func TestEvaluateToleratesSurroundingText(t *testing.T) {
	gateway := llm.NewMockGateway()
	gateway.GenerateFunc = func(context.Context, *llm.GenerateRequest) (*llm.GenerateResult, error) {
		return &llm.GenerateResult{
			Text: "Sure, here is my assessment:\n\nDECISION: need_more_data\nREASONING: History has no figures.\nHope that helps!",
		}, nil
	}
	evaluator := NewContextEvaluator(gateway, zap.NewNop())

	result := evaluator.Evaluate(context.Background(), "q", "user: hi\n")
	if result.Sufficient {
		t.Error("expected insufficient")
	}
	if result.Reasoning != "History has no figures." {
		t.Errorf("reasoning = %q", result.Reasoning)
	}
}

func TestEvaluateGatewayFailureDefaultsInsufficient(t *testing.T) {
	gateway := llm.NewMockGateway()
	gateway.GenerateFunc = func(context.Context, *llm.GenerateRequest) (*llm.GenerateResult, error) {
		return nil, errors.New("provider unavailable")
	}
	evaluator := NewContextEvaluator(gateway, zap.NewNop())

	result := evaluator.Evaluate(context.Background(), "q", "user: hi\n")
	if result.Sufficient {
		t.Error("gateway failure must default to insufficient")
	}
}

func TestEvaluateUnparseableDefaultsInsufficient(t *testing.T) {
	gateway := llm.NewMockGateway()
	gateway.GenerateFunc = func(context.Context, *llm.GenerateRequest) (*llm.GenerateResult, error) {
		return &llm.GenerateResult{Text: "I think the history might be enough, maybe."}, nil
	}
	evaluator := NewContextEvaluator(gateway, zap.NewNop())

	result := evaluator.Evaluate(context.Background(), "q", "user: hi\n")
	if result.Sufficient {
		t.Error("unparseable response must default to insufficient")
	}
}
