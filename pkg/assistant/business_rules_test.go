package assistant

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func TestFormatForPromptEmptyWhenNoRule(t *testing.T) {
	p := NewBusinessRuleProvider(newMemCache(), uuid.New(), "", time.Minute, zap.NewNop())

	if got := p.FormatForPrompt(context.Background()); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestFormatForPromptWrapsRule(t *testing.T) {
	p := NewBusinessRuleProvider(newMemCache(), uuid.New(), "Use Order_Price for revenue.", time.Minute, zap.NewNop())

	want := "Business Rules:\nUse Order_Price for revenue."
	if got := p.FormatForPrompt(context.Background()); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatForPromptIdempotentAndCached(t *testing.T) {
	c := newMemCache()
	p := NewBusinessRuleProvider(c, uuid.New(), "rule text", time.Minute, zap.NewNop())

	first := p.FormatForPrompt(context.Background())
	setsAfterFirst := c.sets

	second := p.FormatForPrompt(context.Background())
	if second != first {
		t.Errorf("second call differs: %q vs %q", second, first)
	}
	if c.sets != setsAfterFirst {
		t.Errorf("second call wrote to cache again, want cache hit")
	}
}

func TestFormatForPromptCacheOutageFallsBack(t *testing.T) {
	c := newMemCache()
	c.failing = true
	p := NewBusinessRuleProvider(c, uuid.New(), "rule text", time.Minute, zap.NewNop())

	want := "Business Rules:\nrule text"
	if got := p.FormatForPrompt(context.Background()); got != want {
		t.Errorf("cache outage must fall back to in-memory rule, got %q", got)
	}
}
