package assistant

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datachat-engine/pkg/cache"
)

// BusinessRuleProvider memoizes the project's free-text business rule and
// renders it as a prompt section. It never fails: cache problems fall back
// to the rule value held in memory.
type BusinessRuleProvider struct {
	cache     cache.Cache
	projectID uuid.UUID
	rule      string // in-memory fallback, from the project config
	ttl       time.Duration
	logger    *zap.Logger
}

// NewBusinessRuleProvider creates a provider for one project. rule may be
// empty when the project has no business rule configured.
func NewBusinessRuleProvider(c cache.Cache, projectID uuid.UUID, rule string, ttl time.Duration, logger *zap.Logger) *BusinessRuleProvider {
	return &BusinessRuleProvider{
		cache:     c,
		projectID: projectID,
		rule:      rule,
		ttl:       ttl,
		logger:    logger.Named("rules"),
	}
}

// FormatForPrompt returns the business rule wrapped in a fixed prompt
// section, or an empty string when no rule is configured. Idempotent; the
// second call is served from cache when the backend is healthy.
func (p *BusinessRuleProvider) FormatForPrompt(ctx context.Context) string {
	rule := p.getRule(ctx)
	if rule == "" {
		return ""
	}
	return "Business Rules:\n" + rule
}

func (p *BusinessRuleProvider) getRule(ctx context.Context) string {
	if p.rule == "" {
		return ""
	}

	key := cache.BusinessRuleKey(p.projectID)

	if cached, err := p.cache.Get(ctx, key); err == nil {
		return cached
	} else if !isCacheMiss(err) {
		p.logger.Warn("business rule cache read failed, using in-memory value", zap.Error(err))
		return p.rule
	}

	if err := p.cache.SetWithTTL(ctx, key, p.rule, p.ttl); err != nil {
		p.logger.Warn("business rule cache write failed", zap.Error(err))
	}

	return p.rule
}
