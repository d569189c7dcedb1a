package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/inkforge/weaver/internal/domain/quota"
	"github.com/inkforge/weaver/internal/port/cache"
)

// quotaCacheTTL bounds how long a resolved limit set is served from cache
// after a policy change.
const quotaCacheTTL = time.Minute

// QuotaService evaluates planner/persona quotas against the loaded policy,
// caching resolved limit sets per (planner, persona) pair.
type QuotaService struct {
	policy quota.Policy
	cache  cache.Cache
}

// NewQuotaService creates a QuotaService. The cache may be nil to disable
// caching (tests).
func NewQuotaService(policy quota.Policy, c cache.Cache) *QuotaService {
	return &QuotaService{policy: policy, cache: c}
}

// Evaluate resolves the limits for (plannerKey, personaID) and checks the
// supplied usage figures against them.
func (s *QuotaService) Evaluate(ctx context.Context, plannerKey, personaID string, chk quota.Check) quota.Decision {
	return quota.Evaluate(s.resolve(ctx, plannerKey, personaID), chk)
}

func (s *QuotaService) resolve(ctx context.Context, plannerKey, personaID string) quota.Limits {
	if s.cache == nil {
		return s.policy.Resolve(plannerKey, personaID)
	}

	key := "quota:" + plannerKey + ":" + personaID
	if raw, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var l quota.Limits
		if err := json.Unmarshal(raw, &l); err == nil {
			return l
		}
	}

	l := s.policy.Resolve(plannerKey, personaID)
	if raw, err := json.Marshal(l); err == nil {
		if err := s.cache.Set(ctx, key, raw, quotaCacheTTL); err != nil {
			slog.Debug("cache quota limits", "key", key, "error", err)
		}
	}
	return l
}
