package rules

import (
	"context"
	"time"
)

// RulesCache provides an abstraction for caching each tenant's rule list
// This allows swapping between in-memory, Redis, or other caching implementations
type RulesCache interface {
	// Get retrieves a tenant's cached rules, ok is false on miss or expiry
	Get(tenantID string) (rules []*Rule, ok bool)

	// Set stores a tenant's rules in cache
	Set(tenantID string, rules []*Rule)

	// Invalidate drops a tenant's entry, forcing a refresh on next Get
	Invalidate(tenantID string)
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for cached entries
	// Set to 0 for no expiration (manual invalidation only)
	TTL time.Duration

	// Size is the maximum number of tenants kept in cache
	Size int
}

// DefaultCacheConfig returns sensible defaults for rule caching
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:  30 * time.Second,
		Size: 10_000,
	}
}

// CachedRuleStore serves List from a per-tenant snapshot cache and
// invalidates a tenant's snapshot on every successful write.
type CachedRuleStore struct {
	store RuleStore
	cache RulesCache
}

var _ RuleStore = (*CachedRuleStore)(nil)

func NewCachedRuleStore(store RuleStore, cache RulesCache) *CachedRuleStore {
	return &CachedRuleStore{store: store, cache: cache}
}

func (s *CachedRuleStore) List(ctx context.Context, tenantID string) ([]*Rule, error) {
	if cached, ok := s.cache.Get(tenantID); ok {
		return cached, nil
	}
	list, err := s.store.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(tenantID, list)
	return list, nil
}

func (s *CachedRuleStore) Get(ctx context.Context, tenantID, ruleID string) (*Rule, error) {
	return s.store.Get(ctx, tenantID, ruleID)
}

func (s *CachedRuleStore) Create(ctx context.Context, rule *Rule) (*Rule, error) {
	created, err := s.store.Create(ctx, rule)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(created.TenantID)
	return created, nil
}

func (s *CachedRuleStore) Update(ctx context.Context, tenantID, ruleID string, patch RulePatch) (*Rule, error) {
	updated, err := s.store.Update(ctx, tenantID, ruleID, patch)
	if err != nil {
		return nil, err
	}
	if updated != nil {
		s.cache.Invalidate(tenantID)
	}
	return updated, nil
}

func (s *CachedRuleStore) Delete(ctx context.Context, tenantID, ruleID string) (bool, error) {
	deleted, err := s.store.Delete(ctx, tenantID, ruleID)
	if err != nil {
		return false, err
	}
	if deleted {
		s.cache.Invalidate(tenantID)
	}
	return deleted, nil
}
