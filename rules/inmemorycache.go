package rules

import (
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// InMemoryRulesCache is an in-memory implementation of RulesCache backed by
// an expirable LRU. Thread-safe for concurrent access
type InMemoryRulesCache struct {
	data *expirable.LRU[string, []*Rule]
}

// NewInMemoryRulesCache creates a new in-memory rules cache
func NewInMemoryRulesCache(config CacheConfig) *InMemoryRulesCache {
	size := config.Size
	if size <= 0 {
		size = DefaultCacheConfig().Size
	}
	// A zero TTL disables expiry
	return &InMemoryRulesCache{
		data: expirable.NewLRU[string, []*Rule](size, nil, config.TTL),
	}
}

// Get returns a copy of the tenant's cached rules
func (c *InMemoryRulesCache) Get(tenantID string) ([]*Rule, bool) {
	cached, ok := c.data.Get(tenantID)
	if !ok {
		return nil, false
	}
	// Return copy to prevent external modifications
	return cloneRules(cached), true
}

// Set stores a copy of rules for the tenant
func (c *InMemoryRulesCache) Set(tenantID string, rules []*Rule) {
	c.data.Add(tenantID, cloneRules(rules))
}

// Invalidate clears the tenant's entry
func (c *InMemoryRulesCache) Invalidate(tenantID string) {
	c.data.Remove(tenantID)
}
