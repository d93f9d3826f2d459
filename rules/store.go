package rules

import (
    "context"
    "fmt"
    "sort"
    "sync"
    "time"

    "github.com/google/uuid"
)

// RuleStore manages rule persistence and retrieval per tenant.
// Get and Update return a nil rule and nil error when the rule does not exist.
type RuleStore interface {
    // List all rules of a tenant
    List(ctx context.Context, tenantID string) ([]*Rule, error)

    // Get a rule by ID
    Get(ctx context.Context, tenantID, ruleID string) (*Rule, error)

    // Create a rule, enforcing per-tenant and per-rule limits
    Create(ctx context.Context, rule *Rule) (*Rule, error)

    // Update the fields set in patch
    Update(ctx context.Context, tenantID, ruleID string, patch RulePatch) (*Rule, error)

    // Delete a rule, reporting whether it existed
    Delete(ctx context.Context, tenantID, ruleID string) (bool, error)
}

// InMemoryRuleStore implements RuleStore using an in-memory map
type InMemoryRuleStore struct {
    tenants map[string]map[string]*Rule
    now     func() time.Time
    mu      sync.RWMutex
}

// NewInMemoryRuleStore creates a new in-memory rule store
func NewInMemoryRuleStore() *InMemoryRuleStore {
    return &InMemoryRuleStore{
        tenants: make(map[string]map[string]*Rule),
        now:     time.Now,
    }
}

// prepareRule fills ids and defaults on a rule about to be created.
func prepareRule(rule *Rule, now time.Time) {
    if rule.ID == "" {
        rule.ID = uuid.New().String()
    }
    normalizeRule(rule)
    rule.CreatedAt = now
    rule.UpdatedAt = now
}

// normalizeRule applies defaults for optional enumerations.
func normalizeRule(rule *Rule) {
    if rule.ConditionLogic == "" {
        rule.ConditionLogic = LogicAnd
    }
    if rule.RunMode == "" {
        rule.RunMode = RunAll
    }
    for i := range rule.Presets {
        if rule.Presets[i].ID == "" {
            rule.Presets[i].ID = uuid.New().String()
        }
    }
}

// List returns all rules of the tenant ordered by creation time
func (s *InMemoryRuleStore) List(ctx context.Context, tenantID string) ([]*Rule, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()

    list := make([]*Rule, 0, len(s.tenants[tenantID]))
    for _, rule := range s.tenants[tenantID] {
        list = append(list, rule.Clone())
    }
    sort.Slice(list, func(i, j int) bool {
        if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
            return list[i].CreatedAt.Before(list[j].CreatedAt)
        }
        return list[i].ID < list[j].ID
    })
    return list, nil
}

// Get retrieves a rule by ID
func (s *InMemoryRuleStore) Get(ctx context.Context, tenantID, ruleID string) (*Rule, error) {
    s.mu.RLock()
    defer s.mu.RUnlock()

    rule, exists := s.tenants[tenantID][ruleID]
    if !exists {
        return nil, nil
    }
    return rule.Clone(), nil
}

// Create adds a new rule to the store
func (s *InMemoryRuleStore) Create(ctx context.Context, rule *Rule) (*Rule, error) {
    if err := ValidateRule(rule); err != nil {
        return nil, err
    }

    s.mu.Lock()
    defer s.mu.Unlock()

    tenant := s.tenants[rule.TenantID]
    if len(tenant) >= MaxRulesPerTenant {
        return nil, fmt.Errorf("%w: tenant %s already holds %d rules", ErrRuleLimitExceeded, rule.TenantID, len(tenant))
    }

    stored := rule.Clone()
    prepareRule(stored, s.now())
    if _, exists := tenant[stored.ID]; exists {
        return nil, fmt.Errorf("%w: rule with ID %s already exists", ErrInvalidRule, stored.ID)
    }

    if tenant == nil {
        tenant = make(map[string]*Rule)
        s.tenants[rule.TenantID] = tenant
    }
    tenant[stored.ID] = stored
    return stored.Clone(), nil
}

// Update applies patch to an existing rule, preserving CreatedAt
func (s *InMemoryRuleStore) Update(ctx context.Context, tenantID, ruleID string, patch RulePatch) (*Rule, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    existing, exists := s.tenants[tenantID][ruleID]
    if !exists {
        return nil, nil
    }

    updated := existing.Clone()
    patch.Apply(updated)
    normalizeRule(updated)
    if err := ValidateRule(updated); err != nil {
        return nil, err
    }
    updated.UpdatedAt = s.now()
    s.tenants[tenantID][ruleID] = updated
    return updated.Clone(), nil
}

// Delete removes a rule from the store
func (s *InMemoryRuleStore) Delete(ctx context.Context, tenantID, ruleID string) (bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()

    if _, exists := s.tenants[tenantID][ruleID]; !exists {
        return false, nil
    }
    delete(s.tenants[tenantID], ruleID)
    return true, nil
}
