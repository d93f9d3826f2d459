package rules

import (
	"context"
	"testing"
	"time"
)

type countingStore struct {
	RuleStore
	lists int
}

func (s *countingStore) List(ctx context.Context, tenantID string) ([]*Rule, error) {
	s.lists++
	return s.RuleStore.List(ctx, tenantID)
}

// TestCachedRuleStoreServesSnapshots verifies List hits the backing store once
// until a write invalidates the tenant
func TestCachedRuleStoreServesSnapshots(t *testing.T) {
	backing := &countingStore{RuleStore: NewInMemoryRuleStore()}
	store := NewCachedRuleStore(backing, NewInMemoryRulesCache(DefaultCacheConfig()))
	ctx := context.Background()

	created, err := store.Create(ctx, newTestRule("t1", "cached"))
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		list, err := store.List(ctx, "t1")
		if err != nil || len(list) != 1 {
			t.Fatalf("List() = %d rules, %v", len(list), err)
		}
	}
	if backing.lists != 1 {
		t.Errorf("backing List() called %d times, want 1", backing.lists)
	}

	name := "renamed"
	if _, err := store.Update(ctx, "t1", created.ID, RulePatch{Name: &name}); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	list, _ := store.List(ctx, "t1")
	if list[0].Name != "renamed" {
		t.Errorf("List() after Update() = %s, want renamed", list[0].Name)
	}
	if backing.lists != 2 {
		t.Errorf("backing List() called %d times, want 2", backing.lists)
	}

	if _, err := store.Delete(ctx, "t1", created.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if list, _ := store.List(ctx, "t1"); len(list) != 0 {
		t.Errorf("List() after Delete() = %d rules, want 0", len(list))
	}
}

// TestInMemoryRulesCacheIsolation verifies cached snapshots cannot be mutated
// through returned values
func TestInMemoryRulesCacheIsolation(t *testing.T) {
	cache := NewInMemoryRulesCache(CacheConfig{Size: 4})
	rules := []*Rule{newTestRule("t1", "a")}
	cache.Set("t1", rules)
	rules[0].Name = "changed"

	got, ok := cache.Get("t1")
	if !ok || got[0].Name != "a" {
		t.Fatalf("Get() = %v, %v; want snapshot named a", got, ok)
	}
	got[0].Name = "changed again"
	again, _ := cache.Get("t1")
	if again[0].Name != "a" {
		t.Errorf("cache entry was mutated: %s", again[0].Name)
	}
}

// TestInMemoryRulesCacheExpiry verifies entries expire after the TTL
func TestInMemoryRulesCacheExpiry(t *testing.T) {
	cache := NewInMemoryRulesCache(CacheConfig{TTL: 20 * time.Millisecond, Size: 4})
	cache.Set("t1", []*Rule{newTestRule("t1", "a")})

	if _, ok := cache.Get("t1"); !ok {
		t.Fatal("Get() immediately after Set() should hit")
	}
	time.Sleep(60 * time.Millisecond)
	if _, ok := cache.Get("t1"); ok {
		t.Error("Get() after TTL should miss")
	}

	cache.Set("t2", nil)
	cache.Invalidate("t2")
	if _, ok := cache.Get("t2"); ok {
		t.Error("Get() after Invalidate() should miss")
	}
}
