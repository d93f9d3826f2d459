package cooldown

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// MemTracker keeps last-fired times in process memory. Concurrent TryFire
// calls on the same key are serialized by the map's per-key compute, so two
// racing fires inside one window let exactly one through.
type MemTracker struct {
	last *xsync.MapOf[Key, time.Time]
	now  func() time.Time
}

// NewMemTracker creates a tracker. A nil clock uses time.Now.
func NewMemTracker(now func() time.Time) *MemTracker {
	if now == nil {
		now = time.Now
	}
	return &MemTracker{
		last: xsync.NewMapOf[Key, time.Time](),
		now:  now,
	}
}

func (t *MemTracker) TryFire(_ context.Context, key Key, cooldown time.Duration) (bool, error) {
	if cooldown <= 0 {
		return true, nil
	}
	now := t.now()
	allowed := false
	t.last.Compute(key, func(prev time.Time, loaded bool) (time.Time, bool) {
		if loaded && now.Sub(prev) < cooldown {
			return prev, false
		}
		allowed = true
		return now, false
	})
	return allowed, nil
}

// Len is the number of tracked keys.
func (t *MemTracker) Len() int {
	return t.last.Size()
}
