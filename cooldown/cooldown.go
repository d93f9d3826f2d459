// Package cooldown gates preset firings by a minimum interval between them.
package cooldown

import (
	"context"
	"time"
)

// Key scopes a cooldown to one preset of one rule of one tenant. Preset ids
// are only unique within a rule, so all three parts are needed.
type Key struct {
	TenantID string
	RuleID   string
	PresetID string
}

func (k Key) String() string {
	return k.TenantID + "/" + k.RuleID + "/" + k.PresetID
}

// Tracker records when presets last fired.
type Tracker interface {
	// TryFire reports whether key may fire now and, if so, records the
	// firing. A non-positive cooldown always allows.
	TryFire(ctx context.Context, key Key, cooldown time.Duration) (bool, error)
}

// Seconds converts a preset's cooldownSeconds value into a duration.
func Seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
