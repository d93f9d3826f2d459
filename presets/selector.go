// Package presets chooses which of a matched rule's presets fire.
package presets

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/liamcoop/triggers/rules"
)

// Selector applies a rule's run mode to its presets. The random source is
// guarded so one Selector can be shared across concurrent dispatches.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector creates a Selector drawing from src, or from a time-seeded PCG
// source when src is nil.
func NewSelector(src rand.Source) *Selector {
	if src == nil {
		seed := uint64(time.Now().UnixNano())
		src = rand.NewPCG(seed, seed>>1|1)
	}
	return &Selector{rng: rand.New(src)}
}

// Select returns the presets to run. Disabled presets are never returned.
//
//   - all: every enabled preset, in order.
//   - random: one enabled preset chosen uniformly.
//   - single: the first pinned preset, else the first enabled one.
//   - pinned-random: every pinned preset plus up to randomCount distinct
//     unpinned ones.
//
// Unknown run modes behave like all.
func (s *Selector) Select(presets []rules.Preset, mode rules.RunMode, randomCount int) []rules.Preset {
	enabled := make([]rules.Preset, 0, len(presets))
	for _, p := range presets {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	if len(enabled) == 0 {
		return []rules.Preset{}
	}

	switch mode {
	case rules.RunRandom:
		return []rules.Preset{enabled[s.intN(len(enabled))]}

	case rules.RunSingle:
		for _, p := range enabled {
			if p.IsPinned {
				return []rules.Preset{p}
			}
		}
		return []rules.Preset{enabled[0]}

	case rules.RunPinnedRandom:
		var pinned, unpinned []rules.Preset
		for _, p := range enabled {
			if p.IsPinned {
				pinned = append(pinned, p)
			} else {
				unpinned = append(unpinned, p)
			}
		}
		n := min(max(randomCount, 0), len(unpinned))
		s.shuffle(unpinned)
		out := make([]rules.Preset, 0, len(pinned)+n)
		out = append(out, pinned...)
		return append(out, unpinned[:n]...)

	default:
		return enabled
	}
}

func (s *Selector) intN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

func (s *Selector) shuffle(p []rules.Preset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng.Shuffle(len(p), func(i, j int) { p[i], p[j] = p[j], p[i] })
}
