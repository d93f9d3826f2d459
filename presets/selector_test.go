package presets

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/triggers/rules"
)

func preset(id string, enabled, pinned bool) rules.Preset {
	return rules.Preset{ID: id, Enabled: enabled, IsPinned: pinned, Type: rules.PresetText, Template: id}
}

func ids(ps []rules.Preset) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ID)
	}
	return out
}

func TestSelectAll(t *testing.T) {
	s := NewSelector(rand.NewPCG(1, 2))
	ps := []rules.Preset{preset("a", true, false), preset("b", false, false), preset("c", true, true)}

	assert.Equal(t, []string{"a", "c"}, ids(s.Select(ps, rules.RunAll, 0)))
	assert.Equal(t, []string{"a", "c"}, ids(s.Select(ps, "", 0)), "unset mode behaves like all")
	assert.Equal(t, []string{"a", "c"}, ids(s.Select(ps, "sometimes", 0)), "unknown mode behaves like all")
}

func TestSelectNothingEnabled(t *testing.T) {
	s := NewSelector(nil)
	ps := []rules.Preset{preset("a", false, true)}

	for _, mode := range []rules.RunMode{rules.RunAll, rules.RunRandom, rules.RunSingle, rules.RunPinnedRandom} {
		got := s.Select(ps, mode, 3)
		assert.NotNil(t, got, mode)
		assert.Empty(t, got, mode)
	}
	assert.Empty(t, s.Select(nil, rules.RunRandom, 0))
}

func TestSelectRandomReturnsExactlyOne(t *testing.T) {
	s := NewSelector(rand.NewPCG(7, 7))
	ps := []rules.Preset{preset("a", true, false), preset("b", true, false), preset("c", true, false), preset("off", false, false)}

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		got := s.Select(ps, rules.RunRandom, 0)
		require.Len(t, got, 1)
		assert.NotEqual(t, "off", got[0].ID)
		seen[got[0].ID] = true
	}
	assert.Len(t, seen, 3, "every enabled preset is eventually chosen")
}

func TestSelectSingle(t *testing.T) {
	s := NewSelector(nil)

	pinned := []rules.Preset{preset("a", true, false), preset("b", false, true), preset("c", true, true), preset("d", true, true)}
	assert.Equal(t, []string{"c"}, ids(s.Select(pinned, rules.RunSingle, 0)))

	unpinned := []rules.Preset{preset("a", false, false), preset("b", true, false), preset("c", true, false)}
	assert.Equal(t, []string{"b"}, ids(s.Select(unpinned, rules.RunSingle, 0)))
}

func TestSelectPinnedRandom(t *testing.T) {
	s := NewSelector(rand.NewPCG(3, 4))
	ps := []rules.Preset{
		preset("p1", true, true),
		preset("u1", true, false),
		preset("u2", true, false),
		preset("p2", true, true),
		preset("u3", true, false),
	}

	for i := 0; i < 100; i++ {
		got := ids(s.Select(ps, rules.RunPinnedRandom, 2))
		require.Len(t, got, 4)
		assert.Equal(t, []string{"p1", "p2"}, got[:2])

		unique := map[string]bool{}
		for _, id := range got {
			unique[id] = true
		}
		assert.Len(t, unique, 4, "no duplicates in %v", got)
	}
}

func TestSelectPinnedRandomBounds(t *testing.T) {
	s := NewSelector(nil)
	ps := []rules.Preset{preset("p", true, true), preset("u1", true, false), preset("u2", true, false)}

	assert.Len(t, s.Select(ps, rules.RunPinnedRandom, 10), 3, "randomCount larger than unpinned set")
	assert.Equal(t, []string{"p"}, ids(s.Select(ps, rules.RunPinnedRandom, 0)))
	assert.Equal(t, []string{"p"}, ids(s.Select(ps, rules.RunPinnedRandom, -2)))
}

func TestSelectDoesNotReorderInput(t *testing.T) {
	s := NewSelector(nil)
	ps := []rules.Preset{preset("u1", true, false), preset("u2", true, false), preset("u3", true, false)}

	for i := 0; i < 20; i++ {
		s.Select(ps, rules.RunPinnedRandom, 2)
	}
	assert.Equal(t, []string{"u1", "u2", "u3"}, ids(ps))
}
