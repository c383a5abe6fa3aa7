package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openretro/questlog/internal/event"
)

// memGates is an in-memory GateBoard for reducer tests.
type memGates struct {
	completed map[string]bool
	sources   map[string]string
}

func newMemGates() *memGates {
	return &memGates{completed: map[string]bool{}, sources: map[string]string{}}
}

func (g *memGates) Completed(id string) bool { return g.completed[id] }

func (g *memGates) Complete(id, source string) (bool, error) {
	if g.completed[id] {
		return false, nil
	}
	g.completed[id] = true
	g.sources[id] = source
	return true, nil
}

func ev(source, username, typ string, payload map[string]any) event.Event {
	return event.Event{Source: source, Username: username, Type: typ, Payload: payload}.Normalize()
}

func TestReduceAmuletGateAutoCompletes(t *testing.T) {
	st := NewState("wizard")
	gates := newMemGates()

	changed, _ := Reduce(st, ev("adapter:hethack", "wizard", event.TypeHethackLevelReached, map[string]any{"depth": 32}), gates)
	require.True(t, changed)
	assert.False(t, gates.Completed(GateAmulet), "depth alone must not complete the gate")

	changed, _ = Reduce(st, ev("adapter:hethack", "wizard", event.TypeHethackAmuletRetrieved, nil), gates)
	require.True(t, changed)

	assert.True(t, gates.Completed(GateAmulet))
	assert.Equal(t, "adapter:hethack", gates.sources[GateAmulet])
	assert.GreaterOrEqual(t, st.Stats.XP, int64(510))
	assert.GreaterOrEqual(t, st.Stats.Gold, int64(1000))
	assert.True(t, st.HasAchievement(GateAmulet))
	assert.Equal(t, int64(32), st.Progress.Metrics[MetricMaxDepth])
}

func TestReduceAmuletBeforeDepth(t *testing.T) {
	st := NewState("bard")
	gates := newMemGates()

	// Amulet first, then the qualifying depth. Order must not matter.
	Reduce(st, ev("adapter:hethack", "bard", event.TypeHethackAmuletRetrieved, nil), gates)
	assert.False(t, gates.Completed(GateAmulet))

	Reduce(st, ev("adapter:hethack", "bard", event.TypeHethackLevelReached, map[string]any{"depth": 40}), gates)
	assert.True(t, gates.Completed(GateAmulet))
}

func TestReduceMaxDepthNeverRegresses(t *testing.T) {
	st := NewState("rogue")
	gates := newMemGates()

	Reduce(st, ev("adapter:hethack", "rogue", event.TypeHethackLevelReached, map[string]any{"depth": 20}), gates)
	Reduce(st, ev("adapter:hethack", "rogue", event.TypeHethackLevelReached, map[string]any{"depth": 5}), gates)

	assert.Equal(t, int64(20), st.Progress.Metrics[MetricMaxDepth])
}

func TestReduceDeathClampsHP(t *testing.T) {
	st := NewState("valk")
	gates := newMemGates()

	for i := 0; i < 6; i++ {
		Reduce(st, ev("adapter:hethack", "valk", event.TypeHethackDeath, map[string]any{"cause": "trap"}), gates)
	}

	assert.Equal(t, int64(0), st.Stats.HP)
	assert.Equal(t, int64(6), st.Progress.Metrics["hethack_deaths"])
}

func TestReduceUnknownTypeIsNoOp(t *testing.T) {
	st := NewState("sam")
	gates := newMemGates()
	before := st.Stats

	changed, notes := Reduce(st, ev("adapter:future", "sam", "FUTURE_THING", map[string]any{"value": 9}), gates)

	assert.False(t, changed)
	assert.Empty(t, notes)
	assert.Equal(t, before, st.Stats)
}

func TestReduceUnknownTypeTrustedOverrideStillApplies(t *testing.T) {
	st := NewState("sam")
	gates := newMemGates()

	changed, _ := Reduce(st, ev("core:ops", "sam", "FUTURE_THING",
		map[string]any{"stats_delta": map[string]any{"xp": 7}}), gates)

	assert.True(t, changed)
	assert.Equal(t, int64(7), st.Stats.XP)
}

func TestReduceUntrustedStatsDeltaNeutralized(t *testing.T) {
	st := NewState("mallory")
	gates := newMemGates()

	changed, notes := Reduce(st, ev("adapter:hethack", "mallory", event.TypeRPGBBSSessionStart,
		map[string]any{"stats_delta": map[string]any{"xp": 999999, "gold": 999999}}), gates)

	require.True(t, changed, "the session reward itself still applies")
	assert.Equal(t, int64(1), st.Stats.XP)
	assert.Equal(t, int64(0), st.Stats.Gold)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "stats_delta")
	assert.Contains(t, notes[0], "adapter:hethack")
}

func TestReduceUntrustedProgressNeutralized(t *testing.T) {
	st := NewState("mallory")
	gates := newMemGates()

	_, notes := Reduce(st, ev("toybox:crawler3d", "mallory", event.TypeCrawlerLootFound,
		map[string]any{"item": "gem", "progress": map[string]any{"level": 99, "achievement_id": "forged"}}), gates)

	assert.Equal(t, int64(1), st.Progress.Level)
	assert.False(t, st.HasAchievement("forged"))
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "progress")
}

func TestReduceTrustedOverridesApply(t *testing.T) {
	st := NewState("admin")
	gates := newMemGates()

	changed, notes := Reduce(st, ev("core:ops", "admin", event.TypeRPGBBSSessionStart,
		map[string]any{
			"stats_delta": map[string]any{"xp": 50, "hp": -10, "gold": 5},
			"progress":    map[string]any{"level": 4, "achievement_id": "veteran"},
			"location":    map[string]any{"grid_id": "earth-sur-300-bj", "x": 3, "y": 4, "z": 0},
		}), gates)

	require.True(t, changed)
	assert.Empty(t, notes)
	assert.Equal(t, int64(51), st.Stats.XP)
	assert.Equal(t, int64(90), st.Stats.HP)
	assert.Equal(t, int64(5), st.Stats.Gold)
	assert.Equal(t, int64(4), st.Progress.Level)
	assert.True(t, st.HasAchievement("veteran"))
	assert.Equal(t, "earth-sur-300-bj", st.Progress.Location.GridID)
}

func TestReduceProgressLevelOnlyRaises(t *testing.T) {
	st := NewState("admin")
	st.Progress.Level = 10
	gates := newMemGates()

	Reduce(st, ev("core:ops", "admin", event.TypeRPGBBSSessionStart,
		map[string]any{"progress": map[string]any{"level": 2}}), gates)

	assert.Equal(t, int64(10), st.Progress.Level)
}

func TestReduceUntrustedLocationHonoredForMapEventsOnly(t *testing.T) {
	gates := newMemGates()
	loc := map[string]any{"grid_id": "earth-sur-300-bj", "x": 1, "y": 2, "z": 0}

	st := NewState("walker")
	Reduce(st, ev("adapter:mapfeed", "walker", event.TypeMapEnter,
		map[string]any{"place_id": "plaza", "location": loc}), gates)
	assert.Equal(t, "earth-sur-300-bj", st.Progress.Location.GridID)

	st = NewState("walker")
	_, notes := Reduce(st, ev("adapter:mapfeed", "walker", event.TypeEliteDocked,
		map[string]any{"station": "Lave", "location": loc}), gates)
	assert.Empty(t, st.Progress.Location.GridID)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "location")
}

func TestReducePrivilegedPayloadKeysIgnored(t *testing.T) {
	st := NewState("mallory")
	gates := newMemGates()

	_, notes := Reduce(st, ev("adapter:hethack", "mallory", event.TypeHethackDeath,
		map[string]any{
			"cause":       "poison",
			"gates":       map[string]any{GateAmulet: true},
			"permissions": "admin",
		}), gates)

	assert.False(t, gates.Completed(GateAmulet))
	assert.Len(t, notes, 2)
	for _, n := range notes {
		assert.Contains(t, n, "privileged")
	}
}

func TestReduceLevelDerivation(t *testing.T) {
	st := NewState("climber")
	gates := newMemGates()

	// 250 xp from trusted delta puts the xp-derived level at 3.
	Reduce(st, ev("core:ops", "climber", event.TypeRPGBBSSessionStart,
		map[string]any{"stats_delta": map[string]any{"xp": 249}}), gates)
	assert.Equal(t, int64(3), st.Progress.Level)

	// Depth 12 derives level 4 via the depth track.
	Reduce(st, ev("adapter:hethack", "climber", event.TypeHethackLevelReached, map[string]any{"depth": 12}), gates)
	assert.Equal(t, int64(4), st.Progress.Level)
}
