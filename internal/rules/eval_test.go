package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// liveState is a minimal mutable state implementing both evaluation sides,
// so effects of earlier rules are visible to later rules in the same pass.
type liveState struct {
	stats  map[string]int64
	gates  map[string]bool
	tokens map[string]bool
	toybox string
	played []string
}

func newLiveState() *liveState {
	return &liveState{
		stats:  map[string]int64{"xp": 0, "hp": 100, "gold": 0, "level": 1, "achievement_level": 0},
		gates:  map[string]bool{},
		tokens: map[string]bool{},
	}
}

func (s *liveState) Stat(key string) (int64, bool) {
	v, ok := s.stats[key]
	return v, ok
}
func (s *liveState) GateCompleted(id string) bool { return s.gates[id] }
func (s *liveState) HasToken(id string) bool      { return s.tokens[id] }
func (s *liveState) ActiveToybox() string         { return s.toybox }

func (s *liveState) GrantToken(id, ruleID string)   { s.tokens[id] = true }
func (s *liveState) Play(option, ruleID string)     { s.played = append(s.played, option) }
func (s *liveState) CompleteGate(id, ruleID string) { s.gates[id] = true }
func (s *liveState) AddStat(stat string, delta int64, ruleID string) error {
	s.stats[stat] += delta
	return nil
}
func (s *liveState) Achieve(id, ruleID string) {}

func mustCompile(t *testing.T, id, ifExpr, thenExpr string) Rule {
	t.Helper()
	r, err := Compile(id, ifExpr, thenExpr, true, "test")
	require.NoError(t, err)
	return r
}

func TestEvaluate_EarlierRuleEffectVisibleToLaterRule(t *testing.T) {
	// rule.a raises gold; rule.b depends on the raised gold. Both must fire
	// in the same pass because evaluation reads live state in id order.
	ruleA := mustCompile(t, "rule.a", "xp>=50", "STAT ADD gold 10")
	ruleB := mustCompile(t, "rule.b", "gold>=10", "TOKEN t1")

	state := newLiveState()
	state.stats["xp"] = 50

	fired, notes := Evaluate([]Rule{ruleA, ruleB}, state, state)
	assert.Equal(t, []string{"rule.a", "rule.b"}, fired)
	assert.Empty(t, notes)
	assert.True(t, state.tokens["t1"])
	assert.Equal(t, int64(10), state.stats["gold"])
}

func TestEvaluate_DisabledRuleSkipped(t *testing.T) {
	rule := mustCompile(t, "rule.a", "", "TOKEN t1")
	rule.Enabled = false

	state := newLiveState()
	fired, _ := Evaluate([]Rule{rule}, state, state)
	assert.Empty(t, fired)
	assert.False(t, state.tokens["t1"])
}

func TestEvaluate_ZeroClausesVacuouslyTrue(t *testing.T) {
	rule := mustCompile(t, "rule.a", "", "TOKEN t1")

	state := newLiveState()
	fired, _ := Evaluate([]Rule{rule}, state, state)
	assert.Equal(t, []string{"rule.a"}, fired)
	assert.True(t, state.tokens["t1"])
}

func TestEvaluate_GateTokenToyboxRequirements(t *testing.T) {
	rule := mustCompile(t, "rule.a", "gate:g1 and token:t0 and toybox==hethack", "TOKEN t1")

	state := newLiveState()
	fired, _ := Evaluate([]Rule{rule}, state, state)
	assert.Empty(t, fired)

	state.gates["g1"] = true
	state.tokens["t0"] = true
	state.toybox = "hethack"
	fired, _ = Evaluate([]Rule{rule}, state, state)
	assert.Equal(t, []string{"rule.a"}, fired)
}

func TestEvaluate_UnsupportedActionIsNoOpWithNote(t *testing.T) {
	rule := mustCompile(t, "rule.a", "", "FROBNICATE; TOKEN t1")

	state := newLiveState()
	fired, notes := Evaluate([]Rule{rule}, state, state)
	assert.Equal(t, []string{"rule.a"}, fired)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "unsupported action")
	// The rest of the THEN chain still applies.
	assert.True(t, state.tokens["t1"])
}

func TestEvaluate_PlayDelegatesToEffects(t *testing.T) {
	rule := mustCompile(t, "rule.a", "", "PLAY hethack")

	state := newLiveState()
	Evaluate([]Rule{rule}, state, state)
	assert.Equal(t, []string{"hethack"}, state.played)
}
