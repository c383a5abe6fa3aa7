package progression

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openretro/questlog/internal/event"
	"github.com/openretro/questlog/internal/eventlog"
	"github.com/openretro/questlog/internal/store"
)

var testClock = func() time.Time {
	return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
}

type engineFixture struct {
	engine *Engine
	store  *store.Store
	log    *eventlog.Log
	dir    string
}

func newEngineFixture(t *testing.T, opts ...Option) *engineFixture {
	t.Helper()
	dir := t.TempDir()

	st, err := store.Open(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	log := eventlog.Open(filepath.Join(dir, "events.jsonl"))

	opts = append([]Option{WithClock(testClock)}, opts...)
	eng, err := New(st, log, opts...)
	require.NoError(t, err)

	return &engineFixture{engine: eng, store: st, log: log, dir: dir}
}

func (f *engineFixture) append(t *testing.T, source, username, typ string, payload map[string]any) {
	t.Helper()
	require.NoError(t, f.log.Append(event.Event{
		TS:       testClock(),
		Source:   source,
		Username: username,
		Type:     typ,
		Payload:  payload,
	}))
}

func TestEngineTickGateFlipsCanProceed(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	ok, err := f.engine.CanProceed(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	f.append(t, "adapter:hethack", "wizard", event.TypeHethackLevelReached, map[string]any{"depth": 32})
	f.append(t, "adapter:hethack", "wizard", event.TypeHethackAmuletRetrieved, map[string]any{})

	res, err := f.engine.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Consumed)
	assert.Equal(t, 2, res.Applied)

	ok, err = f.engine.CanProceed(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	st, err := f.engine.UserState(ctx, "wizard")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, st.Stats.XP, int64(510))
	assert.GreaterOrEqual(t, st.Stats.Gold, int64(1000))
	assert.True(t, st.HasAchievement(GateAmulet))
}

func TestEngineTickIdempotentAcrossRestart(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.append(t, "adapter:elite", "cmdr", event.TypeEliteMissionComplete, map[string]any{"mission_id": "m1"})
	f.append(t, "adapter:elite", "cmdr", event.TypeEliteTradeProfit, map[string]any{"profit": 400})

	res, err := f.engine.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, res.Applied)

	sum1, err := f.engine.Checksum(ctx)
	require.NoError(t, err)

	// Fresh engine over the same store and log: the cursor is committed, so
	// nothing re-applies.
	eng2, err := New(f.store, f.log, WithClock(testClock))
	require.NoError(t, err)

	res2, err := eng2.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res2.Consumed)

	sum2, err := eng2.Checksum(ctx)
	require.NoError(t, err)
	assert.Equal(t, sum1, sum2)
}

func TestEngineTickSkipsMalformedAndContractInvalid(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.append(t, "adapter:elite", "cmdr", event.TypeEliteDocked, map[string]any{"station": "Lave"})
	// Raw garbage line in the middle of the log.
	raw, err := os.OpenFile(f.log.Path(), os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = raw.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, raw.Close())
	// Contract-invalid: HETHACK_DEATH from an untrusted lane without cause.
	f.append(t, "adapter:hethack", "cmdr", event.TypeHethackDeath, map[string]any{})

	res, err := f.engine.Tick(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Consumed)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 2, res.Skipped)
	assert.Contains(t, joined(res.Notes), "malformed")
	assert.Contains(t, joined(res.Notes), "contract")

	// The skipped events left no trace.
	st, err := f.engine.UserState(ctx, "cmdr")
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Stats.XP)
	assert.Equal(t, int64(100), st.Stats.HP)
}

func TestEngineTickUnknownTypeAccounting(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.append(t, "adapter:future", "sam", "FUTURE_MILESTONE", map[string]any{"value": 12})

	res, err := f.engine.Tick(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Consumed)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 0, res.Applied)
	assert.Equal(t, []string{"FUTURE_MILESTONE"}, res.UnknownTypes)
	assert.Equal(t, 0, res.UnknownChanged)
}

func TestEngineTickMaxEventsResumes(t *testing.T) {
	f := newEngineFixture(t, WithMaxEvents(2))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.append(t, "adapter:rpgbbs", "sysop", event.TypeRPGBBSMessageEvent, map[string]any{"board": "general"})
	}

	total := 0
	for {
		res, err := f.engine.Tick(ctx)
		require.NoError(t, err)
		if res.Consumed == 0 {
			break
		}
		assert.LessOrEqual(t, res.Consumed, 2)
		total += res.Consumed
	}
	assert.Equal(t, 5, total)

	st, err := f.engine.UserState(ctx, "sysop")
	require.NoError(t, err)
	assert.Equal(t, int64(10), st.Stats.XP)
}

func TestEngineRuleGrantsToken(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.AddRule(ctx, "rule.badge", "xp >= 20", "TOKEN hero_badge", "sysop"))
	f.append(t, "adapter:elite", "cmdr", event.TypeEliteMissionComplete, map[string]any{"mission_id": "m1"})

	res, err := f.engine.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"rule.badge"}, res.RulesFired)

	st, err := f.engine.UserState(ctx, "cmdr")
	require.NoError(t, err)
	require.True(t, st.HasToken("hero_badge"))
	require.Len(t, st.UnlockTokens, 1)
	assert.Equal(t, "rule:rule.badge", st.UnlockTokens[0].Source)
}

func TestEngineRulesSeeEarlierEffects(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	// rule.a pays out gold; rule.b keys off that gold in the same pass.
	require.NoError(t, f.engine.AddRule(ctx, "rule.a", "xp >= 20", "STAT ADD gold 100", "sysop"))
	require.NoError(t, f.engine.AddRule(ctx, "rule.b", "gold >= 100", "TOKEN rich", "sysop"))

	f.append(t, "adapter:rpgbbs", "sysop", event.TypeRPGBBSQuestComplete, map[string]any{"quest_id": "q1"})

	res, err := f.engine.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"rule.a", "rule.b"}, res.RulesFired)

	st, err := f.engine.UserState(ctx, "sysop")
	require.NoError(t, err)
	assert.Equal(t, int64(200), st.Stats.Gold)
	assert.True(t, st.HasToken("rich"))
}

func TestEngineDisabledRuleSkipped(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.AddRule(ctx, "rule.off", "xp >= 1", "TOKEN nope", "sysop"))
	require.NoError(t, f.store.SetRuleEnabled(ctx, "rule.off", false, testClock()))

	f.append(t, "adapter:rpgbbs", "sysop", event.TypeRPGBBSSessionStart, map[string]any{})

	res, err := f.engine.Tick(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.RulesFired)
}

func TestEnginePlayOption(t *testing.T) {
	f := newEngineFixture(t, WithPlayOption("crawler3d", "xp >= 5"))
	ctx := context.Background()

	require.NoError(t, f.engine.AddRule(ctx, "rule.play", "xp >= 5", "PLAY crawler3d", "sysop"))
	f.append(t, "adapter:elite", "cmdr", event.TypeEliteHyperspaceJump, map[string]any{"system": "Lave"})

	_, err := f.engine.Tick(ctx)
	require.NoError(t, err)

	st, err := f.engine.UserState(ctx, "cmdr")
	require.NoError(t, err)
	assert.Equal(t, "crawler3d", st.Flags[FlagToybox])
}

func TestEnginePlayOptionUnknownNoted(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.AddRule(ctx, "rule.play", "xp >= 1", "PLAY mystery", "sysop"))
	f.append(t, "adapter:rpgbbs", "sysop", event.TypeRPGBBSSessionStart, map[string]any{})

	res, err := f.engine.Tick(ctx)
	require.NoError(t, err)
	assert.Contains(t, joined(res.Notes), "unknown play option")
}

func TestEngineUnparseableRuleSkippedWithNote(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	// Insert a rule whose IF no longer parses, bypassing AddRule validation.
	require.NoError(t, f.store.UpsertRule(ctx, store.RuleRecord{
		ID: "rule.bad", If: "what even", Then: "TOKEN x",
		Enabled: true, Source: "legacy",
		CreatedAt: testClock(), UpdatedAt: testClock(),
	}))

	f.append(t, "adapter:rpgbbs", "sysop", event.TypeRPGBBSSessionStart, map[string]any{})

	res, err := f.engine.Tick(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.RulesFired)
	assert.Contains(t, joined(res.Notes), "rule.bad")
}

func TestEngineAddStat(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.AddStat(ctx, "wizard", "xp", 250))

	st, err := f.engine.UserState(ctx, "wizard")
	require.NoError(t, err)
	assert.Equal(t, int64(250), st.Stats.XP)
	assert.Equal(t, int64(3), st.Progress.Level)

	err = f.engine.AddStat(ctx, "wizard", "mana", 5)
	require.Error(t, err)
	assert.True(t, IsUnknownStat(err))
}

func TestEngineAddRuleRejectsBadIf(t *testing.T) {
	f := newEngineFixture(t)
	err := f.engine.AddRule(context.Background(), "rule.x", "xp >>> 10", "TOKEN x", "sysop")
	require.Error(t, err)
}

func TestEngineChecksumDeterministicAcrossClocks(t *testing.T) {
	ctx := context.Background()

	run := func(clock func() time.Time) string {
		f := newEngineFixture(t, WithClock(clock))
		f.append(t, "adapter:hethack", "wizard", event.TypeHethackLevelReached, map[string]any{"depth": 32})
		f.append(t, "adapter:hethack", "wizard", event.TypeHethackAmuletRetrieved, map[string]any{})
		_, err := f.engine.Tick(ctx)
		require.NoError(t, err)
		sum, err := f.engine.Checksum(ctx)
		require.NoError(t, err)
		return sum
	}

	sumA := run(testClock)
	sumB := run(func() time.Time { return time.Date(2031, 1, 2, 3, 4, 5, 0, time.UTC) })
	assert.Equal(t, sumA, sumB, "wall-clock time must never reach the checksum")
}

func TestEngineCompleteGateUnknown(t *testing.T) {
	f := newEngineFixture(t)
	err := f.engine.CompleteGate(context.Background(), "no_such_gate", "test")
	require.Error(t, err)
	assert.True(t, IsUnknownGate(err))
}

func joined(notes []string) string {
	out := ""
	for _, n := range notes {
		out += n + "\n"
	}
	return out
}
