package maprun

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openretro/questlog/internal/event"
	"github.com/openretro/questlog/internal/eventlog"
	"github.com/openretro/questlog/internal/store"
)

const seedJSON = `{
  "locations": [
    {
      "placeId": "plaza",
      "label": "Founders Plaza",
      "placeRef": "EARTH:SUR:L300-BJ10",
      "z": 0,
      "links": ["market", "cavern", "tower"],
      "quest_ids": ["q.first_steps"],
      "interaction_points": ["fountain"],
      "npc_spawn": true
    },
    {
      "placeId": "market",
      "label": "Night Market",
      "placeRef": "EARTH:SUR:L300-BJ11",
      "z": 0,
      "links": ["plaza"],
      "hazards": ["crowd", "pickpocket"]
    },
    {
      "placeId": "cavern",
      "label": "Deep Cavern",
      "placeRef": "EARTH:SUB:L340-AA22-Z-3",
      "z": -3,
      "links": ["plaza"],
      "portals": ["plaza"]
    },
    {
      "placeId": "tower",
      "label": "Sky Tower",
      "placeRef": "EARTH:SUR:L300-BK10",
      "z": 3,
      "links": ["plaza"]
    },
    {
      "placeId": "island",
      "label": "Far Island",
      "placeRef": "EARTH:SUR:L300-CA01",
      "z": 0,
      "links": []
    }
  ]
}`

var testClock = func() time.Time {
	return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
}

func newRuntimeFixture(t *testing.T) (*Runtime, *eventlog.Log) {
	t.Helper()
	dir := t.TempDir()

	graph, err := Parse([]byte(seedJSON))
	require.NoError(t, err)

	st, err := store.Open(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	log := eventlog.Open(filepath.Join(dir, "events.jsonl"))
	return New(graph, st, log, WithClock(testClock)), log
}

func lastEvent(t *testing.T, log *eventlog.Log) event.Event {
	t.Helper()
	batch, err := log.ReadBatch(0, 1000)
	require.NoError(t, err)
	require.NotEmpty(t, batch.Lines)
	evt, err := event.DecodeLine(batch.Lines[len(batch.Lines)-1])
	require.NoError(t, err)
	return evt
}

func countEvents(t *testing.T, log *eventlog.Log) int {
	t.Helper()
	n, err := log.CountLines()
	require.NoError(t, err)
	return n
}

func TestParseRejectsBrokenSeeds(t *testing.T) {
	cases := map[string]string{
		"duplicate id":   `{"locations":[{"placeId":"a","placeRef":"EARTH:SUR:L300-BJ10"},{"placeId":"a","placeRef":"EARTH:SUR:L300-BJ11"}]}`,
		"unknown link":   `{"locations":[{"placeId":"a","placeRef":"EARTH:SUR:L300-BJ10","links":["ghost"]}]}`,
		"unknown portal": `{"locations":[{"placeId":"a","placeRef":"EARTH:SUR:L300-BJ10","portals":["ghost"]}]}`,
		"bad place ref":  `{"locations":[{"placeId":"a","placeRef":"not-a-ref"}]}`,
		"empty id":       `{"locations":[{"placeId":"","placeRef":"EARTH:SUR:L300-BJ10"}]}`,
	}
	for name, seed := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(seed))
			assert.Error(t, err)
		})
	}
}

func TestParseDerivesChunkFromRef(t *testing.T) {
	graph, err := Parse([]byte(seedJSON))
	require.NoError(t, err)

	p, ok := graph.Place("plaza")
	require.True(t, ok)
	assert.Equal(t, "earth-sur-300-bj", p.ChunkID)

	p, ok = graph.Place("cavern")
	require.True(t, ok)
	assert.Equal(t, "earth-sub-340-aa", p.ChunkID)
}

func TestParseMetadataChunkWins(t *testing.T) {
	graph, err := Parse([]byte(`{"locations":[{"placeId":"a","placeRef":"EARTH:SUR:L300-BJ10","metadata":{"chunk":"custom-chunk"}}]}`))
	require.NoError(t, err)
	p, _ := graph.Place("a")
	assert.Equal(t, "custom-chunk", p.ChunkID)
}

func TestStatusBeforeEnter(t *testing.T) {
	rt, log := newRuntimeFixture(t)

	s, err := rt.Status(context.Background(), "walker")
	require.NoError(t, err)
	assert.False(t, s.Entered)
	assert.Equal(t, 0, countEvents(t, log), "status never emits")
}

func TestEnterEmitsMapEnter(t *testing.T) {
	rt, log := newRuntimeFixture(t)
	ctx := context.Background()

	s, err := rt.Enter(ctx, "walker", "plaza")
	require.NoError(t, err)
	assert.True(t, s.Entered)
	assert.Equal(t, "plaza", s.PlaceID)
	assert.Equal(t, "earth-sur-300-bj", s.ChunkID)

	evt := lastEvent(t, log)
	assert.Equal(t, event.TypeMapEnter, evt.Type)
	assert.Equal(t, event.SourceMapRuntime, evt.Source)
	assert.Equal(t, "walker", evt.Username)
	place, _ := event.String(evt.Payload, "place_id")
	assert.Equal(t, "plaza", place)
	loc, ok := event.Object(evt.Payload, "location")
	require.True(t, ok)
	grid, _ := event.String(loc, "grid_id")
	assert.Equal(t, "earth-sur-300-bj", grid)
}

func TestEnterUnknownPlace(t *testing.T) {
	rt, log := newRuntimeFixture(t)

	_, err := rt.Enter(context.Background(), "walker", "atlantis")
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "enter", opErr.Op)
	assert.Equal(t, 0, countEvents(t, log))
}

func TestMoveWalk(t *testing.T) {
	rt, log := newRuntimeFixture(t)
	ctx := context.Background()

	_, err := rt.Enter(ctx, "walker", "plaza")
	require.NoError(t, err)

	res, err := rt.Move(ctx, "walker", "market")
	require.NoError(t, err)
	assert.Empty(t, res.Blocked)
	assert.Equal(t, "walk", res.Mode)
	assert.Equal(t, int64(3), res.TerrainCost, "base 1 plus two hazards")

	evt := lastEvent(t, log)
	assert.Equal(t, event.TypeMapTraverse, evt.Type)
	from, _ := event.String(evt.Payload, "from")
	to, _ := event.String(evt.Payload, "to")
	assert.Equal(t, "plaza", from)
	assert.Equal(t, "market", to)
}

func TestMoveBlockedEdge(t *testing.T) {
	rt, log := newRuntimeFixture(t)
	ctx := context.Background()

	_, err := rt.Enter(ctx, "walker", "plaza")
	require.NoError(t, err)
	before := countEvents(t, log)

	res, err := rt.Move(ctx, "walker", "island")
	require.NoError(t, err)
	assert.Equal(t, "edge", res.Blocked)
	assert.Equal(t, before, countEvents(t, log), "blocked moves emit nothing")

	s, err := rt.Status(ctx, "walker")
	require.NoError(t, err)
	assert.Equal(t, "plaza", s.PlaceID, "blocked moves do not relocate")
}

func TestMoveBlockedPortal(t *testing.T) {
	rt, _ := newRuntimeFixture(t)
	ctx := context.Background()

	_, err := rt.Enter(ctx, "walker", "plaza")
	require.NoError(t, err)

	// tower is linked but three layers up with no portal at either end.
	res, err := rt.Move(ctx, "walker", "tower")
	require.NoError(t, err)
	assert.Equal(t, "portal", res.Blocked)
}

func TestMovePortalMode(t *testing.T) {
	rt, _ := newRuntimeFixture(t)
	ctx := context.Background()

	_, err := rt.Enter(ctx, "walker", "plaza")
	require.NoError(t, err)

	// cavern lists plaza as a portal endpoint, so the three-layer descent
	// is allowed and costs 1 + 0 hazards + (3-1).
	res, err := rt.Move(ctx, "walker", "cavern")
	require.NoError(t, err)
	assert.Empty(t, res.Blocked)
	assert.Equal(t, "portal", res.Mode)
	assert.Equal(t, int64(3), res.TerrainCost)
}

func TestMoveBeforeEnter(t *testing.T) {
	rt, _ := newRuntimeFixture(t)
	_, err := rt.Move(context.Background(), "walker", "plaza")
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
}

func TestInspectEmitsAndDescribes(t *testing.T) {
	rt, log := newRuntimeFixture(t)
	ctx := context.Background()

	_, err := rt.Enter(ctx, "walker", "plaza")
	require.NoError(t, err)

	insp, err := rt.Inspect(ctx, "walker")
	require.NoError(t, err)
	assert.Equal(t, "plaza", insp.PlaceID)
	assert.Equal(t, []string{"q.first_steps"}, insp.QuestIDs)
	assert.Equal(t, []string{"fountain"}, insp.InteractionPoints)
	assert.True(t, insp.NPCSpawn)

	assert.Equal(t, event.TypeMapInspect, lastEvent(t, log).Type)
}

func TestInteractMembership(t *testing.T) {
	rt, log := newRuntimeFixture(t)
	ctx := context.Background()

	_, err := rt.Enter(ctx, "walker", "plaza")
	require.NoError(t, err)

	require.NoError(t, rt.Interact(ctx, "walker", "fountain"))
	evt := lastEvent(t, log)
	assert.Equal(t, event.TypeMapInteract, evt.Type)
	point, _ := event.String(evt.Payload, "point_id")
	assert.Equal(t, "fountain", point)

	before := countEvents(t, log)
	err = rt.Interact(ctx, "walker", "lever")
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, before, countEvents(t, log))
}

func TestCompleteMembership(t *testing.T) {
	rt, log := newRuntimeFixture(t)
	ctx := context.Background()

	_, err := rt.Enter(ctx, "walker", "plaza")
	require.NoError(t, err)

	require.NoError(t, rt.Complete(ctx, "walker", "q.first_steps"))
	assert.Equal(t, event.TypeMapComplete, lastEvent(t, log).Type)

	err = rt.Complete(ctx, "walker", "q.elsewhere")
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
}

func TestTickPhases(t *testing.T) {
	rt, log := newRuntimeFixture(t)
	ctx := context.Background()

	_, err := rt.Enter(ctx, "walker", "plaza")
	require.NoError(t, err)

	s, err := rt.Tick(ctx, "walker", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), s.TickCounter)
	assert.Equal(t, int64(5), s.NPCPhase)
	assert.Equal(t, int64(5), s.WorldPhase)

	s, err = rt.Tick(ctx, "walker", 13)
	require.NoError(t, err)
	assert.Equal(t, int64(18), s.TickCounter)
	assert.Equal(t, int64(2), s.NPCPhase, "18 mod 8")
	assert.Equal(t, int64(2), s.WorldPhase, "18 mod 16")

	evt := lastEvent(t, log)
	assert.Equal(t, event.TypeMapTick, evt.Type)
	steps, _ := event.Int(evt.Payload, "steps")
	assert.Equal(t, int64(13), steps)

	_, err = rt.Tick(ctx, "walker", 0)
	assert.Error(t, err)
}

func TestEveryOpEmitsExactlyOneEvent(t *testing.T) {
	rt, log := newRuntimeFixture(t)
	ctx := context.Background()

	_, err := rt.Enter(ctx, "walker", "plaza")
	require.NoError(t, err)
	_, err = rt.Move(ctx, "walker", "market")
	require.NoError(t, err)
	_, err = rt.Inspect(ctx, "walker")
	require.NoError(t, err)
	_, err = rt.Move(ctx, "walker", "plaza")
	require.NoError(t, err)
	require.NoError(t, rt.Interact(ctx, "walker", "fountain"))
	require.NoError(t, rt.Complete(ctx, "walker", "q.first_steps"))
	_, err = rt.Tick(ctx, "walker", 1)
	require.NoError(t, err)

	assert.Equal(t, 7, countEvents(t, log))
}
