package maprun

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openretro/questlog/internal/event"
	"github.com/openretro/questlog/internal/eventlog"
	"github.com/openretro/questlog/internal/store"
)

const (
	npcPhaseMod   = 8
	worldPhaseMod = 16
)

// OpError is a map runtime operation failure: unknown place, bad target id,
// acting before entering. Routine input problems, reported structured.
type OpError struct {
	Op      string
	Message string
}

func (e *OpError) Error() string {
	return fmt.Sprintf("map %s: %s", e.Op, e.Message)
}

// Runtime drives one user's position over the place graph. Every op except
// Status appends exactly one canonical event; the runtime never touches
// progression state directly.
type Runtime struct {
	graph  *Graph
	store  *store.Store
	log    *eventlog.Log
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Runtime) { r.now = now }
}

// WithLogger sets the runtime's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) { r.logger = logger }
}

// New constructs a Runtime over a loaded graph, the shared state store, and
// the canonical event log.
func New(graph *Graph, st *store.Store, log *eventlog.Log, opts ...Option) *Runtime {
	r := &Runtime{
		graph:  graph,
		store:  st,
		log:    log,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Status is the read-only snapshot of one user's map state.
type Status struct {
	Username    string `json:"username"`
	Entered     bool   `json:"entered"`
	PlaceID     string `json:"place_id,omitempty"`
	Label       string `json:"label,omitempty"`
	ChunkID     string `json:"chunk_id,omitempty"`
	Z           int64  `json:"z"`
	TickCounter int64  `json:"tick_counter"`
	NPCPhase    int64  `json:"npc_phase"`
	WorldPhase  int64  `json:"world_phase"`
}

// Status reports the user's position and counters without emitting an
// event. A user who never entered gets Entered=false, not an error.
func (r *Runtime) Status(ctx context.Context, username string) (Status, error) {
	rec, found, err := r.store.LoadMapState(ctx, username)
	if err != nil {
		return Status{}, err
	}
	s := Status{Username: username}
	if !found || rec.CurrentPlaceID == "" {
		return s, nil
	}
	s.Entered = true
	s.PlaceID = rec.CurrentPlaceID
	s.TickCounter = rec.TickCounter
	s.NPCPhase = rec.NPCPhase
	s.WorldPhase = rec.WorldPhase
	if p, ok := r.graph.Place(rec.CurrentPlaceID); ok {
		s.Label = p.Label
		s.ChunkID = p.ChunkID
		s.Z = p.Z
	}
	return s, nil
}

// Enter places the user at a seed place and emits MAP_ENTER.
func (r *Runtime) Enter(ctx context.Context, username, placeID string) (Status, error) {
	p, ok := r.graph.Place(placeID)
	if !ok {
		return Status{}, &OpError{Op: "enter", Message: fmt.Sprintf("unknown place %q", placeID)}
	}

	rec, _, err := r.store.LoadMapState(ctx, username)
	if err != nil {
		return Status{}, err
	}
	rec.Username = username
	rec.CurrentPlaceID = p.ID
	if err := r.store.SaveMapState(ctx, rec); err != nil {
		return Status{}, err
	}

	if err := r.emit(username, event.TypeMapEnter, map[string]any{
		"place_id": p.ID,
		"location": locationPayload(p),
	}); err != nil {
		return Status{}, err
	}
	return r.Status(ctx, username)
}

// MoveResult is the outcome of one traversal attempt. A blocked move is a
// result, not an error, and emits nothing.
type MoveResult struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Blocked     string `json:"blocked,omitempty"`
	Mode        string `json:"mode,omitempty"`
	TerrainCost int64  `json:"terrain_cost,omitempty"`
}

// Move traverses one edge. Fails blocked="edge" when the target is not
// linked from the current place, blocked="portal" when the z gap is two or
// more layers and neither endpoint offers a portal.
func (r *Runtime) Move(ctx context.Context, username, toID string) (MoveResult, error) {
	rec, found, err := r.store.LoadMapState(ctx, username)
	if err != nil {
		return MoveResult{}, err
	}
	if !found || rec.CurrentPlaceID == "" {
		return MoveResult{}, &OpError{Op: "move", Message: "not on the map; enter a place first"}
	}
	from, ok := r.graph.Place(rec.CurrentPlaceID)
	if !ok {
		return MoveResult{}, &OpError{Op: "move", Message: fmt.Sprintf("current place %q missing from seed", rec.CurrentPlaceID)}
	}
	to, ok := r.graph.Place(toID)
	if !ok {
		return MoveResult{}, &OpError{Op: "move", Message: fmt.Sprintf("unknown place %q", toID)}
	}

	res := MoveResult{From: from.ID, To: to.ID}

	if !r.graph.Linked(from, toID) {
		res.Blocked = "edge"
		return res, nil
	}

	zDelta := to.Z - from.Z
	if zDelta < 0 {
		zDelta = -zDelta
	}
	if zDelta >= 2 && !r.graph.PortalBetween(from, to) {
		res.Blocked = "portal"
		return res, nil
	}

	res.Mode = "walk"
	if zDelta >= 2 {
		res.Mode = "portal"
	}
	res.TerrainCost = 1 + int64(len(to.Hazards))
	if zDelta > 1 {
		res.TerrainCost += zDelta - 1
	}

	rec.CurrentPlaceID = to.ID
	if err := r.store.SaveMapState(ctx, rec); err != nil {
		return MoveResult{}, err
	}

	if err := r.emit(username, event.TypeMapTraverse, map[string]any{
		"from":         from.ID,
		"to":           to.ID,
		"mode":         res.Mode,
		"terrain_cost": res.TerrainCost,
		"location":     locationPayload(to),
	}); err != nil {
		return MoveResult{}, err
	}
	return res, nil
}

// Inspection describes the current place.
type Inspection struct {
	PlaceID           string   `json:"place_id"`
	Label             string   `json:"label"`
	ChunkID           string   `json:"chunk_id"`
	Z                 int64    `json:"z"`
	Links             []string `json:"links"`
	Hazards           []string `json:"hazards"`
	QuestIDs          []string `json:"quest_ids"`
	InteractionPoints []string `json:"interaction_points"`
	NPCSpawn          bool     `json:"npc_spawn"`
}

// Inspect reports the current place's details and emits MAP_INSPECT.
func (r *Runtime) Inspect(ctx context.Context, username string) (Inspection, error) {
	p, err := r.currentPlace(ctx, username, "inspect")
	if err != nil {
		return Inspection{}, err
	}

	if err := r.emit(username, event.TypeMapInspect, map[string]any{
		"place_id": p.ID,
		"location": locationPayload(p),
	}); err != nil {
		return Inspection{}, err
	}

	return Inspection{
		PlaceID:           p.ID,
		Label:             p.Label,
		ChunkID:           p.ChunkID,
		Z:                 p.Z,
		Links:             p.Links,
		Hazards:           p.Hazards,
		QuestIDs:          p.QuestIDs,
		InteractionPoints: p.InteractionPoints,
		NPCSpawn:          p.NPCSpawn,
	}, nil
}

// Interact acts on an interaction point at the current place and emits
// MAP_INTERACT. The point must be listed by the place.
func (r *Runtime) Interact(ctx context.Context, username, pointID string) error {
	p, err := r.currentPlace(ctx, username, "interact")
	if err != nil {
		return err
	}
	if !contains(p.InteractionPoints, pointID) {
		return &OpError{Op: "interact", Message: fmt.Sprintf("no interaction point %q at %s", pointID, p.ID)}
	}
	return r.emit(username, event.TypeMapInteract, map[string]any{
		"point_id": pointID,
		"place_id": p.ID,
		"location": locationPayload(p),
	})
}

// Complete finishes a quest offered at the current place and emits
// MAP_COMPLETE. The quest must be listed by the place.
func (r *Runtime) Complete(ctx context.Context, username, questID string) error {
	p, err := r.currentPlace(ctx, username, "complete")
	if err != nil {
		return err
	}
	if !contains(p.QuestIDs, questID) {
		return &OpError{Op: "complete", Message: fmt.Sprintf("no quest %q at %s", questID, p.ID)}
	}
	return r.emit(username, event.TypeMapComplete, map[string]any{
		"quest_id": questID,
		"place_id": p.ID,
		"location": locationPayload(p),
	})
}

// Tick advances the user's world clock by steps and emits MAP_TICK. The
// phases are pure counters: reported, gameplay-inert.
func (r *Runtime) Tick(ctx context.Context, username string, steps int64) (Status, error) {
	if steps < 1 {
		return Status{}, &OpError{Op: "tick", Message: "steps must be at least 1"}
	}
	rec, found, err := r.store.LoadMapState(ctx, username)
	if err != nil {
		return Status{}, err
	}
	if !found || rec.CurrentPlaceID == "" {
		return Status{}, &OpError{Op: "tick", Message: "not on the map; enter a place first"}
	}

	rec.TickCounter += steps
	rec.NPCPhase = (rec.NPCPhase + steps) % npcPhaseMod
	rec.WorldPhase = (rec.WorldPhase + steps) % worldPhaseMod
	if err := r.store.SaveMapState(ctx, rec); err != nil {
		return Status{}, err
	}

	if err := r.emit(username, event.TypeMapTick, map[string]any{
		"steps":        steps,
		"tick_counter": rec.TickCounter,
		"npc_phase":    rec.NPCPhase,
		"world_phase":  rec.WorldPhase,
	}); err != nil {
		return Status{}, err
	}
	return r.Status(ctx, username)
}

func (r *Runtime) currentPlace(ctx context.Context, username, op string) (*Place, error) {
	rec, found, err := r.store.LoadMapState(ctx, username)
	if err != nil {
		return nil, err
	}
	if !found || rec.CurrentPlaceID == "" {
		return nil, &OpError{Op: op, Message: "not on the map; enter a place first"}
	}
	p, ok := r.graph.Place(rec.CurrentPlaceID)
	if !ok {
		return nil, &OpError{Op: op, Message: fmt.Sprintf("current place %q missing from seed", rec.CurrentPlaceID)}
	}
	return p, nil
}

func (r *Runtime) emit(username, typ string, payload map[string]any) error {
	return r.log.Append(event.Event{
		TS:       r.now(),
		Source:   event.SourceMapRuntime,
		Username: username,
		Type:     typ,
		Payload:  payload,
	})
}

func locationPayload(p *Place) map[string]any {
	return map[string]any{
		"grid_id": p.ChunkID,
		"z":       p.Z,
	}
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
