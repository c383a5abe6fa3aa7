package progression

import (
	"fmt"

	"github.com/openretro/questlog/internal/event"
)

// GateBoard is the reducer's window onto global gates. The store-backed
// implementation lives on the engine; tests substitute an in-memory one.
type GateBoard interface {
	// Completed reports whether a gate is complete.
	Completed(id string) bool
	// Complete marks a gate complete idempotently; returns true when this
	// call performed the completion.
	Complete(id, source string) (bool, error)
}

// Payload keys that can never influence state, regardless of producer lane.
// A crafted adapter payload smuggling a "gates" or "users" object is routine
// input, not an attack worth failing over: the reducer notes it and moves on.
var privilegedPayloadKeys = map[string]bool{
	"identity":    true,
	"permissions": true,
	"gates":       true,
	"toybox":      true,
	"users":       true,
	"rules":       true,
	"state":       true,
}

// Reduce applies one canonical event to the user's state, mutating it in
// place. Returns whether the state changed and any informational notes.
//
// Reduction is deterministic and idempotence-friendly: gate completion and
// achievement grants are grant-if-absent, and additive rewards are only
// re-applied when the surrounding batch failed to commit, because the cursor
// and state persist in one transaction.
func Reduce(state *State, e event.Event, gates GateBoard) (bool, []string) {
	changed := false
	var notes []string

	note := func(format string, args ...any) {
		notes = append(notes, fmt.Sprintf(format, args...))
	}

	for key := range e.Payload {
		if privilegedPayloadKeys[key] {
			note("ignored privileged payload key %q from %s", key, e.Source)
		}
	}

	if applyReward(state, e, &notes) {
		changed = true
	}

	if applyOverrides(state, e, note) {
		changed = true
	}

	// Auto-gate: amulet retrieved at or below depth 32.
	if state.Progress.Metrics[MetricMaxDepth] >= 32 && state.Flags[FlagAmulet] == "true" {
		if !gates.Completed(GateAmulet) {
			did, err := gates.Complete(GateAmulet, e.Source)
			if err != nil {
				note("auto-gate %s: %v", GateAmulet, err)
			} else if did {
				changed = true
			}
		}
	}

	if changed {
		state.Recompute(gates.Completed(GateAmulet))
	}

	return changed, notes
}

// applyReward dispatches on the event type and applies its fixed literal
// reward. Unknown types get zero reward and leave the state untouched.
func applyReward(state *State, e event.Event, notes *[]string) bool {
	switch e.Type {
	case event.TypeHethackLevelReached:
		state.Stats.XP += 10
		if depth, ok := event.Int(e.Payload, "depth"); ok {
			state.MaxMetric(MetricMaxDepth, depth)
		}
	case event.TypeHethackAmuletRetrieved:
		state.Stats.XP += 500
		state.Stats.Gold += 1000
		state.AddAchievement(GateAmulet)
		state.Flags[FlagAmulet] = "true"
	case event.TypeHethackDeath:
		state.Stats.XP += 5
		state.Stats.HP -= 25
		if state.Stats.HP < 0 {
			state.Stats.HP = 0
		}
		state.BumpMetric("hethack_deaths", 1)
	case event.TypeEliteHyperspaceJump:
		state.Stats.XP += 5
		state.BumpMetric("elite_jumps", 1)
	case event.TypeEliteDocked:
		state.Stats.XP += 2
		state.BumpMetric("elite_dockings", 1)
	case event.TypeEliteMissionComplete:
		state.Stats.XP += 25
		state.Stats.Gold += 150
		state.BumpMetric("elite_missions", 1)
	case event.TypeEliteTradeProfit:
		state.Stats.XP += 5
		state.Stats.Gold += 50
		state.BumpMetric("elite_trades", 1)
	case event.TypeRPGBBSSessionStart:
		state.Stats.XP += 1
		state.BumpMetric("rpgbbs_sessions", 1)
	case event.TypeRPGBBSMessageEvent:
		state.Stats.XP += 2
		state.BumpMetric("rpgbbs_messages", 1)
	case event.TypeRPGBBSQuestComplete:
		state.Stats.XP += 20
		state.Stats.Gold += 100
		state.BumpMetric("rpgbbs_quests", 1)
	case event.TypeCrawlerFloorReached:
		state.Stats.XP += 8
		if floor, ok := event.Int(e.Payload, "floor"); ok {
			state.MaxMetric(MetricMaxFloor, floor)
		}
	case event.TypeCrawlerLootFound:
		state.Stats.XP += 4
		state.Stats.Gold += 25
		state.BumpMetric("crawler_loot", 1)
	case event.TypeCrawlerObjectiveComplete:
		state.Stats.XP += 30
		state.Stats.Gold += 200
		state.BumpMetric("crawler_objectives", 1)
	case event.TypeMapEnter:
		state.Stats.XP += 1
		state.BumpMetric("map_enters", 1)
	case event.TypeMapTraverse:
		state.Stats.XP += 1
		state.BumpMetric("map_traversals", 1)
	case event.TypeMapInspect:
		state.Stats.XP += 1
		state.BumpMetric("map_inspections", 1)
	case event.TypeMapInteract:
		state.Stats.XP += 3
		state.BumpMetric("map_interactions", 1)
	case event.TypeMapComplete:
		state.Stats.XP += 15
		state.Stats.Gold += 75
		state.BumpMetric("map_quests", 1)
	case event.TypeMapTick:
		state.BumpMetric("map_ticks", 1)
	default:
		return false
	}
	return true
}

// applyOverrides honors the generic payload override contract.
//
// stats_delta and progress are privileged: untrusted lanes (adapter:*,
// toybox:*) have them silently neutralized. location is honored from
// untrusted lanes only for MAP_* events, which is what makes adapter-fed
// map logs position-equivalent to the local runtime.
func applyOverrides(state *State, e event.Event, note func(string, ...any)) bool {
	changed := false
	trusted := e.Lane() == event.LaneTrusted
	isMapEvent := len(e.Type) >= 4 && e.Type[:4] == "MAP_"

	if delta, ok := event.Object(e.Payload, "stats_delta"); ok {
		if trusted {
			if xp, ok := event.Int(delta, "xp"); ok {
				state.Stats.XP += xp
				changed = true
			}
			if hp, ok := event.Int(delta, "hp"); ok {
				state.Stats.HP += hp
				changed = true
			}
			if gold, ok := event.Int(delta, "gold"); ok {
				state.Stats.Gold += gold
				changed = true
			}
		} else {
			note("ignored stats_delta override from untrusted lane %s", e.Source)
		}
	}

	if prog, ok := event.Object(e.Payload, "progress"); ok {
		if trusted {
			if achID, ok := event.String(prog, "achievement_id"); ok && achID != "" {
				if state.AddAchievement(achID) {
					changed = true
				}
			}
			if level, ok := event.Int(prog, "level"); ok && level > state.Progress.Level {
				state.Progress.Level = level
				changed = true
			}
		} else {
			note("ignored progress override from untrusted lane %s", e.Source)
		}
	}

	if loc, ok := event.Object(e.Payload, "location"); ok {
		if trusted || isMapEvent {
			if gridID, ok := event.String(loc, "grid_id"); ok {
				state.Progress.Location.GridID = gridID
				changed = true
			}
			if x, ok := event.Int(loc, "x"); ok {
				state.Progress.Location.X = x
				changed = true
			}
			if y, ok := event.Int(loc, "y"); ok {
				state.Progress.Location.Y = y
				changed = true
			}
			if z, ok := event.Int(loc, "z"); ok {
				state.Progress.Location.Z = z
				changed = true
			}
		} else {
			note("ignored location override from untrusted lane %s for %s", e.Source, e.Type)
		}
	}

	return changed
}
