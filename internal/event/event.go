// Package event defines the canonical event record: the sole input to
// progression state reduction. Events are produced by the map runtime
// (trusted lane) or by external adapters (untrusted lanes) and appended to
// the shared event log; log order is apply order.
package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Known canonical event types. Upper-snake by contract; anything else is an
// unknown type and reduces with zero reward.
const (
	TypeHethackLevelReached       = "HETHACK_LEVEL_REACHED"
	TypeHethackAmuletRetrieved    = "HETHACK_AMULET_RETRIEVED"
	TypeHethackDeath              = "HETHACK_DEATH"
	TypeEliteHyperspaceJump       = "ELITE_HYPERSPACE_JUMP"
	TypeEliteDocked               = "ELITE_DOCKED"
	TypeEliteMissionComplete      = "ELITE_MISSION_COMPLETE"
	TypeEliteTradeProfit          = "ELITE_TRADE_PROFIT"
	TypeRPGBBSSessionStart        = "RPGBBS_SESSION_START"
	TypeRPGBBSMessageEvent        = "RPGBBS_MESSAGE_EVENT"
	TypeRPGBBSQuestComplete       = "RPGBBS_QUEST_COMPLETE"
	TypeCrawlerFloorReached       = "CRAWLER3D_FLOOR_REACHED"
	TypeCrawlerLootFound          = "CRAWLER3D_LOOT_FOUND"
	TypeCrawlerObjectiveComplete  = "CRAWLER3D_OBJECTIVE_COMPLETE"
	TypeMapEnter                  = "MAP_ENTER"
	TypeMapTraverse               = "MAP_TRAVERSE"
	TypeMapInspect                = "MAP_INSPECT"
	TypeMapInteract               = "MAP_INTERACT"
	TypeMapComplete               = "MAP_COMPLETE"
	TypeMapTick                   = "MAP_TICK"
)

// KnownTypes maps every canonical event type the reducer dispatches on.
var KnownTypes = map[string]bool{
	TypeHethackLevelReached:      true,
	TypeHethackAmuletRetrieved:   true,
	TypeHethackDeath:             true,
	TypeEliteHyperspaceJump:      true,
	TypeEliteDocked:              true,
	TypeEliteMissionComplete:     true,
	TypeEliteTradeProfit:         true,
	TypeRPGBBSSessionStart:       true,
	TypeRPGBBSMessageEvent:       true,
	TypeRPGBBSQuestComplete:      true,
	TypeCrawlerFloorReached:      true,
	TypeCrawlerLootFound:         true,
	TypeCrawlerObjectiveComplete: true,
	TypeMapEnter:                 true,
	TypeMapTraverse:              true,
	TypeMapInspect:               true,
	TypeMapInteract:              true,
	TypeMapComplete:              true,
	TypeMapTick:                  true,
}

// SourceMapRuntime is the trusted producer lane for the local map runtime.
const SourceMapRuntime = "core:map-runtime"

// Event is the canonical, immutable log record.
//
// The wire format is one JSON object per line:
//
//	{"ts":RFC3339,"source":string,"username":string,"type":UPPER_SNAKE,"payload":object}
type Event struct {
	TS       time.Time      `json:"ts"`
	Source   string         `json:"source"`
	Username string         `json:"username"`
	Type     string         `json:"type"`
	Payload  map[string]any `json:"payload"`
}

// Lane identifies the trust level of an event producer.
type Lane int

const (
	// LaneTrusted covers first-party producers (core:*). Trusted events may
	// carry stats_delta/progress/location overrides in their payload.
	LaneTrusted Lane = iota
	// LaneUntrusted covers external producers (adapter:*, toybox:*). Their
	// privileged payload overrides are neutralized by the reducer.
	LaneUntrusted
)

// SourceLane classifies a producer lane id. Only adapter:* and toybox:*
// prefixes are untrusted; everything else (core:* and first-party callers)
// is trusted.
func SourceLane(source string) Lane {
	if strings.HasPrefix(source, "adapter:") || strings.HasPrefix(source, "toybox:") {
		return LaneUntrusted
	}
	return LaneTrusted
}

// Lane returns the trust lane of the event's producer.
func (e Event) Lane() Lane {
	return SourceLane(e.Source)
}

// Normalize upper-cases the type and defaults a zero payload to an empty
// object so downstream code never sees a nil map.
func (e Event) Normalize() Event {
	e.Type = strings.ToUpper(e.Type)
	if e.Payload == nil {
		e.Payload = map[string]any{}
	}
	return e
}

// EncodeLine serializes the event to a single JSON line (with trailing
// newline). Timestamps are truncated to seconds so the line matches the
// RFC3339 wire contract exactly.
func (e Event) EncodeLine() ([]byte, error) {
	e.TS = e.TS.UTC().Truncate(time.Second)
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeLine parses one log line into a normalized event. Numbers decode as
// json.Number to avoid float64 precision loss on large payload values.
func DecodeLine(line []byte) (Event, error) {
	var e Event
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	if err := dec.Decode(&e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return e.Normalize(), nil
}
