// Package progression owns the derived per-user progression state and the
// event ingestion loop that produces it. The event log is the single source
// of truth: nothing in here mutates state except the reducer, explicit stat
// ops, and rule effects, and all of it is reproducible by replay.
package progression

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Stats are the raw counters rewards accumulate into.
type Stats struct {
	XP   int64 `json:"xp"`
	HP   int64 `json:"hp"`
	Gold int64 `json:"gold"`
}

// Location is the user's last known map position.
type Location struct {
	GridID string `json:"grid_id"`
	X      int64  `json:"x"`
	Y      int64  `json:"y"`
	Z      int64  `json:"z"`
}

// Progress holds the derived progression fields recomputed after each
// mutation.
type Progress struct {
	Level            int64            `json:"level"`
	AchievementLevel int64            `json:"achievement_level"`
	Achievements     []string         `json:"achievements"`
	Location         Location         `json:"location"`
	Metrics          map[string]int64 `json:"metrics"`
}

// UnlockToken is granted by rules; grants are idempotent by id.
type UnlockToken struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Source     string    `json:"source"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

// State is one user's progression state. Created lazily, never deleted,
// mutated only by the reducer, explicit stat ops, and rule effects.
type State struct {
	Username     string            `json:"username"`
	Stats        Stats             `json:"stats"`
	Progress     Progress          `json:"progress"`
	UnlockTokens []UnlockToken     `json:"unlock_tokens"`
	Flags        map[string]string `json:"flags"`
}

// Well-known flag and metric keys.
const (
	FlagAmulet = "hethack_amulet"
	FlagToybox = "toybox"

	MetricMaxDepth = "hethack_max_depth"
	MetricMaxFloor = "crawler_max_floor"
)

// GateAmulet is the auto-completed late-game gate: amulet retrieved at or
// below dungeon depth 32.
const GateAmulet = "dungeon_l32_amulet"

// NewState creates the lazily-initialized state for a username.
func NewState(username string) *State {
	return &State{
		Username: username,
		Stats:    Stats{XP: 0, HP: 100, Gold: 0},
		Progress: Progress{
			Level:        1,
			Achievements: []string{},
			Metrics:      map[string]int64{},
		},
		UnlockTokens: []UnlockToken{},
		Flags:        map[string]string{},
	}
}

// HasAchievement reports set membership.
func (s *State) HasAchievement(id string) bool {
	return slices.Contains(s.Progress.Achievements, id)
}

// AddAchievement inserts into the sorted achievement set. Returns true when
// the achievement was newly granted; re-grants are no-ops.
func (s *State) AddAchievement(id string) bool {
	idx, found := slices.BinarySearch(s.Progress.Achievements, id)
	if found {
		return false
	}
	s.Progress.Achievements = slices.Insert(s.Progress.Achievements, idx, id)
	return true
}

// HasToken reports whether the user holds an unlock token.
func (s *State) HasToken(id string) bool {
	for _, t := range s.UnlockTokens {
		if t.ID == id {
			return true
		}
	}
	return false
}

// GrantToken grants an unlock token once. Returns true when newly granted.
func (s *State) GrantToken(id, title, source string, now time.Time) bool {
	if s.HasToken(id) {
		return false
	}
	s.UnlockTokens = append(s.UnlockTokens, UnlockToken{
		ID:         id,
		Title:      title,
		Source:     source,
		UnlockedAt: now.UTC(),
	})
	return true
}

// BumpMetric adds delta to a metric counter.
func (s *State) BumpMetric(key string, delta int64) {
	s.Progress.Metrics[key] += delta
}

// MaxMetric raises a metric to value if value is higher (high-water mark).
// Returns true when the metric moved.
func (s *State) MaxMetric(key string, value int64) bool {
	if value > s.Progress.Metrics[key] {
		s.Progress.Metrics[key] = value
		return true
	}
	return false
}

// Recompute refreshes the derived level fields. Levels only ever rise:
//
//	level = max(prev, floor(xp/100)+1, floor(max_depth/4)+1)
//	achievement_level = max(prev, |achievements| + (1 if amulet gate complete))
func (s *State) Recompute(amuletGateComplete bool) {
	level := s.Progress.Level
	if byXP := s.Stats.XP/100 + 1; byXP > level {
		level = byXP
	}
	if byDepth := s.Progress.Metrics[MetricMaxDepth]/4 + 1; byDepth > level {
		level = byDepth
	}
	s.Progress.Level = level

	achLevel := int64(len(s.Progress.Achievements))
	if amuletGateComplete {
		achLevel++
	}
	if achLevel > s.Progress.AchievementLevel {
		s.Progress.AchievementLevel = achLevel
	}
}

// MarshalStored serializes the state for the store's state column.
func (s *State) MarshalStored() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal state for %q: %w", s.Username, err)
	}
	return string(data), nil
}

// UnmarshalStored parses a stored state document.
func UnmarshalStored(data string) (*State, error) {
	var s State
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	if s.Progress.Metrics == nil {
		s.Progress.Metrics = map[string]int64{}
	}
	if s.Flags == nil {
		s.Flags = map[string]string{}
	}
	if s.Progress.Achievements == nil {
		s.Progress.Achievements = []string{}
	}
	if s.UnlockTokens == nil {
		s.UnlockTokens = []UnlockToken{}
	}
	return &s, nil
}

// Projection converts the state into plain JSON values for checksum
// computation and reporting. Timestamps survive here; canon strips them
// before hashing.
func (s *State) Projection() (map[string]any, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("project state for %q: %w", s.Username, err)
	}
	var proj map[string]any
	if err := json.Unmarshal(data, &proj); err != nil {
		return nil, fmt.Errorf("project state for %q: %w", s.Username, err)
	}
	return proj, nil
}
