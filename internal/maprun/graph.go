// Package maprun is the static-graph map traversal runtime. It owns
// per-user position and tick counters and emits canonical events for every
// action; rewards realize only when the progression engine later ingests
// those events.
package maprun

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/openretro/questlog/internal/chunk"
)

// Place is one node of the read-only place graph.
type Place struct {
	ID                string         `json:"placeId"`
	Label             string         `json:"label"`
	PlaceRef          string         `json:"placeRef"`
	Z                 int64          `json:"z"`
	Links             []string       `json:"links"`
	Portals           []string       `json:"portals"`
	Hazards           []string       `json:"hazards"`
	QuestIDs          []string       `json:"quest_ids"`
	InteractionPoints []string       `json:"interaction_points"`
	NPCSpawn          bool           `json:"npc_spawn"`
	Metadata          map[string]any `json:"metadata"`

	// ChunkID is the canonical 2D chunk id: metadata.chunk when the seed
	// pins one, otherwise derived from PlaceRef.
	ChunkID string `json:"-"`
}

// Graph is the loaded place graph. Read-only after Load.
type Graph struct {
	places map[string]*Place
	order  []string
}

type seedFile struct {
	Locations []*Place `json:"locations"`
}

// Load reads and validates a place seed file. Duplicate place ids, links or
// portals to unknown places, and places whose chunk id cannot be resolved
// are all load errors: a broken seed is a config fault, not runtime input.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	return Parse(data)
}

// Parse builds a Graph from raw seed JSON.
func Parse(data []byte) (*Graph, error) {
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}

	g := &Graph{places: make(map[string]*Place, len(seed.Locations))}
	for _, p := range seed.Locations {
		if p.ID == "" {
			return nil, fmt.Errorf("seed place with empty placeId")
		}
		if _, dup := g.places[p.ID]; dup {
			return nil, fmt.Errorf("duplicate place id %q", p.ID)
		}
		if err := resolveChunk(p); err != nil {
			return nil, err
		}
		g.places[p.ID] = p
		g.order = append(g.order, p.ID)
	}

	for _, p := range g.places {
		for _, link := range p.Links {
			if _, ok := g.places[link]; !ok {
				return nil, fmt.Errorf("place %q links unknown place %q", p.ID, link)
			}
		}
		for _, portal := range p.Portals {
			if _, ok := g.places[portal]; !ok {
				return nil, fmt.Errorf("place %q has portal to unknown place %q", p.ID, portal)
			}
		}
	}

	return g, nil
}

func resolveChunk(p *Place) error {
	if c, ok := p.Metadata["chunk"].(string); ok && c != "" {
		p.ChunkID = c
		return nil
	}
	ref, err := chunk.Parse(p.PlaceRef)
	if err != nil {
		return fmt.Errorf("place %q: %w", p.ID, err)
	}
	p.ChunkID = ref.ID2D()
	return nil
}

// Place looks up a node by id.
func (g *Graph) Place(id string) (*Place, bool) {
	p, ok := g.places[id]
	return p, ok
}

// Links reports whether from lists to as a traversal edge.
func (g *Graph) Linked(from *Place, to string) bool {
	for _, link := range from.Links {
		if link == to {
			return true
		}
	}
	return false
}

// PortalBetween reports whether either endpoint lists the other as a
// portal. Required for any traversal spanning two or more z layers.
func (g *Graph) PortalBetween(a, b *Place) bool {
	for _, portal := range a.Portals {
		if portal == b.ID {
			return true
		}
	}
	for _, portal := range b.Portals {
		if portal == a.ID {
			return true
		}
	}
	return false
}

// Len returns the number of places.
func (g *Graph) Len() int { return len(g.places) }

// IDs returns place ids in seed order.
func (g *Graph) IDs() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}
