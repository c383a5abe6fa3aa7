// Package lens is the world lens slice contract: a read-only gate over an
// experimental feature scoped to a validated subset of the place graph. It
// reads map runtime and progression snapshots and never mutates either.
package lens

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openretro/questlog/internal/chunk"
	"github.com/openretro/questlog/internal/maprun"
	"github.com/openretro/questlog/internal/store"
)

// Blocking reasons, in precedence order. Status reports the first failing
// condition only.
const (
	ReasonFlagDisabled   = "feature_flag_disabled"
	ReasonGateBlocked    = "progression_gate_blocked"
	ReasonSliceInvalid   = "slice_contract_invalid"
	ReasonMapUnavailable = "map_runtime_unavailable"
	ReasonOutsideRegion  = "outside_single_region"
)

// Slice scopes the lens to a set of places sharing one anchor. Config
// defined and revalidated on every status call, because a seed or config
// edit can invalidate it between calls.
type Slice struct {
	ID              string   `json:"id" koanf:"id"`
	EntryPlaceID    string   `json:"entry_place_id" koanf:"entry_place_id"`
	AllowedPlaceIDs []string `json:"allowed_place_ids" koanf:"allowed_place_ids"`
	AnchorPrefix    string   `json:"anchor_prefix" koanf:"anchor_prefix"`
}

// Status is the lens decision for one user.
type Status struct {
	SliceID        string `json:"slice_id"`
	Username       string `json:"username"`
	Ready          bool   `json:"ready"`
	BlockingReason string `json:"blocking_reason,omitempty"`
	Detail         string `json:"detail,omitempty"`
	CurrentPlaceID string `json:"current_place_id,omitempty"`
	SliceValid     bool   `json:"slice_valid"`
}

// Service evaluates one slice against the live graph and enablement flag.
type Service struct {
	store *store.Store
	graph *maprun.Graph
	slice Slice
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the enablement timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New constructs a lens service for one slice.
func New(st *store.Store, graph *maprun.Graph, slice Slice, opts ...Option) *Service {
	s := &Service{store: st, graph: graph, slice: slice, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enable turns the lens on, recording who flipped it.
func (s *Service) Enable(ctx context.Context, updatedBy string) error {
	return s.store.SetLensEnabled(ctx, s.slice.ID, true, updatedBy, s.now())
}

// Disable turns the lens off.
func (s *Service) Disable(ctx context.Context, updatedBy string) error {
	return s.store.SetLensEnabled(ctx, s.slice.ID, false, updatedBy, s.now())
}

// Enabled reports the stored flag. A slice with no row is disabled.
func (s *Service) Enabled(ctx context.Context) (bool, error) {
	flag, ok, err := s.store.GetLensFlag(ctx, s.slice.ID)
	if err != nil {
		return false, err
	}
	return ok && flag.Enabled, nil
}

// Validate checks the slice contract: every allowed place must exist in the
// seed, carry a parseable place ref matching the anchor prefix, and be
// reachable from the entry place without leaving the allowed set. A
// disconnected allowed place is a violation, never silently dropped.
func (s *Service) Validate() (bool, string) {
	if len(s.slice.AllowedPlaceIDs) == 0 {
		return false, "slice allows no places"
	}

	allowed := make(map[string]bool, len(s.slice.AllowedPlaceIDs))
	for _, id := range s.slice.AllowedPlaceIDs {
		allowed[id] = true
	}
	if !allowed[s.slice.EntryPlaceID] {
		return false, fmt.Sprintf("entry place %q is not in the allowed set", s.slice.EntryPlaceID)
	}

	prefix := strings.ToUpper(s.slice.AnchorPrefix)
	for _, id := range s.slice.AllowedPlaceIDs {
		p, ok := s.graph.Place(id)
		if !ok {
			return false, fmt.Sprintf("allowed place %q does not exist", id)
		}
		ref, err := chunk.Parse(p.PlaceRef)
		if err != nil {
			return false, fmt.Sprintf("allowed place %q: %v", id, err)
		}
		if prefix != "" && !strings.HasPrefix(strings.ToUpper(ref.Anchor), prefix) {
			return false, fmt.Sprintf("allowed place %q anchor %q outside prefix %q", id, ref.Anchor, s.slice.AnchorPrefix)
		}
	}

	// BFS from entry over edges that stay inside the allowed set.
	reached := map[string]bool{s.slice.EntryPlaceID: true}
	queue := []string{s.slice.EntryPlaceID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		p, _ := s.graph.Place(cur)
		for _, link := range p.Links {
			if allowed[link] && !reached[link] {
				reached[link] = true
				queue = append(queue, link)
			}
		}
	}
	for _, id := range s.slice.AllowedPlaceIDs {
		if !reached[id] {
			return false, fmt.Sprintf("allowed place %q is unreachable from entry %q within the slice", id, s.slice.EntryPlaceID)
		}
	}

	return true, ""
}

// Status computes readiness for one user. The blocking reason is the first
// failing condition in fixed precedence; later conditions are not checked
// once one fails.
func (s *Service) Status(ctx context.Context, username string, mapStatus maprun.Status, progressionReady bool) (Status, error) {
	st := Status{
		SliceID:        s.slice.ID,
		Username:       username,
		CurrentPlaceID: mapStatus.PlaceID,
	}
	st.SliceValid, st.Detail = s.Validate()

	enabled, err := s.Enabled(ctx)
	if err != nil {
		return Status{}, err
	}

	switch {
	case !enabled:
		st.BlockingReason = ReasonFlagDisabled
	case !progressionReady:
		st.BlockingReason = ReasonGateBlocked
	case !st.SliceValid:
		st.BlockingReason = ReasonSliceInvalid
	case !mapStatus.Entered:
		st.BlockingReason = ReasonMapUnavailable
	case !s.allowed(mapStatus.PlaceID):
		st.BlockingReason = ReasonOutsideRegion
	default:
		st.Ready = true
	}

	if st.Ready || st.BlockingReason != ReasonSliceInvalid {
		st.Detail = ""
	}
	return st, nil
}

func (s *Service) allowed(placeID string) bool {
	for _, id := range s.slice.AllowedPlaceIDs {
		if id == placeID {
			return true
		}
	}
	return false
}
