package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Cursor returns the persisted event log byte offset, 0 when none exists.
func (s *Store) Cursor(ctx context.Context) (int64, error) {
	var offset int64
	err := s.db.QueryRowContext(ctx, "SELECT byte_offset FROM cursor WHERE id = 1").Scan(&offset)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read cursor: %w", err)
	}
	return offset, nil
}

// LoadUserState returns a user's stored progression state JSON.
// ok=false means the user has no stored state yet.
func (s *Store) LoadUserState(ctx context.Context, username string) (string, bool, error) {
	var stateJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT state FROM progression_state WHERE username = ?", username).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load state for %q: %w", username, err)
	}
	return stateJSON, true, nil
}

// ListUsernames returns every username with stored progression state, sorted.
func (s *Store) ListUsernames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT username FROM progression_state ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("list usernames: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list usernames: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// GetGate returns a gate row. ok=false for an unknown gate id.
func (s *Store) GetGate(ctx context.Context, id string) (GateRecord, bool, error) {
	var (
		g           GateRecord
		completedAt sql.NullString
		source      sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, completed, completed_at, completed_source
		FROM gates WHERE id = ?
	`, id).Scan(&g.ID, &g.Title, &g.Completed, &completedAt, &source)
	if err == sql.ErrNoRows {
		return GateRecord{}, false, nil
	}
	if err != nil {
		return GateRecord{}, false, fmt.Errorf("get gate %q: %w", id, err)
	}
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339, completedAt.String)
		if err == nil {
			g.CompletedAt = &t
		}
	}
	g.CompletedSource = source.String
	return g, true, nil
}

// ListGates returns all gates sorted by id.
func (s *Store) ListGates(ctx context.Context) ([]GateRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, completed, completed_at, completed_source
		FROM gates ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list gates: %w", err)
	}
	defer rows.Close()

	var gates []GateRecord
	for rows.Next() {
		var (
			g           GateRecord
			completedAt sql.NullString
			source      sql.NullString
		)
		if err := rows.Scan(&g.ID, &g.Title, &g.Completed, &completedAt, &source); err != nil {
			return nil, fmt.Errorf("list gates: %w", err)
		}
		if completedAt.Valid {
			if t, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
				g.CompletedAt = &t
			}
		}
		g.CompletedSource = source.String
		gates = append(gates, g)
	}
	return gates, rows.Err()
}

// ListRules returns all rules sorted by id. Evaluation order is id order;
// the ORDER BY here is the single place that ordering is established.
func (s *Store) ListRules(ctx context.Context) ([]RuleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, if_expr, then_expr, enabled, source, created_at, updated_at
		FROM rules ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []RuleRecord
	for rows.Next() {
		var (
			r                    RuleRecord
			createdAt, updatedAt string
		)
		if err := rows.Scan(&r.ID, &r.If, &r.Then, &r.Enabled, &r.Source, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("list rules: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			r.CreatedAt = t
		}
		if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
			r.UpdatedAt = t
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// LoadMapState returns a user's map runtime state. ok=false when the user
// has never entered the map.
func (s *Store) LoadMapState(ctx context.Context, username string) (MapStateRecord, bool, error) {
	var m MapStateRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT username, current_place_id, tick_counter, npc_phase, world_phase
		FROM map_state WHERE username = ?
	`, username).Scan(&m.Username, &m.CurrentPlaceID, &m.TickCounter, &m.NPCPhase, &m.WorldPhase)
	if err == sql.ErrNoRows {
		return MapStateRecord{}, false, nil
	}
	if err != nil {
		return MapStateRecord{}, false, fmt.Errorf("load map state for %q: %w", username, err)
	}
	return m, true, nil
}

// GetLensFlag returns a lens enablement flag. ok=false when the flag was
// never set; callers treat that as disabled.
func (s *Store) GetLensFlag(ctx context.Context, id string) (LensFlag, bool, error) {
	var (
		f         LensFlag
		updatedAt sql.NullString
		updatedBy sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, enabled, updated_at, updated_by FROM lens_flags WHERE id = ?
	`, id).Scan(&f.ID, &f.Enabled, &updatedAt, &updatedBy)
	if err == sql.ErrNoRows {
		return LensFlag{}, false, nil
	}
	if err != nil {
		return LensFlag{}, false, fmt.Errorf("get lens flag %q: %w", id, err)
	}
	if updatedAt.Valid {
		if t, err := time.Parse(time.RFC3339, updatedAt.String); err == nil {
			f.UpdatedAt = &t
		}
	}
	f.UpdatedBy = updatedBy.String
	return f, true, nil
}
