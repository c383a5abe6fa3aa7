package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SaveBatch persists a batch of reduced user states together with the new
// cursor offset in one transaction. This coupling is what makes crash-replay
// safe: either the batch's effects and the cursor advance both land, or
// neither does, so tick() re-applies only events whose effects never
// committed.
func (s *Store) SaveBatch(ctx context.Context, states map[string]string, offset int64, now time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for username, stateJSON := range states {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO progression_state (username, state, updated_at)
				VALUES (?, ?, ?)
				ON CONFLICT(username) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at
			`, username, stateJSON, now.UTC().Format(time.RFC3339)); err != nil {
				return fmt.Errorf("save state for %q: %w", username, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cursor (id, byte_offset) VALUES (1, ?)
			ON CONFLICT(id) DO UPDATE SET byte_offset = excluded.byte_offset
		`, offset); err != nil {
			return fmt.Errorf("save cursor: %w", err)
		}
		return nil
	})
}

// SaveUserState persists a single user's progression state outside a batch
// (explicit stat ops and rule effects between ticks).
func (s *Store) SaveUserState(ctx context.Context, username, stateJSON string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO progression_state (username, state, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at
	`, username, stateJSON, now.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save state for %q: %w", username, err)
	}
	return nil
}

// EnsureGate inserts a gate definition if absent. Existing rows keep their
// completion status; grant-if-absent keeps re-registration idempotent.
func (s *Store) EnsureGate(ctx context.Context, id, title string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gates (id, title) VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, title)
	if err != nil {
		return fmt.Errorf("ensure gate %q: %w", id, err)
	}
	return nil
}

// CompleteGate marks a gate complete exactly once. Re-completion is a no-op
// that preserves the original completion time and source. Returns true when
// this call performed the completion.
func (s *Store) CompleteGate(ctx context.Context, id, source string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE gates SET completed = 1, completed_at = ?, completed_source = ?
		WHERE id = ? AND completed = 0
	`, now.UTC().Format(time.RFC3339), source, id)
	if err != nil {
		return false, fmt.Errorf("complete gate %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete gate %q: %w", id, err)
	}
	return n > 0, nil
}

// ResetGate clears a gate's completion.
func (s *Store) ResetGate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE gates SET completed = 0, completed_at = NULL, completed_source = NULL
		WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("reset gate %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reset gate %q: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("reset gate: unknown gate %q", id)
	}
	return nil
}

// UpsertRule inserts or updates a rule. CreatedAt is preserved on update.
func (s *Store) UpsertRule(ctx context.Context, r RuleRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rules (id, if_expr, then_expr, enabled, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			if_expr = excluded.if_expr,
			then_expr = excluded.then_expr,
			enabled = excluded.enabled,
			source = excluded.source,
			updated_at = excluded.updated_at
	`, r.ID, r.If, r.Then, r.Enabled, r.Source,
		r.CreatedAt.UTC().Format(time.RFC3339),
		r.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert rule %q: %w", r.ID, err)
	}
	return nil
}

// SetRuleEnabled toggles a rule. Unknown rule ids are an error.
func (s *Store) SetRuleEnabled(ctx context.Context, id string, enabled bool, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE rules SET enabled = ?, updated_at = ? WHERE id = ?
	`, enabled, now.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("set rule enabled %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set rule enabled %q: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("set rule enabled: unknown rule %q", id)
	}
	return nil
}

// SaveMapState persists a user's map runtime state.
func (s *Store) SaveMapState(ctx context.Context, m MapStateRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO map_state (username, current_place_id, tick_counter, npc_phase, world_phase)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			current_place_id = excluded.current_place_id,
			tick_counter = excluded.tick_counter,
			npc_phase = excluded.npc_phase,
			world_phase = excluded.world_phase
	`, m.Username, m.CurrentPlaceID, m.TickCounter, m.NPCPhase, m.WorldPhase)
	if err != nil {
		return fmt.Errorf("save map state for %q: %w", m.Username, err)
	}
	return nil
}

// SetLensEnabled persists a lens enablement flag.
func (s *Store) SetLensEnabled(ctx context.Context, id string, enabled bool, updatedBy string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lens_flags (id, enabled, updated_at, updated_by)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			enabled = excluded.enabled,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by
	`, id, enabled, now.UTC().Format(time.RFC3339), updatedBy)
	if err != nil {
		return fmt.Errorf("set lens %q: %w", id, err)
	}
	return nil
}
