package progression

import (
	"context"
	"fmt"

	"github.com/openretro/questlog/internal/rules"
)

// storeGates is the store-backed GateBoard used during a tick. It captures
// the tick's context because the reducer and rule interfaces are
// context-free by design.
type storeGates struct {
	ctx    context.Context
	engine *Engine
}

func (g *storeGates) Completed(id string) bool {
	rec, ok, err := g.engine.store.GetGate(g.ctx, id)
	if err != nil {
		g.engine.logger.Error("gate lookup failed", "gate", id, "error", err)
		return false
	}
	return ok && rec.Completed
}

func (g *storeGates) Complete(id, source string) (bool, error) {
	_, ok, err := g.engine.store.GetGate(g.ctx, id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, &EngineError{Code: ErrCodeUnknownGate, Message: fmt.Sprintf("unknown gate %q", id)}
	}
	return g.engine.store.CompleteGate(g.ctx, id, source, g.engine.now())
}

// stateView adapts a user state to the rule engine's read interface.
type stateView struct {
	state *State
	gates GateBoard
}

func (v *stateView) Stat(key string) (int64, bool) {
	switch key {
	case "xp":
		return v.state.Stats.XP, true
	case "hp":
		return v.state.Stats.HP, true
	case "gold":
		return v.state.Stats.Gold, true
	case "level":
		return v.state.Progress.Level, true
	case "achievement_level":
		return v.state.Progress.AchievementLevel, true
	}
	return 0, false
}

func (v *stateView) GateCompleted(id string) bool {
	return v.gates.Completed(id)
}

func (v *stateView) HasToken(id string) bool {
	return v.state.HasToken(id)
}

func (v *stateView) ActiveToybox() string {
	return v.state.Flags[FlagToybox]
}

// ruleEffects applies fired rule actions to one user's live state. Every
// mutation marks the user dirty so the tick flush picks it up.
type ruleEffects struct {
	ctx    context.Context
	engine *Engine
	state  *State
	view   *stateView
	notes  *[]string
}

func (fx *ruleEffects) note(format string, args ...any) {
	*fx.notes = append(*fx.notes, fmt.Sprintf(format, args...))
}

func (fx *ruleEffects) markDirty() {
	fx.engine.dirty[fx.state.Username] = true
}

func (fx *ruleEffects) GrantToken(id, ruleID string) {
	if fx.state.GrantToken(id, id, "rule:"+ruleID, fx.engine.now()) {
		fx.markDirty()
	}
}

func (fx *ruleEffects) Play(option, ruleID string) {
	reqs, ok := fx.engine.playOptions[option]
	if !ok {
		fx.note("rule %s: unknown play option %q", ruleID, option)
		return
	}
	if !rules.Satisfied(reqs, fx.view) {
		fx.note("rule %s: play option %q requirements not met", ruleID, option)
		return
	}
	if fx.state.Flags[FlagToybox] != option {
		fx.state.Flags[FlagToybox] = option
		fx.markDirty()
	}
}

func (fx *ruleEffects) CompleteGate(id, ruleID string) {
	gates := &storeGates{ctx: fx.ctx, engine: fx.engine}
	if _, err := gates.Complete(id, "rule:"+ruleID); err != nil {
		fx.note("rule %s: %v", ruleID, err)
	}
}

func (fx *ruleEffects) AddStat(stat string, delta int64, ruleID string) error {
	if err := addStat(fx.state, stat, delta); err != nil {
		return err
	}
	fx.markDirty()
	return nil
}

func (fx *ruleEffects) Achieve(id, ruleID string) {
	if fx.state.AddAchievement(id) {
		fx.markDirty()
	}
}
