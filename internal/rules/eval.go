package rules

import "fmt"

// StateView is the read side of rule evaluation. Implementations must
// reflect mutations made by earlier rules in the same pass: rules see live
// state, not a pre-pass snapshot.
type StateView interface {
	// Stat returns a derived stat value for one of the StatKeys.
	Stat(key string) (int64, bool)
	// GateCompleted reports whether a global gate is complete.
	GateCompleted(id string) bool
	// HasToken reports whether the user holds an unlock token.
	HasToken(id string) bool
	// ActiveToybox returns the user's active toybox option id, or "".
	ActiveToybox() string
}

// Effects is the write side of rule evaluation. Implementations own
// idempotency (token grants, gate completion) and option re-checking (Play).
type Effects interface {
	GrantToken(id string, ruleID string)
	Play(option string, ruleID string)
	CompleteGate(id string, ruleID string)
	AddStat(stat string, delta int64, ruleID string) error
	Achieve(id string, ruleID string)
}

// Satisfied reports whether every requirement holds against the view.
// Zero requirements is vacuously true.
func Satisfied(reqs []Requirement, view StateView) bool {
	for _, req := range reqs {
		if !satisfied(req, view) {
			return false
		}
	}
	return true
}

func satisfied(req Requirement, view StateView) bool {
	switch r := req.(type) {
	case StatRequirement:
		v, ok := view.Stat(r.Key)
		if !ok {
			return false
		}
		if r.Op == OpGTE {
			return v >= r.Value
		}
		return v == r.Value
	case GateRequirement:
		return view.GateCompleted(r.ID)
	case TokenRequirement:
		return view.HasToken(r.ID)
	case ToyboxRequirement:
		return view.ActiveToybox() == r.ID
	default:
		return false
	}
}

// Evaluate runs rules in slice order against live state. Callers pass rules
// already sorted by id; an earlier rule's effects are visible to later rules
// in the same pass. Disabled rules are skipped. Returns the ids of rules
// that fired plus informational notes.
func Evaluate(ruleSet []Rule, view StateView, fx Effects) (fired []string, notes []string) {
	for _, rule := range ruleSet {
		if !rule.Enabled {
			continue
		}
		if !Satisfied(rule.Requirements, view) {
			continue
		}
		fired = append(fired, rule.ID)
		for _, action := range rule.Actions {
			switch a := action.(type) {
			case TokenAction:
				fx.GrantToken(a.ID, rule.ID)
			case PlayAction:
				fx.Play(a.Option, rule.ID)
			case GateCompleteAction:
				fx.CompleteGate(a.ID, rule.ID)
			case StatAddAction:
				if err := fx.AddStat(a.Stat, a.Delta, rule.ID); err != nil {
					notes = append(notes, fmt.Sprintf("rule %s: %v", rule.ID, err))
				}
			case AchieveAction:
				fx.Achieve(a.ID, rule.ID)
			case UnsupportedAction:
				notes = append(notes, fmt.Sprintf("rule %s: unsupported action %q", rule.ID, a.Raw))
			}
		}
	}
	return fired, notes
}
