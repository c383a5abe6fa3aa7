// Package rules implements the textual IF/THEN rule layer evaluated over
// derived progression state after each ingestion batch. Rule text is parsed
// once into typed requirements and actions; evaluation never re-parses.
//
// The IF grammar is deliberately small: and-joined clauses only, no OR, no
// parentheses. Callers do not exercise anything richer and behavior there
// is unspecified, so the limitation is part of the contract.
package rules

import "fmt"

// Op is a comparison operator in a stat clause. `=` and `==` are synonyms.
type Op int

const (
	OpGTE Op = iota
	OpEQ
)

func (o Op) String() string {
	if o == OpGTE {
		return ">="
	}
	return "=="
}

// Stat keys a requirement may compare against.
var StatKeys = map[string]bool{
	"xp":                true,
	"hp":                true,
	"gold":              true,
	"level":             true,
	"achievement_level": true,
}

// Requirement is one parsed IF clause.
type Requirement interface {
	requirement()
	String() string
}

// StatRequirement compares a derived stat against a literal.
type StatRequirement struct {
	Key   string
	Op    Op
	Value int64
}

func (StatRequirement) requirement() {}
func (r StatRequirement) String() string {
	return fmt.Sprintf("%s%s%d", r.Key, r.Op, r.Value)
}

// GateRequirement is satisfied when the named global gate is complete.
type GateRequirement struct {
	ID string
}

func (GateRequirement) requirement()     {}
func (r GateRequirement) String() string { return "gate:" + r.ID }

// TokenRequirement is satisfied when the user holds the named unlock token.
type TokenRequirement struct {
	ID string
}

func (TokenRequirement) requirement()     {}
func (r TokenRequirement) String() string { return "token:" + r.ID }

// ToyboxRequirement is satisfied when the user's active toybox option
// matches the named id.
type ToyboxRequirement struct {
	ID string
}

func (ToyboxRequirement) requirement()     {}
func (r ToyboxRequirement) String() string { return "toybox==" + r.ID }

// Action is one parsed THEN step.
type Action interface {
	action()
	String() string
}

// TokenAction grants an unlock token (idempotent).
type TokenAction struct {
	ID string
}

func (TokenAction) action()          {}
func (a TokenAction) String() string { return "TOKEN " + a.ID }

// PlayAction activates a play option; the option re-checks its own
// requirements at apply time.
type PlayAction struct {
	Option string
}

func (PlayAction) action()          {}
func (a PlayAction) String() string { return "PLAY " + a.Option }

// GateCompleteAction completes a global gate.
type GateCompleteAction struct {
	ID string
}

func (GateCompleteAction) action()          {}
func (a GateCompleteAction) String() string { return "GATE COMPLETE " + a.ID }

// StatAddAction adds a delta to a raw stat.
type StatAddAction struct {
	Stat  string
	Delta int64
}

func (StatAddAction) action() {}
func (a StatAddAction) String() string {
	return fmt.Sprintf("STAT ADD %s %d", a.Stat, a.Delta)
}

// AchieveAction grants an achievement (idempotent set insert).
type AchieveAction struct {
	ID string
}

func (AchieveAction) action()          {}
func (a AchieveAction) String() string { return "ACHIEVE " + a.ID }

// UnsupportedAction is a no-op produced from a THEN chunk that did not
// parse. It is preserved rather than dropped so rule listings show what
// the author wrote.
type UnsupportedAction struct {
	Raw string
}

func (UnsupportedAction) action()          {}
func (a UnsupportedAction) String() string { return "UNSUPPORTED " + a.Raw }

// Rule is a fully parsed rule ready for evaluation.
type Rule struct {
	ID           string
	Requirements []Requirement
	Actions      []Action
	Enabled      bool
	Source       string
}
