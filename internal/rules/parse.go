package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParseError reports an IF expression that does not fit the grammar.
// Bad THEN chunks never error; they become UnsupportedAction.
type ParseError struct {
	Clause  string
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse rule clause %q: %s", e.Clause, e.Message)
}

var statClausePattern = regexp.MustCompile(`^([a-z_]+)\s*(>=|==|=)\s*(-?\d+)$`)

// ParseIf parses an IF expression into requirements. Clauses are joined by
// the word "and"; zero clauses (empty expression) is vacuously true and
// yields an empty slice.
func ParseIf(expr string) ([]Requirement, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	var reqs []Requirement
	for _, clause := range splitAnd(expr) {
		req, err := parseClause(clause)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// splitAnd splits on the standalone word "and" (case-insensitive).
func splitAnd(expr string) []string {
	fields := strings.Fields(expr)
	var clauses []string
	var current []string
	for _, f := range fields {
		if strings.EqualFold(f, "and") {
			if len(current) > 0 {
				clauses = append(clauses, strings.Join(current, " "))
				current = nil
			}
			continue
		}
		current = append(current, f)
	}
	if len(current) > 0 {
		clauses = append(clauses, strings.Join(current, " "))
	}
	return clauses
}

func parseClause(clause string) (Requirement, error) {
	clause = strings.TrimSpace(clause)

	if id, ok := strings.CutPrefix(clause, "gate:"); ok {
		if id == "" {
			return nil, &ParseError{Clause: clause, Message: "empty gate id"}
		}
		return GateRequirement{ID: id}, nil
	}
	if id, ok := strings.CutPrefix(clause, "token:"); ok {
		if id == "" {
			return nil, &ParseError{Clause: clause, Message: "empty token id"}
		}
		return TokenRequirement{ID: id}, nil
	}
	if rest, ok := strings.CutPrefix(clause, "toybox"); ok {
		id := strings.TrimSpace(rest)
		if cut, found := strings.CutPrefix(id, "=="); found {
			id = cut
		} else if cut, found := strings.CutPrefix(id, "="); found {
			id = cut
		} else {
			return nil, &ParseError{Clause: clause, Message: "toybox clause wants == or ="}
		}
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, &ParseError{Clause: clause, Message: "empty toybox id"}
		}
		return ToyboxRequirement{ID: id}, nil
	}

	m := statClausePattern.FindStringSubmatch(clause)
	if m == nil {
		return nil, &ParseError{Clause: clause, Message: "unrecognized clause"}
	}
	key := m[1]
	if !StatKeys[key] {
		return nil, &ParseError{Clause: clause, Message: fmt.Sprintf("unknown stat key %q", key)}
	}
	value, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return nil, &ParseError{Clause: clause, Message: "bad literal"}
	}
	op := OpEQ
	if m[2] == ">=" {
		op = OpGTE
	}
	return StatRequirement{Key: key, Op: op, Value: value}, nil
}

// ParseThen parses a THEN expression into actions. Steps are separated by
// semicolons; a step that does not parse becomes an UnsupportedAction no-op
// rather than failing the whole rule.
func ParseThen(expr string) []Action {
	var actions []Action
	for _, chunk := range strings.Split(expr, ";") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		actions = append(actions, parseAction(chunk))
	}
	return actions
}

func parseAction(chunk string) Action {
	fields := strings.Fields(chunk)
	switch strings.ToUpper(fields[0]) {
	case "TOKEN":
		if len(fields) == 2 {
			return TokenAction{ID: fields[1]}
		}
	case "PLAY":
		if len(fields) == 2 {
			return PlayAction{Option: fields[1]}
		}
	case "GATE":
		if len(fields) == 3 && strings.EqualFold(fields[1], "COMPLETE") {
			return GateCompleteAction{ID: fields[2]}
		}
	case "STAT":
		if len(fields) == 4 && strings.EqualFold(fields[1], "ADD") {
			if delta, err := strconv.ParseInt(fields[3], 10, 64); err == nil {
				return StatAddAction{Stat: fields[2], Delta: delta}
			}
		}
	case "ACHIEVE":
		if len(fields) == 2 {
			return AchieveAction{ID: fields[1]}
		}
	}
	return UnsupportedAction{Raw: chunk}
}

// Compile parses raw rule text into an evaluable Rule.
func Compile(id, ifExpr, thenExpr string, enabled bool, source string) (Rule, error) {
	reqs, err := ParseIf(ifExpr)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %q: %w", id, err)
	}
	return Rule{
		ID:           id,
		Requirements: reqs,
		Actions:      ParseThen(thenExpr),
		Enabled:      enabled,
		Source:       source,
	}, nil
}
