// Package chunk implements the place-reference contract: parsing PlaceRefs
// of the form ANCHOR:SPACE:L###-CC##[-Zz][:suffix] and deriving the
// deterministic 2D chunk id used for spatial grouping.
package chunk

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// PlaceRef is the parsed form of a place reference string.
type PlaceRef struct {
	Anchor string // e.g. "EARTH"
	Space  string // e.g. "SUR", "SUB"
	Layer  int    // three-digit layer number
	Cell   string // full cell token, e.g. "BJ10"
	Col    string // letter pair, e.g. "BJ"
	Row    int    // numeric row within the column
	Z      int    // vertical offset; 0 when the ref carries no Z component
}

// ParseError reports a place reference that does not satisfy the contract.
type ParseError struct {
	Ref     string
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse place ref %q: %s", e.Ref, e.Message)
}

// locIDPattern matches the LocId token: layer, cell, optional Z offset.
// Example tokens: "L300-BJ10", "L340-AA22-Z-3".
var locIDPattern = regexp.MustCompile(`^L(\d{3})-([A-Z]{2})(\d{2})(?:-Z(-?\d+))?$`)

// Parse extracts the PlaceRef components from a reference string.
//
// The LocId token is located anywhere among the colon-delimited parts after
// anchor and space, rather than at a fixed index, so refs carrying trailing
// instance suffixes (e.g. "EARTH:SUB:L340-AA22-Z-3:D4") parse cleanly.
func Parse(ref string) (PlaceRef, error) {
	parts := strings.Split(ref, ":")
	if len(parts) < 3 {
		return PlaceRef{}, &ParseError{Ref: ref, Message: "want at least ANCHOR:SPACE:LOCID"}
	}

	pr := PlaceRef{
		Anchor: parts[0],
		Space:  parts[1],
	}
	if pr.Anchor == "" || pr.Space == "" {
		return PlaceRef{}, &ParseError{Ref: ref, Message: "empty anchor or space"}
	}

	for _, part := range parts[2:] {
		m := locIDPattern.FindStringSubmatch(part)
		if m == nil {
			continue
		}
		layer, err := strconv.Atoi(m[1])
		if err != nil {
			return PlaceRef{}, &ParseError{Ref: ref, Message: "bad layer number"}
		}
		row, err := strconv.Atoi(m[3])
		if err != nil {
			return PlaceRef{}, &ParseError{Ref: ref, Message: "bad row number"}
		}
		pr.Layer = layer
		pr.Col = m[2]
		pr.Row = row
		pr.Cell = m[2] + m[3]
		if m[4] != "" {
			z, err := strconv.Atoi(m[4])
			if err != nil {
				return PlaceRef{}, &ParseError{Ref: ref, Message: "bad z offset"}
			}
			pr.Z = z
		}
		return pr, nil
	}

	return PlaceRef{}, &ParseError{Ref: ref, Message: "no LocId token found"}
}

// Chunk2DID derives the canonical 2D chunk id for a place reference:
// {anchor}-{space}-{layer:03d}-{col}, all lowercased. The Z component is
// reserved and never participates in the 2D id.
func Chunk2DID(ref string) (string, error) {
	pr, err := Parse(ref)
	if err != nil {
		return "", err
	}
	return pr.ID2D(), nil
}

// ID2D returns the canonical 2D chunk id for an already-parsed ref.
func (pr PlaceRef) ID2D() string {
	return fmt.Sprintf("%s-%s-%03d-%s",
		strings.ToLower(pr.Anchor),
		strings.ToLower(pr.Space),
		pr.Layer,
		strings.ToLower(pr.Col))
}
