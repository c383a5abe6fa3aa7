package store

import "time"

// GateRecord is a global progression gate row.
type GateRecord struct {
	ID              string
	Title           string
	Completed       bool
	CompletedAt     *time.Time
	CompletedSource string
}

// RuleRecord is a stored IF/THEN rule row. If/Then hold the raw expression
// text; parsing into typed requirements/actions happens in the rules package.
type RuleRecord struct {
	ID        string
	If        string
	Then      string
	Enabled   bool
	Source    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MapStateRecord is a per-user map runtime state row.
type MapStateRecord struct {
	Username       string
	CurrentPlaceID string
	TickCounter    int64
	NPCPhase       int64
	WorldPhase     int64
}

// LensFlag is a world lens enablement row.
type LensFlag struct {
	ID        string
	Enabled   bool
	UpdatedAt *time.Time
	UpdatedBy string
}
