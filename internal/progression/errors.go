package progression

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes engine errors for callers that branch on kind.
type ErrorCode string

const (
	// ErrCodeUnknownStat indicates a stat name outside {xp, hp, gold}.
	ErrCodeUnknownStat ErrorCode = "UNKNOWN_STAT"

	// ErrCodeUnknownGate indicates a gate id with no registered definition.
	ErrCodeUnknownGate ErrorCode = "UNKNOWN_GATE"

	// ErrCodeBadConfig indicates invalid first-party configuration
	// (malformed play option requirements, broken contract). Fail fast.
	ErrCodeBadConfig ErrorCode = "BAD_CONFIG"
)

// EngineError is a categorized engine error.
type EngineError struct {
	Code    ErrorCode
	Message string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsUnknownStat reports whether err is an unknown-stat error.
func IsUnknownStat(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee) && ee.Code == ErrCodeUnknownStat
}

// IsUnknownGate reports whether err is an unknown-gate error.
func IsUnknownGate(err error) bool {
	var ee *EngineError
	return errors.As(err, &ee) && ee.Code == ErrCodeUnknownGate
}
