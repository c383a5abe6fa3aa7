package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainState is the domain prefix for progression state checksums.
// The version suffix enables future algorithm migration.
const DomainState = "questlog/state/v1"

// Timestamp-bearing keys stripped before checksum computation. Stripping them
// makes the checksum a pure function of semantic content: two states that
// differ only in when something happened hash identically.
var timestampKeys = map[string]bool{
	"ts":           true,
	"created_at":   true,
	"updated_at":   true,
	"completed_at": true,
	"unlocked_at":  true,
	"generated_at": true,
}

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Checksum computes the canonical checksum of a state projection.
// The projection is recursively stripped of timestamp-bearing keys, then
// marshaled to RFC 8785 canonical JSON and hashed under DomainState.
func Checksum(projection map[string]any) (string, error) {
	stripped := StripTimestamps(projection)
	data, err := Marshal(stripped)
	if err != nil {
		return "", fmt.Errorf("checksum: %w", err)
	}
	return hashWithDomain(DomainState, data), nil
}

// StripTimestamps returns a deep copy of v with every timestamp-bearing key
// removed from all nested objects. Arrays are traversed; scalars pass through.
func StripTimestamps(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			if timestampKeys[k] {
				continue
			}
			out[k] = StripTimestamps(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = StripTimestamps(elem)
		}
		return out
	default:
		return v
	}
}
