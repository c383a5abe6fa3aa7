package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/openretro/questlog/internal/canon"
)

// RunWithGolden executes a scenario and compares the timestamp-stripped
// canonical projection against testdata/golden/{name}.golden. The golden
// bytes are exactly what the state checksum hashes, so a golden match and
// a checksum match are the same statement.
//
// Regenerate with: go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario) *Result {
	t.Helper()

	result, err := Run(s)
	if err != nil {
		t.Fatalf("scenario %s: %v", s.Name, err)
	}

	stripped, ok := canon.StripTimestamps(result.Projection).(map[string]any)
	if !ok {
		t.Fatalf("scenario %s: projection is not an object", s.Name)
	}
	data, err := canon.Marshal(stripped)
	if err != nil {
		t.Fatalf("scenario %s: %v", s.Name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, s.Name, data)

	return result
}
