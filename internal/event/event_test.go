package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceLane(t *testing.T) {
	tests := []struct {
		source string
		want   Lane
	}{
		{"core:map-runtime", LaneTrusted},
		{"core:replay", LaneTrusted},
		{"adapter:hethack", LaneUntrusted},
		{"adapter:elite", LaneUntrusted},
		{"toybox:crawler3d", LaneUntrusted},
		{"", LaneTrusted},
		{"adapterish", LaneTrusted}, // prefix match requires the colon
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SourceLane(tt.source), "source=%q", tt.source)
	}
}

func TestEncodeDecodeLine_RoundTrip(t *testing.T) {
	e := Event{
		TS:       time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
		Source:   "adapter:hethack",
		Username: "rogue",
		Type:     TypeHethackLevelReached,
		Payload:  map[string]any{"depth": json.Number("32")},
	}

	line, err := e.EncodeLine()
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), line[len(line)-1])

	decoded, err := DecodeLine(line)
	require.NoError(t, err)
	assert.Equal(t, e.Source, decoded.Source)
	assert.Equal(t, e.Username, decoded.Username)
	assert.Equal(t, e.Type, decoded.Type)
	assert.True(t, e.TS.Equal(decoded.TS))

	depth, ok := Int(decoded.Payload, "depth")
	require.True(t, ok)
	assert.Equal(t, int64(32), depth)
}

func TestDecodeLine_NormalizesTypeAndPayload(t *testing.T) {
	decoded, err := DecodeLine([]byte(`{"ts":"2026-08-28T00:00:00Z","source":"core:map-runtime","username":"u","type":"map_enter"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeMapEnter, decoded.Type)
	assert.NotNil(t, decoded.Payload)
}

func TestDecodeLine_MalformedJSON(t *testing.T) {
	_, err := DecodeLine([]byte(`{"ts": not-json`))
	require.Error(t, err)
}

func TestPayloadHelpers(t *testing.T) {
	p := map[string]any{
		"depth":    json.Number("32"),
		"floor":    float64(7),
		"partial":  float64(1.5),
		"name":     "yendor",
		"flag":     true,
		"location": map[string]any{"grid_id": "earth-sur-300-bj"},
	}

	d, ok := Int(p, "depth")
	require.True(t, ok)
	assert.Equal(t, int64(32), d)

	f, ok := Int(p, "floor")
	require.True(t, ok)
	assert.Equal(t, int64(7), f)

	_, ok = Int(p, "partial")
	assert.False(t, ok)

	_, ok = Int(p, "missing")
	assert.False(t, ok)

	s, ok := String(p, "name")
	require.True(t, ok)
	assert.Equal(t, "yendor", s)

	b, ok := Bool(p, "flag")
	require.True(t, ok)
	assert.True(t, b)

	loc, ok := Object(p, "location")
	require.True(t, ok)
	assert.Equal(t, "earth-sur-300-bj", loc["grid_id"])
}
