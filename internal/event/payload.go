package event

import "encoding/json"

// Payload accessor helpers. Payloads arrive as decoded JSON where numbers may
// be json.Number (log decoding) or float64 (callers passing literals), so all
// numeric access funnels through Int.

// Int extracts an integer payload field. Returns false when the key is
// absent or not an integral number.
func Int(p map[string]any, key string) (int64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	return asInt(v)
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	case float64:
		i := int64(n)
		if float64(i) != n {
			return 0, false
		}
		return i, true
	case int:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

// String extracts a string payload field.
func String(p map[string]any, key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Object extracts a nested object payload field.
func Object(p map[string]any, key string) (map[string]any, bool) {
	v, ok := p[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// Bool extracts a boolean payload field.
func Bool(p map[string]any, key string) (bool, bool) {
	v, ok := p[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
