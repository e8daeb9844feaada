// Package typeutil reads loosely typed payloads: structpb maps at the gRPC
// boundary and decoded JSON. Every accessor uses the comma-ok idiom and never
// panics on a wrong type.
package typeutil

import "math"

// SafeMap asserts value to map[string]any.
func SafeMap(value any) (map[string]any, bool) {
	if value == nil {
		return nil, false
	}
	m, ok := value.(map[string]any)
	return m, ok
}

// SafeString asserts value to string.
func SafeString(value any) (string, bool) {
	if value == nil {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}

// SafeStringDefault returns value as a string, or defaultVal.
func SafeStringDefault(value any, defaultVal string) string {
	if s, ok := SafeString(value); ok {
		return s
	}
	return defaultVal
}

// SafeInt converts value to int. Payload numbers arrive as float64, so a
// float64 is accepted only when it holds a whole number.
func SafeInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int(v), true
	default:
		return 0, false
	}
}

// SafeFloat64 converts value to float64.
func SafeFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// SafeSlice asserts value to []any.
func SafeSlice(value any) ([]any, bool) {
	if value == nil {
		return nil, false
	}
	s, ok := value.([]any)
	return s, ok
}

// SafeStringSlice converts value to []string. A []any qualifies only when
// every item is a string.
func SafeStringSlice(value any) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
