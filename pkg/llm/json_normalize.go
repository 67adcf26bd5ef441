package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NormalizeJSONArraysToStrings repairs a common model failure: emitting
// an array of strings in a field that should hold one string, e.g.
// {"object": ["plan", "shopping flow"]}. Such arrays are collapsed to
// comma-joined strings so the response still unmarshals into the schema.
// The root value itself is exempt, since a top-level array is usually
// the intended list response. Reports whether anything was rewritten.
func NormalizeJSONArraysToStrings(data []byte) ([]byte, bool, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false, fmt.Errorf("parse json: %w", err)
	}

	changed := false
	v = normalize(v, &changed, true)

	out, err := json.Marshal(v)
	if err != nil {
		return nil, false, fmt.Errorf("marshal normalized json: %w", err)
	}
	return out, changed, nil
}

func normalize(v any, changed *bool, root bool) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = normalize(elem, changed, false)
		}
		return out

	case []any:
		if !root && allStrings(val) {
			*changed = true
			return joinStrings(val)
		}
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = normalize(elem, changed, false)
		}
		return out

	default:
		return v
	}
}

// allStrings treats the empty array as a string array, so an empty
// value collapses to "".
func allStrings(arr []any) bool {
	for _, elem := range arr {
		if _, ok := elem.(string); !ok {
			return false
		}
	}
	return true
}

func joinStrings(arr []any) string {
	parts := make([]string, len(arr))
	for i, elem := range arr {
		parts[i] = elem.(string)
	}
	return strings.Join(parts, ", ")
}
