package compute

import (
	"encoding/json"
	"fmt"
)

// asObject returns v as a JSON object.
func asObject(v any, what string) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an object, got %T", what, v)
	}
	return m, nil
}

// asNumber converts a JSON-decoded or native numeric value to float64.
func asNumber(v any, what string) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%s: %w", what, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%s must be a number, got %T", what, v)
	}
}

// asSeries converts a JSON array of numbers to []float64. A nil element is
// reported as an error rather than silently treated as zero.
func asSeries(v any, what string) ([]float64, error) {
	switch s := v.(type) {
	case []float64:
		return s, nil
	case []any:
		out := make([]float64, len(s))
		for i, e := range s {
			f, err := asNumber(e, fmt.Sprintf("%s[%d]", what, i))
			if err != nil {
				return nil, err
			}
			out[i] = f
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be an array of numbers, got %T", what, v)
	}
}

// stringParam returns the required string parameter key.
func stringParam(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing parameter %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("parameter %q must be a non-empty string", key)
	}
	return s, nil
}

// numberParam returns the numeric parameter key, or def when it is absent.
func numberParam(params map[string]any, key string, def *float64) (float64, error) {
	v, ok := params[key]
	if !ok {
		if def == nil {
			return 0, fmt.Errorf("missing parameter %q", key)
		}
		return *def, nil
	}
	return asNumber(v, "parameter "+key)
}

// scadaColumn returns the named column of the payload's "scada" table.
func scadaColumn(payload any, column string) ([]float64, error) {
	obj, err := asObject(payload, "payload")
	if err != nil {
		return nil, err
	}
	scada, ok := obj["scada"]
	if !ok {
		return nil, fmt.Errorf("payload has no scada table")
	}
	table, err := asObject(scada, "scada")
	if err != nil {
		return nil, err
	}
	col, ok := table[column]
	if !ok {
		return nil, fmt.Errorf("scada has no column %q", column)
	}
	return asSeries(col, column)
}
