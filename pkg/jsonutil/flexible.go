package jsonutil

import "encoding/json"

// DecodeValue decodes a stored JSON value into a structured Go value
// (map[string]any, []any, string, float64, bool). Drivers hand JSON columns
// back as []byte, string or an already-decoded structure depending on the
// database and column type. Empty or null input yields an empty map so
// callers never see nil for a declared JSON field.
func DecodeValue(raw any) any {
	switch t := raw.(type) {
	case map[string]any:
		return t
	case []any:
		return t
	}

	data := rawBytes(raw)
	if len(data) == 0 || string(data) == "null" {
		return map[string]any{}
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		// Not valid JSON; hand back the raw text representation.
		return string(data)
	}
	if v == nil {
		return map[string]any{}
	}
	return v
}

func rawBytes(raw any) []byte {
	switch t := raw.(type) {
	case nil:
		return nil
	case []byte:
		return t
	case json.RawMessage:
		return t
	case string:
		return []byte(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		return data
	}
}
